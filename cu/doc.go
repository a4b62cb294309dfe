// Package cu implements the core protocol layer for the Carrera Control Unit (CU),
// the track-side device that governs per-controller power/brake/fuel limits and
// reports lap and track status.
//
// The package provides the frame codec (command encoding, response decoding and
// checksum validation), the closed command/response variant sets, the session
// state machine, the Transport capability interface implemented by the concrete
// serial and BLE backends, and the Session interface consumed by the high-level
// facade in package race.
//
// Frame layout:
// Every frame starts with a single opcode byte that identifies the message.
// Numeric fields are transmitted as ASCII nibbles ('0' + value) and multi-byte
// frames end with a 4-bit checksum byte. The codec reproduces the device's wire
// format bit-exactly; see the per-type documentation for the individual layouts.
package cu
