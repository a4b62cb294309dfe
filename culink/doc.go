// Package culink implements the cu.Session interface on top of a cu.Transport.
//
// A Session serializes command traffic to the Control Unit: commands are
// queued in submission order and at most one command frame is outstanding on
// the wire at any time. Each command waits for the reply frame that carries
// its expected opcode; a missing reply is retried up to the configured number
// of attempts before the command fails with cu.ErrTimeout.
//
// Inbound status frames (track status snapshots and lap events) are fanned
// out to subscribers registered with Subscribe. Delivery to one subscriber
// never blocks the session or any other subscriber.
//
// The Session is created with a TransportOpener so the same session logic
// works over any link; see packages serial and ble for the two Control Unit
// transports.
package culink
