// Package race provides the typed facade over a Control Unit session.
//
// ControlUnit exposes one method per CU operation: firmware version query,
// status polling, per-lane limit writes, start light and pace car control,
// key presses, and the tower resets. Arguments are validated against their
// closed ranges before any frame is built, so an out-of-range call fails
// fast with cu.ErrInvalidArgument and never reaches the wire.
package race
