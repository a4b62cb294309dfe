package cu

import "errors"

// Decode errors. Frames failing these checks are dropped by the session
// without affecting the pending request.
var (
	// ErrMalformedFrame indicates a frame whose length or structure does not
	// match any known response layout.
	ErrMalformedFrame = errors.New("cu: malformed frame")

	// ErrChecksumMismatch indicates a frame whose recomputed checksum does
	// not match the trailing checksum byte.
	ErrChecksumMismatch = errors.New("cu: checksum mismatch")

	// ErrUnknownTag indicates a frame starting with an opcode byte outside
	// the known response set.
	ErrUnknownTag = errors.New("cu: unknown frame tag")
)

// Session errors.
var (
	// ErrNotConnected indicates a command was submitted while the session is
	// not in the connected state.
	ErrNotConnected = errors.New("cu: session not connected")

	// ErrConnClosed indicates the session was torn down while the operation
	// was outstanding.
	ErrConnClosed = errors.New("cu: connection closed")

	// ErrTimeout indicates that no matching reply arrived within the
	// configured retry budget.
	ErrTimeout = errors.New("cu: reply timeout")

	// ErrConnectFailed indicates the connect handshake (version query) failed.
	ErrConnectFailed = errors.New("cu: connect handshake failed")

	// ErrSendTimeout indicates the command queue did not accept the request
	// within the configured enqueue timeout.
	ErrSendTimeout = errors.New("cu: send queue timeout")

	// ErrInvalidArgument indicates an out-of-range argument to a facade
	// operation; it is reported before any frame is built or sent.
	ErrInvalidArgument = errors.New("cu: invalid argument")
)

// ErrInvalidTransition is returned when an attempt is made to transition the
// session state to an invalid state.
var ErrInvalidTransition = errors.New("cu: invalid state transition")
