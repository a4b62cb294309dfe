package cu

// Transport moves whole command and response frames between the session layer
// and a Control Unit link. Implementations own the link-specific framing: a
// frame handed to Send must arrive at the unit as one command, and every value
// read from Inbound must be exactly one response frame with link delimiters
// already stripped.
//
// Send may block until the frame is written to the link. Inbound is closed
// when the link fails or Close is called; after that the transport is dead
// and a new one must be opened.
type Transport interface {
	// Send writes one complete frame to the Control Unit.
	Send(frame Frame) error

	// Inbound returns the channel of decoded inbound frames.
	Inbound() <-chan Frame

	// Close shuts the link down and closes the Inbound channel.
	Close() error
}
