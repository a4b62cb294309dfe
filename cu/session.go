package cu

import (
	"context"
	"time"

	"github.com/slotlink/go-cu/logger"
)

// Event carries an unsolicited response published to session subscribers,
// together with the time the frame was taken off the transport.
type Event struct {
	Response   Response
	ReceivedAt time.Time
}

// Session defines the interface of a command session with a Control Unit.
// It provides methods for sending commands and waiting for their replies,
// subscribing to unsolicited events, and managing session state change
// handlers.
type Session interface {
	// Connect opens the underlying transport and performs the connection
	// handshake. It blocks until the session is connected, the context is
	// canceled, or the configured number of connect attempts is exhausted.
	Connect(ctx context.Context) error

	// Disconnect closes the session and its transport. It blocks until all
	// session goroutines have terminated and every pending command has been
	// resolved with ErrConnClosed.
	Disconnect() error

	// State returns the current session state.
	State() SessionState

	// AddSessionStateChangeHandler adds one or more handlers to be invoked
	// when the session state changes.
	AddSessionStateChangeHandler(handlers ...SessionStateChangeHandler)

	// SendCommand sends a command and waits for its reply. Commands are
	// serialized: at most one command is outstanding on the wire at a time,
	// and queued commands are sent in submission order.
	//
	// It returns the decoded reply, or an error if the session is not
	// connected, the context is canceled, or all send attempts time out.
	SendCommand(ctx context.Context, cmd Command) (Response, error)

	// Subscribe registers an event subscriber and returns its channel
	// together with a cancel function that unregisters the subscriber and
	// closes the channel. Events are delivered to each subscriber in the
	// order their frames arrived, and slow subscribers never block the
	// session or other subscribers.
	Subscribe() (<-chan Event, func())

	// GetLogger returns the logger used by the session.
	GetLogger() logger.Logger
}
