package cu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/slotlink/go-cu/logger"
)

// SessionState represents the lifecycle stage of a CU session.
type SessionState uint32

// Session states.
const (
	// DisconnectedState indicates no link to the CU is established.
	DisconnectedState SessionState = iota
	// ConnectingState indicates the transport is up and the handshake
	// (version query) is in progress.
	ConnectingState
	// ConnectedState indicates the session is established and ready for
	// command exchange.
	ConnectedState
	// ClosingState indicates the session is tearing down; pending requests
	// are being resolved.
	ClosingState
)

// IsDisconnected returns if the current state is disconnected.
func (s SessionState) IsDisconnected() bool { return s == DisconnectedState }

// IsConnecting returns if the current state is connecting.
func (s SessionState) IsConnecting() bool { return s == ConnectingState }

// IsConnected returns if the current state is connected.
func (s SessionState) IsConnected() bool { return s == ConnectedState }

// IsClosing returns if the current state is closing.
func (s SessionState) IsClosing() bool { return s == ClosingState }

// String returns string representation of the current state.
func (s SessionState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case ClosingState:
		return "closing"
	default:
		return "unknown"
	}
}

// SessionStateChangeHandler is a function type that represents a handler for
// session state changes.
//
// Note: the handler is invoked in blocking mode while the transition lock is
// held. Take care with long-running implementations.
type SessionStateChangeHandler func(prevState SessionState, newState SessionState)

// SessionStateMgr manages the lifecycle state of a CU session.
//
// It provides methods for managing state transitions and notifying listeners
// of state changes. State transitions are safe for concurrent use.
type SessionStateMgr struct {
	mu               sync.Mutex
	ctx              context.Context
	cond             *sync.Cond
	state            atomic.Uint32
	logger           logger.Logger
	asyncStateChange chan SessionState
	handlers         []SessionStateChangeHandler
}

// NewSessionStateMgr creates a new SessionStateMgr initialized to
// DisconnectedState.
//
// It accepts optional SessionStateChangeHandler functions that will be
// invoked when the session state changes.
func NewSessionStateMgr(ctx context.Context, l logger.Logger, handlers ...SessionStateChangeHandler) *SessionStateMgr {
	mgr := &SessionStateMgr{
		ctx:              ctx,
		logger:           l,
		asyncStateChange: make(chan SessionState, 10),
		handlers:         make([]SessionStateChangeHandler, 0, len(handlers)),
	}

	if mgr.logger == nil {
		mgr.logger = logger.GetLogger()
	}

	mgr.handlers = append(mgr.handlers, handlers...)

	mgr.state.Store(uint32(DisconnectedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	go mgr.asyncStateChangeTask()

	return mgr
}

// State returns the current session state.
func (mgr *SessionStateMgr) State() SessionState {
	return SessionState(mgr.state.Load())
}

// AddHandler adds one or more SessionStateChangeHandler functions to be
// invoked on state changes.
func (mgr *SessionStateMgr) AddHandler(handlers ...SessionStateChangeHandler) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.handlers = append(mgr.handlers, handlers...)
}

// WaitState waits for the session state to reach the specified state or until
// the context is done. It returns nil if the desired state is reached, or an
// error if the context is canceled or times out.
func (mgr *SessionStateMgr) WaitState(ctx context.Context, state SessionState) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		mgr.cond.Broadcast()
	})
	defer stopFunc()

	for mgr.State() != state {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			mgr.cond.Wait()
		}
	}

	return nil
}

// ToConnecting transitions the session state to ConnectingState.
//
// This transition is only allowed from the DisconnectedState.
// Returns nil on success, or ErrInvalidTransition otherwise.
func (mgr *SessionStateMgr) ToConnecting() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()

	if curState.IsConnecting() {
		return nil // Already in ConnectingState, no-op
	}

	if !curState.IsDisconnected() {
		return ErrInvalidTransition
	}

	mgr.invokeHandlers(curState, ConnectingState)
	// change state after all handlers finished
	mgr.setState(ConnectingState)

	return nil
}

// ToConnected transitions the session state to ConnectedState.
//
// This transition is only allowed from the ConnectingState and indicates that
// the handshake succeeded and the session is ready for command exchange.
// Returns nil on success, or ErrInvalidTransition otherwise.
func (mgr *SessionStateMgr) ToConnected() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()

	if curState.IsConnected() {
		return nil // Already in ConnectedState, no-op
	}

	if !curState.IsConnecting() {
		return ErrInvalidTransition
	}

	mgr.invokeHandlers(curState, ConnectedState)
	mgr.setState(ConnectedState)

	return nil
}

// ToClosing transitions the session state to ClosingState.
//
// This transition is allowed from the ConnectingState and ConnectedState.
// Returns nil on success, or ErrInvalidTransition otherwise.
func (mgr *SessionStateMgr) ToClosing() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()

	if curState.IsClosing() {
		return nil // Already in ClosingState, no-op
	}

	if !curState.IsConnecting() && !curState.IsConnected() {
		return ErrInvalidTransition
	}

	mgr.invokeHandlers(curState, ClosingState)
	mgr.setState(ClosingState)

	return nil
}

// ToDisconnected transitions the session state to DisconnectedState.
// This transition is allowed from any state and represents teardown
// completion or a reset of the session.
func (mgr *SessionStateMgr) ToDisconnected() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()

	if curState.IsDisconnected() {
		return // Already in DisconnectedState, no need to transition
	}

	// change state to disconnected BEFORE the handlers run
	mgr.setState(DisconnectedState)

	mgr.invokeHandlers(curState, DisconnectedState)
}

// ToClosingAsync transitions the session state to ClosingState asynchronously.
//
// It notifies a goroutine that performs the transition in the background.
// If the state already equals the current state, the function is a no-op.
func (mgr *SessionStateMgr) ToClosingAsync() {
	mgr.changeStateAsync(ClosingState)
}

// ToDisconnectedAsync transitions the session state to DisconnectedState
// asynchronously.
func (mgr *SessionStateMgr) ToDisconnectedAsync() {
	mgr.changeStateAsync(DisconnectedState)
}

// IsConnected returns if the current state is connected.
func (mgr *SessionStateMgr) IsConnected() bool {
	return mgr.State().IsConnected()
}

// IsDisconnected returns if the current state is disconnected.
func (mgr *SessionStateMgr) IsDisconnected() bool {
	return mgr.State().IsDisconnected()
}

// setState atomically sets the current state to newState and broadcasts a
// signal to any waiting goroutines.
func (mgr *SessionStateMgr) setState(newState SessionState) {
	mgr.state.Store(uint32(newState))
	mgr.cond.Broadcast()
}

// invokeHandlers invokes all registered handlers with the previous and new states.
func (mgr *SessionStateMgr) invokeHandlers(prevState SessionState, newState SessionState) {
	for _, handler := range mgr.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}

// changeStateAsync requests the desired session state transition in the
// background.
func (mgr *SessionStateMgr) changeStateAsync(state SessionState) {
	if mgr.State() == state {
		return
	}

	mgr.asyncStateChange <- state
}

// asyncStateChangeTask handles state changing in the background.
func (mgr *SessionStateMgr) asyncStateChangeTask() {
	for {
		select {
		case <-mgr.ctx.Done():
			return

		case desiredState := <-mgr.asyncStateChange:
			prevState := mgr.State()
			if desiredState == prevState {
				break
			}

			var err error
			switch desiredState {
			case DisconnectedState:
				mgr.ToDisconnected()
			case ConnectingState:
				err = mgr.ToConnecting()
			case ConnectedState:
				err = mgr.ToConnected()
			case ClosingState:
				err = mgr.ToClosing()
			}

			if err != nil {
				mgr.logger.Error("async session state transition failed",
					"prevState", prevState, "desiredState", desiredState, "error", err,
				)
				if errors.Is(err, ErrInvalidTransition) {
					mgr.asyncStateChange <- DisconnectedState
				}
			}
		}
	}
}
