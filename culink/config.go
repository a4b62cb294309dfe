package culink

import (
	"errors"
	"sync"
	"time"

	"github.com/slotlink/go-cu/logger"
)

// ErrConfigNil is returned when a nil SessionConfig is passed to a
// configuration option.
var ErrConfigNil = errors.New("culink: session config is nil")

// SessionConfig represents the configuration parameters for a Control Unit
// command session.
type SessionConfig struct {
	mu sync.RWMutex

	// replyTimeout defines how long a single send attempt waits for the
	// matching reply frame before it is retried.
	// Defaults to 2 seconds.
	replyTimeout time.Duration

	// maxAttempts defines how many times a command frame is sent before the
	// command fails with cu.ErrTimeout. It includes the first attempt.
	// Defaults to 3.
	maxAttempts int

	// retryDelay defines the delay between send attempts of the same command.
	// Defaults to 100 milliseconds.
	retryDelay time.Duration

	// sendTimeout defines how long SendCommand waits for a slot in the
	// command queue before failing with cu.ErrSendTimeout.
	// Defaults to 5 seconds.
	sendTimeout time.Duration

	// connectAttempts defines how many times Connect tries to open the
	// transport and complete the version handshake before giving up.
	// Defaults to 3.
	connectAttempts int

	// closeTimeout defines the timeout for tearing the session down.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	// senderQueueSize defines the size of the command queue, which buffers
	// commands before the protocol loop picks them up.
	//
	// This option allows you to control the backpressure level for unsent
	// commands. A larger queue size can accommodate bursts of commands but
	// might consume more memory.
	//
	// Defaults to 10.
	senderQueueSize int

	// autoPoll indicates whether to send periodic status requests
	// automatically while the session is connected. Polling keeps track
	// status and lap events flowing to subscribers without the caller
	// driving the request cycle.
	// Defaults to false.
	autoPoll bool

	// pollInterval defines the interval between automatic status requests.
	// This field is only relevant when autoPoll is true.
	// Defaults to 75 milliseconds.
	pollInterval time.Duration

	// logger provides a logger instance for logging session events and errors.
	logger logger.Logger
}

// NewSessionConfig creates a new session configuration with the given
// optional functional options.
//
// It initializes a SessionConfig struct with default values and then applies
// the provided options to customize the configuration.
//
// Returns a pointer to the initialized SessionConfig and an error if any
// occurred during the configuration process.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		replyTimeout:    2 * time.Second,
		maxAttempts:     3,
		retryDelay:      100 * time.Millisecond,
		sendTimeout:     5 * time.Second,
		connectAttempts: 3,
		closeTimeout:    3 * time.Second,
		senderQueueSize: 10,
		autoPoll:        false,
		pollInterval:    75 * time.Millisecond,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *SessionConfig) ReplyTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.replyTimeout
}

func (cfg *SessionConfig) MaxAttempts() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.maxAttempts
}

func (cfg *SessionConfig) RetryDelay() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.retryDelay
}

func (cfg *SessionConfig) SendTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.sendTimeout
}

func (cfg *SessionConfig) ConnectAttempts() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectAttempts
}

func (cfg *SessionConfig) CloseTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.closeTimeout
}

func (cfg *SessionConfig) SenderQueueSize() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.senderQueueSize
}

func (cfg *SessionConfig) AutoPoll() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.autoPoll
}

func (cfg *SessionConfig) PollInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.pollInterval
}

// SessionOption represents a functional option for configuring a SessionConfig.
type SessionOption interface {
	apply(*SessionConfig) error
}

type sessionOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*SessionConfig) error
}

func (o *sessionOptFunc) apply(cfg *SessionConfig) error { return o.applyFunc(cfg) }

func newSessionOptFunc(name string, runtime bool, f func(*SessionConfig) error) *sessionOptFunc {
	return &sessionOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

// WithReplyTimeout sets how long a single send attempt waits for the matching
// reply frame.
// It returns a SessionOption that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (10 milliseconds - 120 seconds) or if the configuration is nil.
//
// The default value is 2 seconds.
//
// This option can be changed at runtime.
func WithReplyTimeout(val time.Duration) SessionOption {
	return newSessionOptFunc("WithReplyTimeout", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 10*time.Millisecond || val > 120*time.Second {
			return errors.New("reply timeout out of range [0.01, 120]")
		}
		cfg.replyTimeout = val

		return nil
	})
}

// WithMaxAttempts sets how many times a command frame is sent before the
// command fails with cu.ErrTimeout. The count includes the first attempt.
// An error is returned if the value is outside the valid range (1-10) or if
// the configuration is nil.
//
// The default value is 3.
//
// This option can be changed at runtime.
func WithMaxAttempts(val int) SessionOption {
	return newSessionOptFunc("WithMaxAttempts", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 1 || val > 10 {
			return errors.New("max attempts out of range [1, 10]")
		}
		cfg.maxAttempts = val

		return nil
	})
}

// WithRetryDelay sets the delay between send attempts of the same command.
// An error is returned if the delay is outside the valid range
// (0 - 10 seconds) or if the configuration is nil.
//
// The default value is 100 milliseconds.
//
// This option can be changed at runtime.
func WithRetryDelay(val time.Duration) SessionOption {
	return newSessionOptFunc("WithRetryDelay", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 0 || val > 10*time.Second {
			return errors.New("retry delay out of range [0, 10]")
		}
		cfg.retryDelay = val

		return nil
	})
}

// WithSendTimeout sets how long SendCommand waits for a slot in the command
// queue before failing with cu.ErrSendTimeout.
// An error is returned if the timeout is outside the valid range
// (10 milliseconds - 120 seconds) or if the configuration is nil.
//
// The default value is 5 seconds.
//
// This option can be changed at runtime.
func WithSendTimeout(val time.Duration) SessionOption {
	return newSessionOptFunc("WithSendTimeout", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 10*time.Millisecond || val > 120*time.Second {
			return errors.New("send timeout out of range [0.01, 120]")
		}
		cfg.sendTimeout = val

		return nil
	})
}

// WithConnectAttempts sets how many times Connect tries to open the transport
// and complete the version handshake before giving up.
// An error is returned if the value is outside the valid range (1-10) or if
// the configuration is nil.
//
// The default value is 3.
//
// This option can't be changed at runtime.
func WithConnectAttempts(val int) SessionOption {
	return newSessionOptFunc("WithConnectAttempts", false, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 1 || val > 10 {
			return errors.New("connect attempts out of range [1, 10]")
		}
		cfg.connectAttempts = val

		return nil
	})
}

// WithCloseTimeout sets the timeout for tearing the session down.
// An error is returned if the timeout is outside the valid range
// (1-30 seconds) or if the configuration is nil.
//
// The default value is 3 seconds.
//
// This option can be changed at runtime.
func WithCloseTimeout(val time.Duration) SessionOption {
	return newSessionOptFunc("WithCloseTimeout", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 1*time.Second || val > 30*time.Second {
			return errors.New("close timeout out of range [1, 30]")
		}
		cfg.closeTimeout = val

		return nil
	})
}

// WithSenderQueueSize sets the size of the command queue, which buffers
// commands before the protocol loop picks them up.
//
// This option allows you to control the backpressure level for unsent
// commands. A larger queue size can accommodate bursts of commands but might
// consume more memory.
//
// The queue size must be within the range of 1 to 1000.
// An error is returned if the queue size is invalid or if the provided
// SessionConfig is nil.
//
// The default value is 10.
//
// This option can't be changed at runtime.
func WithSenderQueueSize(size int) SessionOption {
	return newSessionOptFunc("WithSenderQueueSize", false, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if size < 1 || size > 1000 {
			return errors.New("the sender queue size out of range [1, 1000]")
		}

		cfg.senderQueueSize = size

		return nil
	})
}

// WithAutoPoll enables or disables the automatic periodic status poll.
//
// When enabled (val = true), the session will automatically send status
// requests to the Control Unit at the interval specified by WithPollInterval
// while the session is connected. Polling keeps track status and lap events
// flowing to subscribers without the caller driving the request cycle.
//
// When disabled (val = false), no automatic status requests will be sent.
//
// An error is returned if the provided SessionConfig is nil.
//
// The default value is false.
//
// This option can be changed at runtime.
func WithAutoPoll(val bool) SessionOption {
	return newSessionOptFunc("WithAutoPoll", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		cfg.autoPoll = val

		return nil
	})
}

// WithPollInterval sets the interval between automatic status requests.
//
// This setting has no effect if autoPoll is disabled by WithAutoPoll(false).
//
// An error is returned if the provided SessionConfig is nil or the interval
// is not positive.
//
// The default value is 75 milliseconds.
//
// This option can be changed at runtime.
func WithPollInterval(interval time.Duration) SessionOption {
	return newSessionOptFunc("WithPollInterval", true, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}

		cfg.pollInterval = interval

		return nil
	})
}

// WithLogger sets the logger for the session.
// It returns a SessionOption that updates the configuration with the provided
// logger.
// An error is returned if the configuration is nil.
//
// The default logger is the global logger instance.
//
// This option can't be changed at runtime.
func WithLogger(l logger.Logger) SessionOption {
	return newSessionOptFunc("WithLogger", false, func(cfg *SessionConfig) error {
		if cfg == nil {
			return ErrConfigNil
		}

		cfg.logger = l

		return nil
	})
}
