package culink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewSessionConfig()
	require.NoError(err)

	require.Equal(2*time.Second, cfg.ReplyTimeout())
	require.Equal(3, cfg.MaxAttempts())
	require.Equal(100*time.Millisecond, cfg.RetryDelay())
	require.Equal(5*time.Second, cfg.SendTimeout())
	require.Equal(3, cfg.ConnectAttempts())
	require.Equal(3*time.Second, cfg.CloseTimeout())
	require.Equal(10, cfg.SenderQueueSize())
	require.False(cfg.AutoPoll())
	require.Equal(75*time.Millisecond, cfg.PollInterval())
}

func TestSessionConfigOptions(t *testing.T) {
	require := require.New(t)

	cfg, err := NewSessionConfig(
		WithReplyTimeout(500*time.Millisecond),
		WithMaxAttempts(5),
		WithRetryDelay(50*time.Millisecond),
		WithSendTimeout(10*time.Second),
		WithConnectAttempts(2),
		WithCloseTimeout(5*time.Second),
		WithSenderQueueSize(100),
		WithAutoPoll(true),
		WithPollInterval(50*time.Millisecond),
	)
	require.NoError(err)

	require.Equal(500*time.Millisecond, cfg.ReplyTimeout())
	require.Equal(5, cfg.MaxAttempts())
	require.Equal(50*time.Millisecond, cfg.RetryDelay())
	require.Equal(10*time.Second, cfg.SendTimeout())
	require.Equal(2, cfg.ConnectAttempts())
	require.Equal(5*time.Second, cfg.CloseTimeout())
	require.Equal(100, cfg.SenderQueueSize())
	require.True(cfg.AutoPoll())
	require.Equal(50*time.Millisecond, cfg.PollInterval())
}

func TestSessionConfigValidation(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name string
		opt  SessionOption
	}{
		{"ReplyTimeoutTooSmall", WithReplyTimeout(time.Millisecond)},
		{"ReplyTimeoutTooLarge", WithReplyTimeout(10 * time.Minute)},
		{"MaxAttemptsZero", WithMaxAttempts(0)},
		{"MaxAttemptsTooLarge", WithMaxAttempts(11)},
		{"RetryDelayNegative", WithRetryDelay(-time.Second)},
		{"RetryDelayTooLarge", WithRetryDelay(time.Minute)},
		{"SendTimeoutTooSmall", WithSendTimeout(time.Millisecond)},
		{"ConnectAttemptsZero", WithConnectAttempts(0)},
		{"CloseTimeoutTooSmall", WithCloseTimeout(100 * time.Millisecond)},
		{"CloseTimeoutTooLarge", WithCloseTimeout(time.Minute)},
		{"SenderQueueSizeZero", WithSenderQueueSize(0)},
		{"SenderQueueSizeTooLarge", WithSenderQueueSize(10000)},
		{"PollIntervalZero", WithPollInterval(0)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewSessionConfig(c.opt)
			require.Error(err)
		})
	}
}

func TestNewSessionConfigNilError(t *testing.T) {
	require := require.New(t)

	_, err := NewSession(context.Background(), nil, nil)
	require.Error(err)

	cfg, err := NewSessionConfig()
	require.NoError(err)

	_, err = NewSession(context.Background(), nil, cfg)
	require.Error(err)
}

func TestUpdateConfigOptions(t *testing.T) {
	require := require.New(t)

	ft := newFakeTransport(echoResponder)
	session := newConnectedSession(t, ft)

	require.NoError(session.UpdateConfigOptions(
		WithReplyTimeout(250 * time.Millisecond),
		WithMaxAttempts(4),
	))

	require.Equal(250*time.Millisecond, session.cfg.ReplyTimeout())
	require.Equal(4, session.cfg.MaxAttempts())

	require.Error(session.UpdateConfigOptions(WithMaxAttempts(0)))
}
