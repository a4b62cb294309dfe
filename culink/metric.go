package culink

import (
	"sync/atomic"
)

// SessionMetrics contains atomic metrics for a session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// CommandSendCount indicates the number of command frames sent,
	// including retries.
	CommandSendCount atomic.Uint64
	// CommandRetryCount indicates the number of command send retries.
	CommandRetryCount atomic.Uint64
	// CommandErrCount indicates the number of command errors.
	CommandErrCount atomic.Uint64
	// ReplyTimeoutCount indicates the number of reply timeouts.
	ReplyTimeoutCount atomic.Uint64

	// FrameRecvCount indicates the number of inbound frames decoded.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of inbound frames dropped as
	// malformed.
	FrameErrCount atomic.Uint64

	// EventPublishCount indicates the number of status events published to
	// subscribers.
	EventPublishCount atomic.Uint64

	// PollSendCount indicates the number of automatic status polls sent.
	PollSendCount atomic.Uint64
	// PollErrCount indicates the number of automatic status poll errors.
	PollErrCount atomic.Uint64

	// ConnRetryGauge indicates the number of connection retries.
	ConnRetryGauge atomic.Uint32
}

func (m *SessionMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *SessionMetrics) incCommandRetryCount() {
	m.CommandRetryCount.Add(1)
}

func (m *SessionMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *SessionMetrics) incReplyTimeoutCount() {
	m.ReplyTimeoutCount.Add(1)
}

func (m *SessionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *SessionMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *SessionMetrics) incEventPublishCount() {
	m.EventPublishCount.Add(1)
}

func (m *SessionMetrics) incPollSendCount() {
	m.PollSendCount.Add(1)
}

func (m *SessionMetrics) incPollErrCount() {
	m.PollErrCount.Add(1)
}

func (m *SessionMetrics) incConnRetryGauge() {
	m.ConnRetryGauge.Add(1)
}

func (m *SessionMetrics) resetConnRetryGauge() {
	m.ConnRetryGauge.Store(0)
}
