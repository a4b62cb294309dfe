package culink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/slotlink/go-cu/cu"
	"github.com/slotlink/go-cu/internal/pool"
	"github.com/slotlink/go-cu/logger"
)

// TransportOpener opens a transport to the Control Unit. It is called by
// Connect, once per connection attempt.
type TransportOpener func(ctx context.Context) (cu.Transport, error)

// Session implements the cu.Session interface over a transport produced by a
// TransportOpener. It manages the communication with a Control Unit, handling
// command/reply exchange, session state transitions, and the fan-out of
// status events to subscribers.
type Session struct {
	pctx      context.Context
	ctx       context.Context
	ctxCancel context.CancelFunc
	cfg       *SessionConfig
	logger    logger.Logger

	opener     TransportOpener
	transMutex sync.Mutex // transport mutex
	trans      cu.Transport

	stateMgr *cu.SessionStateMgr
	taskMgr  *cu.TaskManager
	shutdown atomic.Bool // indicates if has entered shutdown mode
	pollCtl  pollCtl     // status poll control

	senderChan chan *sendRequest
	replyChans *xsync.MapOf[byte, chan cu.Response]

	dispatcher *eventDispatcher

	metrics SessionMetrics // session metrics
}

// ensure Session implements cu.Session interface.
var _ cu.Session = &Session{}

// NewSession creates a new Session with the given context, transport opener
// and configuration.
// It initializes the session state, task manager, and other necessary
// components.
// Returns an error if the opener or configuration is nil.
func NewSession(ctx context.Context, opener TransportOpener, cfg *SessionConfig) (*Session, error) {
	if opener == nil {
		return nil, errors.New("transport opener is nil")
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}

	s := &Session{
		pctx:       ctx,
		cfg:        cfg,
		logger:     cfg.logger,
		opener:     opener,
		senderChan: make(chan *sendRequest, cfg.senderQueueSize),
		replyChans: xsync.NewMapOf[byte, chan cu.Response](),
		taskMgr:    cu.NewTaskManager(ctx, cfg.logger),
		dispatcher: newEventDispatcher(ctx, cfg.logger),
	}

	s.createContext()

	s.stateMgr = cu.NewSessionStateMgr(ctx, cfg.logger, s.sessionStateHandler)

	return s, nil
}

// UpdateConfigOptions applies configuration options at runtime and adjusts
// running interval tasks where needed.
func (s *Session) UpdateConfigOptions(opts ...SessionOption) error {
	var autoPoll bool
	var pollInterval time.Duration

	for _, opt := range opts {
		sessOpt, ok := opt.(*sessionOptFunc)
		if !ok {
			return errors.New("invalid SessionOption type")
		}

		switch sessOpt.name {
		case "WithAutoPoll":
			autoPoll = s.cfg.autoPoll

		case "WithPollInterval":
			pollInterval = s.cfg.pollInterval
		}

		if err := opt.apply(s.cfg); err != nil {
			return err
		}
	}

	if s.cfg.autoPoll != autoPoll { // autoPoll changed
		if s.cfg.autoPoll { // enable autoPoll
			s.pollCtl.reset(s.cfg.pollInterval)
		} else { // disable autoPoll
			s.pollCtl.stop()
		}
	} else if s.cfg.pollInterval != pollInterval { // autoPoll doesn't changed, pollInterval changed
		if s.cfg.autoPoll {
			s.pollCtl.reset(s.cfg.pollInterval)
		}
	}

	return nil
}

// GetLogger returns the logger associated with the session.
func (s *Session) GetLogger() logger.Logger {
	return s.logger
}

// GetMetrics returns the metrics associated with the session.
func (s *Session) GetMetrics() *SessionMetrics {
	return &s.metrics
}

// State returns the current session state.
func (s *Session) State() cu.SessionState {
	return s.stateMgr.State()
}

// AddSessionStateChangeHandler adds one or more handlers to be invoked when
// the session state changes.
func (s *Session) AddSessionStateChangeHandler(handlers ...cu.SessionStateChangeHandler) {
	s.stateMgr.AddHandler(handlers...)
}

// Subscribe registers an event subscriber. See cu.Session for the delivery
// guarantees.
func (s *Session) Subscribe() (<-chan cu.Event, func()) {
	return s.dispatcher.subscribe()
}

// Connect opens the transport and performs the version handshake.
// It blocks until the session is connected, the context is canceled, or the
// configured number of connect attempts is exhausted.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.stateMgr.ToConnecting(); err != nil {
		return err
	}

	s.shutdown.Store(false)
	s.createContext()

	err := retry.Do(
		func() error { return s.connectOnce(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.ConnectAttempts())),
		retry.Delay(s.cfg.RetryDelay()),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			// n is zero-based; the first failure is not a retry
			if n > 0 {
				s.metrics.incConnRetryGauge()
			}
			s.logger.Warn("connect attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		s.stateMgr.ToDisconnected()
		return fmt.Errorf("%w: %w", cu.ErrConnectFailed, err)
	}

	return s.stateMgr.ToConnected()
}

// connectOnce performs a single connection attempt: open the transport,
// start the session tasks, and probe the unit with a version request.
func (s *Session) connectOnce(ctx context.Context) error {
	trans, err := s.opener(ctx)
	if err != nil {
		s.logger.Debug("failed to open transport", "error", err)
		return err
	}

	s.setTransport(trans)

	if err := s.taskMgr.Start("receiverTask", s.receiverTask); err != nil {
		s.teardownLink()
		return err
	}

	if err := s.taskMgr.Start("protocolLoop", s.protocolLoop); err != nil {
		s.teardownLink()
		return err
	}

	// The version request doubles as the connect handshake: a valid reply
	// proves the link carries CU frames in both directions.
	reply, err := s.doSend(ctx, cu.VersionRequest{})
	if err != nil {
		s.teardownLink()
		return err
	}

	version, ok := reply.(*cu.VersionReply)
	if !ok {
		s.teardownLink()
		return fmt.Errorf("unexpected handshake reply tag 0x%02x", reply.Tag())
	}

	s.logger.Info("control unit connected", "version", version.Version)

	return nil
}

// Disconnect closes the session gracefully.
// It terminates all running tasks, closes the transport, and resolves every
// pending command with cu.ErrConnClosed.
func (s *Session) Disconnect() error {
	s.shutdown.Store(true)

	_ = s.stateMgr.ToClosing()
	s.stateMgr.ToDisconnected()

	return nil
}

// SendCommand sends a command and waits for its reply. See cu.Session for the
// ordering guarantees.
func (s *Session) SendCommand(ctx context.Context, cmd cu.Command) (cu.Response, error) {
	if !s.stateMgr.IsConnected() {
		s.logger.Warn("failed to send command, session not connected",
			"tag", string(cmd.Tag()), "state", s.stateMgr.State(),
		)

		return nil, cu.ErrNotConnected
	}

	return s.doSend(ctx, cmd)
}

// doSend enqueues the command and waits for its result. It is the internal
// path shared by SendCommand and the connect handshake.
func (s *Session) doSend(ctx context.Context, cmd cu.Command) (cu.Response, error) {
	req := newSendRequest(cmd)

	enqueueTimer := pool.GetTimer(s.cfg.SendTimeout())
	defer pool.PutTimer(enqueueTimer)

	select {
	case <-enqueueTimer.C:
		return nil, cu.ErrSendTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, cu.ErrConnClosed
	case s.senderChan <- req: // protocolLoop will pick the request up.
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, cu.ErrConnClosed
	case res := <-req.result:
		return res.resp, res.err
	}
}

// protocolLoop is the task function for the protocol goroutine.
// It picks one queued command at a time and runs its full send/reply cycle,
// which keeps at most one command outstanding on the wire.
func (s *Session) protocolLoop() bool {
	// when both teardown and a queued request are ready, teardown wins;
	// failQueuedRequests resolves whatever is left in the queue
	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	select {
	case <-s.ctx.Done():
		return false
	case req := <-s.senderChan:
		s.serveRequest(req)
		return true
	}
}

// serveRequest runs the send/reply cycle of a single command, retrying until
// a matching reply arrives or the attempt budget is spent.
func (s *Session) serveRequest(req *sendRequest) {
	frame := req.cmd.Encode()
	replyTag := req.cmd.ReplyTag()
	maxAttempts := s.cfg.MaxAttempts()
	replyTimeout := s.cfg.ReplyTimeout()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			s.metrics.incCommandRetryCount()
			if s.logger.Level() == logger.DebugLevel {
				s.logger.Debug("retrying command", "tag", string(req.cmd.Tag()), "attempt", attempt)
			}

			if !s.sleep(s.cfg.RetryDelay()) {
				req.fail(cu.ErrConnClosed)
				return
			}
		}

		replyChan := s.addPendingReply(replyTag)

		s.metrics.incCommandSendCount()

		if err := s.sendFrame(frame); err != nil {
			s.removePendingReply(replyTag)
			s.metrics.incCommandErrCount()

			// a write failure during teardown is not a link failure
			if s.ctx.Err() != nil {
				req.fail(cu.ErrConnClosed)
				return
			}

			s.logger.Error("failed to write command frame", "method", "serveRequest", "error", err)
			req.fail(err)

			// a write failure means the link is gone
			s.stateMgr.ToDisconnectedAsync()

			return
		}

		replyTimer := pool.GetTimer(replyTimeout)

		select {
		case <-s.ctx.Done():
			pool.PutTimer(replyTimer)
			s.removePendingReply(replyTag)
			req.fail(cu.ErrConnClosed)

			return

		case resp := <-replyChan:
			pool.PutTimer(replyTimer)
			s.removePendingReply(replyTag)
			req.succeed(resp)

			return

		case <-replyTimer.C:
			pool.PutTimer(replyTimer)
			s.removePendingReply(replyTag)
			s.metrics.incReplyTimeoutCount()
			s.logger.Warn("reply timeout", "tag", string(req.cmd.Tag()), "attempt", attempt, "timeout", replyTimeout)
		}
	}

	s.metrics.incCommandErrCount()
	req.fail(cu.ErrTimeout)
}

// receiverTask is the task function for the receiver goroutine.
// It drains decoded frames from the transport and routes them to the pending
// command or to event subscribers.
func (s *Session) receiverTask() bool {
	trans := s.transport()
	if trans == nil {
		return false
	}

	select {
	case <-s.ctx.Done():
		return false

	case frame, ok := <-trans.Inbound():
		if !ok {
			// during connect retries and shutdown the transport is closed on
			// purpose; only a connected session treats this as link failure
			if !s.shutdown.Load() && s.stateMgr.IsConnected() {
				s.logger.Warn("transport closed by link failure", "method", "receiverTask")
				s.stateMgr.ToDisconnectedAsync()
			}

			return false
		}

		s.handleFrame(frame)

		return true
	}
}

// handleFrame decodes one inbound frame, resolves the pending command when
// the opcode matches, and publishes status reports to subscribers.
func (s *Session) handleFrame(frame cu.Frame) {
	receivedAt := time.Now()

	resp, err := cu.DecodeFrame(frame)
	if err != nil {
		s.metrics.incFrameErrCount()
		s.logger.Warn("dropping invalid frame", "method", "handleFrame", "error", err, "len", len(frame))

		return
	}

	s.metrics.incFrameRecvCount()

	correlated := false
	if replyChan, ok := s.replyChans.LoadAndDelete(resp.Tag()); ok {
		replyChan <- resp // buffered, never blocks
		correlated = true
	}

	// status reports reach subscribers whether solicited or not; responses
	// nobody is waiting on, like an echo arriving after the retry budget,
	// are published too rather than dropped
	if _, isStatus := resp.(cu.Status); isStatus || !correlated {
		s.metrics.incEventPublishCount()
		s.dispatcher.publish(cu.Event{Response: resp, ReceivedAt: receivedAt})
	}
}

// autoPollTask sends a status request on every poll tick.
func (s *Session) autoPollTask() bool {
	s.metrics.incPollSendCount()

	_, err := s.doSend(s.ctx, cu.StatusRequest{})

	if errors.Is(err, cu.ErrTimeout) {
		s.metrics.incPollErrCount()
		s.logger.Error("status poll timeout")
		s.stateMgr.ToDisconnectedAsync()

		return false
	}

	// if connection closed, stop poll task and doesn't need to increase error count
	if errors.Is(err, cu.ErrConnClosed) || errors.Is(err, context.Canceled) {
		return false
	}

	if err != nil {
		s.metrics.incPollErrCount()
		s.logger.Warn("status poll failed", "error", err)
	}

	return true
}

func (s *Session) sessionStateHandler(prevState cu.SessionState, curState cu.SessionState) {
	s.logger.Debug("session state changes", "prevState", prevState, "curState", curState)

	switch curState {
	case cu.ConnectedState:
		s.metrics.resetConnRetryGauge()

		if s.cfg.AutoPoll() {
			ticker, err := s.taskMgr.StartInterval("autoPollTask", s.autoPollTask, s.cfg.PollInterval(), false)
			if err != nil {
				s.logger.Error("failed to start status poll task", "error", err)
				return
			}
			s.pollCtl.set(ticker)
		}

	case cu.ClosingState:
		s.pollCtl.stop()

	case cu.DisconnectedState:
		s.pollCtl.stop()
		s.closeConn(s.cfg.CloseTimeout())

	case cu.ConnectingState:
		// nothing to do until the transport is open
	}
}

// closeConn performs the actual session closing process with a timeout.
// It cancels the context, stops the task manager, closes the transport, and
// waits for all goroutines to terminate.
func (s *Session) closeConn(timeout time.Duration) {
	s.logger.Debug("start closeConn process")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.ctxCancel != nil {
		s.logger.Debug("trigger context cancel function", "method", "closeConn")
		s.ctxCancel()
	}

	s.taskMgr.Stop()

	s.closeTransport()

	// resolve all commands that still wait in the queue
	s.failQueuedRequests(cu.ErrConnClosed)

	go func() {
		s.logger.Debug("wait all goroutines terminated, taskMgr", "method", "closeConn")
		s.taskMgr.Wait()
		s.logger.Debug("all goroutines terminated", "method", "closeConn")
		cancel()
	}()

	// wait all goroutines terminated
	<-ctx.Done()

	if errors.Is(ctx.Err(), context.Canceled) {
		s.logger.Debug("close success", "method", "closeConn")
	} else {
		s.logger.Error("close timeout", "method", "closeConn", "error", ctx.Err(), "timeout", timeout)
	}
}

// teardownLink reverts a failed connection attempt so the next attempt starts
// from a clean state.
func (s *Session) teardownLink() {
	if s.ctxCancel != nil {
		s.ctxCancel()
	}

	s.taskMgr.Stop()
	s.closeTransport()
	s.failQueuedRequests(cu.ErrConnClosed)
	s.taskMgr.Wait()

	s.createContext()
}

// createContext creates a new context for the session, derived from the
// parent context.
func (s *Session) createContext() {
	s.ctx, s.ctxCancel = context.WithCancel(s.pctx)
}

func (s *Session) setTransport(trans cu.Transport) {
	s.transMutex.Lock()
	defer s.transMutex.Unlock()

	s.trans = trans
}

func (s *Session) transport() cu.Transport {
	s.transMutex.Lock()
	defer s.transMutex.Unlock()

	return s.trans
}

func (s *Session) closeTransport() {
	s.transMutex.Lock()
	defer s.transMutex.Unlock()

	if s.trans != nil {
		s.logger.Debug("close transport", "method", "closeTransport")

		if err := s.trans.Close(); err != nil {
			s.logger.Error("failed to close transport", "method", "closeTransport", "error", err)
		}

		s.trans = nil
	}
}

// sendFrame writes one command frame to the transport.
func (s *Session) sendFrame(frame cu.Frame) error {
	trans := s.transport()
	if trans == nil {
		return cu.ErrNotConnected
	}

	return trans.Send(frame)
}

// addPendingReply registers a reply channel for the given reply opcode.
func (s *Session) addPendingReply(tag byte) chan cu.Response {
	replyChan := make(chan cu.Response, 1)
	s.replyChans.Store(tag, replyChan)

	return replyChan
}

// removePendingReply removes the reply channel registered for the given
// reply opcode.
func (s *Session) removePendingReply(tag byte) {
	s.replyChans.Delete(tag)
}

// failQueuedRequests resolves every command still waiting in the queue with
// the given error.
func (s *Session) failQueuedRequests(err error) {
	for {
		select {
		case req := <-s.senderChan:
			req.fail(err)
		default:
			return
		}
	}
}

// sleep waits for the given duration, returning false when the session
// context ends first.
func (s *Session) sleep(d time.Duration) bool {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// sendResult is the outcome of one command exchange.
type sendResult struct {
	resp cu.Response
	err  error
}

// sendRequest is one queued command together with its result channel.
type sendRequest struct {
	cmd    cu.Command
	result chan sendResult
}

func newSendRequest(cmd cu.Command) *sendRequest {
	return &sendRequest{
		cmd:    cmd,
		result: make(chan sendResult, 1),
	}
}

func (r *sendRequest) succeed(resp cu.Response) {
	r.result <- sendResult{resp: resp}
}

func (r *sendRequest) fail(err error) {
	r.result <- sendResult{err: err}
}

// pollCtl is a helper struct for managing the status poll interval.
type pollCtl struct {
	mu     sync.Mutex
	ticker *time.Ticker
}

func (p *pollCtl) set(ticker *time.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticker = ticker
}

func (p *pollCtl) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		p.ticker.Stop()
	}
}

func (p *pollCtl) reset(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil && d > 0 {
		p.ticker.Reset(d)
	}
}
