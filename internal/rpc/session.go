// Package rpc implements the JSON-RPC 2.0 session with the messaging
// backend: request/response correlation over one WebSocket connection, the
// receive loop that routes responses and events, and reconnection.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/protocol"
	"github.com/luciancaetano/wadash/internal/websocket"
)

var _ wadash.Session = (*Session)(nil)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Session implements wadash.Session.
//
// Request ids come from a counter that is never reset, so an id from a
// previous connection cannot collide with a new call after a reconnect.
type Session struct {
	cfg       SessionConfig
	transport websocket.TransportConfig
	log       *zap.Logger
	metrics   Metrics

	nextID  atomic.Uint64
	pending *pendingTable
	events  *eventSink

	connectMu sync.Mutex // serializes Connect and Close

	mu       sync.RWMutex
	state    wadash.State
	conn     *websocket.Transport
	loopDone chan struct{}
	// closed is set by Close and cleared by Connect. Reconnect refuses to
	// undo it.
	closed bool
}

// New creates a disconnected session. A nil cfg is invalid.
func New(cfg *SessionConfig) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     *cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		pending: newPendingTable(),
		state:   wadash.StateDisconnected,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("rpc").With(zap.String("url", cfg.URL))
	if s.metrics == nil {
		s.metrics = NoopMetrics{}
	}

	if cfg.Transport != nil {
		s.transport = *cfg.Transport
	} else {
		s.transport = *websocket.DefaultTransportConfig()
	}
	if s.transport.Logger == nil {
		s.transport.Logger = s.log
	}

	s.events = newEventSink(s.log, s.metrics)
	return s, nil
}

// Connect dials the backend and starts the receive loop. It also reopens a
// session that was closed with Close.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	return s.connect(ctx)
}

// Reconnect is Connect for a supervisor: it returns ErrClosed instead of
// dialing when the owner has closed the session.
func (s *Session) Reconnect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.Closed() {
		return ErrClosed
	}
	return s.connect(ctx)
}

// Closed reports whether Close was called after the last Connect.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// connect must be called with connectMu held.
func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == wadash.StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = wadash.StateConnecting
	s.mu.Unlock()
	s.metrics.StateChanged(wadash.StateConnecting)

	tr, err := websocket.Dial(ctx, s.cfg.URL, &s.transport)
	if err != nil {
		s.setState(wadash.StateDisconnected)
		s.metrics.ConnectAttempt(false)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	done := make(chan struct{})

	s.mu.Lock()
	s.conn = tr
	s.loopDone = done
	s.state = wadash.StateConnected
	s.mu.Unlock()

	s.metrics.ConnectAttempt(true)
	s.metrics.StateChanged(wadash.StateConnected)
	s.log.Info("Connected", zap.String("transport_id", tr.ID()))

	go s.receiveLoop(tr, done)
	return nil
}

// Close stops the receive loop and releases the connection. The session
// stays closed until Connect is called again; Reconnect does not reopen it.
func (s *Session) Close() error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	s.closed = true
	tr, done := s.conn, s.loopDone
	s.conn = nil
	wasConnected := s.state != wadash.StateDisconnected
	s.state = wadash.StateDisconnected
	s.mu.Unlock()

	if tr == nil {
		return nil
	}
	if wasConnected {
		s.metrics.StateChanged(wadash.StateDisconnected)
	}

	// Closing the transport ends the pending Receive; the loop then exits.
	err := tr.Close()
	<-done

	if s.cfg.FailPendingOnDisconnect {
		if n := s.pending.failAll(ErrDisconnected); n > 0 {
			s.log.Info("Failed pending calls on close", zap.Int("count", n))
		}
		s.metrics.SetPendingCalls(s.pending.len())
	}

	s.log.Info("Closed", zap.String("transport_id", tr.ID()))
	return err
}

// Connected reports whether calls can be issued.
func (s *Session) Connected() bool {
	return s.State() == wadash.StateConnected
}

// State returns the connection state.
func (s *Session) State() wadash.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done returns a channel closed when the current connection's receive loop
// has exited.
func (s *Session) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil || s.loopDone == nil {
		return closedChan
	}
	return s.loopDone
}

// SetEventHandler sets the event handler slot. nil removes it.
func (s *Session) SetEventHandler(handler wadash.EventHandler) {
	s.events.setHandler(handler)
}

// Subscribe adds an event subscriber. A non-positive buffer uses the
// configured default.
func (s *Session) Subscribe(buffer int) wadash.Subscription {
	if buffer <= 0 {
		buffer = s.cfg.SubscriberBuffer
	}
	return s.events.subscribe(buffer)
}

// Pending returns the number of calls awaiting a response.
func (s *Session) Pending() int {
	return s.pending.len()
}

// Call sends a request and waits for its response.
func (s *Session) Call(ctx context.Context, method string, params any, opts ...wadash.CallOption) (json.RawMessage, error) {
	o := wadash.CallOptions{Timeout: s.cfg.CallTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout <= 0 {
		o.Timeout = s.cfg.CallTimeout
	}

	start := time.Now()

	s.mu.RLock()
	tr, state := s.conn, s.state
	s.mu.RUnlock()

	if state != wadash.StateConnected || tr == nil {
		s.metrics.CallFinished(method, OutcomeNotConnected, 0)
		return nil, ErrNotConnected
	}

	id := s.nextID.Add(1)
	data, err := protocol.EncodeRequest(id, method, params, int(s.transport.MaxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("rpc: encode %s: %w", method, err)
	}

	wait, ok := s.pending.register(id)
	if !ok {
		return nil, fmt.Errorf("rpc: request id %d already pending", id)
	}
	defer func() {
		s.pending.cancel(id)
		s.metrics.SetPendingCalls(s.pending.len())
	}()
	s.metrics.SetPendingCalls(s.pending.len())

	log := s.log.With(zap.String("method", method), zap.Uint64("id", id))
	log.Debug("Sending request", zap.Int("size", len(data)))

	if err := tr.Send(ctx, data); err != nil {
		if ctx.Err() != nil {
			s.metrics.CallFinished(method, OutcomeCanceled, time.Since(start))
			return nil, ctx.Err()
		}
		log.Warn("Send failed", zap.Error(err))
		s.metrics.CallFinished(method, OutcomeSendError, time.Since(start))
		return nil, &SendError{Method: method, Err: err}
	}

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-wait:
	case <-timer.C:
		if s.pending.cancel(id) {
			log.Warn("Call timed out", zap.Duration("timeout", o.Timeout))
			s.metrics.CallFinished(method, OutcomeTimeout, time.Since(start))
			return nil, &TimeoutError{Method: method, Timeout: o.Timeout}
		}
		// Resolved concurrently with the timer; the outcome is on its way.
		out = <-wait
	case <-ctx.Done():
		if s.pending.cancel(id) {
			s.metrics.CallFinished(method, OutcomeCanceled, time.Since(start))
			return nil, ctx.Err()
		}
		out = <-wait
	}

	return s.finish(log, method, start, out)
}

func (s *Session) finish(log *zap.Logger, method string, start time.Time, out outcome) (json.RawMessage, error) {
	elapsed := time.Since(start)

	if out.err != nil {
		s.metrics.CallFinished(method, OutcomeDisconnected, elapsed)
		return nil, out.err
	}

	f := out.frame
	if f.Invalid != nil {
		log.Warn("Invalid response", zap.Error(f.Invalid))
		s.metrics.CallFinished(method, OutcomeProtocolError, elapsed)
		return nil, &ProtocolError{Method: method, Err: f.Invalid}
	}
	if f.HasError() {
		log.Debug("Backend returned error", zap.Int("code", f.Error.Code), zap.String("message", f.Error.Message))
		s.metrics.CallFinished(method, OutcomeRPCError, elapsed)
		return nil, &RPCError{Code: f.Error.Code, Message: f.Error.Message}
	}

	s.metrics.CallFinished(method, OutcomeOK, elapsed)
	return f.ResultOrNull(), nil
}

func (s *Session) setState(state wadash.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.StateChanged(state)
}
