package rpc

import (
	"go.uber.org/zap"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/protocol"
	"github.com/luciancaetano/wadash/internal/websocket"
)

// receiveLoop is the only reader of tr. It runs until the transport fails or
// is closed, then closes done.
func (s *Session) receiveLoop(tr *websocket.Transport, done chan struct{}) {
	defer close(done)

	log := s.log.With(zap.String("transport_id", tr.ID()))
	log.Debug("Receive loop started")

	for {
		data, err := tr.Receive()
		if err != nil {
			s.handleDisconnect(tr, err)
			log.Debug("Receive loop stopped")
			return
		}
		s.route(data)
	}
}

// route classifies one inbound frame. A non-null id makes it a response;
// otherwise an event.-prefixed method makes it an event; anything else is
// ignored. No frame can stop the loop.
func (s *Session) route(data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn("Dropping malformed frame", zap.Error(&ParseError{Size: len(data), Err: err}))
		s.metrics.FrameDropped(DropParse)
		return
	}

	if f.Invalid != nil && f.Kind() != protocol.KindResponse {
		s.log.Warn("Dropping malformed frame", zap.Error(&ParseError{Size: len(data), Err: f.Invalid}))
		s.metrics.FrameDropped(DropParse)
		return
	}

	switch f.Kind() {
	case protocol.KindResponse:
		id, ok := f.RequestID()
		if !ok || !s.pending.resolve(id, f) {
			s.log.Debug("Dropping unroutable response", zap.ByteString("id", f.ID))
			s.metrics.FrameDropped(DropUnroutable)
		}

	case protocol.KindEvent:
		s.events.dispatch(wadash.Event{Name: f.EventName(), Params: f.Params})

	default:
		s.log.Debug("Ignoring frame", zap.String("method", f.Method))
		s.metrics.FrameDropped(DropIgnored)
	}
}

// handleDisconnect runs when tr stops delivering frames. If tr is still the
// session's connection, the session drops to Disconnected.
func (s *Session) handleDisconnect(tr *websocket.Transport, cause error) {
	failed := 0

	s.mu.Lock()
	current := s.conn == tr
	if current {
		s.conn = nil
		s.state = wadash.StateDisconnected
		// Under mu so a reconnect cannot register calls before they are failed.
		if s.cfg.FailPendingOnDisconnect {
			failed = s.pending.failAll(ErrDisconnected)
		}
	}
	s.mu.Unlock()

	if !current {
		return
	}

	s.log.Warn("Connection lost",
		zap.String("transport_id", tr.ID()),
		zap.Int("failed_calls", failed),
		zap.Error(cause),
	)
	s.metrics.StateChanged(wadash.StateDisconnected)
	s.metrics.SetPendingCalls(s.pending.len())
	tr.Close()
}
