package rpc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luciancaetano/wadash"
)

// eventSink delivers events to the handler slot and to subscribers.
type eventSink struct {
	mu      sync.RWMutex
	handler wadash.EventHandler
	subs    map[*subscription]struct{}

	log     *zap.Logger
	metrics Metrics
}

func newEventSink(log *zap.Logger, metrics Metrics) *eventSink {
	return &eventSink{
		subs:    make(map[*subscription]struct{}),
		log:     log,
		metrics: metrics,
	}
}

func (s *eventSink) setHandler(h wadash.EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *eventSink) subscribe(buffer int) *subscription {
	sub := &subscription{sink: s, ch: make(chan wadash.Event, buffer)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *eventSink) unsubscribe(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// dispatch runs the handler and then offers ev to every subscriber. It never
// blocks on a subscriber and never lets a handler failure escape.
func (s *eventSink) dispatch(ev wadash.Event) {
	s.metrics.EventReceived(ev.Name)

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler != nil {
		if err := s.invoke(handler, ev); err != nil {
			s.log.Error("Event handler failed", zap.String("event", ev.Name), zap.Error(err))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			s.metrics.FrameDropped(DropSubscriber)
			s.log.Warn("Subscriber buffer full, event dropped", zap.String("event", ev.Name))
		}
	}
}

func (s *eventSink) invoke(handler wadash.EventHandler, ev wadash.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SinkError{Event: ev.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if herr := handler(ev); herr != nil {
		return &SinkError{Event: ev.Name, Err: herr}
	}
	return nil
}

// subscription implements wadash.Subscription.
type subscription struct {
	sink *eventSink
	ch   chan wadash.Event
}

func (s *subscription) Events() <-chan wadash.Event {
	return s.ch
}

func (s *subscription) Close() {
	s.sink.unsubscribe(s)
}
