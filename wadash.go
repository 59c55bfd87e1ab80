package wadash

import (
	"context"
	"encoding/json"
	"time"
)

// Session defines a JSON-RPC 2.0 session with the messaging backend over one
// persistent WebSocket connection.
//
// A Session correlates outbound calls with responses arriving in any order and
// delivers unsolicited backend events to a handler and to subscribers.
//
// Example usage:
//
//	import "github.com/luciancaetano/wadash/client"
//
//	session, err := client.NewSession(client.DefaultConfig("ws://localhost:9400/ws/rpc"))
//	if err != nil {
//	    return err
//	}
//	session.SetEventHandler(func(ev wadash.Event) error {
//	    log.Printf("event %s: %s", ev.Name, ev.Params)
//	    return nil
//	})
//
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	result, err := session.Call(ctx, wadash.MethodStatus, nil)
type Session interface {
	// Connect dials the backend and starts the receive loop.
	//
	// Connecting an already connected session is a no-op. A session that was
	// closed or lost its connection can be connected again; request ids keep
	// increasing across connections.
	Connect(ctx context.Context) error

	// Close stops the receive loop, waits for it to exit and releases the
	// connection. Calling Close more than once is safe. An explicit Close is
	// final for reconnect supervisors; only Connect reopens the session.
	Close() error

	// Connected reports whether calls can currently be issued.
	Connected() bool

	// State returns the current connection state.
	State() State

	// Call sends a request and waits for its response.
	//
	// The params value is serialized as the request's params object and
	// omitted when nil. The result is returned verbatim; interpreting it is
	// the caller's responsibility.
	//
	// Errors:
	//   - rpc.ErrNotConnected when the session is not connected (nothing is sent)
	//   - *rpc.SendError when the frame could not be written
	//   - *rpc.RPCError when the backend answered with an error object
	//   - *rpc.TimeoutError when no response arrived within the call timeout
	//   - rpc.ErrDisconnected when the connection dropped while waiting
	//
	// Example:
	//
	//	raw, err := session.Call(ctx, wadash.MethodMedia,
	//	    map[string]any{"message_id": id},
	//	    wadash.WithTimeout(2*time.Minute))
	Call(ctx context.Context, method string, params any, opts ...CallOption) (json.RawMessage, error)

	// SetEventHandler sets the handler invoked for every event frame.
	//
	// The handler runs on the receive loop: a slow handler delays response
	// delivery for every pending call, and it must not call Close or wait on
	// a Call. Returned errors and panics are logged and never stop the loop.
	// Passing nil removes the handler.
	SetEventHandler(handler EventHandler)

	// Subscribe registers an additional event consumer with a buffered
	// channel. Events are dropped for a subscriber whose buffer is full.
	Subscribe(buffer int) Subscription

	// Done returns a channel closed when the current connection ends. When the
	// session is not connected the returned channel is already closed.
	Done() <-chan struct{}
}

// Subscription is a cancellable stream of backend events.
type Subscription interface {
	// Events returns the delivery channel. It is closed by Close.
	Events() <-chan Event

	// Close unregisters the subscription. It is safe to call more than once.
	Close()
}

// Event is a backend push notification.
type Event struct {
	// Name is the event method with EventPrefix stripped, e.g. "message".
	Name string `json:"type"`

	// Params is the raw params payload of the event frame.
	Params json.RawMessage `json:"data,omitempty"`
}

// EventHandler handles one event.
type EventHandler func(ev Event) error

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// CallOptions holds per-call settings.
type CallOptions struct {
	// Timeout bounds the wait for a response. Zero means the session default.
	Timeout time.Duration
}

// CallOption configures a single call.
type CallOption func(*CallOptions)

// WithTimeout overrides the session's call timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		o.Timeout = d
	}
}
