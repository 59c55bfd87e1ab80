package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport owns one WebSocket connection to the backend.
//
// Writes go through a single write pump that also sends keepalive pings.
// Receive must only be called from one goroutine.
type Transport struct {
	id     string
	url    string
	conn   *websocket.Conn
	cfg    *TransportConfig
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan outbound
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error

	readOnce sync.Once
	readDone chan struct{} // closed once Receive has failed
}

type outbound struct {
	data   []byte
	result chan error
}

// Dial opens a connection to url.
func Dial(ctx context.Context, url string, cfg *TransportConfig) (*Transport, error) {
	if cfg == nil {
		cfg = DefaultTransportConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
	}

	conn, resp, err := dialer.DialContext(ctx, url, cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDial, url, err)
	}

	return newTransport(conn, url, cfg), nil
}

func newTransport(conn *websocket.Conn, url string, cfg *TransportConfig) *Transport {
	ctx, cancel := context.WithCancel(context.Background())

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	t := &Transport{
		id:       uuid.New().String(),
		url:      url,
		conn:     conn,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan outbound, 256),
		readDone: make(chan struct{}),
	}
	t.log = log.With(zap.String("transport_id", t.id))

	conn.SetReadLimit(cfg.MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(cfg.readDeadline()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.readDeadline()))
	})

	// Start the write pump
	go t.writePump()

	return t
}

// ID returns the unique identifier of this connection.
func (t *Transport) ID() string {
	return t.id
}

// URL returns the endpoint the transport is connected to.
func (t *Transport) URL() string {
	return t.url
}

// RemoteAddr returns the backend's network address.
func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Done is closed when the transport is closed or its connection fails.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// IsAlive returns true if the connection is still usable.
func (t *Transport) IsAlive() bool {
	return t.ctx.Err() == nil
}

// Send writes one frame and waits until it has been written.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if t.closed.Load() || t.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	msg := outbound{data: data, result: make(chan error, 1)}

	select {
	case t.sendCh <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return ErrConnectionClosed
	}

	select {
	case err := <-msg.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		// The pump may have written the frame just before stopping.
		select {
		case err := <-msg.result:
			return err
		default:
			return ErrConnectionClosed
		}
	}
}

// Receive blocks until the next frame arrives. Once it returns an error the
// transport is finished and Receive must not be called again.
func (t *Transport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		t.readOnce.Do(func() {
			close(t.readDone)
			t.cancel()
		})
		if t.closed.Load() {
			return nil, ErrConnectionClosed
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			t.log.Warn("Unexpected WebSocket close", zap.Error(err))
		}
		return nil, fmt.Errorf("websocket: read: %w", err)
	}

	// Reset read deadline after successful read
	t.conn.SetReadDeadline(time.Now().Add(t.cfg.readDeadline()))
	return data, nil
}

// Close closes the connection gracefully.
//
// This is equivalent to calling CloseWithCode with websocket.CloseNormalClosure.
func (t *Transport) Close() error {
	return t.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame, waits up to CloseTimeout for the reader
// to see the peer's close, then closes the socket. Only the first call has
// an effect.
func (t *Transport) CloseWithCode(code int, reason string) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)

		message := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(t.cfg.WriteTimeout)
		if err := t.conn.WriteControl(websocket.CloseMessage, message, deadline); err == nil {
			timer := time.NewTimer(t.cfg.CloseTimeout)
			select {
			case <-t.readDone:
			case <-timer.C:
				t.log.Debug("Close handshake timed out")
			}
			timer.Stop()
		}

		t.cancel()
		if err := t.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// writePump pumps messages from the send channel to the websocket connection
func (t *Transport) writePump() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-t.sendCh:
			t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			err := t.conn.WriteMessage(websocket.TextMessage, msg.data)
			msg.result <- err
			if err != nil {
				t.log.Warn("WebSocket write failed", zap.Error(err))
				t.cancel()
				t.conn.Close()
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.log.Warn("WebSocket ping failed", zap.Error(err))
				t.cancel()
				t.conn.Close()
				return
			}

		case <-t.ctx.Done():
			return
		}
	}
}
