// Package rpctest provides an in-process JSON-RPC 2.0 WebSocket backend for
// tests. Requests are answered by registered handlers or held until the test
// replies explicitly, so responses can be reordered, delayed or never sent.
package rpctest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/protocol"
)

// Path is the endpoint path the server upgrades on.
const Path = "/ws/rpc"

// ErrNoConnection is returned when a frame is pushed with no client connected.
var ErrNoConnection = errors.New("rpctest: no connection")

// HandlerFunc answers one request. A non-nil *protocol.Error is sent as an
// error response instead of the result.
type HandlerFunc func(params json.RawMessage) (any, *protocol.Error)

// Request is a request received by the server.
type Request struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Raw    []byte

	conn *conn
}

// HasParams reports whether the request carried a params member.
func (r Request) HasParams() bool {
	return len(r.Params) > 0
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex // one writer at a time
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Option configures a Server.
type Option func(*Server)

// WithGreeting pushes an event.status frame with params to every new connection.
func WithGreeting(params any) Option {
	return func(s *Server) {
		s.greeting = params
	}
}

// WithHandler registers a handler at construction time.
func WithHandler(method string, h HandlerFunc) Option {
	return func(s *Server) {
		s.Handle(method, h)
	}
}

// Server is a fake messaging backend.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	handlers sync.Map // map[string]HandlerFunc
	conns    sync.Map // map[string]*conn
	greeting any

	requests chan Request
	count    atomic.Int64
	accepted atomic.Int64

	mu     sync.Mutex
	frames [][]byte
}

// New starts a server. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		requests: make(chan Request, 1024),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	s.srv = httptest.NewServer(mux)
	return s
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + Path
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// Handle registers a handler for method. Requests for methods without a
// handler are delivered on Requests.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers.Store(method, h)
}

// Requests returns the channel of requests that have no registered handler.
func (s *Server) Requests() <-chan Request {
	return s.requests
}

// NextRequest waits up to timeout for the next unhandled request.
func (s *Server) NextRequest(timeout time.Duration) (Request, error) {
	select {
	case req := <-s.requests:
		return req, nil
	case <-time.After(timeout):
		return Request{}, fmt.Errorf("rpctest: no request within %v", timeout)
	}
}

// RequestCount returns the number of requests received so far.
func (s *Server) RequestCount() int64 {
	return s.count.Load()
}

// Frames returns a copy of every raw frame received.
func (s *Server) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// Connections returns the number of currently open connections.
func (s *Server) Connections() int {
	n := 0
	s.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Accepted returns the number of connections accepted since the server started.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// WaitForConnections waits until at least n connections are open.
func (s *Server) WaitForConnections(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Connections() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Connections() >= n
}

// Reply sends a success response for req.
func (s *Server) Reply(req Request, result any) error {
	return s.respond(req.conn, req.ID, result, nil)
}

// ReplyError sends an error response for req.
func (s *Server) ReplyError(req Request, code int, message string) error {
	return s.respond(req.conn, req.ID, nil, &protocol.Error{Code: code, Message: message})
}

// SendRaw writes data verbatim to every connection.
func (s *Server) SendRaw(data []byte) error {
	return s.broadcast(data)
}

// PushEvent sends an event.<name> notification to every connection.
func (s *Server) PushEvent(name string, params any) error {
	data, err := encodeEvent(name, params)
	if err != nil {
		return err
	}
	return s.broadcast(data)
}

// DropConnections closes every connection without a close handshake.
func (s *Server) DropConnections() {
	s.conns.Range(func(key, value any) bool {
		value.(*conn).ws.Close()
		s.conns.Delete(key)
		return true
	})
}

// CloseConnections sends a close frame with code and reason to every connection.
func (s *Server) CloseConnections(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	s.conns.Range(func(_, value any) bool {
		c := value.(*conn)
		c.mu.Lock()
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.mu.Unlock()
		return true
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(protocol.DefaultMaxFrameSize)

	c := &conn{id: uuid.New().String(), ws: ws}
	s.conns.Store(c.id, c)
	s.accepted.Add(1)

	if s.greeting != nil {
		if data, err := encodeEvent(wadash.EventStatus, s.greeting); err == nil {
			c.write(data)
		}
	}

	go s.readLoop(c)
}

func (s *Server) readLoop(c *conn) {
	defer func() {
		s.conns.Delete(c.id)
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.frames = append(s.frames, data)
		s.mu.Unlock()
		s.count.Add(1)

		f, err := protocol.Decode(data)
		if err != nil {
			s.respond(c, nil, nil, &protocol.Error{Code: wadash.JSONRPCParseError, Message: "parse error"})
			continue
		}

		req := Request{ID: f.ID, Method: f.Method, Params: f.Params, Raw: data, conn: c}

		if h, ok := s.handlers.Load(f.Method); ok {
			// Handlers run concurrently so their responses can interleave.
			go func() {
				result, rpcErr := h.(HandlerFunc)(req.Params)
				s.respond(c, req.ID, result, rpcErr)
			}()
			continue
		}

		select {
		case s.requests <- req:
		default:
		}
	}
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *protocol.Error `json:"error,omitempty"`
}

func (s *Server) respond(c *conn, id json.RawMessage, result any, rpcErr *protocol.Error) error {
	if c == nil {
		return ErrNoConnection
	}
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	data, err := json.Marshal(response{
		JSONRPC: wadash.JSONRPCVersion,
		ID:      id,
		Result:  result,
		Error:   rpcErr,
	})
	if err != nil {
		return fmt.Errorf("rpctest: marshal response: %w", err)
	}
	return c.write(data)
}

func (s *Server) broadcast(data []byte) error {
	sent := 0
	var firstErr error
	s.conns.Range(func(_, value any) bool {
		if err := value.(*conn).write(data); err != nil && firstErr == nil {
			firstErr = err
		}
		sent++
		return true
	})
	if sent == 0 {
		return ErrNoConnection
	}
	return firstErr
}

func encodeEvent(name string, params any) ([]byte, error) {
	frame := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{
		JSONRPC: wadash.JSONRPCVersion,
		Method:  wadash.EventPrefix + name,
		Params:  params,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("rpctest: marshal event: %w", err)
	}
	return data, nil
}
