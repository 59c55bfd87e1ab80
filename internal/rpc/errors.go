package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/luciancaetano/wadash"
)

var (
	// Connection errors
	ErrConnect      = errors.New("rpc: connect failed")
	ErrNotConnected = errors.New("rpc: " + wadash.ErrNotConnectedMessage)
	ErrDisconnected = errors.New("rpc: " + wadash.ErrConnectionLost)
	ErrClosed       = errors.New("rpc: session closed")

	// Call errors
	ErrSend     = errors.New("rpc: send failed")
	ErrTimeout  = errors.New("rpc: call timed out")
	ErrRPC      = errors.New("rpc: backend error")
	ErrProtocol = errors.New("rpc: protocol violation")

	// Configuration errors
	ErrInvalidConfig = errors.New("rpc: invalid config")
)

// SendError reports a request frame that could not be written. The
// connection is no longer usable afterwards.
type SendError struct {
	Method string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("rpc: send %s: %v", e.Method, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func (e *SendError) Is(target error) bool {
	return target == ErrSend
}

// RPCError is an error object returned by the backend.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Is(target error) bool {
	return target == ErrRPC
}

// TimeoutError reports a call that got no response within its timeout.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc: %s timed out after %v", e.Method, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ProtocolError reports a response that answered the call but could not be
// interpreted, e.g. an error field that is not an object.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rpc: %s: invalid response: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ParseError is a malformed inbound frame. It is logged by the receive loop
// and never returned to callers.
type ParseError struct {
	Size int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rpc: parse %d byte frame: %v", e.Size, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SinkError is a failure of the event handler. It is logged by the receive
// loop and never returned to callers.
type SinkError struct {
	Event string
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("rpc: event handler for %q: %v", e.Event, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
