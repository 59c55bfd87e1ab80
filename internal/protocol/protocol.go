package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/luciancaetano/wadash"
)

// DefaultMaxFrameSize bounds a single frame. Media payloads travel base64-encoded inside
// frames, so the limit is generous.
const DefaultMaxFrameSize = 100 * 1024 * 1024 // 100MB

var (
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")
	ErrEmptyMethod   = errors.New("protocol: method name is empty")
	ErrInvalidFrame  = errors.New("protocol: invalid frame")
	ErrMalformed     = errors.New("protocol: malformed field")
)

// Kind classifies an inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindResponse
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is the error object of a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Frame is any inbound message: a response (id present) or an event (no id).
type Frame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	// Invalid is set by Decode when a field has the wrong JSON type. The id
	// is still usable, so the call it answers can be failed.
	Invalid error `json:"-"`
}

// wireFrame defers field decoding so a single bad field does not hide the id.
type wireFrame struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

var null = []byte("null")

// HasID reports whether the frame carries a non-null id.
func (f *Frame) HasID() bool {
	return len(f.ID) > 0 && !bytes.Equal(f.ID, null)
}

// RequestID returns the frame's id as the integer a request was sent with.
// Ids that are not non-negative integers are not ours and report false.
func (f *Frame) RequestID() (uint64, bool) {
	if !f.HasID() {
		return 0, false
	}
	id, err := strconv.ParseUint(string(f.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Kind classifies the frame. The id is the sole discriminator between
// responses and events.
func (f *Frame) Kind() Kind {
	if f.HasID() {
		return KindResponse
	}
	if strings.HasPrefix(f.Method, wadash.EventPrefix) {
		return KindEvent
	}
	return KindUnknown
}

// EventName returns the method with the event prefix stripped.
func (f *Frame) EventName() string {
	return strings.TrimPrefix(f.Method, wadash.EventPrefix)
}

// HasError reports whether the response carries a non-null error object.
func (f *Frame) HasError() bool {
	return f.Error != nil
}

// ResultOrNull returns the result payload, or JSON null when the response has
// neither result nor error.
func (f *Frame) ResultOrNull() json.RawMessage {
	if len(f.Result) == 0 {
		return json.RawMessage(null)
	}
	return f.Result
}

// EncodeRequest serializes a request frame. A nil params value (or one that
// marshals to null) is omitted from the frame.
func EncodeRequest(id uint64, method string, params any, maxFrameSize int) ([]byte, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}

	req := Request{
		JSONRPC: wadash.JSONRPCVersion,
		ID:      id,
		Method:  method,
	}

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal params: %w", err)
		}
		if !bytes.Equal(raw, null) {
			req.Params = raw
		}
	}

	out, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal request: %w", err)
	}
	if maxFrameSize > 0 && len(out) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(out), maxFrameSize)
	}
	return out, nil
}

// Decode parses one inbound frame. The frame must be a JSON object.
//
// Integral float ids such as 7.0 are normalized to 7. A method or error
// field of the wrong type does not fail Decode; it is reported in
// Frame.Invalid instead.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	f := &Frame{
		ID:     normalizeID(w.ID),
		Params: w.Params,
		Result: w.Result,
	}
	if present(w.JSONRPC) {
		// Informational only; a bad version string is tolerated.
		_ = json.Unmarshal(w.JSONRPC, &f.JSONRPC)
	}
	if present(w.Method) {
		if err := json.Unmarshal(w.Method, &f.Method); err != nil {
			f.Invalid = fmt.Errorf("%w: method: %v", ErrMalformed, err)
		}
	}
	if present(w.Error) {
		var e Error
		if err := json.Unmarshal(w.Error, &e); err != nil {
			f.Invalid = fmt.Errorf("%w: error: %s", ErrMalformed, truncate(w.Error))
		} else {
			f.Error = &e
		}
	}
	return f, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, null)
}

// maxExactID is the largest integer a float64 id represents exactly.
const maxExactID = 1 << 53

// normalizeID rewrites an integral number written with a fraction or
// exponent (7.0, 7e0) to its integer form. Anything else is kept verbatim.
func normalizeID(raw json.RawMessage) json.RawMessage {
	if !present(raw) || raw[0] == '"' {
		return raw
	}
	if _, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
		return raw
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || v < 0 || v > maxExactID || v != math.Trunc(v) {
		return raw
	}
	return json.RawMessage(strconv.FormatUint(uint64(v), 10))
}

func truncate(raw json.RawMessage) string {
	const limit = 64
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
