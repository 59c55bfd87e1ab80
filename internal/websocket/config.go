package websocket

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/wadash/internal/protocol"
)

// TransportConfig defines the connection parameters of a Transport.
type TransportConfig struct {
	// MaxFrameSize is the largest inbound message accepted. Larger messages
	// close the connection.
	MaxFrameSize int64

	// PingInterval is the period between keepalive pings.
	PingInterval time.Duration
	// PingTimeout is how long after a ping the peer has to answer before the
	// connection is considered dead.
	PingTimeout time.Duration

	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	HandshakeTimeout time.Duration

	ReadBufferSize    int
	WriteBufferSize   int
	EnableCompression bool

	// Header is sent with the opening handshake.
	Header http.Header

	Logger *zap.Logger
}

// DefaultTransportConfig returns the default transport configuration:
// 100MB frames, ping every 5 minutes with 60 seconds to answer, 10 second
// write and close timeouts.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		MaxFrameSize:     protocol.DefaultMaxFrameSize,
		PingInterval:     5 * time.Minute,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024 * 1024,
		WriteBufferSize:  1024 * 1024,
	}
}

// Validate checks the configuration.
func (c *TransportConfig) Validate() error {
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: MaxFrameSize must be positive, got %d", ErrInvalidConfig, c.MaxFrameSize)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: PingInterval must be positive, got %v", ErrInvalidConfig, c.PingInterval)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("%w: PingTimeout must be positive, got %v", ErrInvalidConfig, c.PingTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: WriteTimeout must be positive, got %v", ErrInvalidConfig, c.WriteTimeout)
	}
	if c.CloseTimeout < 0 {
		return fmt.Errorf("%w: CloseTimeout must not be negative, got %v", ErrInvalidConfig, c.CloseTimeout)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	return nil
}

// readDeadline is the silence allowed between inbound frames or pongs.
func (c *TransportConfig) readDeadline() time.Duration {
	return c.PingInterval + c.PingTimeout
}
