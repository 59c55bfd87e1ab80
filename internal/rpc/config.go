package rpc

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/wadash/internal/websocket"
)

// DefaultCallTimeout bounds a call when neither the session nor the call
// sets a timeout.
const DefaultCallTimeout = 30 * time.Second

// SessionConfig configures a Session.
type SessionConfig struct {
	// URL is the backend's WebSocket endpoint.
	URL string

	Transport *websocket.TransportConfig

	// CallTimeout is the default time a call waits for its response.
	CallTimeout time.Duration

	// FailPendingOnDisconnect fails every pending call with ErrDisconnected
	// as soon as the connection drops. When false they wait for their own
	// timeouts.
	FailPendingOnDisconnect bool

	// SubscriberBuffer is the channel capacity used by Subscribe when the
	// caller passes a non-positive buffer.
	SubscriberBuffer int

	Logger  *zap.Logger
	Metrics Metrics
}

// DefaultSessionConfig returns the default configuration for url.
func DefaultSessionConfig(url string) *SessionConfig {
	return &SessionConfig{
		URL:                     url,
		Transport:               websocket.DefaultTransportConfig(),
		CallTimeout:             DefaultCallTimeout,
		FailPendingOnDisconnect: true,
		SubscriberBuffer:        64,
	}
}

// Validate checks the configuration.
func (c *SessionConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: CallTimeout must be positive, got %v", ErrInvalidConfig, c.CallTimeout)
	}
	if c.SubscriberBuffer < 0 {
		return fmt.Errorf("%w: SubscriberBuffer must not be negative, got %d", ErrInvalidConfig, c.SubscriberBuffer)
	}
	if c.Transport != nil {
		if err := c.Transport.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
