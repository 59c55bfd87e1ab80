package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luciancaetano/wadash/internal/metrics"
)

// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server.
const DefaultShutdownTimeout = 10 * time.Second

// ErrInvalidConfig is returned by Validate and New for an unusable configuration.
var ErrInvalidConfig = errors.New("dashboard: invalid config")

// Config configures the dashboard HTTP server.
type Config struct {
	Addr            string
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS handling.
	CORSOrigins []string
	// TrustedProxies are the proxies whose forwarding headers set the client
	// address used by the rate limiter.
	TrustedProxies []string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics is optional; nil disables HTTP metrics.
	Metrics *metrics.HTTP
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// RateLimitConfig limits dashboard traffic before it reaches the backend.
type RateLimitConfig struct {
	Enabled bool
	// GlobalPerMinute applies per client address to every /api route.
	GlobalPerMinute int
	// RecipientPerMinute applies per recipient to message sends.
	RecipientPerMinute int
	// MessageDelay is waited before each send is forwarded.
	MessageDelay time.Duration
}

// DefaultConfig listens on :5000, allows 20 requests a minute per client
// and 10 sends a minute per recipient, and waits 3s before each send.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":5000",
		RateLimit: RateLimitConfig{
			Enabled:            true,
			GlobalPerMinute:    20,
			RecipientPerMinute: 10,
			MessageDelay:       3 * time.Second,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		TrustedProxies:  []string{"127.0.0.1", "::1"},
	}
}

// Validate checks the address and the rate limits.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	}
	if c.RateLimit.Enabled && (c.RateLimit.GlobalPerMinute <= 0 || c.RateLimit.RecipientPerMinute <= 0) {
		return fmt.Errorf("%w: rate limits must be positive when enabled", ErrInvalidConfig)
	}
	if c.RateLimit.MessageDelay < 0 {
		return fmt.Errorf("%w: message delay must not be negative", ErrInvalidConfig)
	}
	return nil
}
