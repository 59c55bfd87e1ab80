package rpc

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig controls the delay between reconnect attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultBackoffConfig returns 500ms doubling up to 30s, with jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the delay before attempt (1-based). With jitter
// the delay is scaled by a random factor in [0.5, 1.5).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 1.0
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Connector is the part of a session the Reconnector drives. Reconnect
// returns ErrClosed once the owner has closed the session.
type Connector interface {
	Reconnect(ctx context.Context) error
	Done() <-chan struct{}
}

// Reconnector keeps a session connected, retrying with backoff.
type Reconnector struct {
	session   Connector
	cfg       BackoffConfig
	log       *zap.Logger
	rng       *rand.Rand
	onConnect func()
}

// ReconnectorOption configures a Reconnector.
type ReconnectorOption func(*Reconnector)

// WithLogger sets the reconnector's logger.
func WithLogger(log *zap.Logger) ReconnectorOption {
	return func(r *Reconnector) {
		r.log = log
	}
}

// WithOnConnect sets a callback run after every successful connect.
func WithOnConnect(fn func()) ReconnectorOption {
	return func(r *Reconnector) {
		r.onConnect = fn
	}
}

// WithRand sets the jitter source.
func WithRand(rng *rand.Rand) ReconnectorOption {
	return func(r *Reconnector) {
		r.rng = rng
	}
}

// NewReconnector creates a Reconnector for session. It does nothing until
// Run is called.
func NewReconnector(session Connector, cfg BackoffConfig, opts ...ReconnectorOption) *Reconnector {
	r := &Reconnector{
		session: session,
		cfg:     cfg,
		log:     zap.NewNop(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("reconnect")
	return r
}

// Run connects the session and reconnects it whenever the connection ends,
// until ctx is done or the session is closed by its owner. It returns nil in
// both cases; closing the session is left to the caller.
func (r *Reconnector) Run(ctx context.Context) error {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := r.session.Reconnect(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				r.log.Info("Session closed, not reconnecting")
				return nil
			}
			attempt++
			delay := NextBackoffDelay(r.cfg, attempt, r.rng)
			r.log.Warn("Connect failed",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			if !r.sleep(ctx, delay) {
				return nil
			}
			continue
		}

		if attempt > 0 {
			r.log.Info("Reconnected", zap.Int("attempts", attempt))
		}
		attempt = 0
		if r.onConnect != nil {
			r.onConnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.session.Done():
		}

		r.log.Warn("Connection ended, reconnecting")
		if !r.sleep(ctx, NextBackoffDelay(r.cfg, 1, r.rng)) {
			return nil
		}
	}
}

func (r *Reconnector) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
