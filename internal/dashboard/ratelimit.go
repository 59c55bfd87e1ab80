package dashboard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long an unused key keeps its limiter.
const idleAfter = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter holds one token bucket per key, refilled perMinute times a
// minute with a burst of perMinute.
type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now and consumes a token if so.
func (l *keyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		l.prune(now)
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *keyedLimiter) prune(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > idleAfter {
			delete(l.limiters, key)
		}
	}
}

func (l *keyedLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// limits bundles the dashboard's traffic controls. A nil *limits allows
// everything.
type limits struct {
	global    *keyedLimiter
	recipient *keyedLimiter
	delay     time.Duration
}

func newLimits(cfg RateLimitConfig) *limits {
	if !cfg.Enabled {
		return nil
	}
	return &limits{
		global:    newKeyedLimiter(cfg.GlobalPerMinute),
		recipient: newKeyedLimiter(cfg.RecipientPerMinute),
		delay:     cfg.MessageDelay,
	}
}

func (l *limits) allowClient(addr string) bool {
	return l == nil || l.global.Allow(addr)
}

func (l *limits) allowRecipient(key string) bool {
	return l == nil || l.recipient.Allow(key)
}

// wait sleeps for the message delay or until ctx ends.
func (l *limits) wait(ctx context.Context) error {
	if l == nil || l.delay <= 0 {
		return nil
	}
	t := time.NewTimer(l.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
