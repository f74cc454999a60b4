package secure

import (
	"context"
	"sync"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// LimitConfig tunes a sliding-window rate limiter.
type LimitConfig struct {
	// MaxRequests allowed inside one Window.
	MaxRequests int
	Window      time.Duration
	// SkipKeys bypass the limiter entirely, e.g. internal health probes.
	SkipKeys []string
}

// Preset limiter configurations.
var (
	PresetStandard = LimitConfig{MaxRequests: 100, Window: time.Minute}
	PresetStrict   = LimitConfig{MaxRequests: 20, Window: time.Minute}
	PresetRelaxed  = LimitConfig{MaxRequests: 300, Window: time.Minute}
	PresetHourly   = LimitConfig{MaxRequests: 1000, Window: time.Hour}
	PresetDaily    = LimitConfig{MaxRequests: 10000, Window: 24 * time.Hour}
)

// Limiter is the sliding-window rate limiting contract. Consume records the
// request and fails when the window is full; Check only inspects.
type Limiter interface {
	// Consume admits one request under the key, or returns a RateLimited
	// error whose RetryAfter says when the oldest request leaves the window.
	Consume(ctx context.Context, key string) error
	// Check returns how many requests the key could still make right now.
	Check(ctx context.Context, key string) (remaining int, err error)
}

func (c LimitConfig) skips(key string) bool {
	for _, k := range c.SkipKeys {
		if k == key {
			return true
		}
	}
	return false
}

// MemoryLimiter is an in-process sliding-window Limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     LimitConfig
	windows map[string][]time.Time
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter with the given configuration.
func NewMemoryLimiter(cfg LimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Consume implements Limiter.
func (l *MemoryLimiter) Consume(_ context.Context, key string) error {
	if l.cfg.skips(key) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.prune(key, now)
	if len(live) >= l.cfg.MaxRequests {
		retryAfter := live[0].Add(l.cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return kg.NewRateLimited("rate limit exceeded", retryAfter)
	}
	l.windows[key] = append(live, now)
	return nil
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(_ context.Context, key string) (int, error) {
	if l.cfg.skips(key) {
		return l.cfg.MaxRequests, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.prune(key, l.now())
	remaining := l.cfg.MaxRequests - len(live)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// prune drops entries older than the window and stores the survivors.
func (l *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.cfg.Window)
	entries := l.windows[key]
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	live := entries[i:]
	if len(live) == 0 {
		delete(l.windows, key)
	} else {
		l.windows[key] = live
	}
	return live
}
