package ratelimit

import (
	"context"
	"sync"
	"time"
)

type localWindow struct {
	count int
	start time.Time
}

// LocalLimiter enforces the same fixed-window semantics in process memory.
// Meant for tests and single-instance deployments without Redis; counters
// are not shared across workers.
type LocalLimiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*localWindow
	now     func() time.Time
}

var _ Admitter = (*LocalLimiter)(nil)

// NewLocal constructs an in-process limiter.
func NewLocal(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		cfg:     cfg.withDefaults(),
		windows: make(map[string]*localWindow),
		now:     time.Now,
	}
}

// SetClock injects a time source for tests.
func (l *LocalLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.now = now
	}
}

// Admit implements Admitter.
func (l *LocalLimiter) Admit(ctx context.Context, serviceID string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.cfg.Limit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.windows[serviceID]
	if !ok || now.Sub(win.start) >= l.cfg.Window {
		win = &localWindow{start: now}
		l.windows[serviceID] = win
	}
	win.count++

	decision := Decision{Limit: limit}
	if win.count <= limit {
		decision.Allowed = true
		decision.Remaining = limit - win.count
		return decision, nil
	}
	decision.RetryAfter = l.cfg.Window - now.Sub(win.start)
	return decision, nil
}
