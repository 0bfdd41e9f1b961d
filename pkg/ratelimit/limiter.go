package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Policy selects the admission behavior when the counter store is
// unreachable. The choice is explicit configuration, never implicit.
type Policy string

const (
	// FailClosed denies admission on store failure (the default).
	FailClosed Policy = "closed"
	// FailOpen admits on store failure.
	FailOpen Policy = "open"
)

// Config tunes the fixed-window counter.
type Config struct {
	Limit        int           // requests per window
	Window       time.Duration // observation period
	StoreTimeout time.Duration // per-check deadline for the store round-trip
	OnStoreError Policy
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Window <= 0 {
		c.Window = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 3 * time.Second
	}
	if c.OnStoreError == "" {
		c.OnStoreError = FailClosed
	}
	return c
}

// Admitter is the admission contract consumed by the orchestrator.
// limit overrides the configured capacity when positive.
type Admitter interface {
	Admit(ctx context.Context, serviceID string, limit int) (Decision, error)
}

// Scripter is the slice of the redis client used by the limiter.
type Scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// admitScript increments the window counter and sets its expiry only on
// first increment, in one server-side transaction. Running it as separate
// INCR + EXPIRE calls would let two concurrent first-requests both reset
// the expiry and stretch the window.
const admitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`

// Limiter is a fixed-window admission gate backed by a shared Redis
// counter. All gateway workers observe the same counter, so the limit
// holds regardless of which worker handles a request.
type Limiter struct {
	store  Scripter
	cfg    Config
	logger logger.Logger
	now    func() time.Time
}

var _ Admitter = (*Limiter)(nil)

type Option func(*Limiter)

// WithLogger attaches the degraded-mode logger.
func WithLogger(l logger.Logger) Option {
	return func(lm *Limiter) {
		if l != nil {
			lm.logger = l
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(lm *Limiter) {
		if now != nil {
			lm.now = now
		}
	}
}

// New constructs a limiter over the given counter store.
func New(store Scripter, cfg Config, opts ...Option) *Limiter {
	lm := &Limiter{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: &logger.Nop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(lm)
		}
	}
	return lm
}

// Admit increments the counter for (serviceID, current window) and
// compares against the limit. Denials carry the counter's remaining TTL
// as the retry-after hint. On store failure the configured policy
// applies and the store error is returned alongside the decision.
func (l *Limiter) Admit(ctx context.Context, serviceID string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.cfg.Limit
	}
	key := l.windowKey(serviceID)

	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	values, err := l.store.Eval(ctx, admitScript, []string{key}, l.cfg.Window.Milliseconds()).Slice()
	if err != nil || len(values) != 2 {
		if err == nil {
			err = fmt.Errorf("ratelimit: unexpected script reply %v", values)
		}
		return l.degraded(serviceID, limit, err)
	}
	count, ok1 := values[0].(int64)
	ttlMillis, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return l.degraded(serviceID, limit, fmt.Errorf("ratelimit: unexpected script reply %v", values))
	}

	decision := Decision{Limit: limit}
	if count <= int64(limit) {
		decision.Allowed = true
		decision.Remaining = limit - int(count)
		return decision, nil
	}
	retryAfter := time.Duration(ttlMillis) * time.Millisecond
	if retryAfter < 0 || retryAfter > l.cfg.Window {
		retryAfter = l.cfg.Window
	}
	decision.RetryAfter = retryAfter
	return decision, nil
}

// degraded applies the fail-open/fail-closed policy. The caller gets both
// the policy decision and the underlying store error so the event can be
// logged as a degraded-mode condition.
func (l *Limiter) degraded(serviceID string, limit int, err error) (Decision, error) {
	allowed := l.cfg.OnStoreError == FailOpen
	l.logger.Error("rate limit store unavailable",
		logger.Field{Key: "service_id", Value: serviceID},
		logger.Field{Key: "policy", Value: string(l.cfg.OnStoreError)},
		logger.Field{Key: "error", Value: err},
	)
	decision := Decision{Allowed: allowed, Limit: limit}
	if !allowed {
		decision.RetryAfter = l.cfg.Window
	}
	return decision, err
}

func (l *Limiter) windowKey(serviceID string) string {
	// Millisecond arithmetic keeps sub-second windows from collapsing
	// the divisor to zero.
	window := l.cfg.Window.Milliseconds()
	start := l.now().UnixMilli() / window * window
	return fmt.Sprintf("ratelimit:%s:%d", serviceID, start)
}
