package dispatch

import (
	"context"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/retry"
	"github.com/google/uuid"
)

// Dispatcher wraps a provider call with per-attempt deadlines and
// exponential backoff. Retry is a decorator here, not something each
// messenger implements.
type Dispatcher struct {
	backoff        retry.Backoff
	maxAttempts    int
	attemptTimeout time.Duration
	logger         logger.Logger
	sleep          func(time.Duration)
}

type Option func(*Dispatcher)

// WithBackoff overrides the retry delay policy.
func WithBackoff(b retry.Backoff) Option {
	return func(d *Dispatcher) {
		if b != nil {
			d.backoff = b
		}
	}
}

// WithMaxAttempts caps total provider calls per dispatch.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds each individual provider call.
func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.attemptTimeout = t
		}
	}
}

// WithSleep injects the inter-attempt wait for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// New constructs a dispatcher.
func New(l logger.Logger, opts ...Option) *Dispatcher {
	if l == nil {
		l = &logger.Nop{}
	}
	d := &Dispatcher{
		backoff:        retry.DefaultBackoff(),
		maxAttempts:    3,
		attemptTimeout: 10 * time.Second,
		logger:         l,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch invokes the messenger for the request, retrying transient
// failures up to the attempt ceiling. The provider message is built once:
// every attempt carries the identical reference so providers that
// deduplicate by reference see one logical request.
func (d *Dispatcher) Dispatch(ctx context.Context, m adapters.Messenger, req domain.DispatchRequest) domain.DispatchResult {
	msg := adapters.Message{
		ID:              uuid.NewString(),
		Channel:         req.Channel,
		To:              req.Recipient,
		TemplateRef:     req.TemplateRef,
		Body:            req.Content,
		Personalisation: req.Personalisation,
		Reference:       req.Reference,
		BillingCode:     req.BillingCode,
		CallbackURL:     req.CallbackURL,
		Sender:          req.Sender,
	}

	result := domain.DispatchResult{Provider: m.Name()}
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt

		// An attempt already issued must run to completion even when the
		// caller goes away; only its own deadline cancels it.
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.attemptTimeout)
		receipt, err := m.Send(attemptCtx, msg)
		cancel()

		if err == nil {
			result.Outcome = domain.OutcomeAccepted
			result.ProviderMessageID = receipt.ProviderMessageID
			return result
		}
		lastErr = err

		if !adapters.IsTransient(err) {
			d.logger.Warn("provider failure, not retrying",
				logger.Field{Key: "provider", Value: m.Name()},
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "error", Value: err},
			)
			result.Outcome = domain.OutcomeProviderError
			result.FailureClass = domain.FailurePermanent
			result.ErrorDetail = err.Error()
			return result
		}

		if attempt == d.maxAttempts {
			break
		}
		// The caller vanished between attempts; discard instead of
		// issuing another call on its behalf.
		if ctx.Err() != nil {
			break
		}
		delay := d.backoff.Next(attempt)
		d.logger.Warn("transient provider failure, retrying",
			logger.Field{Key: "provider", Value: m.Name()},
			logger.Field{Key: "attempt", Value: attempt},
			logger.Field{Key: "delay", Value: delay},
			logger.Field{Key: "error", Value: err},
		)
		d.sleep(delay)
	}

	result.Outcome = domain.OutcomeProviderError
	result.FailureClass = domain.FailureTransient
	if lastErr != nil {
		result.ErrorDetail = lastErr.Error()
	}
	return result
}
