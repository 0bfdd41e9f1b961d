package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/retry"
)

type scriptedMessenger struct {
	errs     []error
	messages []adapters.Message
	ctxErrs  []error
}

func (m *scriptedMessenger) Name() string { return "scripted" }

func (m *scriptedMessenger) Capabilities() adapters.Capability {
	return adapters.Capability{Name: "scripted", Channels: []string{domain.ChannelSMS}}
}

func (m *scriptedMessenger) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	m.messages = append(m.messages, msg)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return adapters.Receipt{}, err
		}
	}
	return adapters.Receipt{ProviderMessageID: "receipt-1"}, nil
}

type zeroBackoff struct{}

func (zeroBackoff) Next(attempt int) time.Duration { return 0 }

func newTestDispatcher(opts ...Option) *Dispatcher {
	base := []Option{WithSleep(func(time.Duration) {}), WithBackoff(zeroBackoff{})}
	return New(&logger.Nop{}, append(base, opts...)...)
}

func smsRequest() domain.DispatchRequest {
	return domain.DispatchRequest{
		Channel:   domain.ChannelSMS,
		Recipient: "+15550001111",
		Content:   "hello",
		Reference: "ref-1",
	}
}

func TestDispatchFirstAttemptSucceeds(t *testing.T) {
	m := &scriptedMessenger{}
	result := newTestDispatcher().Dispatch(context.Background(), m, smsRequest())

	if !result.Accepted() {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.ProviderMessageID != "receipt-1" {
		t.Fatalf("expected receipt id, got %q", result.ProviderMessageID)
	}
	if result.Provider != "scripted" {
		t.Fatalf("expected provider name, got %q", result.Provider)
	}
}

func TestDispatchRetriesTransientThenSucceeds(t *testing.T) {
	throttle := adapters.Transient("scripted", "Throttling", errors.New("slow down"))
	m := &scriptedMessenger{errs: []error{throttle, throttle, nil}}

	result := newTestDispatcher().Dispatch(context.Background(), m, smsRequest())
	if !result.Accepted() {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDispatchMessageStableAcrossAttempts(t *testing.T) {
	throttle := adapters.Transient("scripted", "Throttling", errors.New("slow down"))
	m := &scriptedMessenger{errs: []error{throttle, throttle, nil}}

	newTestDispatcher().Dispatch(context.Background(), m, smsRequest())
	if len(m.messages) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(m.messages))
	}
	first := m.messages[0]
	for i, msg := range m.messages[1:] {
		if msg.ID != first.ID || msg.Reference != first.Reference {
			t.Fatalf("attempt %d payload drifted: %+v vs %+v", i+2, msg, first)
		}
	}
}

func TestDispatchPermanentFailureStopsImmediately(t *testing.T) {
	m := &scriptedMessenger{errs: []error{
		adapters.Permanent("scripted", "InvalidParameter", errors.New("bad number")),
	}}

	result := newTestDispatcher().Dispatch(context.Background(), m, smsRequest())
	if result.Accepted() {
		t.Fatal("expected failure")
	}
	if result.Attempts != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", result.Attempts)
	}
	if result.FailureClass != domain.FailurePermanent {
		t.Fatalf("expected permanent class, got %s", result.FailureClass)
	}
}

func TestDispatchUnclassifiedErrorNotRetried(t *testing.T) {
	m := &scriptedMessenger{errs: []error{errors.New("something odd")}}

	result := newTestDispatcher().Dispatch(context.Background(), m, smsRequest())
	if result.Attempts != 1 {
		t.Fatalf("unclassified errors must not retry, got %d attempts", result.Attempts)
	}
	if result.FailureClass != domain.FailurePermanent {
		t.Fatalf("expected permanent class, got %s", result.FailureClass)
	}
}

func TestDispatchExhaustsTransientRetries(t *testing.T) {
	throttle := adapters.Transient("scripted", "Throttling", errors.New("slow down"))
	m := &scriptedMessenger{errs: []error{throttle, throttle, throttle, throttle}}

	result := newTestDispatcher(WithMaxAttempts(4)).Dispatch(context.Background(), m, smsRequest())
	if result.Accepted() {
		t.Fatal("expected failure")
	}
	if result.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", result.Attempts)
	}
	if result.FailureClass != domain.FailureTransient {
		t.Fatalf("expected transient class, got %s", result.FailureClass)
	}
	if result.ErrorDetail == "" {
		t.Fatal("expected last error detail")
	}
}

func TestDispatchAttemptSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &scriptedMessenger{}
	result := newTestDispatcher().Dispatch(ctx, m, smsRequest())
	if !result.Accepted() {
		t.Fatalf("in-flight attempt must complete despite cancellation, got %+v", result)
	}
	if len(m.ctxErrs) != 1 || m.ctxErrs[0] != nil {
		t.Fatalf("attempt context must be detached from the caller, got %v", m.ctxErrs)
	}
}

func TestDispatchNoNewAttemptAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	throttle := adapters.Transient("scripted", "Throttling", errors.New("slow down"))
	m := &scriptedMessenger{errs: []error{throttle, throttle, throttle}}

	result := newTestDispatcher().Dispatch(ctx, m, smsRequest())
	if result.Accepted() {
		t.Fatal("expected failure")
	}
	if len(m.messages) != 1 {
		t.Fatalf("no retry should start for a vanished caller, got %d sends", len(m.messages))
	}
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	b := &retry.ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		d := b.Next(attempt)
		if d < prev && d != time.Second {
			t.Fatalf("attempt %d: delay shrank from %s to %s", attempt, prev, d)
		}
		if d > time.Second {
			t.Fatalf("attempt %d: delay %s exceeds cap", attempt, d)
		}
		prev = d
	}
	if b.Next(10) != time.Second {
		t.Fatalf("expected capped delay, got %s", b.Next(10))
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	b := &retry.ExponentialBackoff{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: true}

	for i := 0; i < 100; i++ {
		d := b.Next(3)
		// attempt 3 is 400ms before jitter; jitter scales into [0.5, 1.0].
		if d < 200*time.Millisecond || d > 400*time.Millisecond {
			t.Fatalf("jittered delay %s out of bounds", d)
		}
	}
}
