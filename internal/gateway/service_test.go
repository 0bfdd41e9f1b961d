package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-notify-gateway/internal/storage/memory"
	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/auth"
	"github.com/goliatone/go-notify-gateway/pkg/dispatch"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/ratelimit"
	"github.com/google/uuid"
)

type stubVerifier struct {
	cred domain.Credential
	err  error
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (domain.Credential, error) {
	if v.err != nil {
		return domain.Credential{}, v.err
	}
	return v.cred, nil
}

type stubLimiter struct {
	decision  ratelimit.Decision
	err       error
	lastLimit int
}

func (l *stubLimiter) Admit(ctx context.Context, serviceID string, limit int) (ratelimit.Decision, error) {
	l.lastLimit = limit
	return l.decision, l.err
}

type fakeMessenger struct {
	name     string
	channels []string
	sends    []adapters.Message
	errs     []error
}

func (m *fakeMessenger) Name() string { return m.name }

func (m *fakeMessenger) Capabilities() adapters.Capability {
	return adapters.Capability{Name: m.name, Channels: m.channels}
}

func (m *fakeMessenger) Send(ctx context.Context, msg adapters.Message) (adapters.Receipt, error) {
	m.sends = append(m.sends, msg)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return adapters.Receipt{}, err
		}
	}
	return adapters.Receipt{ProviderMessageID: "msg-" + uuid.NewString()}, nil
}

type testEnv struct {
	service       *Service
	verifier      *stubVerifier
	limiter       *stubLimiter
	messenger     *fakeMessenger
	services      *memory.ServiceRepository
	notifications *memory.NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	messenger := &fakeMessenger{name: "fake_sms", channels: []string{domain.ChannelSMS, domain.ChannelEmail}}
	registry := adapters.NewRegistry(messenger)
	verifier := &stubVerifier{}
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Limit: 5, Remaining: 4}}
	services := memory.NewServiceRepository()
	notifications := memory.NewNotificationRepository()

	dispatcher := dispatch.New(&logger.Nop{}, dispatch.WithSleep(func(time.Duration) {}))

	svc, err := NewService(Dependencies{
		Verifier:         verifier,
		Limiter:          limiter,
		Router:           registry,
		Dispatcher:       dispatcher,
		Services:         services,
		Notifications:    notifications,
		DefaultRateLimit: 5,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{
		service:       svc,
		verifier:      verifier,
		limiter:       limiter,
		messenger:     messenger,
		services:      services,
		notifications: notifications,
	}
}

func (e *testEnv) registerService(t *testing.T, svc *domain.Service) domain.Credential {
	t.Helper()
	if err := e.services.Create(context.Background(), svc); err != nil {
		t.Fatalf("create service: %v", err)
	}
	return domain.Credential{
		Issuer:    svc.ID.String(),
		Class:     domain.CredentialService,
		ServiceID: svc.ID,
	}
}

func smsInput() SendInput {
	return SendInput{
		Channel:     domain.ChannelSMS,
		Recipient:   "+15550001111",
		TemplateRef: "welcome",
		Content:     "hello",
		Reference:   "client-ref-1",
	}
}

func TestSendCompletesAndRecords(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = env.registerService(t, &domain.Service{Name: "billing", Active: true})

	outcome, err := env.service.Send(context.Background(), "token", smsInput())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !outcome.Completed() {
		t.Fatalf("expected completed outcome, got %+v", outcome.Result)
	}
	if outcome.Result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Result.Attempts)
	}

	record, err := env.notifications.GetByID(context.Background(), outcome.NotificationID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.StatusSending {
		t.Fatalf("expected status sending, got %s", record.Status)
	}
	if record.ProviderMessageID != outcome.Result.ProviderMessageID {
		t.Fatalf("provider message id mismatch: %s vs %s", record.ProviderMessageID, outcome.Result.ProviderMessageID)
	}
	if record.Reference != "client-ref-1" {
		t.Fatalf("expected reference to persist, got %q", record.Reference)
	}
}

func TestSendUsesServiceRateLimitOverride(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = env.registerService(t, &domain.Service{Name: "billing", Active: true, RateLimit: 50})

	if _, err := env.service.Send(context.Background(), "token", smsInput()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if env.limiter.lastLimit != 50 {
		t.Fatalf("expected service limit 50, got %d", env.limiter.lastLimit)
	}
}

func TestSendAdminUsesGatewayDefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = domain.Credential{Issuer: "notify-admin", Class: domain.CredentialAdmin}

	if _, err := env.service.Send(context.Background(), "token", smsInput()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if env.limiter.lastLimit != 5 {
		t.Fatalf("expected default limit 5, got %d", env.limiter.lastLimit)
	}
}

func TestSendRejectsDisabledService(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = env.registerService(t, &domain.Service{Name: "billing", Active: false})

	_, err := env.service.Send(context.Background(), "token", smsInput())
	if !errors.Is(err, ErrServiceDisabled) {
		t.Fatalf("expected ErrServiceDisabled, got %v", err)
	}
	if env.limiter.lastLimit != 0 {
		t.Fatal("disabled service must not consume a rate limit token")
	}
}

func TestSendRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = env.registerService(t, &domain.Service{Name: "billing", Active: true})
	env.limiter.decision = ratelimit.Decision{Allowed: false, Limit: 5, RetryAfter: 12 * time.Second}

	_, err := env.service.Send(context.Background(), "token", smsInput())
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 12*time.Second {
		t.Fatalf("expected retry after 12s, got %s", rle.RetryAfter)
	}
	if len(env.messenger.sends) != 0 {
		t.Fatal("rate limited request must not reach the provider")
	}
}

func TestSendRejectsUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = domain.Credential{Issuer: "notify-admin", Class: domain.CredentialAdmin}

	input := smsInput()
	input.Channel = "carrier-pigeon"
	_, err := env.service.Send(context.Background(), "token", input)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "channel" {
		t.Fatalf("expected channel field, got %s", verr.Field)
	}
}

func TestSendAuthErrorPassthrough(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.err = auth.ErrInvalidSignature

	_, err := env.service.Send(context.Background(), "bad-token", smsInput())
	if !errors.Is(err, auth.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if !IsAuthError(err) {
		t.Fatal("expected auth error classification")
	}
}

func TestSendRetriesTransientThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = domain.Credential{Issuer: "notify-admin", Class: domain.CredentialAdmin}
	throttle := adapters.Transient("fake_sms", "Throttling", errors.New("slow down"))
	env.messenger.errs = []error{throttle, throttle, nil}

	outcome, err := env.service.Send(context.Background(), "token", smsInput())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !outcome.Completed() {
		t.Fatalf("expected completed outcome, got %+v", outcome.Result)
	}
	if outcome.Result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.Result.Attempts)
	}
	for i, msg := range env.messenger.sends {
		if msg.Reference != "client-ref-1" {
			t.Fatalf("attempt %d reference drifted: %q", i+1, msg.Reference)
		}
		if msg.ID != env.messenger.sends[0].ID {
			t.Fatalf("attempt %d message id drifted", i+1)
		}
	}
}

func TestSendPermanentFailureRecordsWithoutRetry(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.cred = env.registerService(t, &domain.Service{Name: "billing", Active: true})
	env.messenger.errs = []error{adapters.Permanent("fake_sms", "InvalidParameter", errors.New("bad number"))}

	outcome, err := env.service.Send(context.Background(), "token", smsInput())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome.Completed() {
		t.Fatal("expected failed outcome")
	}
	if outcome.Result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Result.Attempts)
	}
	if outcome.Result.FailureClass != domain.FailurePermanent {
		t.Fatalf("expected permanent failure, got %s", outcome.Result.FailureClass)
	}

	record, err := env.notifications.GetByID(context.Background(), outcome.NotificationID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.StatusPermanentFailure {
		t.Fatalf("expected permanent-failure status, got %s", record.Status)
	}
}

func TestSendRoutesPinnedProvider(t *testing.T) {
	env := newTestEnv(t)
	pinned := &fakeMessenger{name: "alt_sms", channels: []string{domain.ChannelSMS}}
	env.service.router.(*adapters.Registry).Register(pinned)
	env.verifier.cred = env.registerService(t, &domain.Service{
		Name:         "billing",
		Active:       true,
		ProviderPins: domain.JSONMap{domain.ChannelSMS: "alt_sms"},
	})

	if _, err := env.service.Send(context.Background(), "token", smsInput()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pinned.sends) != 1 {
		t.Fatalf("expected pinned provider to receive the message, got %d", len(pinned.sends))
	}
	if len(env.messenger.sends) != 0 {
		t.Fatal("default provider should not have been used")
	}
}

func TestGetNotificationScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerService(t, &domain.Service{Name: "billing", Active: true})
	other := env.registerService(t, &domain.Service{Name: "alerts", Active: true})

	env.verifier.cred = owner
	outcome, err := env.service.Send(context.Background(), "token", smsInput())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := env.service.GetNotification(context.Background(), "token", outcome.NotificationID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	env.verifier.cred = other
	if _, err := env.service.GetNotification(context.Background(), "token", outcome.NotificationID); err == nil {
		t.Fatal("expected foreign record to be hidden")
	}

	env.verifier.cred = domain.Credential{Issuer: "notify-admin", Class: domain.CredentialAdmin}
	if _, err := env.service.GetNotification(context.Background(), "token", outcome.NotificationID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}
