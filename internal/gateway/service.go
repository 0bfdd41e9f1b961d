package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/auth"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/goliatone/go-notify-gateway/pkg/ratelimit"
	"github.com/google/uuid"
)

// SendInput describes an inbound send request before validation.
type SendInput struct {
	Channel         string
	Recipient       string
	TemplateRef     string
	Content         string
	Personalisation map[string]any
	Reference       string
	BillingCode     string
	CallbackURL     string
}

// SendOutcome is the terminal result of a send pipeline run. Exactly one
// outcome is produced per request that passes admission.
type SendOutcome struct {
	NotificationID uuid.UUID
	Result         domain.DispatchResult
}

// Completed reports whether the provider accepted the message.
func (o SendOutcome) Completed() bool { return o.Result.Accepted() }

var (
	// ErrUnknownService is returned when a verified credential references a
	// service row that no longer exists.
	ErrUnknownService = errors.New("gateway: unknown service")
	// ErrServiceDisabled is returned when the caller's service is inactive.
	// Disabled services are rejected at the credential stage, before any
	// rate limit token is consumed.
	ErrServiceDisabled = errors.New("gateway: service disabled")
)

// ValidationError rejects a request before admission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gateway: invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError rejects an admitted-stage request. RetryAfter tells callers
// when the current window rolls over.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("gateway: rate limit of %d exceeded, retry after %s", e.Limit, e.RetryAfter)
}

type tokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Credential, error)
}

type messengerRouter interface {
	Route(channel, pin string) (adapters.Messenger, error)
}

type messageDispatcher interface {
	Dispatch(ctx context.Context, m adapters.Messenger, req domain.DispatchRequest) domain.DispatchResult
}

// Dependencies wires the verifier, limiter, router, dispatcher, and stores.
type Dependencies struct {
	Verifier      tokenVerifier
	Limiter       ratelimit.Admitter
	Router        messengerRouter
	Dispatcher    messageDispatcher
	Services      store.ServiceRepository
	Notifications store.NotificationRepository
	Logger        logger.Logger

	// DefaultRateLimit applies when a service row carries no override and to
	// admin credentials, which have no service row.
	DefaultRateLimit int
}

// Service runs the send pipeline: verify the token, admit against the rate
// limit, route to a provider, dispatch, and record the outcome.
type Service struct {
	verifier      tokenVerifier
	limiter       ratelimit.Admitter
	router        messengerRouter
	dispatcher    messageDispatcher
	services      store.ServiceRepository
	notifications store.NotificationRepository
	logger        logger.Logger
	defaultLimit  int
}

var (
	errVerifierRequired   = errors.New("gateway: verifier is required")
	errLimiterRequired    = errors.New("gateway: limiter is required")
	errRouterRequired     = errors.New("gateway: router is required")
	errDispatcherRequired = errors.New("gateway: dispatcher is required")
	errServicesRequired   = errors.New("gateway: service repository is required")
)

// NewService constructs the gateway pipeline.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Verifier == nil {
		return nil, errVerifierRequired
	}
	if deps.Limiter == nil {
		return nil, errLimiterRequired
	}
	if deps.Router == nil {
		return nil, errRouterRequired
	}
	if deps.Dispatcher == nil {
		return nil, errDispatcherRequired
	}
	if deps.Services == nil {
		return nil, errServicesRequired
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.DefaultRateLimit <= 0 {
		deps.DefaultRateLimit = 5
	}
	return &Service{
		verifier:      deps.Verifier,
		limiter:       deps.Limiter,
		router:        deps.Router,
		dispatcher:    deps.Dispatcher,
		services:      deps.Services,
		notifications: deps.Notifications,
		logger:        deps.Logger,
		defaultLimit:  deps.DefaultRateLimit,
	}, nil
}

// Send runs the full pipeline for a bearer token and request body. Auth,
// validation, and admission failures come back as errors; once a request is
// dispatched the outcome is returned even when the provider failed.
func (s *Service) Send(ctx context.Context, token string, input SendInput) (SendOutcome, error) {
	cred, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return SendOutcome{}, err
	}

	if err := validateInput(input); err != nil {
		return SendOutcome{}, err
	}

	svc, err := s.resolveService(ctx, cred)
	if err != nil {
		return SendOutcome{}, err
	}

	limit := s.defaultLimit
	pin := ""
	sender := ""
	if svc != nil {
		if svc.RateLimit > 0 {
			limit = svc.RateLimit
		}
		pin = svc.ProviderPin(input.Channel)
		sender = svc.SMSSenderID
	}

	decision, admitErr := s.limiter.Admit(ctx, cred.Issuer, limit)
	if !decision.Allowed {
		if admitErr != nil {
			s.logger.Warn("request rejected while rate limit store degraded",
				logger.Field{Key: "issuer", Value: cred.Issuer})
		}
		return SendOutcome{}, &RateLimitError{Limit: decision.Limit, RetryAfter: decision.RetryAfter}
	}

	messenger, err := s.router.Route(input.Channel, pin)
	if err != nil {
		return SendOutcome{}, err
	}

	record := s.recordCreated(ctx, cred, input)

	result := s.dispatcher.Dispatch(ctx, messenger, domain.DispatchRequest{
		Channel:         input.Channel,
		Recipient:       input.Recipient,
		TemplateRef:     input.TemplateRef,
		Content:         input.Content,
		Personalisation: input.Personalisation,
		Reference:       input.Reference,
		BillingCode:     input.BillingCode,
		CallbackURL:     input.CallbackURL,
		Sender:          sender,
	})

	s.recordOutcome(ctx, record, result)

	outcome := SendOutcome{Result: result}
	if record != nil {
		outcome.NotificationID = record.ID
	}
	return outcome, nil
}

// GetNotification returns the stored record for an id. Service credentials
// only see their own rows; the admin credential sees everything.
func (s *Service) GetNotification(ctx context.Context, token string, id uuid.UUID) (*domain.NotificationRecord, error) {
	cred, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.notifications == nil {
		return nil, store.ErrNotFound
	}
	record, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cred.IsAdmin() && record.ServiceID != cred.ServiceID {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (s *Service) resolveService(ctx context.Context, cred domain.Credential) (*domain.Service, error) {
	if cred.IsAdmin() {
		return nil, nil
	}
	svc, err := s.services.GetByID(ctx, cred.ServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownService
		}
		return nil, err
	}
	if !svc.Active {
		return nil, ErrServiceDisabled
	}
	return svc, nil
}

func (s *Service) recordCreated(ctx context.Context, cred domain.Credential, input SendInput) *domain.NotificationRecord {
	if s.notifications == nil {
		return nil
	}
	record := &domain.NotificationRecord{
		ServiceID:       cred.ServiceID,
		Channel:         input.Channel,
		Recipient:       input.Recipient,
		TemplateRef:     input.TemplateRef,
		Personalisation: domain.JSONMap(input.Personalisation),
		Reference:       input.Reference,
		BillingCode:     input.BillingCode,
		CallbackURL:     input.CallbackURL,
		Status:          domain.StatusCreated,
	}
	if err := s.notifications.Create(ctx, record); err != nil {
		// Audit writes never block a send.
		s.logger.Error("failed to record notification",
			logger.Field{Key: "error", Value: err})
		return nil
	}
	return record
}

func (s *Service) recordOutcome(ctx context.Context, record *domain.NotificationRecord, result domain.DispatchResult) {
	if record == nil {
		return
	}
	record.Status = domain.StatusForResult(result)
	record.Provider = result.Provider
	record.ProviderMessageID = result.ProviderMessageID
	record.Attempts = result.Attempts
	record.ErrorDetail = result.ErrorDetail
	if err := s.notifications.Update(ctx, record); err != nil {
		s.logger.Error("failed to update notification outcome",
			logger.Field{Key: "error", Value: err},
			logger.Field{Key: "notification_id", Value: record.ID.String()})
	}
}

func validateInput(input SendInput) error {
	if !domain.KnownChannel(input.Channel) {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unsupported channel %q", input.Channel)}
	}
	if strings.TrimSpace(input.Recipient) == "" {
		return &ValidationError{Field: "recipient", Reason: "recipient is required"}
	}
	if strings.TrimSpace(input.TemplateRef) == "" && strings.TrimSpace(input.Content) == "" {
		return &ValidationError{Field: "content", Reason: "template reference or content is required"}
	}
	return nil
}

// IsAuthError reports whether err should map to an unauthorized response.
func IsAuthError(err error) bool {
	return auth.IsAuthError(err) || errors.Is(err, ErrUnknownService) || errors.Is(err, ErrServiceDisabled)
}
