package store

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a record cannot be located.
var ErrNotFound = errors.New("store: not found")

// ListOptions capture the filtering knobs common to repositories.
// Soft-deleted records are never listed.
type ListOptions struct {
	Limit int
	Since time.Time
}

// ListResult bundles records and totals.
type ListResult[T any] struct {
	Items []T
	Total int
}

// Repository defines base CRUD helpers reused by entity-specific interfaces.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	Update(ctx context.Context, record *T) error
	GetByID(ctx context.Context, id uuid.UUID) (*T, error)
	List(ctx context.Context, opts ListOptions) (ListResult[T], error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ServiceRepository resolves registered caller services.
type ServiceRepository interface {
	Repository[domain.Service]
	GetByName(ctx context.Context, name string) (*domain.Service, error)
}

// APIKeyRepository resolves per-service signing keys. Secrets come back
// sealed; callers open them through the keyring.
type APIKeyRepository interface {
	Repository[domain.APIKey]
	ListByService(ctx context.Context, serviceID uuid.UUID) ([]domain.APIKey, error)
}

// NotificationRepository records dispatch outcomes for audit and
// delivery-status correlation.
type NotificationRepository interface {
	Repository[domain.NotificationRecord]
	ListByService(ctx context.Context, serviceID uuid.UUID, opts ListOptions) (ListResult[domain.NotificationRecord], error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.NotificationRecord, error)
}

// TransactionManager coordinates repository work inside a single transaction.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactionManager executes callbacks immediately without persistence.
type NopTransactionManager struct{}

var _ TransactionManager = (*NopTransactionManager)(nil)

func (n *NopTransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
