package memory

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/google/uuid"
)

type NotificationRepository struct {
	base baseMemoryRepo[domain.NotificationRecord]
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		base: newBaseMemoryRepo("notification", func(n *domain.NotificationRecord) *domain.RecordMeta { return &n.RecordMeta }),
	}
}

func (r *NotificationRepository) Create(ctx context.Context, record *domain.NotificationRecord) error {
	return r.base.create(ctx, record)
}

func (r *NotificationRepository) Update(ctx context.Context, record *domain.NotificationRecord) error {
	return r.base.update(ctx, record)
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationRecord, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *NotificationRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.NotificationRecord], error) {
	return r.base.list(ctx, opts)
}

func (r *NotificationRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *NotificationRepository) ListByService(ctx context.Context, serviceID uuid.UUID, opts store.ListOptions) (store.ListResult[domain.NotificationRecord], error) {
	result, err := r.base.list(ctx, opts)
	if err != nil {
		return store.ListResult[domain.NotificationRecord]{}, err
	}
	filtered := make([]domain.NotificationRecord, 0, len(result.Items))
	for _, record := range result.Items {
		if record.ServiceID == serviceID {
			filtered = append(filtered, record)
		}
	}
	return store.ListResult[domain.NotificationRecord]{Items: filtered, Total: len(filtered)}, nil
}

func (r *NotificationRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.NotificationRecord, error) {
	result, err := r.base.list(ctx, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range result.Items {
		if result.Items[i].ProviderMessageID == providerMessageID {
			record := result.Items[i]
			return &record, nil
		}
	}
	return nil, store.ErrNotFound
}
