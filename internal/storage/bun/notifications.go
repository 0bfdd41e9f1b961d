package bunrepo

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type NotificationRepository struct {
	base baseRepository[domain.NotificationRecord]
}

func NewNotificationRepository(db *bun.DB) *NotificationRepository {
	handlers := repository.ModelHandlers[*domain.NotificationRecord]{
		NewRecord:          func() *domain.NotificationRecord { return &domain.NotificationRecord{} },
		GetID:              func(n *domain.NotificationRecord) uuid.UUID { return n.ID },
		SetID:              func(n *domain.NotificationRecord, id uuid.UUID) { n.ID = id },
		GetIdentifier:      func() string { return "reference" },
		GetIdentifierValue: func(n *domain.NotificationRecord) string { return n.Reference },
	}
	return &NotificationRepository{
		base: newBaseRepository[domain.NotificationRecord](db, handlers, func(n *domain.NotificationRecord) *domain.RecordMeta { return &n.RecordMeta }),
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
	criteria := []repository.SelectCriteria{withService(serviceID), withListOptions(opts)}
	records, total, err := r.base.repo.List(ctx, criteria...)
	if err != nil {
		return store.ListResult[domain.NotificationRecord]{}, mapError(err)
	}
	items := make([]domain.NotificationRecord, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return store.ListResult[domain.NotificationRecord]{Items: items, Total: total}, nil
}

func (r *NotificationRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.NotificationRecord, error) {
	record, err := r.base.repo.Get(ctx,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("provider_message_id = ?", providerMessageID)
		},
		withoutDeleted(),
	)
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}
