package bunrepo

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type APIKeyRepository struct {
	base baseRepository[domain.APIKey]
}

func NewAPIKeyRepository(db *bun.DB) *APIKeyRepository {
	handlers := repository.ModelHandlers[*domain.APIKey]{
		NewRecord:          func() *domain.APIKey { return &domain.APIKey{} },
		GetID:              func(k *domain.APIKey) uuid.UUID { return k.ID },
		SetID:              func(k *domain.APIKey, id uuid.UUID) { k.ID = id },
		GetIdentifier:      func() string { return "name" },
		GetIdentifierValue: func(k *domain.APIKey) string { return k.Name },
	}
	return &APIKeyRepository{
		base: newBaseRepository[domain.APIKey](db, handlers, func(k *domain.APIKey) *domain.RecordMeta { return &k.RecordMeta }),
	}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	return r.base.create(ctx, key)
}

func (r *APIKeyRepository) Update(ctx context.Context, key *domain.APIKey) error {
	return r.base.update(ctx, key)
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *APIKeyRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.APIKey], error) {
	return r.base.list(ctx, opts)
}

func (r *APIKeyRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *APIKeyRepository) ListByService(ctx context.Context, serviceID uuid.UUID) ([]domain.APIKey, error) {
	records, _, err := r.base.repo.List(ctx, withService(serviceID), withoutDeleted())
	if err != nil {
		return nil, mapError(err)
	}
	keys := make([]domain.APIKey, len(records))
	for i, rec := range records {
		keys[i] = *rec
	}
	return keys, nil
}
