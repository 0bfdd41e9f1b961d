package memory

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/google/uuid"
)

type APIKeyRepository struct {
	base baseMemoryRepo[domain.APIKey]
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		base: newBaseMemoryRepo("api_key", func(k *domain.APIKey) *domain.RecordMeta { return &k.RecordMeta }),
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
	result, err := r.base.list(ctx, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	keys := make([]domain.APIKey, 0, len(result.Items))
	for _, key := range result.Items {
		if key.ServiceID == serviceID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
