package memory

import (
	"context"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/google/uuid"
)

type ServiceRepository struct {
	base baseMemoryRepo[domain.Service]
}

func NewServiceRepository() *ServiceRepository {
	return &ServiceRepository{
		base: newBaseMemoryRepo("service", func(s *domain.Service) *domain.RecordMeta { return &s.RecordMeta }),
	}
}

func (r *ServiceRepository) Create(ctx context.Context, svc *domain.Service) error {
	return r.base.create(ctx, svc)
}

func (r *ServiceRepository) Update(ctx context.Context, svc *domain.Service) error {
	return r.base.update(ctx, svc)
}

func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *ServiceRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Service], error) {
	return r.base.list(ctx, opts)
}

func (r *ServiceRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *ServiceRepository) GetByName(ctx context.Context, name string) (*domain.Service, error) {
	result, err := r.base.list(ctx, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range result.Items {
		if result.Items[i].Name == name {
			svc := result.Items[i]
			return &svc, nil
		}
	}
	return nil, store.ErrNotFound
}
