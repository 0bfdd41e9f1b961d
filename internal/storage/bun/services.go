package bunrepo

import (
	"context"
	"strings"

	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ServiceRepository struct {
	base baseRepository[domain.Service]
}

func NewServiceRepository(db *bun.DB) *ServiceRepository {
	handlers := repository.ModelHandlers[*domain.Service]{
		NewRecord:          func() *domain.Service { return &domain.Service{} },
		GetID:              func(s *domain.Service) uuid.UUID { return s.ID },
		SetID:              func(s *domain.Service, id uuid.UUID) { s.ID = id },
		GetIdentifier:      func() string { return "name" },
		GetIdentifierValue: func(s *domain.Service) string { return s.Name },
	}
	return &ServiceRepository{
		base: newBaseRepository[domain.Service](db, handlers, func(s *domain.Service) *domain.RecordMeta { return &s.RecordMeta }),
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
	record, err := r.base.repo.Get(ctx,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(name) = ?", strings.ToLower(name))
		},
		withoutDeleted(),
	)
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}
