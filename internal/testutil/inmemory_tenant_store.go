package testutil

import (
	"context"
	"strings"

	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
)

// InMemoryTenantStore implements tenant.Repository
type InMemoryTenantStore struct {
	*InMemoryStore[*tenant.Tenant]
}

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		InMemoryStore: NewInMemoryStore(func(t *tenant.Tenant) *tenant.Tenant {
			c := *t
			c.Settings = cloneMetadata(t.Settings)
			return &c
		}),
	}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ierr.NewError("tenant cannot be nil").Mark(ierr.ErrValidation)
	}
	slug := strings.ToLower(t.Slug)
	inserted := s.Insert(ctx, t.ID, t, func(existing *tenant.Tenant) bool {
		return existing.Slug == slug
	})
	if !inserted {
		return ierr.NewError("tenant already exists").
			WithHintf("Tenant %s already exists", t.Slug).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryTenantStore) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.InMemoryStore.Get(ctx, id)
}

func (s *InMemoryTenantStore) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	t, ok := s.Find(ctx, func(t *tenant.Tenant) bool { return t.Slug == slug })
	if !ok {
		return nil, notFound(slug)
	}
	return t, nil
}

func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	return s.InMemoryStore.Update(ctx, t.ID, t)
}

func (s *InMemoryTenantStore) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.List(ctx, nil,
		func(t *tenant.Tenant) bool { return t.IsActive() },
		func(i, j *tenant.Tenant) bool { return i.ID < j.ID },
	), nil
}
