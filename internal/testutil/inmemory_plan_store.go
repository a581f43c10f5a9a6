package testutil

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/domain/plan"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
)

// InMemoryPlanStore implements plan.Repository
type InMemoryPlanStore struct {
	*InMemoryStore[*plan.Plan]
}

func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{
		InMemoryStore: NewInMemoryStore(clonePlan),
	}
}

func clonePlan(p *plan.Plan) *plan.Plan {
	c := *p
	c.Features = append([]string(nil), p.Features...)
	if p.Limits != nil {
		c.Limits = make(types.UsageLimits, len(p.Limits))
		for k, v := range p.Limits {
			c.Limits[k] = v
		}
	}
	return &c
}

func (s *InMemoryPlanStore) Create(ctx context.Context, p *plan.Plan) error {
	if p == nil {
		return ierr.NewError("plan cannot be nil").Mark(ierr.ErrValidation)
	}
	inserted := s.Insert(ctx, p.ID, p, func(existing *plan.Plan) bool {
		return existing.Slug == p.Slug
	})
	if !inserted {
		return ierr.NewError("plan already exists").
			WithHintf("Plan with slug %s already exists", p.Slug).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryPlanStore) Get(ctx context.Context, id string) (*plan.Plan, error) {
	return s.InMemoryStore.Get(ctx, id)
}

func (s *InMemoryPlanStore) GetBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	p, ok := s.Find(ctx, func(p *plan.Plan) bool { return p.Slug == slug })
	if !ok {
		return nil, notFound(slug)
	}
	return p, nil
}

func (s *InMemoryPlanStore) ListPublic(ctx context.Context) ([]*plan.Plan, error) {
	return s.List(ctx, nil,
		func(p *plan.Plan) bool { return p.IsActive && p.IsPublic },
		func(i, j *plan.Plan) bool { return i.Price.LessThan(j.Price) },
	), nil
}

func (s *InMemoryPlanStore) Update(ctx context.Context, p *plan.Plan) error {
	return s.InMemoryStore.Update(ctx, p.ID, p)
}
