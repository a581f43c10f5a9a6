package testutil

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository with the same
// one-per-tenant and optimistic version rules as the Postgres table
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore(func(sub *subscription.Subscription) *subscription.Subscription {
			c := *sub
			if sub.UsageSnapshot != nil {
				c.UsageSnapshot = make(subscription.UsageSnapshot, len(sub.UsageSnapshot))
				for k, v := range sub.UsageSnapshot {
					c.UsageSnapshot[k] = v
				}
			}
			return &c
		}),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	inserted := s.Insert(ctx, sub.ID, sub, func(existing *subscription.Subscription) bool {
		return existing.TenantID == sub.TenantID
	})
	if !inserted {
		return ierr.NewError("subscription already exists").
			WithHint("Tenant already has a subscription").
			WithReportableDetails(map[string]any{"tenant_id": sub.TenantID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, tenantID, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != tenantID {
		return nil, notFound(id)
	}
	return sub, nil
}

func (s *InMemorySubscriptionStore) GetByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	sub, ok := s.Find(ctx, func(sub *subscription.Subscription) bool { return sub.TenantID == tenantID })
	if !ok {
		return nil, notFound(tenantID)
	}
	return sub, nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.Mutate(ctx, sub.ID, func(current *subscription.Subscription) (*subscription.Subscription, error) {
		if current.TenantID != sub.TenantID {
			return nil, notFound(sub.ID)
		}
		if current.Version != sub.Version {
			return nil, ierr.NewError("subscription version conflict").
				WithHint("Subscription was modified concurrently, please retry").
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"version":         sub.Version,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		next := *sub
		next.Version++
		return &next, nil
	})
	if err != nil {
		return err
	}
	sub.Version++
	return nil
}
