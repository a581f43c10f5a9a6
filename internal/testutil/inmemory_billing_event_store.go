package testutil

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

// InMemoryBillingEventStore implements billingevent.Repository with a unique
// (tenant, dedup key) constraint
type InMemoryBillingEventStore struct {
	*InMemoryStore[*billingevent.BillingEvent]
}

func NewInMemoryBillingEventStore() *InMemoryBillingEventStore {
	return &InMemoryBillingEventStore{
		InMemoryStore: NewInMemoryStore(func(e *billingevent.BillingEvent) *billingevent.BillingEvent {
			c := *e
			if e.Payload != nil {
				c.Payload = make(types.JSONMap, len(e.Payload))
				for k, v := range e.Payload {
					c.Payload[k] = v
				}
			}
			return &c
		}),
	}
}

func billingEventFilterFn(tenantID string, f *types.BillingEventFilter) FilterFunc[*billingevent.BillingEvent] {
	return func(e *billingevent.BillingEvent) bool {
		if e.TenantID != tenantID {
			return false
		}
		if f == nil {
			return true
		}
		if f.EventType != "" && e.EventType != f.EventType {
			return false
		}
		if f.Processed != nil && e.Processed != *f.Processed {
			return false
		}
		return true
	}
}

func (s *InMemoryBillingEventStore) Create(ctx context.Context, e *billingevent.BillingEvent) error {
	return s.InMemoryStore.Create(ctx, e.ID, e)
}

func (s *InMemoryBillingEventStore) CreateUnique(ctx context.Context, e *billingevent.BillingEvent) (bool, error) {
	inserted := s.Insert(ctx, e.ID, e, func(existing *billingevent.BillingEvent) bool {
		return e.DedupKey != nil &&
			existing.TenantID == e.TenantID &&
			lo.FromPtr(existing.DedupKey) == *e.DedupKey
	})
	return inserted, nil
}

func (s *InMemoryBillingEventStore) MarkProcessed(ctx context.Context, tenantID, id string, at time.Time) (*billingevent.BillingEvent, error) {
	return s.Mutate(ctx, id, func(current *billingevent.BillingEvent) (*billingevent.BillingEvent, error) {
		if current.TenantID != tenantID {
			return nil, notFound(id)
		}
		current.Processed = true
		if current.ProcessedAt == nil {
			current.ProcessedAt = &at
		}
		return current, nil
	})
}

func (s *InMemoryBillingEventStore) List(ctx context.Context, tenantID string, filter *types.BillingEventFilter) ([]*billingevent.BillingEvent, error) {
	if filter == nil {
		filter = types.NewBillingEventFilter()
	}
	return s.InMemoryStore.List(ctx, filter.QueryFilter, billingEventFilterFn(tenantID, filter), func(i, j *billingevent.BillingEvent) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}), nil
}

func (s *InMemoryBillingEventStore) Count(ctx context.Context, tenantID string, filter *types.BillingEventFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, billingEventFilterFn(tenantID, filter)), nil
}

// ByType returns every event of eventType recorded for the tenant
func (s *InMemoryBillingEventStore) ByType(ctx context.Context, tenantID string, eventType types.BillingEventType) []*billingevent.BillingEvent {
	return s.InMemoryStore.List(ctx, nil, billingEventFilterFn(tenantID, &types.BillingEventFilter{EventType: eventType}), nil)
}
