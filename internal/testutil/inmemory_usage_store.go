package testutil

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/usage"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// InMemoryUsageStore implements usage.Repository
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.UsageMetric]
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore(func(m *usage.UsageMetric) *usage.UsageMetric {
			c := *m
			return &c
		}),
	}
}

func usageFilterFn(tenantID string, f *types.UsageFilter) FilterFunc[*usage.UsageMetric] {
	return func(m *usage.UsageMetric) bool {
		if m.TenantID != tenantID {
			return false
		}
		if f == nil {
			return true
		}
		if f.MetricType != "" && m.MetricType != f.MetricType {
			return false
		}
		if f.PeriodStart != nil && m.PeriodStart.Before(*f.PeriodStart) {
			return false
		}
		if f.PeriodEnd != nil && !m.PeriodStart.Before(*f.PeriodEnd) {
			return false
		}
		return true
	}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, m *usage.UsageMetric) error {
	return s.InMemoryStore.Create(ctx, m.ID, m)
}

func (s *InMemoryUsageStore) Aggregate(ctx context.Context, tenantID string, metric types.MetricType, from, to time.Time) (decimal.Decimal, error) {
	samples := s.InMemoryStore.List(ctx, nil, usageFilterFn(tenantID, &types.UsageFilter{
		MetricType:  metric,
		PeriodStart: &from,
		PeriodEnd:   &to,
	}), nil)

	total := decimal.Zero
	for _, m := range samples {
		total = total.Add(m.Value)
	}
	return total, nil
}

func (s *InMemoryUsageStore) List(ctx context.Context, tenantID string, filter *types.UsageFilter) ([]*usage.UsageMetric, error) {
	if filter == nil {
		filter = types.NewUsageFilter()
	}
	return s.InMemoryStore.List(ctx, filter.QueryFilter, usageFilterFn(tenantID, filter), func(i, j *usage.UsageMetric) bool {
		return i.PeriodStart.Before(j.PeriodStart)
	}), nil
}

func (s *InMemoryUsageStore) Count(ctx context.Context, tenantID string, filter *types.UsageFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, usageFilterFn(tenantID, filter)), nil
}
