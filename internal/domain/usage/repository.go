package usage

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, m *UsageMetric) error
	// Aggregate sums samples of metric whose period starts within [from, to)
	Aggregate(ctx context.Context, tenantID string, metric types.MetricType, from, to time.Time) (decimal.Decimal, error)
	List(ctx context.Context, tenantID string, filter *types.UsageFilter) ([]*UsageMetric, error)
	Count(ctx context.Context, tenantID string, filter *types.UsageFilter) (int, error)
}
