package postgres

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/usage"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

const usageColumns = `id, tenant_id, subscription_id, metric_type, metric_value, unit, period_start,
	period_end, recorded_at, created_by`

func (r *usageRepository) Create(ctx context.Context, m *usage.UsageMetric) error {
	query := `
		INSERT INTO usage_metrics (` + usageColumns + `)
		VALUES (
			:id, :tenant_id, :subscription_id, :metric_type, :metric_value, :unit, :period_start,
			:period_end, :recorded_at, :created_by
		)
	`
	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, m); err != nil {
		return ierr.WithOp(err, "record usage")
	}
	return nil
}

func (r *usageRepository) Aggregate(ctx context.Context, tenantID string, metric types.MetricType, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(metric_value), 0)
		FROM usage_metrics
		WHERE tenant_id = $1 AND metric_type = $2 AND period_start >= $3 AND period_start < $4
	`

	var total decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &total, query, tenantID, metric, from, to); err != nil {
		return decimal.Zero, ierr.WithOp(err, "aggregate usage")
	}
	return total, nil
}

func (r *usageRepository) applyFilter(tenantID string, filter *types.UsageFilter) *whereBuilder {
	w := newTenantWhere(tenantID)
	if filter == nil {
		return w
	}
	if filter.MetricType != "" {
		w.add("metric_type = ?", filter.MetricType)
	}
	if filter.PeriodStart != nil {
		w.add("period_start >= ?", *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		w.add("period_start < ?", *filter.PeriodEnd)
	}
	return w
}

func (r *usageRepository) List(ctx context.Context, tenantID string, filter *types.UsageFilter) ([]*usage.UsageMetric, error) {
	if filter == nil {
		filter = types.NewUsageFilter()
	}
	w := r.applyFilter(tenantID, filter)
	query := `SELECT ` + usageColumns + ` FROM usage_metrics` + w.sql()
	query += w.page("period_start", filter.QueryFilter)

	var metrics []*usage.UsageMetric
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &metrics, query, w.args...); err != nil {
		return nil, ierr.WithOp(err, "list usage")
	}
	return metrics, nil
}

func (r *usageRepository) Count(ctx context.Context, tenantID string, filter *types.UsageFilter) (int, error) {
	w := r.applyFilter(tenantID, filter)
	query := `SELECT COUNT(*) FROM usage_metrics` + w.sql()

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, w.args...); err != nil {
		return 0, ierr.WithOp(err, "count usage")
	}
	return count, nil
}
