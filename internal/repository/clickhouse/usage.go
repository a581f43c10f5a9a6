package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/clickhouse"
	"github.com/clinicflow/clinicflow/internal/domain/usage"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// UsageRepository keeps usage samples in ClickHouse. The table is a
// ReplacingMergeTree so reads use FINAL to drop replayed inserts.
type UsageRepository struct {
	store  *clickhouse.Store
	logger *logger.Logger
}

func NewUsageRepository(store *clickhouse.Store, logger *logger.Logger) usage.Repository {
	return &UsageRepository{store: store, logger: logger}
}

func (r *UsageRepository) Create(ctx context.Context, m *usage.UsageMetric) error {
	query := `
		INSERT INTO usage_metrics (
			id, tenant_id, subscription_id, metric_type, metric_value, unit,
			period_start, period_end, recorded_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.store.Exec(ctx, query,
		m.ID,
		m.TenantID,
		m.SubscriptionID,
		string(m.MetricType),
		m.Value,
		m.Unit,
		m.PeriodStart,
		m.PeriodEnd,
		m.RecordedAt,
		m.CreatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record usage").
			WithReportableDetails(map[string]interface{}{
				"usage_id":    m.ID,
				"metric_type": m.MetricType,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *UsageRepository) Aggregate(ctx context.Context, tenantID string, metric types.MetricType, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT toString(sum(metric_value))
		FROM usage_metrics FINAL
		WHERE tenant_id = ? AND metric_type = ? AND period_start >= ? AND period_start < ?
	`

	var total string
	if err := r.store.QueryRowScan(ctx, query, []any{tenantID, string(metric), from, to}, &total); err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Failed to aggregate usage").
			WithReportableDetails(map[string]interface{}{
				"tenant_id":   tenantID,
				"metric_type": metric,
			}).
			Mark(ierr.ErrDatabase)
	}

	value, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Failed to parse aggregated usage").
			Mark(ierr.ErrDatabase)
	}
	return value, nil
}

func (r *UsageRepository) where(tenantID string, filter *types.UsageFilter) (string, []any) {
	conds := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if filter != nil {
		if filter.MetricType != "" {
			conds = append(conds, "metric_type = ?")
			args = append(args, string(filter.MetricType))
		}
		if filter.PeriodStart != nil {
			conds = append(conds, "period_start >= ?")
			args = append(args, *filter.PeriodStart)
		}
		if filter.PeriodEnd != nil {
			conds = append(conds, "period_start < ?")
			args = append(args, *filter.PeriodEnd)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *UsageRepository) List(ctx context.Context, tenantID string, filter *types.UsageFilter) ([]*usage.UsageMetric, error) {
	if filter == nil {
		filter = types.NewUsageFilter()
	}
	where, args := r.where(tenantID, filter)

	order := "DESC"
	if filter.GetOrder() == types.OrderAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, tenant_id, subscription_id, metric_type, metric_value, unit,
			period_start, period_end, recorded_at, created_by
		FROM usage_metrics FINAL %s
		ORDER BY period_start %s, id %s
		LIMIT %d OFFSET %d
	`, where, order, order, filter.GetLimit(), filter.GetOffset())

	var rows []usageRow
	if err := r.store.Select(ctx, &rows, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list usage").
			Mark(ierr.ErrDatabase)
	}

	metrics := make([]*usage.UsageMetric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, row.toDomain())
	}
	return metrics, nil
}

func (r *UsageRepository) Count(ctx context.Context, tenantID string, filter *types.UsageFilter) (int, error) {
	where, args := r.where(tenantID, filter)
	query := `SELECT count() FROM usage_metrics FINAL` + where

	var count uint64
	if err := r.store.QueryRowScan(ctx, query, args, &count); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count usage").
			Mark(ierr.ErrDatabase)
	}
	return int(count), nil
}

// usageRow mirrors the ClickHouse column types
type usageRow struct {
	ID             string          `ch:"id"`
	TenantID       string          `ch:"tenant_id"`
	SubscriptionID *string         `ch:"subscription_id"`
	MetricType     string          `ch:"metric_type"`
	Value          decimal.Decimal `ch:"metric_value"`
	Unit           string          `ch:"unit"`
	PeriodStart    time.Time       `ch:"period_start"`
	PeriodEnd      time.Time       `ch:"period_end"`
	RecordedAt     time.Time       `ch:"recorded_at"`
	CreatedBy      string          `ch:"created_by"`
}

func (row usageRow) toDomain() *usage.UsageMetric {
	return &usage.UsageMetric{
		ID:             row.ID,
		TenantID:       row.TenantID,
		SubscriptionID: row.SubscriptionID,
		MetricType:     types.MetricType(row.MetricType),
		Value:          row.Value,
		Unit:           row.Unit,
		PeriodStart:    row.PeriodStart.UTC(),
		PeriodEnd:      row.PeriodEnd.UTC(),
		RecordedAt:     row.RecordedAt.UTC(),
		CreatedBy:      row.CreatedBy,
	}
}
