package postgres

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
)

type billingEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billingevent.Repository {
	return &billingEventRepository{db: db, logger: logger}
}

const billingEventColumns = `id, tenant_id, event_type, event_data, dedup_key, processed, processed_at, created_at`

const insertBillingEvent = `
	INSERT INTO billing_events (` + billingEventColumns + `)
	VALUES (:id, :tenant_id, :event_type, :event_data, :dedup_key, :processed, :processed_at, :created_at)
`

func (r *billingEventRepository) Create(ctx context.Context, e *billingevent.BillingEvent) error {
	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, insertBillingEvent, e); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Billing event already recorded").
				WithReportableDetails(map[string]any{"event_id": e.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithOp(err, "create billing event")
	}
	return nil
}

func (r *billingEventRepository) CreateUnique(ctx context.Context, e *billingevent.BillingEvent) (bool, error) {
	query := insertBillingEvent + ` ON CONFLICT (tenant_id, dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, e)
	if err != nil {
		return false, ierr.WithOp(err, "create unique billing event")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithOp(err, "create unique billing event")
	}
	return n > 0, nil
}

func (r *billingEventRepository) MarkProcessed(ctx context.Context, tenantID, id string, at time.Time) (*billingevent.BillingEvent, error) {
	query := `
		UPDATE billing_events
		SET processed = TRUE,
			processed_at = COALESCE(processed_at, $3)
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + billingEventColumns

	var e billingevent.BillingEvent
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &e, query, tenantID, id, at); err != nil {
		return nil, wrapQueryErr(err, "mark billing event processed", "Billing event not found", map[string]any{"event_id": id})
	}
	return &e, nil
}

func (r *billingEventRepository) applyFilter(tenantID string, filter *types.BillingEventFilter) *whereBuilder {
	w := newTenantWhere(tenantID)
	if filter == nil {
		return w
	}
	if filter.EventType != "" {
		w.add("event_type = ?", filter.EventType)
	}
	if filter.Processed != nil {
		w.add("processed = ?", *filter.Processed)
	}
	return w
}

func (r *billingEventRepository) List(ctx context.Context, tenantID string, filter *types.BillingEventFilter) ([]*billingevent.BillingEvent, error) {
	if filter == nil {
		filter = types.NewBillingEventFilter()
	}
	w := r.applyFilter(tenantID, filter)
	query := `SELECT ` + billingEventColumns + ` FROM billing_events` + w.sql()
	query += w.page("created_at", filter.QueryFilter)

	var events []*billingevent.BillingEvent
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &events, query, w.args...); err != nil {
		return nil, ierr.WithOp(err, "list billing events")
	}
	return events, nil
}

func (r *billingEventRepository) Count(ctx context.Context, tenantID string, filter *types.BillingEventFilter) (int, error) {
	w := r.applyFilter(tenantID, filter)
	query := `SELECT COUNT(*) FROM billing_events` + w.sql()

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, w.args...); err != nil {
		return 0, ierr.WithOp(err, "count billing events")
	}
	return count, nil
}
