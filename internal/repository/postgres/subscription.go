package postgres

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `id, tenant_id, plan_id, status, billing_cycle, current_period_start, current_period_end,
	trial_end, cancelled_at, cancel_reason, auto_renew, next_billing_at, past_due_since, previous_plan_id,
	plan_changed_at, usage_snapshot, version, created_at, updated_at, created_by, updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (
			:id, :tenant_id, :plan_id, :status, :billing_cycle, :current_period_start, :current_period_end,
			:trial_end, :cancelled_at, :cancel_reason, :auto_renew, :next_billing_at, :past_due_since, :previous_plan_id,
			:plan_changed_at, :usage_snapshot, :version, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	r.logger.Debugw("creating subscription",
		"subscription_id", sub.ID,
		"tenant_id", sub.TenantID,
		"plan_id", sub.PlanID,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Tenant already has a subscription").
				WithReportableDetails(map[string]any{"tenant_id": sub.TenantID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithOp(err, "create subscription")
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, tenantID, id string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = $1 AND id = $2`

	var sub subscription.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, tenantID, id); err != nil {
		return nil, wrapQueryErr(err, "get subscription", "Subscription not found", map[string]any{"subscription_id": id})
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = $1`

	var sub subscription.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, tenantID); err != nil {
		return nil, wrapQueryErr(err, "get tenant subscription", "Subscription not found", map[string]any{"tenant_id": tenantID})
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = :plan_id,
			status = :status,
			billing_cycle = :billing_cycle,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			trial_end = :trial_end,
			cancelled_at = :cancelled_at,
			cancel_reason = :cancel_reason,
			auto_renew = :auto_renew,
			next_billing_at = :next_billing_at,
			past_due_since = :past_due_since,
			previous_plan_id = :previous_plan_id,
			plan_changed_at = :plan_changed_at,
			usage_snapshot = :usage_snapshot,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE tenant_id = :tenant_id AND id = :id AND version = :version
	`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithOp(err, "update subscription")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("subscription version conflict").
			WithHint("Subscription was modified concurrently, please retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"version":         sub.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}
	sub.Version++
	return nil
}
