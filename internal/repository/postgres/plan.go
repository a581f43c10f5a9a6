package postgres

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/domain/plan"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return &planRepository{db: db, logger: logger}
}

const planColumns = `id, name, slug, description, price, billing_cycle, currency, features, limits,
	trial_days, is_active, is_public, created_at, updated_at, created_by, updated_by`

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES (
			:id, :name, :slug, :description, :price, :billing_cycle, :currency, :features, :limits,
			:trial_days, :is_active, :is_public, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	r.logger.Debugw("creating plan", "plan_id", p.ID, "slug", p.Slug)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A plan with slug %s already exists", p.Slug).
				WithReportableDetails(map[string]any{"slug": p.Slug}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithOp(err, "create plan")
	}
	return nil
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	var p plan.Plan
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, wrapQueryErr(err, "get plan", "Plan not found", map[string]any{"plan_id": id})
	}
	return &p, nil
}

func (r *planRepository) GetBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE slug = $1`

	var p plan.Plan
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, slug); err != nil {
		return nil, wrapQueryErr(err, "get plan by slug", "Plan not found", map[string]any{"slug": slug})
	}
	return &p, nil
}

func (r *planRepository) ListPublic(ctx context.Context) ([]*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE is_public AND is_active ORDER BY price ASC, name ASC`

	var plans []*plan.Plan
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &plans, query); err != nil {
		return nil, ierr.WithOp(err, "list public plans")
	}
	return plans, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans
		SET name = :name,
			description = :description,
			price = :price,
			billing_cycle = :billing_cycle,
			currency = :currency,
			features = :features,
			limits = :limits,
			trial_days = :trial_days,
			is_active = :is_active,
			is_public = :is_public,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id
	`

	r.logger.Debugw("updating plan", "plan_id", p.ID)

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithOp(err, "update plan")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("plan not found").
			WithHint("Plan not found").
			WithReportableDetails(map[string]any{"plan_id": p.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
