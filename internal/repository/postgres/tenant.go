package postgres

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
)

type tenantRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewTenantRepository(db *postgres.DB, logger *logger.Logger) tenant.Repository {
	return &tenantRepository{db: db, logger: logger}
}

const tenantColumns = `id, slug, name, status, settings, created_at, updated_at`

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES (:id, :slug, :name, :status, :settings, :created_at, :updated_at)
	`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, t); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("Tenant with slug %s already exists", t.Slug).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithOp(err, "create tenant")
	}
	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	var t tenant.Tenant
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &t, query, id); err != nil {
		return nil, wrapQueryErr(err, "get tenant", "Tenant not found", map[string]any{"tenant_id": id})
	}
	return &t, nil
}

func (r *tenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`

	var t tenant.Tenant
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &t, query, slug); err != nil {
		return nil, wrapQueryErr(err, "get tenant by slug", "Tenant not found", map[string]any{"slug": slug})
	}
	return &t, nil
}

func (r *tenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `
		UPDATE tenants
		SET name = :name, status = :status, settings = :settings, updated_at = :updated_at
		WHERE id = :id
	`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, t)
	if err != nil {
		return ierr.WithOp(err, "update tenant")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"tenant_id": t.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *tenantRepository) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status = $1 ORDER BY id`

	var tenants []*tenant.Tenant
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &tenants, query, types.TenantStatusActive); err != nil {
		return nil, ierr.WithOp(err, "list active tenants")
	}
	return tenants, nil
}
