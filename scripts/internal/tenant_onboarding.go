package internal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	postgresRepo "github.com/clinicflow/clinicflow/internal/repository/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
)

// OnboardNewTenant creates an active tenant from TENANT_SLUG and TENANT_NAME.
// PAYMENT_METHOD_ON_FILE=true marks the tenant as chargeable at trial end.
func OnboardNewTenant() error {
	slug := strings.ToLower(strings.TrimSpace(os.Getenv("TENANT_SLUG")))
	name := os.Getenv("TENANT_NAME")
	if slug == "" || name == "" {
		return fmt.Errorf("tenant slug and name are required")
	}

	e := setup()
	defer e.close()

	ctx := context.Background()
	repo := postgresRepo.NewTenantRepository(e.db, e.logger)

	if _, err := repo.GetBySlug(ctx, slug); err == nil {
		return fmt.Errorf("tenant %q already exists", slug)
	} else if !ierr.IsNotFound(err) {
		return err
	}

	settings := types.Metadata{}
	if os.Getenv("PAYMENT_METHOD_ON_FILE") == "true" {
		settings[types.TenantSettingPaymentMethodOnFile] = "true"
	}

	now := time.Now().UTC()
	t := &tenant.Tenant{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT),
		Slug:      slug,
		Name:      name,
		Status:    types.TenantStatusActive,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, t); err != nil {
		return err
	}

	e.logger.Infow("tenant onboarded", "tenant_id", t.ID, "slug", t.Slug)
	fmt.Println("Tenant ID:", t.ID)
	return nil
}

// SetTenantStatus flips TENANT_ID to TENANT_STATUS. Inactive tenants are
// rejected on their next request.
func SetTenantStatus() error {
	tenantID := os.Getenv("TENANT_ID")
	status := types.TenantStatus(os.Getenv("TENANT_STATUS"))
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if err := status.Validate(); err != nil {
		return err
	}

	e := setup()
	defer e.close()

	ctx := context.Background()
	repo := postgresRepo.NewTenantRepository(e.db, e.logger)

	t, err := repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, t); err != nil {
		return err
	}

	e.logger.Infow("tenant status updated", "tenant_id", t.ID, "status", status)
	return nil
}
