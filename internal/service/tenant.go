package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

// TenantService resolves inbound identifiers to active tenants. Every call
// reads the store so a deactivated tenant is rejected on its next request.
type TenantService interface {
	ResolveByID(ctx context.Context, id string) (*tenant.Tenant, error)
	ResolveBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*tenant.Tenant, error)
}

type tenantService struct {
	ServiceParams
}

func NewTenantService(params ServiceParams) TenantService {
	return &tenantService{ServiceParams: params}
}

func (s *tenantService) ResolveByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	if id == "" {
		return nil, tenantNotFound("id", id)
	}
	t, err := s.TenantRepo.GetByID(ctx, id)
	return s.active(t, err, "id", id)
}

func (s *tenantService) ResolveBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, tenantNotFound("slug", slug)
	}
	t, err := s.TenantRepo.GetBySlug(ctx, slug)
	return s.active(t, err, "slug", slug)
}

func (s *tenantService) ListActiveTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.TenantRepo.ListActive(ctx)
}

func (s *tenantService) active(t *tenant.Tenant, err error, by, value string) (*tenant.Tenant, error) {
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, tenantNotFound(by, value)
		}
		return nil, err
	}
	if !t.IsActive() {
		s.Logger.Infow("rejected inactive tenant", "tenant_id", t.ID, "lookup", by)
		return nil, tenantNotFound(by, value)
	}
	return t, nil
}

func tenantNotFound(by, value string) error {
	return ierr.NewError("tenant not found").
		WithHint("Tenant not found or inactive").
		WithReportableDetails(map[string]any{by: value}).
		Mark(ierr.ErrTenantNotFound)
}

// PaymentMethodChecker reports whether a tenant can be charged when its
// trial ends. Card storage lives with the external gateway.
type PaymentMethodChecker interface {
	HasValidPaymentMethod(ctx context.Context, tenantID string) (bool, error)
}

type tenantSettingsPaymentMethodChecker struct {
	tenantRepo tenant.Repository
}

// NewTenantSettingsPaymentMethodChecker reads the payment_method_on_file tenant setting
func NewTenantSettingsPaymentMethodChecker(tenantRepo tenant.Repository) PaymentMethodChecker {
	return &tenantSettingsPaymentMethodChecker{tenantRepo: tenantRepo}
}

func (c *tenantSettingsPaymentMethodChecker) HasValidPaymentMethod(ctx context.Context, tenantID string) (bool, error) {
	t, err := c.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return false, err
	}
	v, ok := t.Settings[types.TenantSettingPaymentMethodOnFile]
	if !ok {
		return false, nil
	}
	on, err := strconv.ParseBool(v)
	return lo.Ternary(err == nil, on, false), nil
}
