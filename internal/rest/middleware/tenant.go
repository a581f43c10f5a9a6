package middleware

import (
	"net"
	"strings"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// TenantMiddleware resolves the tenant of an authenticated request and
// publishes it into the request context. Inputs are tried in priority order
// and the first present one decides: X-Tenant-ID, X-Tenant-Slug, the
// tenant_id claim, the tenant_slug claim, then the subdomain under the
// configured base domain. A present input that does not resolve fails without
// trying the rest.
//
// Anonymous requests never get a tenant. A token bound to a tenant may only
// reach that tenant, whatever the headers or host say. Unbound tokens need the
// admin role to select a tenant.
func TenantMiddleware(cfg *config.Configuration, tenants service.TenantService, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lo.ContainsBy(cfg.Tenant.SkipPaths, func(prefix string) bool {
			return strings.HasPrefix(c.Request.URL.Path, prefix)
		}) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		claims, ok := types.GetClaims(ctx)
		if !ok {
			c.Next()
			return
		}

		var (
			t   *tenant.Tenant
			err error
		)

		host := subdomain(c.Request.Host, cfg.Tenant.BaseDomain)
		switch {
		case c.GetHeader(types.HeaderTenantID) != "":
			t, err = tenants.ResolveByID(ctx, strings.TrimSpace(c.GetHeader(types.HeaderTenantID)))
		case c.GetHeader(types.HeaderTenantSlug) != "":
			t, err = tenants.ResolveBySlug(ctx, c.GetHeader(types.HeaderTenantSlug))
		case claims.TenantID != "":
			t, err = tenants.ResolveByID(ctx, claims.TenantID)
		case claims.TenantSlug != "":
			t, err = tenants.ResolveBySlug(ctx, claims.TenantSlug)
		case host != "":
			t, err = tenants.ResolveBySlug(ctx, host)
		default:
			c.Next()
			return
		}

		if err == nil {
			err = checkTenantBinding(claims, t, host)
		}
		if err != nil {
			logger.Debugw("tenant resolution failed",
				"error", err,
				"host", c.Request.Host,
				"user_id", claims.UserID,
			)
			c.Error(err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(types.SetTenant(ctx, t.ToContext()))
		c.Next()
	}
}

// checkTenantBinding rejects a resolved tenant the token is not allowed to act
// for. host is the request subdomain, empty when there is none.
func checkTenantBinding(claims *types.Claims, t *tenant.Tenant, host string) error {
	bound := claims.TenantID != "" || claims.TenantSlug != ""
	if !bound {
		if claims.HasRole(types.RoleAdmin) {
			return nil
		}
		return tenantAccessDenied(claims, t)
	}

	if claims.TenantID != "" && claims.TenantID != t.ID {
		return tenantAccessDenied(claims, t)
	}
	if claims.TenantSlug != "" && !strings.EqualFold(strings.TrimSpace(claims.TenantSlug), t.Slug) {
		return tenantAccessDenied(claims, t)
	}
	if host != "" && host != t.Slug {
		return tenantAccessDenied(claims, t)
	}
	return nil
}

func tenantAccessDenied(claims *types.Claims, t *tenant.Tenant) error {
	return ierr.NewError("token not valid for tenant").
		WithHint("You do not have access to this tenant").
		WithReportableDetails(map[string]any{
			"tenant_id": t.ID,
			"user_id":   claims.UserID,
		}).
		Mark(ierr.ErrPermissionDenied)
}

// RequireTenant rejects requests the resolver could not attach a tenant to
func RequireTenant(c *gin.Context) {
	if _, ok := types.GetTenant(c.Request.Context()); !ok {
		c.Error(ierr.NewError("tenant context required").
			WithHint("A tenant must be specified with the X-Tenant-ID or X-Tenant-Slug header").
			Mark(ierr.ErrTenantContextRequired))
		c.Abort()
		return
	}
	c.Next()
}

// subdomain returns the single label in front of baseDomain, e.g. "northside"
// for "northside.clinicflow.io:443" under "clinicflow.io"
func subdomain(host, baseDomain string) string {
	if baseDomain == "" || host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	baseDomain = strings.ToLower(strings.Trim(baseDomain, "."))

	label, ok := strings.CutSuffix(host, "."+baseDomain)
	if !ok || label == "" || strings.Contains(label, ".") || label == "www" {
		return ""
	}
	return label
}
