package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxTenantID      ContextKey = "ctx_tenant_id"
	CtxTenant        ContextKey = "ctx_tenant"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxClaims        ContextKey = "ctx_claims"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	DefaultUserID = "00000000-0000-0000-0000-000000000000"
)

// TenantContext is the resolved tenant identity published for the lifetime of a request.
type TenantContext struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Settings Metadata `json:"settings"`
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(CtxTenantID).(string); ok {
		return tenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetTenant returns the tenant resolved for this request, if any
func GetTenant(ctx context.Context) (*TenantContext, bool) {
	tenant, ok := ctx.Value(CtxTenant).(*TenantContext)
	return tenant, ok && tenant != nil
}

// GetClaims returns the identity claims attached by the auth middleware, if any
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(CtxClaims).(*Claims)
	return claims, ok && claims != nil
}

// SetTenant publishes the resolved tenant into the context
func SetTenant(ctx context.Context, tenant *TenantContext) context.Context {
	ctx = context.WithValue(ctx, CtxTenant, tenant)
	return context.WithValue(ctx, CtxTenantID, tenant.ID)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

func SetClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, CtxClaims, claims)
	if claims.UserID != "" {
		ctx = SetUserID(ctx, claims.UserID)
	}
	return ctx
}

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderTenantSlug    = "X-Tenant-Slug"
	HeaderRetryAfter    = "Retry-After"
)
