package testutil

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/types"
)

// SetupContext returns a request-like context without any tenant. Services
// always take the tenant id explicitly.
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
