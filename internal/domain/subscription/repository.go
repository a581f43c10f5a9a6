package subscription

import "context"

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, tenantID, id string) (*Subscription, error)
	// GetByTenant returns the tenant's only subscription row, live or cancelled
	GetByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	// Update writes sub if its version still matches and bumps the version.
	// A stale version fails with ErrVersionConflict.
	Update(ctx context.Context, sub *Subscription) error
}
