package tenant

import "context"

// Repository reads tenants. Lookups never hit a cache so status changes apply
// to the very next request.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	// ListActive is used by the billing sweeps that iterate tenants
	ListActive(ctx context.Context) ([]*Tenant, error)
}
