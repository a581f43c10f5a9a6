package tenant

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
)

// Tenant represents a clinic organisation. Tenants are provisioned outside
// the billing core, which only reads them.
type Tenant struct {
	ID        string             `db:"id" json:"id"`
	Slug      string             `db:"slug" json:"slug"`
	Name      string             `db:"name" json:"name"`
	Status    types.TenantStatus `db:"status" json:"status"`
	Settings  types.Metadata     `db:"settings" json:"settings"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == types.TenantStatusActive
}

// ToContext returns the identity published into the request context
func (t *Tenant) ToContext() *types.TenantContext {
	settings := make(types.Metadata, len(t.Settings))
	for k, v := range t.Settings {
		settings[k] = v
	}
	return &types.TenantContext{
		ID:       t.ID,
		Slug:     t.Slug,
		Name:     t.Name,
		Settings: settings,
	}
}
