package types

import "github.com/samber/lo"

const (
	RoleAdmin = "admin"
)

// Claims is the already authenticated identity attached to a request.
// Tenant fields are optional and only used as a tenant resolution input.
type Claims struct {
	UserID     string   `json:"user_id"`
	TenantID   string   `json:"tenant_id,omitempty"`
	TenantSlug string   `json:"tenant_slug,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return lo.Contains(c.Roles, role)
}
