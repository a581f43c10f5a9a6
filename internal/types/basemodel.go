package types

import (
	"context"
	"time"
)

// BaseModel is embedded by every tenant scoped model persisted in the database
type BaseModel struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

// GetDefaultBaseModel stamps audit fields for a new row owned by tenantID.
// The tenant is always passed explicitly, never read from the context.
func GetDefaultBaseModel(ctx context.Context, tenantID string) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}
