package billingevent

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
)

// BillingEvent is an append-only fact of the billing subsystem. Only the
// processed flag ever changes after insert.
type BillingEvent struct {
	ID          string                 `db:"id" json:"id"`
	TenantID    string                 `db:"tenant_id" json:"tenant_id"`
	EventType   types.BillingEventType `db:"event_type" json:"event_type"`
	Payload     types.JSONMap          `db:"event_data" json:"event_data"`
	DedupKey    *string                `db:"dedup_key" json:"dedup_key,omitempty"`
	Processed   bool                   `db:"processed" json:"processed"`
	ProcessedAt *time.Time             `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

func New(tenantID string, eventType types.BillingEventType, payload map[string]any) *BillingEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return &BillingEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_EVENT),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
