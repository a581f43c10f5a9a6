package billingevent

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
)

type Repository interface {
	Create(ctx context.Context, e *BillingEvent) error
	// CreateUnique inserts e unless an event with the same tenant and dedup
	// key exists. It reports whether a row was inserted.
	CreateUnique(ctx context.Context, e *BillingEvent) (bool, error)
	MarkProcessed(ctx context.Context, tenantID, id string, at time.Time) (*BillingEvent, error)
	List(ctx context.Context, tenantID string, filter *types.BillingEventFilter) ([]*BillingEvent, error)
	Count(ctx context.Context, tenantID string, filter *types.BillingEventFilter) (int, error)
}
