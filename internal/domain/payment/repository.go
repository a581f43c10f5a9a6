package payment

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// StatusChange describes a compare-and-set status transition
type StatusChange struct {
	From             []types.PaymentStatus
	To               types.PaymentStatus
	GatewayReference *string
	FailureReason    *string
	At               time.Time
}

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts the payment together with its allocations
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, tenantID, id string) (*Payment, error)
	List(ctx context.Context, tenantID string, filter *types.PaymentFilter) ([]*Payment, error)
	Count(ctx context.Context, tenantID string, filter *types.PaymentFilter) (int, error)
	// TransitionStatus applies change only if the current status is in change.From
	TransitionStatus(ctx context.Context, tenantID, id string, change StatusChange) (*Payment, error)
	// Refund atomically accumulates refund_amount, failing with
	// ErrRefundExceedsPayment when amount exceeds what is still refundable.
	Refund(ctx context.Context, tenantID, id string, amount decimal.Decimal, reason string, now time.Time) (*Payment, error)
}
