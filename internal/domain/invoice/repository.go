package invoice

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Create inserts the invoice together with its line items
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, tenantID, id string) (*Invoice, error)
	List(ctx context.Context, tenantID string, filter *types.InvoiceFilter) ([]*Invoice, error)
	Count(ctx context.Context, tenantID string, filter *types.InvoiceFilter) (int, error)
	// Update writes status, dates and amounts guarded by the version column.
	// Line items are replaced when replaceLines is set.
	Update(ctx context.Context, inv *Invoice, replaceLines bool) error
	// ApplyPayment atomically adds amount to paid_amount and re-derives the
	// status in the same statement scope. It never reads-then-writes the
	// paid amount outside the store.
	ApplyPayment(ctx context.Context, tenantID, id string, amount decimal.Decimal, currency string, now time.Time) (*Invoice, error)
	// ListOverdueCandidates returns unpaid issued invoices due before now
	ListOverdueCandidates(ctx context.Context, tenantID string, now time.Time) ([]*Invoice, error)
}
