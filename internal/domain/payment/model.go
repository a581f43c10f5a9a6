package payment

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// Payment records money received from a tenant. Gateway processing happens
// elsewhere, the ledger only stores its outcome.
type Payment struct {
	ID               string                  `db:"id" json:"id"`
	PaymentNumber    string                  `db:"payment_number" json:"payment_number"`
	InvoiceID        *string                 `db:"invoice_id" json:"invoice_id,omitempty"`
	Amount           decimal.Decimal         `db:"amount" json:"amount" swaggertype:"string"`
	Currency         string                  `db:"currency" json:"currency"`
	Fee              decimal.Decimal         `db:"fee" json:"fee" swaggertype:"string"`
	Method           types.PaymentMethodType `db:"payment_method" json:"payment_method"`
	Status           types.PaymentStatus     `db:"payment_status" json:"payment_status"`
	RefundAmount     decimal.Decimal         `db:"refund_amount" json:"refund_amount" swaggertype:"string"`
	RefundReason     *string                 `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundedAt       *time.Time              `db:"refunded_at" json:"refunded_at,omitempty"`
	GatewayReference *string                 `db:"gateway_reference" json:"gateway_reference,omitempty"`
	FailureReason    *string                 `db:"failure_reason" json:"failure_reason,omitempty"`
	SucceededAt      *time.Time              `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt         *time.Time              `db:"failed_at" json:"failed_at,omitempty"`
	Metadata         types.Metadata          `db:"metadata" json:"metadata,omitempty"`
	Allocations      []*Allocation           `db:"-" json:"allocations"`
	types.BaseModel
}

// Allocation assigns part of a payment to one invoice
type Allocation struct {
	ID        string          `db:"id" json:"id"`
	PaymentID string          `db:"payment_id" json:"payment_id"`
	InvoiceID string          `db:"invoice_id" json:"invoice_id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	Amount    decimal.Decimal `db:"amount" json:"amount" swaggertype:"string"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NetAmount is the amount left after the processing fee
func (p *Payment) NetAmount() decimal.Decimal {
	return p.Amount.Sub(p.Fee)
}

// RefundableAmount is what can still be refunded
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

func (p *Payment) AllocatedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}
