package invoice

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is a tenant scoped bill. Monetary fields are frozen once the
// invoice is paid, cancelled or written off.
type Invoice struct {
	ID             string              `db:"id" json:"id"`
	InvoiceNumber  string              `db:"invoice_number" json:"invoice_number"`
	SubscriptionID *string             `db:"subscription_id" json:"subscription_id,omitempty"`
	Status         types.InvoiceStatus `db:"status" json:"status"`
	Currency       string              `db:"currency" json:"currency"`
	Subtotal       decimal.Decimal     `db:"subtotal" json:"subtotal" swaggertype:"string"`
	TaxAmount      decimal.Decimal     `db:"tax_amount" json:"tax_amount" swaggertype:"string"`
	DiscountAmount decimal.Decimal     `db:"discount_amount" json:"discount_amount" swaggertype:"string"`
	TotalAmount    decimal.Decimal     `db:"total_amount" json:"total_amount" swaggertype:"string"`
	PaidAmount     decimal.Decimal     `db:"paid_amount" json:"paid_amount" swaggertype:"string"`
	Description    string              `db:"description" json:"description,omitempty"`
	DueDate        time.Time           `db:"due_date" json:"due_date"`
	SentAt         *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
	PaidAt         *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	CancelledAt    *time.Time          `db:"cancelled_at" json:"cancelled_at,omitempty"`
	WrittenOffAt   *time.Time          `db:"written_off_at" json:"written_off_at,omitempty"`
	Metadata       types.Metadata      `db:"metadata" json:"metadata,omitempty"`
	LineItems      []*LineItem         `db:"-" json:"line_items"`
	Version        int                 `db:"version" json:"version"`
	types.BaseModel
}

// LineItem is one ordered row of an invoice
type LineItem struct {
	ID          string             `db:"id" json:"id"`
	InvoiceID   string             `db:"invoice_id" json:"invoice_id"`
	TenantID    string             `db:"tenant_id" json:"-"`
	Position    int                `db:"position" json:"position"`
	Type        types.LineItemType `db:"item_type" json:"type"`
	Description string             `db:"description" json:"description"`
	Quantity    decimal.Decimal    `db:"quantity" json:"quantity" swaggertype:"string"`
	UnitPrice   decimal.Decimal    `db:"unit_price" json:"unit_price" swaggertype:"string"`
	Discount    decimal.Decimal    `db:"discount" json:"discount" swaggertype:"string"`
	TaxRate     decimal.Decimal    `db:"tax_rate" json:"tax_rate" swaggertype:"string"`
	LineTotal   decimal.Decimal    `db:"line_total" json:"line_total" swaggertype:"string"`
	LineTax     decimal.Decimal    `db:"tax_amount" json:"tax_amount" swaggertype:"string"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// Balance is the only place the outstanding amount is computed
func (i *Invoice) Balance() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// IsClosed reports whether allocations to this invoice must be rejected
func (i *Invoice) IsClosed() bool {
	return !i.Status.AcceptsPayment()
}

// IsEditable reports whether line items and amounts may still change
func (i *Invoice) IsEditable() bool {
	return i.Status == types.InvoiceStatusDraft && i.PaidAmount.IsZero()
}
