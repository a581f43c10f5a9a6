package dto

import (
	"context"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/shopspring/decimal"
)

type CreateLineItemRequest struct {
	Type        types.LineItemType `json:"type" validate:"required"`
	Description string             `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal    `json:"quantity" swaggertype:"string"`
	UnitPrice   decimal.Decimal    `json:"unit_price" swaggertype:"string"`
	Discount    decimal.Decimal    `json:"discount" swaggertype:"string"`
	// TaxRate is a fraction, 0.10 is ten percent
	TaxRate decimal.Decimal `json:"tax_rate" swaggertype:"string"`
}

func (r *CreateLineItemRequest) ToLineItem(ctx context.Context, tenantID string) *invoice.LineItem {
	return &invoice.LineItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LINE_ITEM),
		TenantID:    tenantID,
		Type:        r.Type,
		Description: r.Description,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Discount:    r.Discount,
		TaxRate:     r.TaxRate,
		CreatedAt:   time.Now().UTC(),
	}
}

type CreateInvoiceRequest struct {
	SubscriptionID *string                 `json:"subscription_id,omitempty"`
	Currency       string                  `json:"currency" validate:"required,currency"`
	DueDate        *time.Time              `json:"due_date,omitempty"`
	DiscountAmount decimal.Decimal         `json:"discount_amount" swaggertype:"string"`
	Description    string                  `json:"description" validate:"max=1000"`
	LineItems      []CreateLineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	Metadata       types.Metadata          `json:"metadata,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return requireNonNegative("discount_amount", r.DiscountAmount)
}

// ToInvoice builds a draft invoice. Totals are left for the ledger to compute.
func (r *CreateInvoiceRequest) ToInvoice(ctx context.Context, tenantID string, defaultDue time.Time) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		SubscriptionID: r.SubscriptionID,
		Status:         types.InvoiceStatusDraft,
		Currency:       strings.ToLower(r.Currency),
		DiscountAmount: r.DiscountAmount,
		PaidAmount:     decimal.Zero,
		Description:    r.Description,
		DueDate:        defaultDue,
		Metadata:       r.Metadata,
		Version:        1,
		BaseModel:      types.GetDefaultBaseModel(ctx, tenantID),
	}
	if r.DueDate != nil {
		inv.DueDate = r.DueDate.UTC()
	}
	for _, item := range r.LineItems {
		line := item.ToLineItem(ctx, tenantID)
		line.InvoiceID = inv.ID
		inv.LineItems = append(inv.LineItems, line)
	}
	return inv
}

// UpdateDraftInvoiceRequest replaces editable parts of a draft invoice
type UpdateDraftInvoiceRequest struct {
	DueDate        *time.Time              `json:"due_date,omitempty"`
	DiscountAmount *decimal.Decimal        `json:"discount_amount,omitempty" swaggertype:"string"`
	Description    *string                 `json:"description,omitempty" validate:"omitempty,max=1000"`
	LineItems      []CreateLineItemRequest `json:"line_items,omitempty" validate:"omitempty,dive"`
}

func (r *UpdateDraftInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.DiscountAmount != nil {
		if err := requireNonNegative("discount_amount", *r.DiscountAmount); err != nil {
			return err
		}
	}
	if r.DueDate == nil && r.DiscountAmount == nil && r.Description == nil && r.LineItems == nil {
		return ierr.NewError("empty invoice update").
			WithHint("Nothing to update").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type InvoiceResponse struct {
	*invoice.Invoice
	BalanceAmount decimal.Decimal `json:"balance_amount" swaggertype:"string"`
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		Invoice:       inv,
		BalanceAmount: inv.Balance(),
	}
}

type ListInvoicesResponse = types.ListResponse[*InvoiceResponse]

// OverdueSweepResponse reports how many invoices a sweep moved to overdue
type OverdueSweepResponse struct {
	TenantsProcessed int `json:"tenants_processed"`
	InvoicesMarked   int `json:"invoices_marked"`
	Failed           int `json:"failed"`
}
