package dto

import (
	"context"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/payment"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/shopspring/decimal"
)

type AllocationRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string"`
}

type RecordPaymentRequest struct {
	InvoiceID        *string                 `json:"invoice_id,omitempty"`
	Amount           decimal.Decimal         `json:"amount" swaggertype:"string"`
	Currency         string                  `json:"currency" validate:"required,currency"`
	Fee              decimal.Decimal         `json:"fee" swaggertype:"string"`
	Method           types.PaymentMethodType `json:"payment_method" validate:"required"`
	GatewayReference *string                 `json:"gateway_reference,omitempty"`
	// Allocations split the payment over invoices. Without them a payment
	// linked to an invoice is allocated to it in full. With them the linked
	// invoice must be one of the targets.
	Allocations []AllocationRequest `json:"allocations,omitempty" validate:"omitempty,dive"`
	Metadata    types.Metadata      `json:"metadata,omitempty"`
}

func (r *RecordPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := requirePositive("amount", r.Amount); err != nil {
		return err
	}
	if err := requireNonNegative("fee", r.Fee); err != nil {
		return err
	}
	return r.Method.Validate()
}

func (r *RecordPaymentRequest) ToPayment(ctx context.Context, tenantID string) *payment.Payment {
	p := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentNumber:    types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT),
		InvoiceID:        r.InvoiceID,
		Amount:           r.Amount,
		Currency:         strings.ToLower(r.Currency),
		Fee:              r.Fee,
		Method:           r.Method,
		Status:           types.PaymentStatusPending,
		RefundAmount:     decimal.Zero,
		GatewayReference: r.GatewayReference,
		Metadata:         r.Metadata,
		BaseModel:        types.GetDefaultBaseModel(ctx, tenantID),
	}

	now := time.Now().UTC()
	allocations := r.Allocations
	if len(allocations) == 0 && r.InvoiceID != nil {
		allocations = []AllocationRequest{{InvoiceID: *r.InvoiceID, Amount: r.Amount}}
	}
	for _, a := range allocations {
		p.Allocations = append(p.Allocations, &payment.Allocation{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
			PaymentID: p.ID,
			InvoiceID: a.InvoiceID,
			TenantID:  tenantID,
			Amount:    a.Amount,
			CreatedAt: now,
		})
	}
	return p
}

type MarkPaymentSucceededRequest struct {
	GatewayReference *string `json:"gateway_reference,omitempty" validate:"omitempty,max=255"`
}

type MarkPaymentFailedRequest struct {
	Reason           string  `json:"reason" validate:"required,max=500"`
	GatewayReference *string `json:"gateway_reference,omitempty" validate:"omitempty,max=255"`
}

func (r *MarkPaymentFailedRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

func (r *RefundPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return requirePositive("amount", r.Amount)
}

type PaymentResponse struct {
	*payment.Payment
	NetAmount decimal.Decimal `json:"net_amount" swaggertype:"string"`
}

func NewPaymentResponse(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		Payment:   p,
		NetAmount: p.NetAmount(),
	}
}

type ListPaymentsResponse = types.ListResponse[*PaymentResponse]
