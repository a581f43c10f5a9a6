package service

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	"github.com/clinicflow/clinicflow/internal/domain/payment"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

type PaymentService interface {
	RecordPayment(ctx context.Context, tenantID string, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error)
	GetPayment(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, tenantID string, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error)
	MarkProcessing(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error)
	// MarkSucceeded settles the payment and applies its allocations to the
	// invoices in one transaction
	MarkSucceeded(ctx context.Context, tenantID, id string, req dto.MarkPaymentSucceededRequest) (*dto.PaymentResponse, error)
	MarkFailed(ctx context.Context, tenantID, id string, req dto.MarkPaymentFailedRequest) (*dto.PaymentResponse, error)
	CancelPayment(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error)
	// RefundPayment never touches the invoices, accounting reverses them explicitly
	RefundPayment(ctx context.Context, tenantID, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error)
}

type paymentService struct {
	ServiceParams
	events        BillingEventService
	subscriptions SubscriptionService
}

// NewPaymentService creates a new payment service
func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
		events:        NewBillingEventService(params),
		subscriptions: NewSubscriptionService(params),
	}
}

func (s *paymentService) RecordPayment(ctx context.Context, tenantID string, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPayment(ctx, tenantID)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.InvoiceID != nil {
		if _, err := s.InvoiceRepo.Get(ctx, tenantID, *p.InvoiceID); err != nil {
			return nil, err
		}
	}
	for _, a := range p.Allocations {
		if err := s.checkAllocation(ctx, tenantID, p, a); err != nil {
			return nil, err
		}
	}

	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("recorded payment",
		"tenant_id", tenantID,
		"payment_id", p.ID,
		"payment_number", p.PaymentNumber,
		"amount", p.Amount.String(),
		"allocations", len(p.Allocations),
	)
	s.emitPaymentEvent(ctx, types.BillingEventPaymentRecorded, p, nil)
	return dto.NewPaymentResponse(p), nil
}

// checkAllocation rejects allocations to invoices of another tenant, in
// another currency or already closed. The balance is re-checked atomically
// when the payment succeeds.
func (s *paymentService) checkAllocation(ctx context.Context, tenantID string, p *payment.Payment, a *payment.Allocation) error {
	inv, err := s.InvoiceRepo.Get(ctx, tenantID, a.InvoiceID)
	if err != nil {
		return err
	}
	if a.Amount.IsZero() {
		if inv.Currency != p.Currency {
			return invoice.PaymentRejection(inv.ID, inv.Status, inv.Currency, inv.Balance(), inv.Balance(), p.Currency)
		}
		return nil
	}
	return invoice.PaymentRejection(inv.ID, inv.Status, inv.Currency, inv.Balance(), a.Amount, p.Currency)
}

func (s *paymentService) GetPayment(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error) {
	p, err := s.PaymentRepo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) ListPayments(ctx context.Context, tenantID string, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	payments, err := s.PaymentRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.PaymentRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(payments, func(p *payment.Payment, _ int) *dto.PaymentResponse {
		return dto.NewPaymentResponse(p)
	})
	resp := types.NewListResponse(items, count, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *paymentService) MarkProcessing(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error) {
	return s.transition(ctx, tenantID, id, payment.StatusChange{
		From: []types.PaymentStatus{types.PaymentStatusPending},
		To:   types.PaymentStatusProcessing,
	})
}

func (s *paymentService) MarkFailed(ctx context.Context, tenantID, id string, req dto.MarkPaymentFailedRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, tenantID, id, payment.StatusChange{
		From:             types.PaymentStatusesOpen,
		To:               types.PaymentStatusFailed,
		FailureReason:    lo.ToPtr(req.Reason),
		GatewayReference: req.GatewayReference,
	})
}

func (s *paymentService) CancelPayment(ctx context.Context, tenantID, id string) (*dto.PaymentResponse, error) {
	return s.transition(ctx, tenantID, id, payment.StatusChange{
		From: types.PaymentStatusesOpen,
		To:   types.PaymentStatusCanceled,
	})
}

func (s *paymentService) transition(ctx context.Context, tenantID, id string, change payment.StatusChange) (*dto.PaymentResponse, error) {
	change.At = time.Now().UTC()
	p, err := s.PaymentRepo.TransitionStatus(ctx, tenantID, id, change)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("payment status changed", "tenant_id", tenantID, "payment_id", id, "status", p.Status)
	s.emitPaymentEvent(ctx, types.BillingEventPaymentUpdated, p, nil)
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) MarkSucceeded(ctx context.Context, tenantID, id string, req dto.MarkPaymentSucceededRequest) (*dto.PaymentResponse, error) {
	now := time.Now().UTC()

	var (
		p        *payment.Payment
		invoices []*invoice.Invoice
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		invoices = nil

		var err error
		p, err = s.PaymentRepo.TransitionStatus(ctx, tenantID, id, payment.StatusChange{
			From:             types.PaymentStatusesOpen,
			To:               types.PaymentStatusSucceeded,
			GatewayReference: req.GatewayReference,
			At:               now,
		})
		if err != nil {
			return err
		}

		for _, a := range p.Allocations {
			if !a.Amount.IsPositive() {
				continue
			}
			inv, err := s.InvoiceRepo.ApplyPayment(ctx, tenantID, a.InvoiceID, a.Amount, p.Currency, now)
			if err != nil {
				return err
			}
			invoices = append(invoices, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("payment succeeded",
		"tenant_id", tenantID,
		"payment_id", id,
		"invoices", len(invoices),
	)
	s.emitPaymentEvent(ctx, types.BillingEventPaymentUpdated, p, nil)
	for _, inv := range invoices {
		emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceUpdated, inv, "payment_applied")
		if inv.Status == types.InvoiceStatusPaid && inv.SubscriptionID != nil {
			recoverSubscriptionOnPayment(ctx, s.subscriptions, s.ServiceParams, tenantID, *inv.SubscriptionID)
		}
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) RefundPayment(ctx context.Context, tenantID, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PaymentRepo.Refund(ctx, tenantID, id, req.Amount, req.Reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("refunded payment",
		"tenant_id", tenantID,
		"payment_id", id,
		"amount", req.Amount.String(),
		"refund_amount", p.RefundAmount.String(),
		"status", p.Status,
	)
	s.emitPaymentEvent(ctx, types.BillingEventPaymentRefunded, p, map[string]any{
		"refunded":      req.Amount.String(),
		"refund_reason": req.Reason,
		"invoice_ids": lo.Map(p.Allocations, func(a *payment.Allocation, _ int) string {
			return a.InvoiceID
		}),
	})
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) emitPaymentEvent(ctx context.Context, eventType types.BillingEventType, p *payment.Payment, extra map[string]any) {
	payload := map[string]any{
		"payment_id":     p.ID,
		"payment_number": p.PaymentNumber,
		"status":         p.Status,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
		"refund_amount":  p.RefundAmount.String(),
	}
	if p.InvoiceID != nil {
		payload["invoice_id"] = *p.InvoiceID
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.events.Emit(ctx, p.TenantID, eventType, payload)
}
