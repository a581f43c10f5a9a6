package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

type InvoiceService interface {
	CreateInvoice(ctx context.Context, tenantID string, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, tenantID string, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	UpdateDraftInvoice(ctx context.Context, tenantID, id string, req dto.UpdateDraftInvoiceRequest) (*dto.InvoiceResponse, error)
	SendInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error)
	CancelInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error)
	WriteOffInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error)
	MarkUncollectible(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error)
	// MarkOverdueInvoices moves a tenant's open invoices past their due date to overdue
	MarkOverdueInvoices(ctx context.Context, tenantID string, now time.Time) (int, error)
	MarkAllOverdueInvoices(ctx context.Context, now time.Time) (*dto.OverdueSweepResponse, error)
}

type invoiceService struct {
	ServiceParams
	events BillingEventService
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		events:        NewBillingEventService(params),
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, tenantID string, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.SubscriptionID != nil {
		// the subscription must belong to the same tenant
		if _, err := s.SubRepo.Get(ctx, tenantID, *req.SubscriptionID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	inv := req.ToInvoice(ctx, tenantID, s.defaultDueDate(now))
	if err := computeInvoice(inv); err != nil {
		return nil, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("created invoice",
		"tenant_id", tenantID,
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"total_amount", inv.TotalAmount.String(),
	)
	emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceCreated, inv, "created")
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, tenantID string, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = types.NewInvoiceFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.InvoiceRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.InvoiceRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
		return dto.NewInvoiceResponse(inv)
	})
	resp := types.NewListResponse(items, count, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *invoiceService) UpdateDraftInvoice(ctx context.Context, tenantID, id string, req dto.UpdateDraftInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsEditable() {
		return nil, ierr.NewError("invoice is not editable").
			WithHintf("Only draft invoices without payments can be edited, invoice is %s", inv.Status).
			WithReportableDetails(map[string]any{"invoice_id": id, "status": inv.Status}).
			Mark(lo.Ternary(inv.Status.IsTerminal(), ierr.ErrInvoiceClosed, ierr.ErrInvalidOperation))
	}

	if req.DueDate != nil {
		inv.DueDate = req.DueDate.UTC()
	}
	if req.DiscountAmount != nil {
		inv.DiscountAmount = *req.DiscountAmount
	}
	if req.Description != nil {
		inv.Description = *req.Description
	}
	replaceLines := req.LineItems != nil
	if replaceLines {
		inv.LineItems = lo.Map(req.LineItems, func(item dto.CreateLineItemRequest, _ int) *invoice.LineItem {
			line := item.ToLineItem(ctx, tenantID)
			line.InvoiceID = inv.ID
			return line
		})
	}
	if err := computeInvoice(inv); err != nil {
		return nil, err
	}
	inv.UpdatedAt = time.Now().UTC()
	inv.UpdatedBy = types.GetUserID(ctx)

	if err := s.InvoiceRepo.Update(ctx, inv, replaceLines); err != nil {
		return nil, err
	}

	emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceUpdated, inv, "draft_updated")
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, tenantID, id, "sent", (*invoice.Invoice).Send)
}

func (s *invoiceService) CancelInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, tenantID, id, "cancelled", (*invoice.Invoice).Cancel)
}

func (s *invoiceService) WriteOffInvoice(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, tenantID, id, "written_off", (*invoice.Invoice).WriteOff)
}

func (s *invoiceService) MarkUncollectible(ctx context.Context, tenantID, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, tenantID, id, "uncollectible", (*invoice.Invoice).MarkUncollectible)
}

func (s *invoiceService) transition(ctx context.Context, tenantID, id, reason string, apply func(*invoice.Invoice, time.Time) error) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	from := inv.Status
	now := time.Now().UTC()
	if err := apply(inv, now); err != nil {
		return nil, err
	}
	inv.UpdatedBy = types.GetUserID(ctx)

	// a concurrent payment bumps the version, so this never overwrites it
	if err := s.InvoiceRepo.Update(ctx, inv, false); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice status changed",
		"tenant_id", tenantID,
		"invoice_id", id,
		"from", from,
		"to", inv.Status,
	)
	emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceUpdated, inv, reason)
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) MarkOverdueInvoices(ctx context.Context, tenantID string, now time.Time) (int, error) {
	candidates, err := s.InvoiceRepo.ListOverdueCandidates(ctx, tenantID, now)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, inv := range candidates {
		if !inv.ApplyDerivedStatus(now) {
			continue
		}
		if err := s.InvoiceRepo.Update(ctx, inv, false); err != nil {
			// a payment landed in between, the next sweep re-evaluates it
			if ierr.IsVersionConflict(err) {
				continue
			}
			return marked, err
		}
		marked++
		emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceUpdated, inv, "overdue")
	}
	return marked, nil
}

func (s *invoiceService) MarkAllOverdueInvoices(ctx context.Context, now time.Time) (*dto.OverdueSweepResponse, error) {
	tenants, err := s.TenantRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	resp := &dto.OverdueSweepResponse{}

	p := pool.New().WithMaxGoroutines(s.Config.Billing.SweepConcurrency)
	for _, t := range tenants {
		t := t
		p.Go(func() {
			marked, err := s.MarkOverdueInvoices(ctx, t.ID, now)
			mu.Lock()
			defer mu.Unlock()
			resp.TenantsProcessed++
			resp.InvoicesMarked += marked
			if err != nil {
				resp.Failed++
				s.Logger.Errorw("overdue sweep failed", "tenant_id", t.ID, "error", err)
			}
		})
	}
	p.Wait()

	s.Logger.Infow("overdue sweep finished",
		"tenants", resp.TenantsProcessed,
		"invoices_marked", resp.InvoicesMarked,
		"failed", resp.Failed,
	)
	return resp, nil
}

func (s *invoiceService) defaultDueDate(now time.Time) time.Time {
	return now.AddDate(0, 0, s.Config.Billing.InvoiceDueDays)
}

// computeInvoice validates every line and recomputes the totals
func computeInvoice(inv *invoice.Invoice) error {
	for _, item := range inv.LineItems {
		if err := invoice.ValidateLineItem(item); err != nil {
			return err
		}
	}
	inv.Recalculate()
	return inv.Validate()
}

// newPeriodInvoice bills one period of a subscription. It is issued straight
// away since nobody reviews automated renewals.
func newPeriodInvoice(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, now time.Time, dueDays int) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		SubscriptionID: lo.ToPtr(sub.ID),
		Status:         types.InvoiceStatusOpen,
		Currency:       p.Currency,
		DiscountAmount: decimal.Zero,
		PaidAmount:     decimal.Zero,
		Description: fmt.Sprintf("%s subscription %s to %s", p.Name,
			sub.CurrentPeriodStart.Format("2006-01-02"), sub.CurrentPeriodEnd.Format("2006-01-02")),
		DueDate:   now.AddDate(0, 0, dueDays),
		SentAt:    lo.ToPtr(now),
		Metadata:  types.Metadata{"plan_id": p.ID},
		Version:   1,
		BaseModel: types.GetDefaultBaseModel(ctx, sub.TenantID),
	}
	inv.LineItems = []*invoice.LineItem{{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LINE_ITEM),
		InvoiceID:   inv.ID,
		TenantID:    sub.TenantID,
		Type:        types.LineItemTypeSubscription,
		Description: fmt.Sprintf("%s (%s)", p.Name, sub.BillingCycle),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   p.Price,
		Discount:    decimal.Zero,
		TaxRate:     decimal.Zero,
		CreatedAt:   now,
	}}
	inv.Recalculate()
	return inv
}

func emitInvoiceEvent(ctx context.Context, events BillingEventService, eventType types.BillingEventType, inv *invoice.Invoice, reason string) {
	events.Emit(ctx, inv.TenantID, eventType, map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"status":         inv.Status,
		"currency":       inv.Currency,
		"total_amount":   inv.TotalAmount.String(),
		"paid_amount":    inv.PaidAmount.String(),
		"balance_amount": inv.Balance().String(),
		"reason":         reason,
	})
}
