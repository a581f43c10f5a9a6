package service

import (
	"sync"
	"testing"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  PaymentService
	invoices InvoiceService
	testData struct {
		tenant  *tenant.Tenant
		other   *tenant.Tenant
		invoice *dto.InvoiceResponse
	}
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewPaymentService(params)
	s.invoices = NewInvoiceService(params)
	s.setupTestData()
}

func (s *PaymentServiceSuite) setupTestData() {
	s.testData.tenant = s.CreateTenant("northside", nil)
	s.testData.other = s.CreateTenant("riverside", nil)

	// qty 2 x 50.00 with 10% tax
	req := oneLineInvoice("50.00")
	req.LineItems[0].Quantity = decimal.NewFromInt(2)
	req.LineItems[0].TaxRate = decimal.RequireFromString("0.10")

	inv, err := s.invoices.CreateInvoice(s.GetContext(), s.testData.tenant.ID, req)
	s.Require().NoError(err)
	s.testData.invoice = inv
}

func (s *PaymentServiceSuite) pay(amount string) *dto.PaymentResponse {
	p, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(s.testData.invoice.ID, amount))
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, p.Status)

	p, err = s.service.MarkSucceeded(s.GetContext(), s.testData.tenant.ID, p.ID, dto.MarkPaymentSucceededRequest{})
	s.Require().NoError(err)
	return p
}

func (s *PaymentServiceSuite) currentInvoice() *dto.InvoiceResponse {
	inv, err := s.invoices.GetInvoice(s.GetContext(), s.testData.tenant.ID, s.testData.invoice.ID)
	s.Require().NoError(err)
	return inv
}

func (s *PaymentServiceSuite) TestFullPaymentSettlesInvoice() {
	p := s.pay("110.00")
	s.Equal(types.PaymentStatusSucceeded, p.Status)
	s.NotNil(p.SucceededAt)

	inv := s.currentInvoice()
	s.True(inv.PaidAmount.Equal(decimal.RequireFromString("110.00")))
	s.True(inv.BalanceAmount.IsZero())
	s.Equal(types.InvoiceStatusPaid, inv.Status)
	s.NotNil(inv.PaidAt)
}

func (s *PaymentServiceSuite) TestSequentialPartialPayments() {
	s.Equal(types.InvoiceStatusDraft, s.currentInvoice().Status)

	s.pay("40.00")
	inv := s.currentInvoice()
	s.Equal(types.InvoiceStatusPartiallyPaid, inv.Status)
	s.True(inv.BalanceAmount.Equal(decimal.RequireFromString("70.00")))

	s.pay("70.00")
	inv = s.currentInvoice()
	s.Equal(types.InvoiceStatusPaid, inv.Status)
	s.True(inv.PaidAmount.Equal(decimal.RequireFromString("110.00")))
}

func (s *PaymentServiceSuite) TestRefunds() {
	p := s.pay("110.00")

	refunded, err := s.service.RefundPayment(s.GetContext(), s.testData.tenant.ID, p.ID, dto.RefundPaymentRequest{
		Amount: decimal.RequireFromString("30.00"),
		Reason: "duplicate visit",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPartiallyRefunded, refunded.Status)
	s.True(refunded.RefundAmount.Equal(decimal.RequireFromString("30.00")))

	_, err = s.service.RefundPayment(s.GetContext(), s.testData.tenant.ID, p.ID, dto.RefundPaymentRequest{
		Amount: decimal.RequireFromString("90.00"),
		Reason: "too much",
	})
	s.Require().Error(err)
	s.True(ierr.IsRefundExceedsPayment(err))

	refunded, err = s.service.RefundPayment(s.GetContext(), s.testData.tenant.ID, p.ID, dto.RefundPaymentRequest{
		Amount: decimal.RequireFromString("80.00"),
		Reason: "remaining",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusRefunded, refunded.Status)
	s.True(refunded.RefundAmount.Equal(refunded.Amount))

	// the invoice is reversed by accounting, never by the refund
	inv := s.currentInvoice()
	s.Equal(types.InvoiceStatusPaid, inv.Status)
	s.True(inv.PaidAmount.Equal(decimal.RequireFromString("110.00")))

	events := s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventPaymentRefunded)
	s.Len(events, 2)
}

func (s *PaymentServiceSuite) TestRefundRequiresSettledPayment() {
	p, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(s.testData.invoice.ID, "10.00"))
	s.Require().NoError(err)

	_, err = s.service.RefundPayment(s.GetContext(), s.testData.tenant.ID, p.ID, dto.RefundPaymentRequest{
		Amount: decimal.RequireFromString("5.00"),
		Reason: "not yet settled",
	})
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PaymentServiceSuite) TestConcurrentPaymentsNeverLoseUpdates() {
	const n = 20
	req := oneLineInvoice("5.00")
	req.LineItems[0].Quantity = decimal.NewFromInt(n)
	inv, err := s.invoices.CreateInvoice(s.GetContext(), s.testData.tenant.ID, req)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(inv.ID, "5.00"))
			if err != nil {
				errs <- err
				return
			}
			if _, err := s.service.MarkSucceeded(s.GetContext(), s.testData.tenant.ID, p.ID, dto.MarkPaymentSucceededRequest{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	got, err := s.invoices.GetInvoice(s.GetContext(), s.testData.tenant.ID, inv.ID)
	s.Require().NoError(err)
	s.True(got.PaidAmount.Equal(decimal.NewFromInt(5*n)), "paid %s", got.PaidAmount)
	s.True(got.BalanceAmount.IsZero())
	s.Equal(types.InvoiceStatusPaid, got.Status)
}

func (s *PaymentServiceSuite) TestAllocationRules() {
	tests := []struct {
		name  string
		req   dto.RecordPaymentRequest
		check func(error) bool
	}{
		{
			name:  "exceeds balance",
			req:   cardPayment(s.testData.invoice.ID, "200.00"),
			check: ierr.IsValidation,
		},
		{
			name: "currency mismatch",
			req: func() dto.RecordPaymentRequest {
				r := cardPayment(s.testData.invoice.ID, "10.00")
				r.Currency = "eur"
				return r
			}(),
			check: ierr.IsValidation,
		},
		{
			name: "allocations above amount",
			req: dto.RecordPaymentRequest{
				Amount:   decimal.RequireFromString("10.00"),
				Currency: "usd",
				Method:   types.PaymentMethodTypeCash,
				Allocations: []dto.AllocationRequest{
					{InvoiceID: s.testData.invoice.ID, Amount: decimal.RequireFromString("20.00")},
				},
			},
			check: ierr.IsValidation,
		},
		{
			name: "negative fee",
			req: func() dto.RecordPaymentRequest {
				r := cardPayment(s.testData.invoice.ID, "10.00")
				r.Fee = decimal.RequireFromString("-1")
				return r
			}(),
			check: ierr.IsValidation,
		},
		{
			name:  "unknown invoice",
			req:   cardPayment("inv_missing", "10.00"),
			check: ierr.IsNotFound,
		},
		{
			name: "linked invoice outside allocations",
			req: func() dto.RecordPaymentRequest {
				r := cardPayment(s.testData.invoice.ID, "10.00")
				r.Allocations = []dto.AllocationRequest{
					{InvoiceID: "inv_other", Amount: decimal.RequireFromString("10.00")},
				}
				return r
			}(),
			check: ierr.IsValidation,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, tt.req)
			s.Require().Error(err)
			s.True(tt.check(err), "unexpected error %v", err)
		})
	}
}

func (s *PaymentServiceSuite) TestClosedInvoiceRejectsPayment() {
	_, err := s.invoices.CancelInvoice(s.GetContext(), s.testData.tenant.ID, s.testData.invoice.ID)
	s.Require().NoError(err)

	_, err = s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(s.testData.invoice.ID, "10.00"))
	s.True(ierr.IsInvoiceClosed(err))
}

func (s *PaymentServiceSuite) TestInvoiceClosedBetweenRecordAndSettle() {
	p, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(s.testData.invoice.ID, "10.00"))
	s.Require().NoError(err)

	_, err = s.invoices.CancelInvoice(s.GetContext(), s.testData.tenant.ID, s.testData.invoice.ID)
	s.Require().NoError(err)

	_, err = s.service.MarkSucceeded(s.GetContext(), s.testData.tenant.ID, p.ID, dto.MarkPaymentSucceededRequest{})
	s.True(ierr.IsInvoiceClosed(err))
	s.True(s.currentInvoice().PaidAmount.IsZero())
}

func (s *PaymentServiceSuite) TestTenantIsolation() {
	_, err := s.service.RecordPayment(s.GetContext(), s.testData.other.ID, cardPayment(s.testData.invoice.ID, "10.00"))
	s.True(ierr.IsNotFound(err))

	p := s.pay("10.00")
	_, err = s.service.GetPayment(s.GetContext(), s.testData.other.ID, p.ID)
	s.True(ierr.IsNotFound(err))

	list, err := s.service.ListPayments(s.GetContext(), s.testData.other.ID, nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}

func (s *PaymentServiceSuite) TestStatusTransitions() {
	p, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(s.testData.invoice.ID, "10.00"))
	s.Require().NoError(err)

	p, err = s.service.MarkProcessing(s.GetContext(), s.testData.tenant.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusProcessing, p.Status)

	p, err = s.service.MarkFailed(s.GetContext(), s.testData.tenant.ID, p.ID, dto.MarkPaymentFailedRequest{
		Reason:           "card declined",
		GatewayReference: lo.ToPtr("gw_123"),
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, p.Status)
	s.Equal("card declined", lo.FromPtr(p.FailureReason))
	s.Equal("gw_123", lo.FromPtr(p.GatewayReference))

	_, err = s.service.MarkSucceeded(s.GetContext(), s.testData.tenant.ID, p.ID, dto.MarkPaymentSucceededRequest{})
	s.True(ierr.IsInvalidOperation(err))
	s.True(s.currentInvoice().PaidAmount.IsZero())

	_, err = s.service.CancelPayment(s.GetContext(), s.testData.tenant.ID, p.ID)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PaymentServiceSuite) TestListPaymentsByInvoice() {
	s.pay("10.00")
	s.pay("20.00")

	list, err := s.service.ListPayments(s.GetContext(), s.testData.tenant.ID, &types.PaymentFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		InvoiceID:   s.testData.invoice.ID,
		Statuses:    []types.PaymentStatus{types.PaymentStatusSucceeded},
	})
	s.Require().NoError(err)
	s.Len(list.Items, 2)
	s.Equal(2, list.Pagination.Total)
}

func (s *PaymentServiceSuite) TestPaymentRecoversPastDueSubscription() {
	p := s.CreatePlan("basic", "100.00", 0, nil)
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	subs := NewSubscriptionService(params)

	sub, err := subs.CreateSubscription(s.GetContext(), s.testData.tenant.ID, dto.CreateSubscriptionRequest{PlanID: p.ID})
	s.Require().NoError(err)
	_, err = subs.RecordChargeFailure(s.GetContext(), s.testData.tenant.ID, "card expired")
	s.Require().NoError(err)

	req := oneLineInvoice("100.00")
	req.SubscriptionID = lo.ToPtr(sub.ID)
	inv, err := s.invoices.CreateInvoice(s.GetContext(), s.testData.tenant.ID, req)
	s.Require().NoError(err)

	rec, err := s.service.RecordPayment(s.GetContext(), s.testData.tenant.ID, cardPayment(inv.ID, "100.00"))
	s.Require().NoError(err)
	_, err = s.service.MarkSucceeded(s.GetContext(), s.testData.tenant.ID, rec.ID, dto.MarkPaymentSucceededRequest{})
	s.Require().NoError(err)

	current, err := subs.GetCurrentSubscription(s.GetContext(), s.testData.tenant.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, current.Status)
	s.Nil(current.PastDueSince)
}

func (s *PaymentServiceSuite) TestEmitsPaymentEvents() {
	s.pay("10.00")

	ctx := s.GetContext()
	tenantID := s.testData.tenant.ID
	s.Len(s.GetBillingEvents().ByType(ctx, tenantID, types.BillingEventPaymentRecorded), 1)
	s.Len(s.GetBillingEvents().ByType(ctx, tenantID, types.BillingEventPaymentUpdated), 1)
	s.Len(s.GetBillingEvents().ByType(ctx, tenantID, types.BillingEventInvoiceUpdated), 1)
	s.Empty(s.GetBillingEvents().ByType(ctx, s.testData.other.ID, types.BillingEventPaymentRecorded))
}
