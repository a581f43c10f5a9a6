package service

import (
	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetCache(),
		stores.TenantRepo,
		stores.PlanRepo,
		stores.SubscriptionRepo,
		stores.InvoiceRepo,
		stores.PaymentRepo,
		stores.UsageRepo,
		stores.BillingEventRepo,
		s.GetPublisher(),
	)
}

func oneLineInvoice(amount string) dto.CreateInvoiceRequest {
	return dto.CreateInvoiceRequest{
		Currency: "usd",
		LineItems: []dto.CreateLineItemRequest{{
			Type:        types.LineItemTypeService,
			Description: "Consultation",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString(amount),
		}},
	}
}

func cardPayment(invoiceID, amount string) dto.RecordPaymentRequest {
	return dto.RecordPaymentRequest{
		InvoiceID: &invoiceID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "usd",
		Method:    types.PaymentMethodTypeCard,
	}
}
