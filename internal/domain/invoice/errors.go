package invoice

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// PaymentRejection explains why an allocation of amount in currency cannot be
// applied to an invoice in the given state. It returns nil when the
// allocation is acceptable.
func PaymentRejection(id string, status types.InvoiceStatus, invoiceCurrency string, balance, amount decimal.Decimal, currency string) error {
	details := map[string]any{
		"invoice_id": id,
		"status":     status,
		"amount":     amount.String(),
		"balance":    balance.String(),
	}

	switch {
	case !status.AcceptsPayment():
		return ierr.NewError("invoice is closed").
			WithHintf("Invoice in status %s cannot receive payments", status).
			WithReportableDetails(details).
			Mark(ierr.ErrInvoiceClosed)
	case !amount.IsPositive():
		return ierr.NewError("allocation amount must be positive").
			WithHint("Allocation amount must be greater than zero").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	case invoiceCurrency != currency:
		return ierr.NewError("currency mismatch").
			WithHintf("Invoice currency %s does not match payment currency %s", invoiceCurrency, currency).
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	case amount.GreaterThan(balance):
		return ierr.NewError("allocation exceeds invoice balance").
			WithHintf("Allocation %s exceeds outstanding balance %s", amount.String(), balance.String()).
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
