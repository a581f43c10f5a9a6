package payment

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

func (p *Payment) Validate() error {
	if !p.Amount.IsPositive() {
		return ierr.NewError("payment amount must be positive").
			WithHint("Payment amount must be greater than zero").
			WithReportableDetails(map[string]any{"amount": p.Amount.String()}).
			Mark(ierr.ErrValidation)
	}
	if p.Fee.IsNegative() || p.Fee.GreaterThan(p.Amount) {
		return ierr.NewError("invalid payment fee").
			WithHint("Processing fee must be between zero and the payment amount").
			WithReportableDetails(map[string]any{
				"amount": p.Amount.String(),
				"fee":    p.Fee.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if !types.ValidateCurrencyCode(p.Currency) {
		return ierr.NewError("invalid currency").
			WithHintf("Invalid currency code %q", p.Currency).
			Mark(ierr.ErrValidation)
	}
	if err := p.Method.Validate(); err != nil {
		return err
	}
	if err := p.validateInvoiceLink(); err != nil {
		return err
	}
	return ValidateAllocations(p.Amount, p.Allocations)
}

// validateInvoiceLink requires the linked invoice to be one of the allocation
// targets when explicit allocations are given
func (p *Payment) validateInvoiceLink() error {
	if p.InvoiceID == nil || len(p.Allocations) == 0 {
		return nil
	}
	for _, a := range p.Allocations {
		if a.InvoiceID == *p.InvoiceID {
			return nil
		}
	}
	return ierr.NewError("linked invoice not allocated").
		WithHint("The payment invoice must be one of its allocations").
		WithReportableDetails(map[string]any{"invoice_id": *p.InvoiceID}).
		Mark(ierr.ErrValidation)
}

// ValidateAllocations checks each allocation is non-negative, targets an
// invoice at most once and that together they do not exceed the payment amount.
func ValidateAllocations(amount decimal.Decimal, allocations []*Allocation) error {
	total := decimal.Zero
	seen := make(map[string]struct{}, len(allocations))
	for _, a := range allocations {
		if a.InvoiceID == "" {
			return ierr.NewError("allocation without invoice").
				WithHint("Every allocation needs an invoice id").
				Mark(ierr.ErrValidation)
		}
		if a.Amount.IsNegative() {
			return ierr.NewError("negative allocation").
				WithHint("Allocation amounts must not be negative").
				WithReportableDetails(map[string]any{
					"invoice_id": a.InvoiceID,
					"amount":     a.Amount.String(),
				}).
				Mark(ierr.ErrValidation)
		}
		if _, ok := seen[a.InvoiceID]; ok {
			return ierr.NewError("duplicate allocation").
				WithHintf("Invoice %s is allocated more than once", a.InvoiceID).
				Mark(ierr.ErrValidation)
		}
		seen[a.InvoiceID] = struct{}{}
		total = total.Add(a.Amount)
	}

	if total.GreaterThan(amount) {
		return ierr.NewError("allocations exceed payment amount").
			WithHint("Allocated total must not exceed the payment amount").
			WithReportableDetails(map[string]any{
				"amount":    amount.String(),
				"allocated": total.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
