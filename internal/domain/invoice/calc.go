package invoice

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// ComputeLine returns the rounded line total and line tax. Each line is
// rounded to the currency's minor unit before it is summed into the invoice.
//
//	lineTotal = round(unitPrice * quantity - discount)
//	lineTax   = round(lineTotal * taxRate)
func ComputeLine(quantity, unitPrice, discount, taxRate decimal.Decimal, currency string) (lineTotal, lineTax decimal.Decimal) {
	lineTotal = types.RoundToCurrencyPrecision(unitPrice.Mul(quantity).Sub(discount), currency)
	lineTax = types.RoundToCurrencyPrecision(lineTotal.Mul(taxRate), currency)
	return lineTotal, lineTax
}

// Recalculate recomputes every line and the invoice totals from scratch
func (i *Invoice) Recalculate() {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for idx, item := range i.LineItems {
		item.Position = idx
		item.LineTotal, item.LineTax = ComputeLine(item.Quantity, item.UnitPrice, item.Discount, item.TaxRate, i.Currency)
		subtotal = subtotal.Add(item.LineTotal)
		tax = tax.Add(item.LineTax)
	}

	i.Subtotal = subtotal
	i.TaxAmount = tax
	i.DiscountAmount = types.RoundToCurrencyPrecision(i.DiscountAmount, i.Currency)
	i.TotalAmount = i.Subtotal.Add(i.TaxAmount).Sub(i.DiscountAmount)
}

// ValidateLineItem checks the raw inputs of a line before computation
func ValidateLineItem(item *LineItem) error {
	if err := item.Type.Validate(); err != nil {
		return err
	}
	if !item.Quantity.IsPositive() {
		return lineError("quantity must be positive", item)
	}
	if item.UnitPrice.IsNegative() {
		return lineError("unit price must not be negative", item)
	}
	if item.Discount.IsNegative() {
		return lineError("discount must not be negative", item)
	}
	if item.Discount.GreaterThan(item.UnitPrice.Mul(item.Quantity)) {
		return lineError("discount must not exceed the line amount", item)
	}
	if item.TaxRate.IsNegative() || item.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return lineError("tax rate must be a fraction between 0 and 1", item)
	}
	return nil
}

// Validate checks the totals invariants that must hold after every mutation
func (i *Invoice) Validate() error {
	if len(i.LineItems) == 0 {
		return ierr.NewError("invoice has no line items").
			WithHint("An invoice needs at least one line item").
			Mark(ierr.ErrValidation)
	}
	if i.DiscountAmount.IsNegative() {
		return ierr.NewError("negative invoice discount").
			WithHint("Discount amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if i.TotalAmount.IsNegative() {
		return ierr.NewError("negative invoice total").
			WithHint("Discount must not exceed subtotal plus tax").
			WithReportableDetails(map[string]any{
				"subtotal":        i.Subtotal.String(),
				"tax_amount":      i.TaxAmount.String(),
				"discount_amount": i.DiscountAmount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if i.PaidAmount.IsNegative() || i.PaidAmount.GreaterThan(i.TotalAmount) {
		return ierr.NewError("paid amount out of range").
			WithHint("Paid amount must be between zero and the invoice total").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func lineError(msg string, item *LineItem) error {
	return ierr.NewError(msg).
		WithHintf("Line item %q: %s", item.Description, msg).
		WithReportableDetails(map[string]any{
			"description": item.Description,
			"quantity":    item.Quantity.String(),
			"unit_price":  item.UnitPrice.String(),
			"discount":    item.Discount.String(),
			"tax_rate":    item.TaxRate.String(),
		}).
		Mark(ierr.ErrValidation)
}
