package invoice

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// DeriveStatus is the single place an invoice status follows from its amounts.
// It is pure and idempotent: the same inputs always give the same status.
func DeriveStatus(total, paid decimal.Decimal, dueDate time.Time, current types.InvoiceStatus, now time.Time) types.InvoiceStatus {
	if current.IsTerminal() {
		return current
	}

	balance := total.Sub(paid)
	switch {
	case paid.IsPositive() && !balance.IsPositive():
		return types.InvoiceStatusPaid
	case paid.IsPositive() && paid.LessThan(total):
		return types.InvoiceStatusPartiallyPaid
	case balance.IsPositive() && now.After(dueDate) && current != types.InvoiceStatusPaid:
		return types.InvoiceStatusOverdue
	}
	return current
}

// ApplyDerivedStatus re-derives the status and stamps paid_at exactly once
func (i *Invoice) ApplyDerivedStatus(now time.Time) bool {
	next := DeriveStatus(i.TotalAmount, i.PaidAmount, i.DueDate, i.Status, now)
	changed := next != i.Status
	i.Status = next
	if next == types.InvoiceStatusPaid && i.PaidAt == nil {
		i.PaidAt = &now
		changed = true
	}
	return changed
}
