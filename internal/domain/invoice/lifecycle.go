package invoice

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

// Send issues a draft invoice
func (i *Invoice) Send(now time.Time) error {
	if i.Status != types.InvoiceStatusDraft {
		return i.transitionError(types.InvoiceStatusOpen)
	}
	i.Status = types.InvoiceStatusOpen
	i.SentAt = &now
	i.UpdatedAt = now
	return nil
}

// Cancel voids an invoice nobody has paid towards
func (i *Invoice) Cancel(now time.Time) error {
	cancellable := []types.InvoiceStatus{
		types.InvoiceStatusDraft,
		types.InvoiceStatusOpen,
		types.InvoiceStatusOverdue,
		types.InvoiceStatusUncollectible,
	}
	if !lo.Contains(cancellable, i.Status) {
		return i.transitionError(types.InvoiceStatusCancelled)
	}
	if i.PaidAmount.IsPositive() {
		return ierr.NewError("invoice has payments").
			WithHint("An invoice with applied payments cannot be cancelled, write it off instead").
			WithReportableDetails(map[string]any{
				"invoice_id":  i.ID,
				"paid_amount": i.PaidAmount.String(),
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	i.Status = types.InvoiceStatusCancelled
	i.CancelledAt = &now
	i.UpdatedAt = now
	return nil
}

// WriteOff closes an issued invoice whose balance will not be collected
func (i *Invoice) WriteOff(now time.Time) error {
	allowed := []types.InvoiceStatus{
		types.InvoiceStatusOpen,
		types.InvoiceStatusPartiallyPaid,
		types.InvoiceStatusOverdue,
		types.InvoiceStatusUncollectible,
	}
	if !lo.Contains(allowed, i.Status) {
		return i.transitionError(types.InvoiceStatusWrittenOff)
	}
	i.Status = types.InvoiceStatusWrittenOff
	i.WrittenOffAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkUncollectible flags an issued invoice as doubtful. It still accepts payments.
func (i *Invoice) MarkUncollectible(now time.Time) error {
	allowed := []types.InvoiceStatus{
		types.InvoiceStatusOpen,
		types.InvoiceStatusPartiallyPaid,
		types.InvoiceStatusOverdue,
	}
	if !lo.Contains(allowed, i.Status) {
		return i.transitionError(types.InvoiceStatusUncollectible)
	}
	i.Status = types.InvoiceStatusUncollectible
	i.UpdatedAt = now
	return nil
}

func (i *Invoice) transitionError(to types.InvoiceStatus) error {
	marker := ierr.ErrInvalidOperation
	if i.Status.IsTerminal() {
		marker = ierr.ErrInvoiceClosed
	}
	return ierr.NewError("invalid invoice status transition").
		WithHintf("Invoice in status %s cannot move to %s", i.Status, to).
		WithReportableDetails(map[string]any{
			"invoice_id": i.ID,
			"from":       i.Status,
			"to":         to,
		}).
		Mark(marker)
}
