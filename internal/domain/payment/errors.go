package payment

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// RefundRejection explains why amount cannot be refunded from p, or returns nil
func RefundRejection(p *Payment, amount decimal.Decimal) error {
	details := map[string]any{
		"payment_id":    p.ID,
		"status":        p.Status,
		"amount":        p.Amount.String(),
		"refund_amount": p.RefundAmount.String(),
		"requested":     amount.String(),
	}

	if !amount.IsPositive() {
		return ierr.NewError("refund amount must be positive").
			WithHint("Refund amount must be greater than zero").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if !lo.Contains(types.PaymentStatusesRefundable, p.Status) {
		return ierr.NewError("payment is not refundable").
			WithHintf("Payment in status %s cannot be refunded", p.Status).
			WithReportableDetails(details).
			Mark(ierr.ErrInvalidOperation)
	}
	if amount.GreaterThan(p.RefundableAmount()) {
		return ierr.NewError("refund exceeds payment").
			WithHintf("Refund of %s exceeds the refundable amount %s", amount.String(), p.RefundableAmount().String()).
			WithReportableDetails(details).
			Mark(ierr.ErrRefundExceedsPayment)
	}
	return nil
}

// TransitionRejection is returned when a compare-and-set status change finds
// the payment in a status outside change.From.
func TransitionRejection(p *Payment, change StatusChange) error {
	return ierr.NewError("invalid payment status transition").
		WithHintf("Payment in status %s cannot move to %s", p.Status, change.To).
		WithReportableDetails(map[string]any{
			"payment_id": p.ID,
			"from":       p.Status,
			"to":         change.To,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// ApplyStatusChange stamps the fields a transition to change.To carries
func (p *Payment) ApplyStatusChange(change StatusChange) {
	p.Status = change.To
	p.UpdatedAt = change.At
	if change.GatewayReference != nil {
		p.GatewayReference = change.GatewayReference
	}
	switch change.To {
	case types.PaymentStatusSucceeded:
		p.SucceededAt = lo.ToPtr(change.At)
	case types.PaymentStatusFailed:
		p.FailedAt = lo.ToPtr(change.At)
		p.FailureReason = change.FailureReason
	}
}

// ApplyRefund accumulates amount and derives the refund status
func (p *Payment) ApplyRefund(amount decimal.Decimal, reason string, at time.Time) {
	p.RefundAmount = p.RefundAmount.Add(amount)
	p.RefundReason = lo.ToPtr(reason)
	p.RefundedAt = lo.ToPtr(at)
	p.UpdatedAt = at
	if p.RefundAmount.GreaterThanOrEqual(p.Amount) {
		p.Status = types.PaymentStatusRefunded
	} else {
		p.Status = types.PaymentStatusPartiallyRefunded
	}
}
