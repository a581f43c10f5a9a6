package types

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
	InvoiceStatusWrittenOff    InvoiceStatus = "written_off"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusOpen,
		InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
		InvoiceStatusWrittenOff,
		InvoiceStatusUncollectible,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invalid invoice status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports statuses whose totals are frozen forever
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusWrittenOff
}

// AcceptsPayment reports statuses an allocation may be applied to
func (s InvoiceStatus) AcceptsPayment() bool {
	return lo.Contains(InvoiceStatusesAcceptingPayment, s)
}

// InvoiceStatusesAcceptingPayment lists statuses whose paid amount may still grow
var InvoiceStatusesAcceptingPayment = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusOpen,
	InvoiceStatusPartiallyPaid,
	InvoiceStatusOverdue,
	InvoiceStatusUncollectible,
}

type LineItemType string

const (
	LineItemTypeSubscription LineItemType = "subscription"
	LineItemTypeUsage        LineItemType = "usage"
	LineItemTypeService      LineItemType = "service"
	LineItemTypeAdjustment   LineItemType = "adjustment"
	LineItemTypeOther        LineItemType = "other"
)

func (t LineItemType) Validate() error {
	allowed := []LineItemType{
		LineItemTypeSubscription,
		LineItemTypeUsage,
		LineItemTypeService,
		LineItemTypeAdjustment,
		LineItemTypeOther,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid line item type").
			WithHint("Invalid line item type").
			WithReportableDetails(map[string]any{
				"type":          t,
				"allowed_types": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
