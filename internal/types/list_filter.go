package types

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
)

// InvoiceFilter narrows invoice listings of one tenant
type InvoiceFilter struct {
	*QueryFilter
	Statuses       []InvoiceStatus `json:"statuses,omitempty" form:"status"`
	SubscriptionID string          `json:"subscription_id,omitempty" form:"subscription_id"`
	DueBefore      *time.Time      `json:"due_before,omitempty" form:"due_before" time_format:"2006-01-02T15:04:05Z07:00"`
}

func NewInvoiceFilter() *InvoiceFilter {
	return &InvoiceFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *InvoiceFilter) Validate() error {
	if f == nil {
		return nil
	}
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return validatePage(f.QueryFilter)
}

// PaymentFilter narrows payment listings of one tenant
type PaymentFilter struct {
	*QueryFilter
	Statuses  []PaymentStatus `json:"statuses,omitempty" form:"status"`
	InvoiceID string          `json:"invoice_id,omitempty" form:"invoice_id"`
}

func NewPaymentFilter() *PaymentFilter {
	return &PaymentFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *PaymentFilter) Validate() error {
	if f == nil {
		return nil
	}
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return validatePage(f.QueryFilter)
}

// UsageFilter narrows usage sample listings of one tenant
type UsageFilter struct {
	*QueryFilter
	MetricType  MetricType `json:"metric_type,omitempty" form:"metric_type"`
	PeriodStart *time.Time `json:"period_start,omitempty" form:"period_start" time_format:"2006-01-02T15:04:05Z07:00"`
	PeriodEnd   *time.Time `json:"period_end,omitempty" form:"period_end" time_format:"2006-01-02T15:04:05Z07:00"`
}

func NewUsageFilter() *UsageFilter {
	return &UsageFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *UsageFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.MetricType != "" {
		if err := f.MetricType.Validate(); err != nil {
			return err
		}
	}
	if f.PeriodStart != nil && f.PeriodEnd != nil && f.PeriodEnd.Before(*f.PeriodStart) {
		return ierr.NewError("period_end before period_start").
			WithHint("Period end must not be before period start").
			Mark(ierr.ErrValidation)
	}
	return validatePage(f.QueryFilter)
}

// BillingEventFilter narrows billing event listings of one tenant
type BillingEventFilter struct {
	*QueryFilter
	EventType BillingEventType `json:"event_type,omitempty" form:"event_type"`
	Processed *bool            `json:"processed,omitempty" form:"processed"`
}

func NewBillingEventFilter() *BillingEventFilter {
	return &BillingEventFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *BillingEventFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.EventType != "" {
		if err := f.EventType.Validate(); err != nil {
			return err
		}
	}
	return validatePage(f.QueryFilter)
}

func validatePage(f *QueryFilter) error {
	if f == nil {
		return nil
	}
	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > FILTER_MAX_LIMIT) {
		return ierr.NewError("invalid limit").
			WithHintf("Limit must be between 1 and %d", FILTER_MAX_LIMIT).
			Mark(ierr.ErrValidation)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return ierr.NewError("invalid offset").
			WithHint("Offset must not be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}
