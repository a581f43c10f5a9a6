package types

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

type BillingEventType string

const (
	BillingEventSubscriptionCreated BillingEventType = "subscription.created"
	BillingEventSubscriptionUpdated BillingEventType = "subscription.updated"
	BillingEventInvoiceCreated      BillingEventType = "invoice.created"
	BillingEventInvoiceUpdated      BillingEventType = "invoice.updated"
	BillingEventPaymentRecorded     BillingEventType = "payment.recorded"
	BillingEventPaymentUpdated      BillingEventType = "payment.updated"
	BillingEventPaymentRefunded     BillingEventType = "payment.refunded"
	BillingEventUsageLimitExceeded  BillingEventType = "usage_limit_exceeded"
)

var BillingEventTypes = []BillingEventType{
	BillingEventSubscriptionCreated,
	BillingEventSubscriptionUpdated,
	BillingEventInvoiceCreated,
	BillingEventInvoiceUpdated,
	BillingEventPaymentRecorded,
	BillingEventPaymentUpdated,
	BillingEventPaymentRefunded,
	BillingEventUsageLimitExceeded,
}

func (t BillingEventType) String() string {
	return string(t)
}

func (t BillingEventType) Validate() error {
	if !lo.Contains(BillingEventTypes, t) {
		return ierr.NewError("invalid billing event type").
			WithHint("Invalid billing event type").
			WithReportableDetails(map[string]any{
				"event_type":    t,
				"allowed_types": BillingEventTypes,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TopicBillingEvents is the pubsub topic every appended event is published to
const TopicBillingEvents = "billing_events"
