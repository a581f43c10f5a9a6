package types

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCanceled          PaymentStatus = "canceled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusCanceled,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Invalid payment status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentStatusesRefundable lists statuses a refund may be issued from
var PaymentStatusesRefundable = []PaymentStatus{
	PaymentStatusSucceeded,
	PaymentStatusPartiallyRefunded,
}

// PaymentStatusesOpen lists statuses that have not settled yet
var PaymentStatusesOpen = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
}

// PaymentMethodType represents the type of payment method
type PaymentMethodType string

const (
	PaymentMethodTypeCard         PaymentMethodType = "card"
	PaymentMethodTypeBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodTypeCash         PaymentMethodType = "cash"
	PaymentMethodTypeInsurance    PaymentMethodType = "insurance"
	PaymentMethodTypeOffline      PaymentMethodType = "offline"
)

func (s PaymentMethodType) String() string {
	return string(s)
}

func (s PaymentMethodType) Validate() error {
	allowed := []PaymentMethodType{
		PaymentMethodTypeCard,
		PaymentMethodTypeBankTransfer,
		PaymentMethodTypeCash,
		PaymentMethodTypeInsurance,
		PaymentMethodTypeOffline,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment method type").
			WithHint("Invalid payment method type").
			WithReportableDetails(map[string]any{
				"method":          s,
				"allowed_methods": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
