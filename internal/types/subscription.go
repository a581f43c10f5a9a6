package types

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

// BillingCycle is how often a plan is billed
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func (b BillingCycle) String() string {
	return string(b)
}

func (b BillingCycle) Validate() error {
	allowed := []BillingCycle{BillingCycleMonthly, BillingCycleYearly}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing cycle").
			WithHint("Billing cycle must be monthly or yearly").
			WithReportableDetails(map[string]any{
				"billing_cycle":  b,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionStatus is the lifecycle status of a tenant subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCancelled,
		SubscriptionStatusSuspended,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsLive reports whether the subscription still binds the tenant to a plan
func (s SubscriptionStatus) IsLive() bool {
	return s != SubscriptionStatusCancelled
}

// IsEntitled reports whether the tenant may use its plan's features
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubscriptionStatusTrial || s == SubscriptionStatusActive || s == SubscriptionStatusPastDue
}
