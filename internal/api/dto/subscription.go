package dto

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/shopspring/decimal"
)

type CreateSubscriptionRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	// BillingCycle defaults to the plan's cycle
	BillingCycle types.BillingCycle `json:"billing_cycle,omitempty"`
	// TrialDays overrides the plan's trial length when set
	TrialDays *int  `json:"trial_days,omitempty" validate:"omitempty,min=0,max=365"`
	AutoRenew *bool `json:"auto_renew,omitempty"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.BillingCycle != "" {
		return r.BillingCycle.Validate()
	}
	return nil
}

// UpdateSubscriptionRequest carries the whitelisted fields of a subscription
// update. Anything else in the body is ignored by the decoder.
type UpdateSubscriptionRequest struct {
	PlanID       *string                   `json:"plan_id,omitempty"`
	BillingCycle *types.BillingCycle       `json:"billing_cycle,omitempty"`
	AutoRenew    *bool                     `json:"auto_renew,omitempty"`
	Status       *types.SubscriptionStatus `json:"status,omitempty"`
	CancelReason *string                   `json:"cancel_reason,omitempty" validate:"omitempty,max=500"`
}

func (r *UpdateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.PlanID != nil && *r.PlanID == "" {
		return ierr.NewError("empty plan id").
			WithHint("Plan id must not be empty").
			Mark(ierr.ErrValidation)
	}
	if r.BillingCycle != nil {
		if err := r.BillingCycle.Validate(); err != nil {
			return err
		}
	}
	if r.Status != nil {
		return r.Status.Validate()
	}
	return nil
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (r *CancelSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type SubscriptionResponse struct {
	*subscription.Subscription
	Plan *plan.Plan `json:"plan,omitempty"`
}

// SubscriptionStatusResponse is the tenant facing billing summary
type SubscriptionStatusResponse struct {
	HasSubscription    bool                                 `json:"has_subscription"`
	SubscriptionID     string                               `json:"subscription_id,omitempty"`
	Status             types.SubscriptionStatus             `json:"status,omitempty"`
	PlanID             string                               `json:"plan_id,omitempty"`
	PlanName           string                               `json:"plan_name,omitempty"`
	PlanSlug           string                               `json:"plan_slug,omitempty"`
	BillingCycle       types.BillingCycle                   `json:"billing_cycle,omitempty"`
	AutoRenew          bool                                 `json:"auto_renew"`
	IsTrial            bool                                 `json:"is_trial"`
	TrialDaysLeft      int                                  `json:"trial_days_left"`
	DaysUntilRenewal   int                                  `json:"days_until_renewal"`
	CurrentPeriodStart *time.Time                           `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                           `json:"current_period_end,omitempty"`
	CancelledAt        *time.Time                           `json:"cancelled_at,omitempty"`
	Features           []string                             `json:"features"`
	Limits             types.UsageLimits                    `json:"limits"`
	Usage              map[types.MetricType]decimal.Decimal `json:"usage,omitempty"`
}

type FeatureAccessResponse struct {
	Feature string `json:"feature"`
	Allowed bool   `json:"allowed"`
	PlanID  string `json:"plan_id"`
}

// LifecycleSweepResponse counts the transitions applied by one sweep
type LifecycleSweepResponse struct {
	TenantsProcessed int `json:"tenants_processed"`
	Activated        int `json:"activated"`
	PastDue          int `json:"past_due"`
	Suspended        int `json:"suspended"`
	Renewed          int `json:"renewed"`
	Cancelled        int `json:"cancelled"`
	Failed           int `json:"failed"`
}

// Add accumulates another sweep result into r
func (r *LifecycleSweepResponse) Add(o *LifecycleSweepResponse) {
	r.TenantsProcessed += o.TenantsProcessed
	r.Activated += o.Activated
	r.PastDue += o.PastDue
	r.Suspended += o.Suspended
	r.Renewed += o.Renewed
	r.Cancelled += o.Cancelled
	r.Failed += o.Failed
}
