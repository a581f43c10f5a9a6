package subscription

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

var transitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusTrial: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusCancelled,
	},
	types.SubscriptionStatusActive: {
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusCancelled,
	},
	types.SubscriptionStatusPastDue: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusSuspended,
		types.SubscriptionStatusCancelled,
	},
	types.SubscriptionStatusSuspended: {
		types.SubscriptionStatusCancelled,
	},
	types.SubscriptionStatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal lifecycle move
func CanTransition(from, to types.SubscriptionStatus) bool {
	return lo.Contains(transitions[from], to)
}

// TransitionTo moves the subscription to status, stamping the bookkeeping
// fields that belong to the target state.
func (s *Subscription) TransitionTo(status types.SubscriptionStatus, now time.Time, reason string) error {
	if err := status.Validate(); err != nil {
		return err
	}
	if !CanTransition(s.Status, status) {
		return ierr.NewError("invalid subscription status transition").
			WithHintf("Subscription cannot move from %s to %s", s.Status, status).
			WithReportableDetails(map[string]any{
				"from": s.Status,
				"to":   status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	switch status {
	case types.SubscriptionStatusCancelled:
		s.CancelledAt = &now
		s.AutoRenew = false
		s.NextBillingAt = nil
		if reason != "" {
			s.CancelReason = &reason
		}
	case types.SubscriptionStatusPastDue:
		s.PastDueSince = &now
	case types.SubscriptionStatusActive:
		s.PastDueSince = nil
	}

	s.Status = status
	return nil
}

// LifecycleAction is what the periodic sweep must do with a subscription
type LifecycleAction string

const (
	ActionNone          LifecycleAction = ""
	ActionActivateTrial LifecycleAction = "activate_trial"
	ActionTrialPastDue  LifecycleAction = "trial_past_due"
	ActionSuspend       LifecycleAction = "suspend"
	ActionRenew         LifecycleAction = "renew"
	ActionExpire        LifecycleAction = "expire"
)

// NextLifecycleAction decides the time driven transition due at now, if any
func NextLifecycleAction(s *Subscription, now time.Time, grace time.Duration, hasPaymentMethod bool) LifecycleAction {
	switch s.Status {
	case types.SubscriptionStatusTrial:
		if s.TrialEnd == nil || now.Before(*s.TrialEnd) {
			return ActionNone
		}
		if s.AutoRenew && hasPaymentMethod {
			return ActionActivateTrial
		}
		return ActionTrialPastDue
	case types.SubscriptionStatusPastDue:
		if s.PastDueSince != nil && now.Sub(*s.PastDueSince) > grace {
			return ActionSuspend
		}
	case types.SubscriptionStatusActive:
		if now.Before(s.CurrentPeriodEnd) {
			return ActionNone
		}
		if s.AutoRenew {
			return ActionRenew
		}
		return ActionExpire
	}
	return ActionNone
}
