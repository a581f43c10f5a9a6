package subscription

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription binds one tenant to one plan. There is at most one row per
// tenant and it is never deleted, cancellation is a status.
type Subscription struct {
	ID                 string                   `db:"id" json:"id"`
	PlanID             string                   `db:"plan_id" json:"plan_id"`
	Status             types.SubscriptionStatus `db:"status" json:"status"`
	BillingCycle       types.BillingCycle       `db:"billing_cycle" json:"billing_cycle"`
	CurrentPeriodStart time.Time                `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `db:"current_period_end" json:"current_period_end"`
	TrialEnd           *time.Time               `db:"trial_end" json:"trial_end,omitempty"`
	CancelledAt        *time.Time               `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason       *string                  `db:"cancel_reason" json:"cancel_reason,omitempty"`
	AutoRenew          bool                     `db:"auto_renew" json:"auto_renew"`
	NextBillingAt      *time.Time               `db:"next_billing_at" json:"next_billing_at,omitempty"`
	PastDueSince       *time.Time               `db:"past_due_since" json:"past_due_since,omitempty"`
	PreviousPlanID     *string                  `db:"previous_plan_id" json:"previous_plan_id,omitempty"`
	PlanChangedAt      *time.Time               `db:"plan_changed_at" json:"plan_changed_at,omitempty"`
	UsageSnapshot      UsageSnapshot            `db:"usage_snapshot" json:"usage_snapshot"`
	Version            int                      `db:"version" json:"version"`
	types.BaseModel
}

// UsageSnapshot holds the last aggregated usage per metric for the current period
type UsageSnapshot map[types.MetricType]decimal.Decimal

func (u *UsageSnapshot) Scan(value interface{}) error {
	result := make(UsageSnapshot)
	if value == nil {
		*u = result
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal usage snapshot: %v", value)
	}

	err := json.Unmarshal(bytes, &result)
	*u = result
	return err
}

func (u UsageSnapshot) Value() (driver.Value, error) {
	if u == nil {
		return json.Marshal(make(UsageSnapshot))
	}
	return json.Marshal(u)
}

// LimitsPlanID returns the plan whose limits govern the current period.
// A plan change only applies to periods that start after it, so a period that
// was already running keeps the previous plan's caps until renewal.
func (s *Subscription) LimitsPlanID() string {
	if s.PreviousPlanID != nil && s.PlanChangedAt != nil && s.PlanChangedAt.After(s.CurrentPeriodStart) {
		return *s.PreviousPlanID
	}
	return s.PlanID
}

// ChangePlan switches the plan, remembering the plan in effect at period start
func (s *Subscription) ChangePlan(planID string, now time.Time) {
	if planID == s.PlanID {
		return
	}
	// Only the first change within a period records the previous plan
	if s.PlanChangedAt == nil || !s.PlanChangedAt.After(s.CurrentPeriodStart) {
		prev := s.PlanID
		s.PreviousPlanID = &prev
	}
	s.PlanID = planID
	s.PlanChangedAt = &now
}

// Renew rolls the subscription into its next billing period
func (s *Subscription) Renew() error {
	start := s.CurrentPeriodEnd
	end, err := types.NextBillingDate(start, s.BillingCycle)
	if err != nil {
		return err
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.NextBillingAt = &end
	s.UsageSnapshot = make(UsageSnapshot)
	return nil
}

// DaysUntilRenewal is zero for cancelled or already expired periods
func (s *Subscription) DaysUntilRenewal(now time.Time) int {
	if s.Status == types.SubscriptionStatusCancelled {
		return 0
	}
	return types.DaysUntil(now, s.CurrentPeriodEnd)
}

func (s *Subscription) TrialDaysLeft(now time.Time) int {
	if s.Status != types.SubscriptionStatusTrial || s.TrialEnd == nil {
		return 0
	}
	return types.DaysUntil(now, *s.TrialEnd)
}
