package dto

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/usage"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/shopspring/decimal"
)

type RecordUsageRequest struct {
	SubscriptionID *string          `json:"subscription_id,omitempty"`
	MetricType     types.MetricType `json:"metric_type" validate:"required"`
	Value          decimal.Decimal  `json:"value" swaggertype:"string"`
	Unit           string           `json:"unit" validate:"max=50"`
	// PeriodStart and PeriodEnd default to the subscription's current period
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.MetricType.Validate(); err != nil {
		return err
	}
	if err := requireNonNegative("value", r.Value); err != nil {
		return err
	}
	if (r.PeriodStart == nil) != (r.PeriodEnd == nil) {
		return ierr.NewError("incomplete usage period").
			WithHint("Provide both period_start and period_end, or neither").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type UsageResponse struct {
	*usage.UsageMetric
	// LimitExceeded reports whether the period total is above the plan cap
	LimitExceeded bool `json:"limit_exceeded"`
}

type ListUsageResponse = types.ListResponse[*usage.UsageMetric]

// UsageLimitResponse answers whether a tenant is within a metric's limit
type UsageLimitResponse struct {
	MetricType  types.MetricType `json:"metric_type"`
	Usage       decimal.Decimal  `json:"usage" swaggertype:"string"`
	Limit       int64            `json:"limit"`
	Unlimited   bool             `json:"unlimited"`
	Remaining   *decimal.Decimal `json:"remaining,omitempty" swaggertype:"string"`
	Percentage  decimal.Decimal  `json:"percentage" swaggertype:"string"`
	Exceeded    bool             `json:"exceeded"`
	PlanID      string           `json:"plan_id"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
}
