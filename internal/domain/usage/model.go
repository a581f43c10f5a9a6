package usage

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

// UsageMetric is one write-once usage sample
type UsageMetric struct {
	ID             string           `db:"id" json:"id"`
	TenantID       string           `db:"tenant_id" json:"tenant_id"`
	SubscriptionID *string          `db:"subscription_id" json:"subscription_id,omitempty"`
	MetricType     types.MetricType `db:"metric_type" json:"metric_type"`
	Value          decimal.Decimal  `db:"metric_value" json:"value" swaggertype:"string"`
	Unit           string           `db:"unit" json:"unit"`
	PeriodStart    time.Time        `db:"period_start" json:"period_start"`
	PeriodEnd      time.Time        `db:"period_end" json:"period_end"`
	RecordedAt     time.Time        `db:"recorded_at" json:"recorded_at"`
	CreatedBy      string           `db:"created_by" json:"created_by"`
}

func (m *UsageMetric) Validate() error {
	if err := m.MetricType.Validate(); err != nil {
		return err
	}
	if m.Value.IsNegative() {
		return ierr.NewError("negative usage value").
			WithHint("Usage value must not be negative").
			WithReportableDetails(map[string]any{"value": m.Value.String()}).
			Mark(ierr.ErrValidation)
	}
	if !m.PeriodEnd.After(m.PeriodStart) {
		return ierr.NewError("invalid usage period").
			WithHint("Usage period end must be after its start").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// LimitExceededDedupKey identifies the single overage event allowed per
// tenant, metric and billing period.
func LimitExceededDedupKey(metric types.MetricType, periodStart time.Time) string {
	return string(types.BillingEventUsageLimitExceeded) + ":" + string(metric) + ":" + periodStart.UTC().Format(time.RFC3339)
}
