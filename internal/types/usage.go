package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

// MetricType is a metered resource a plan can cap
type MetricType string

const (
	MetricTypeUsers        MetricType = "users"
	MetricTypePatients     MetricType = "patients"
	MetricTypeAppointments MetricType = "appointments"
	MetricTypeStorage      MetricType = "storage"
)

var MetricTypes = []MetricType{
	MetricTypeUsers,
	MetricTypePatients,
	MetricTypeAppointments,
	MetricTypeStorage,
}

func (m MetricType) String() string {
	return string(m)
}

func (m MetricType) Validate() error {
	if !lo.Contains(MetricTypes, m) {
		return ierr.NewError("invalid metric type").
			WithHintf("Unknown metric type %q", string(m)).
			WithReportableDetails(map[string]any{
				"metric_type":   m,
				"allowed_types": MetricTypes,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UnlimitedUsage marks a metric with no cap
const UnlimitedUsage int64 = -1

// UsageLimits caps each metric of a plan. A missing metric or a value of
// UnlimitedUsage means no cap. Zero is a cap that is never enforced.
type UsageLimits map[MetricType]int64

func (l UsageLimits) Validate() error {
	for metric, limit := range l {
		if err := metric.Validate(); err != nil {
			return err
		}
		if limit < UnlimitedUsage {
			return ierr.NewError("invalid usage limit").
				WithHintf("Limit for %s must be -1 (unlimited) or a non-negative integer", metric).
				WithReportableDetails(map[string]any{
					"metric_type": metric,
					"limit":       limit,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// Get returns the cap for a metric and whether the metric is unlimited
func (l UsageLimits) Get(metric MetricType) (limit int64, unlimited bool) {
	v, ok := l[metric]
	if !ok || v == UnlimitedUsage {
		return UnlimitedUsage, true
	}
	return v, false
}

// Enforced reports whether crossing the limit should be flagged
func (l UsageLimits) Enforced(metric MetricType) (int64, bool) {
	limit, unlimited := l.Get(metric)
	return limit, !unlimited && limit > 0
}

func (l *UsageLimits) Scan(value interface{}) error {
	if value == nil {
		*l = make(UsageLimits)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal usage limits: %v", value)
	}

	result := make(UsageLimits)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	if err := result.Validate(); err != nil {
		return err
	}
	*l = result
	return nil
}

func (l UsageLimits) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(make(UsageLimits))
	}
	return json.Marshal(l)
}
