package dto

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/shopspring/decimal"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the liveness check
type HealthResponse struct {
	Status string `json:"status"`
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return ierr.NewError(field+" must be positive").
			WithHintf("%s must be greater than zero", field).
			WithReportableDetails(map[string]any{field: v.String()}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func requireNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return ierr.NewError(field+" must not be negative").
			WithHintf("%s must not be negative", field).
			WithReportableDetails(map[string]any{field: v.String()}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SweepRequest is the optional body of the cron sweeps. An empty body sweeps
// every active tenant as of now.
type SweepRequest struct {
	AsOf      *time.Time `json:"as_of,omitempty"`
	TenantIDs []string   `json:"tenant_ids,omitempty"`
}

func (r *SweepRequest) Now() time.Time {
	if r.AsOf != nil {
		return r.AsOf.UTC()
	}
	return time.Now().UTC()
}
