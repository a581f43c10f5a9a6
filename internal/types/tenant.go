package types

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/samber/lo"
)

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

func (s TenantStatus) Validate() error {
	allowed := []TenantStatus{TenantStatusActive, TenantStatusInactive}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid tenant status").
			WithHint("Invalid tenant status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Tenant settings read by the billing core
const (
	TenantSettingPaymentMethodOnFile = "payment_method_on_file"
)
