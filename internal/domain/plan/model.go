package plan

import (
	"time"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Plan is a priced bundle of features and usage caps. Plans are global and
// shared by every tenant.
type Plan struct {
	ID           string             `db:"id" json:"id"`
	Name         string             `db:"name" json:"name"`
	Slug         string             `db:"slug" json:"slug"`
	Description  string             `db:"description" json:"description"`
	Price        decimal.Decimal    `db:"price" json:"price" swaggertype:"string"`
	BillingCycle types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`
	Currency     string             `db:"currency" json:"currency"`
	Features     pq.StringArray     `db:"features" json:"features"`
	Limits       types.UsageLimits  `db:"limits" json:"limits"`
	TrialDays    int                `db:"trial_days" json:"trial_days"`
	IsActive     bool               `db:"is_active" json:"is_active"`
	IsPublic     bool               `db:"is_public" json:"is_public"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	UpdatedBy    string             `db:"updated_by" json:"updated_by"`
}

func (p *Plan) HasFeature(feature string) bool {
	return lo.Contains(p.Features, feature)
}

// HasTrial reports whether new subscriptions on this plan start in trial
func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

func (p *Plan) Validate() error {
	if p.Name == "" || p.Slug == "" {
		return ierr.NewError("plan name and slug are required").
			WithHint("Plan name and slug are required").
			Mark(ierr.ErrValidation)
	}
	if p.Price.IsNegative() {
		return ierr.NewError("negative plan price").
			WithHint("Plan price must not be negative").
			WithReportableDetails(map[string]any{"price": p.Price.String()}).
			Mark(ierr.ErrValidation)
	}
	if p.TrialDays < 0 {
		return ierr.NewError("negative trial days").
			WithHint("Trial days must not be negative").
			Mark(ierr.ErrValidation)
	}
	if !types.ValidateCurrencyCode(p.Currency) {
		return ierr.NewError("invalid currency").
			WithHintf("Invalid currency code %q", p.Currency).
			Mark(ierr.ErrValidation)
	}
	if err := p.BillingCycle.Validate(); err != nil {
		return err
	}
	return p.Limits.Validate()
}
