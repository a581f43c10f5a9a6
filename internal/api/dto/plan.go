package dto

import (
	"context"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type CreatePlanRequest struct {
	Name         string             `json:"name" validate:"required,max=255"`
	Slug         string             `json:"slug" validate:"required,max=100"`
	Description  string             `json:"description"`
	Price        decimal.Decimal    `json:"price" swaggertype:"string"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	Currency     string             `json:"currency" validate:"required,currency"`
	Features     []string           `json:"features"`
	Limits       types.UsageLimits  `json:"limits"`
	TrialDays    int                `json:"trial_days" validate:"min=0"`
	IsPublic     *bool              `json:"is_public,omitempty"`
}

func (r *CreatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := requireNonNegative("price", r.Price); err != nil {
		return err
	}
	if err := r.BillingCycle.Validate(); err != nil {
		return err
	}
	return r.Limits.Validate()
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	now := time.Now().UTC()
	limits := r.Limits
	if limits == nil {
		limits = make(types.UsageLimits)
	}
	return &plan.Plan{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		Name:         r.Name,
		Slug:         strings.ToLower(r.Slug),
		Description:  r.Description,
		Price:        r.Price,
		BillingCycle: r.BillingCycle,
		Currency:     strings.ToLower(r.Currency),
		Features:     lo.Uniq(r.Features),
		Limits:       limits,
		TrialDays:    r.TrialDays,
		IsActive:     true,
		IsPublic:     lo.FromPtrOr(r.IsPublic, true),
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    types.GetUserID(ctx),
		UpdatedBy:    types.GetUserID(ctx),
	}
}

// UpdatePlanRequest is a partial update, nil fields are left untouched
type UpdatePlanRequest struct {
	Name         *string             `json:"name,omitempty" validate:"omitempty,max=255"`
	Description  *string             `json:"description,omitempty"`
	Price        *decimal.Decimal    `json:"price,omitempty" swaggertype:"string"`
	BillingCycle *types.BillingCycle `json:"billing_cycle,omitempty"`
	Features     []string            `json:"features,omitempty"`
	Limits       types.UsageLimits   `json:"limits,omitempty"`
	TrialDays    *int                `json:"trial_days,omitempty" validate:"omitempty,min=0"`
	IsActive     *bool               `json:"is_active,omitempty"`
	IsPublic     *bool               `json:"is_public,omitempty"`
}

func (r *UpdatePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// Apply copies the set fields onto p. The result is validated by the caller.
func (r *UpdatePlanRequest) Apply(ctx context.Context, p *plan.Plan) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.BillingCycle != nil {
		p.BillingCycle = *r.BillingCycle
	}
	if r.Features != nil {
		p.Features = lo.Uniq(r.Features)
	}
	if r.Limits != nil {
		p.Limits = r.Limits
	}
	if r.TrialDays != nil {
		p.TrialDays = *r.TrialDays
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	if r.IsPublic != nil {
		p.IsPublic = *r.IsPublic
	}
	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = types.GetUserID(ctx)
}

type PlanResponse struct {
	*plan.Plan
}

type ListPlansResponse = types.ListResponse[*PlanResponse]
