package service

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	"github.com/clinicflow/clinicflow/internal/domain/usage"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
)

type UsageService interface {
	// RecordUsageMetric stores a sample and flags the first time the period
	// total crosses the plan limit
	RecordUsageMetric(ctx context.Context, tenantID string, req dto.RecordUsageRequest) (*dto.UsageResponse, error)
	CheckUsageLimits(ctx context.Context, tenantID string, metric types.MetricType) (*dto.UsageLimitResponse, error)
	ListUsage(ctx context.Context, tenantID string, filter *types.UsageFilter) (*dto.ListUsageResponse, error)
}

type usageService struct {
	ServiceParams
	events BillingEventService
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{
		ServiceParams: params,
		events:        NewBillingEventService(params),
	}
}

func (s *usageService) RecordUsageMetric(ctx context.Context, tenantID string, req dto.RecordUsageRequest) (*dto.UsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.subscriptionFor(ctx, tenantID, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	m := &usage.UsageMetric{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE),
		TenantID:   tenantID,
		MetricType: req.MetricType,
		Value:      req.Value,
		Unit:       req.Unit,
		RecordedAt: time.Now().UTC(),
		CreatedBy:  types.GetUserID(ctx),
	}
	switch {
	case req.PeriodStart != nil:
		m.PeriodStart = req.PeriodStart.UTC()
		m.PeriodEnd = req.PeriodEnd.UTC()
	case sub != nil:
		m.PeriodStart = sub.CurrentPeriodStart
		m.PeriodEnd = sub.CurrentPeriodEnd
	default:
		return nil, ierr.NewError("usage period required").
			WithHint("period_start and period_end are required when the tenant has no subscription").
			Mark(ierr.ErrValidation)
	}
	if sub != nil {
		m.SubscriptionID = &sub.ID
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := s.UsageRepo.Create(ctx, m); err != nil {
		return nil, err
	}

	resp := &dto.UsageResponse{UsageMetric: m}
	if sub == nil || !sub.Status.IsEntitled() {
		return resp, nil
	}

	exceeded, err := s.checkOverage(ctx, sub, m.MetricType)
	if err != nil {
		// the sample is stored, enforcement is approximate
		s.Logger.Warnw("usage limit check failed",
			"tenant_id", tenantID,
			"metric_type", m.MetricType,
			"error", err,
		)
		return resp, nil
	}
	resp.LimitExceeded = exceeded
	return resp, nil
}

// subscriptionFor returns the subscription usage is attributed to, or nil
// when the tenant has none
func (s *usageService) subscriptionFor(ctx context.Context, tenantID string, id *string) (*subscription.Subscription, error) {
	if id != nil {
		return s.SubRepo.Get(ctx, tenantID, *id)
	}
	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if ierr.IsNotFound(err) {
		return nil, nil
	}
	return sub, err
}

func (s *usageService) checkOverage(ctx context.Context, sub *subscription.Subscription, metric types.MetricType) (bool, error) {
	p, err := getCachedPlan(ctx, s.ServiceParams, sub.LimitsPlanID())
	if err != nil {
		return false, err
	}
	limit, enforced := p.Limits.Enforced(metric)
	if !enforced {
		return false, nil
	}

	total, err := s.UsageRepo.Aggregate(ctx, sub.TenantID, metric, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return false, err
	}
	if !total.GreaterThan(decimal.NewFromInt(limit)) {
		return false, nil
	}

	inserted, err := s.events.AppendUnique(ctx, sub.TenantID, types.BillingEventUsageLimitExceeded, map[string]any{
		"subscription_id": sub.ID,
		"plan_id":         p.ID,
		"metric_type":     metric,
		"usage":           total.String(),
		"limit":           limit,
		"period_start":    sub.CurrentPeriodStart,
		"period_end":      sub.CurrentPeriodEnd,
	}, usage.LimitExceededDedupKey(metric, sub.CurrentPeriodStart))
	if err != nil {
		return true, err
	}
	if inserted {
		s.Logger.Infow("usage limit exceeded",
			"tenant_id", sub.TenantID,
			"metric_type", metric,
			"usage", total.String(),
			"limit", limit,
		)
	}
	return true, nil
}

func (s *usageService) CheckUsageLimits(ctx context.Context, tenantID string, metric types.MetricType) (*dto.UsageLimitResponse, error) {
	if err := metric.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	p, err := getCachedPlan(ctx, s.ServiceParams, sub.LimitsPlanID())
	if err != nil {
		return nil, err
	}

	total, err := s.UsageRepo.Aggregate(ctx, tenantID, metric, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	limit, unlimited := p.Limits.Get(metric)
	resp := &dto.UsageLimitResponse{
		MetricType:  metric,
		Usage:       total,
		Limit:       limit,
		Unlimited:   unlimited,
		Percentage:  decimal.Zero,
		PlanID:      p.ID,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
	}
	if unlimited {
		return resp, nil
	}

	capped := decimal.NewFromInt(limit)
	remaining := decimal.Max(capped.Sub(total), decimal.Zero)
	resp.Remaining = &remaining
	if limit > 0 {
		resp.Percentage = total.Div(capped).Mul(decimal.NewFromInt(100)).Round(2)
		resp.Exceeded = total.GreaterThan(capped)
	}
	return resp, nil
}

func (s *usageService) ListUsage(ctx context.Context, tenantID string, filter *types.UsageFilter) (*dto.ListUsageResponse, error) {
	if filter == nil {
		filter = types.NewUsageFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.UsageRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.UsageRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(items, count, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}
