package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

type SubscriptionService interface {
	CreateSubscription(ctx context.Context, tenantID string, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, tenantID, id string) (*dto.SubscriptionResponse, error)
	GetCurrentSubscription(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error)
	UpdateSubscription(ctx context.Context, tenantID, id string, req dto.UpdateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, tenantID, id string, reason string) (*dto.SubscriptionResponse, error)
	GetStatus(ctx context.Context, tenantID string) (*dto.SubscriptionStatusResponse, error)
	CheckFeature(ctx context.Context, tenantID, feature string) (*dto.FeatureAccessResponse, error)

	// RecordChargeFailure moves a subscription whose period charge failed to past_due
	RecordChargeFailure(ctx context.Context, tenantID, reason string) (*dto.SubscriptionResponse, error)
	// RecordChargeRecovered reactivates a past_due subscription within the grace window
	RecordChargeRecovered(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error)

	// ProcessLifecycle applies the time driven transition due for one tenant
	ProcessLifecycle(ctx context.Context, tenantID string, now time.Time) (*dto.LifecycleSweepResponse, error)
	// ProcessAllLifecycles runs ProcessLifecycle for every active tenant
	ProcessAllLifecycles(ctx context.Context, now time.Time) (*dto.LifecycleSweepResponse, error)
}

type subscriptionService struct {
	ServiceParams
	events BillingEventService
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		events:        NewBillingEventService(params),
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, tenantID string, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.activePlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	existing, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.Status.IsLive() {
		return nil, ierr.NewError("tenant already has a subscription").
			WithHint("Tenant already has a subscription, update or cancel it instead").
			WithReportableDetails(map[string]any{
				"subscription_id": existing.ID,
				"status":          existing.Status,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	cycle := lo.Ternary(req.BillingCycle != "", req.BillingCycle, p.BillingCycle)
	trialDays := lo.FromPtrOr(req.TrialDays, p.TrialDays)
	now := time.Now().UTC()

	sub, err := newSubscription(ctx, tenantID, p, cycle, trialDays, lo.FromPtrOr(req.AutoRenew, true), now)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		// the tenant keeps its single row, a cancelled one starts over
		sub.ID = existing.ID
		sub.Version = existing.Version
		sub.CreatedAt = existing.CreatedAt
		sub.CreatedBy = existing.CreatedBy
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("created subscription",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
		"plan_id", p.ID,
		"status", sub.Status,
		"reinitialised", existing != nil,
	)

	s.events.Emit(ctx, tenantID, types.BillingEventSubscriptionCreated, map[string]any{
		"subscription_id": sub.ID,
		"plan_id":         sub.PlanID,
		"status":          sub.Status,
		"billing_cycle":   sub.BillingCycle,
		"period_end":      sub.CurrentPeriodEnd,
		"trial_end":       sub.TrialEnd,
	})

	return &dto.SubscriptionResponse{Subscription: sub, Plan: p}, nil
}

func newSubscription(ctx context.Context, tenantID string, p *plan.Plan, cycle types.BillingCycle, trialDays int, autoRenew bool, now time.Time) (*subscription.Subscription, error) {
	if err := cycle.Validate(); err != nil {
		return nil, err
	}
	periodEnd, err := types.NextBillingDate(now, cycle)
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:             p.ID,
		Status:             types.SubscriptionStatusActive,
		BillingCycle:       cycle,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		AutoRenew:          autoRenew,
		NextBillingAt:      lo.ToPtr(periodEnd),
		UsageSnapshot:      make(subscription.UsageSnapshot),
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx, tenantID),
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		sub.Status = types.SubscriptionStatusTrial
		sub.TrialEnd = &trialEnd
		sub.NextBillingAt = &trialEnd
	}
	if !autoRenew {
		sub.NextBillingAt = nil
	}
	return sub, nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, tenantID, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.response(ctx, sub)
}

func (s *subscriptionService) GetCurrentSubscription(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.response(ctx, sub)
}

func (s *subscriptionService) UpdateSubscription(ctx context.Context, tenantID, id string, req dto.UpdateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.PlanID != nil {
		if _, err := s.activePlan(ctx, *req.PlanID); err != nil {
			return nil, err
		}
	}

	var changed []string
	sub, err := s.mutate(ctx, tenantID, id, func(ctx context.Context, sub *subscription.Subscription) (bool, error) {
		changed = changed[:0]
		now := time.Now().UTC()

		if sub.Status == types.SubscriptionStatusCancelled &&
			(req.PlanID != nil || req.BillingCycle != nil || req.AutoRenew != nil) {
			return false, ierr.NewError("subscription is cancelled").
				WithHint("A cancelled subscription cannot be modified, create a new one instead").
				Mark(ierr.ErrInvalidOperation)
		}

		if req.PlanID != nil && *req.PlanID != sub.PlanID {
			sub.ChangePlan(*req.PlanID, now)
			changed = append(changed, "plan_id")
		}
		if req.BillingCycle != nil && *req.BillingCycle != sub.BillingCycle {
			// the new cycle takes effect when the current period renews
			sub.BillingCycle = *req.BillingCycle
			changed = append(changed, "billing_cycle")
		}
		if req.AutoRenew != nil && *req.AutoRenew != sub.AutoRenew {
			sub.AutoRenew = *req.AutoRenew
			sub.NextBillingAt = nextBillingAt(sub)
			changed = append(changed, "auto_renew")
		}
		if req.Status != nil && *req.Status != sub.Status {
			if err := sub.TransitionTo(*req.Status, now, lo.FromPtr(req.CancelReason)); err != nil {
				return false, err
			}
			changed = append(changed, "status")
		} else if req.CancelReason != nil && sub.Status == types.SubscriptionStatusCancelled {
			sub.CancelReason = req.CancelReason
			changed = append(changed, "cancel_reason")
		}

		if len(changed) == 0 {
			return false, nil
		}
		sub.UpdatedAt = now
		sub.UpdatedBy = types.GetUserID(ctx)
		return true, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.Logger.Infow("updated subscription",
			"tenant_id", tenantID,
			"subscription_id", sub.ID,
			"fields", changed,
		)
		s.emitUpdated(ctx, sub, "update", map[string]any{"fields": changed})
	}
	return s.response(ctx, sub)
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, tenantID, id string, reason string) (*dto.SubscriptionResponse, error) {
	sub, err := s.mutate(ctx, tenantID, id, func(ctx context.Context, sub *subscription.Subscription) (bool, error) {
		if err := sub.TransitionTo(types.SubscriptionStatusCancelled, time.Now().UTC(), reason); err != nil {
			return false, err
		}
		sub.UpdatedBy = types.GetUserID(ctx)
		return true, nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled subscription", "tenant_id", tenantID, "subscription_id", id, "reason", reason)
	s.emitUpdated(ctx, sub, "cancel", map[string]any{"reason": reason})
	return s.response(ctx, sub)
}

func (s *subscriptionService) GetStatus(ctx context.Context, tenantID string) (*dto.SubscriptionStatusResponse, error) {
	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &dto.SubscriptionStatusResponse{
				Features: []string{},
				Limits:   types.UsageLimits{},
			}, nil
		}
		return nil, err
	}

	p, err := getCachedPlan(ctx, s.ServiceParams, sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resp := &dto.SubscriptionStatusResponse{
		HasSubscription:    true,
		SubscriptionID:     sub.ID,
		Status:             sub.Status,
		PlanID:             p.ID,
		PlanName:           p.Name,
		PlanSlug:           p.Slug,
		BillingCycle:       sub.BillingCycle,
		AutoRenew:          sub.AutoRenew,
		IsTrial:            sub.Status == types.SubscriptionStatusTrial,
		TrialDaysLeft:      sub.TrialDaysLeft(now),
		DaysUntilRenewal:   sub.DaysUntilRenewal(now),
		CurrentPeriodStart: lo.ToPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   lo.ToPtr(sub.CurrentPeriodEnd),
		CancelledAt:        sub.CancelledAt,
		Features:           lo.Ternary(p.Features == nil, []string{}, []string(p.Features)),
		Limits:             p.Limits,
		Usage:              sub.UsageSnapshot,
	}
	return resp, nil
}

func (s *subscriptionService) CheckFeature(ctx context.Context, tenantID, feature string) (*dto.FeatureAccessResponse, error) {
	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if sub == nil || !sub.Status.IsEntitled() {
		return nil, ierr.NewError("no entitled subscription").
			WithHintf("Feature %s requires an active subscription", feature).
			WithReportableDetails(map[string]any{"feature": feature}).
			Mark(ierr.ErrPermissionDenied)
	}

	p, err := getCachedPlan(ctx, s.ServiceParams, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.HasFeature(feature) {
		return nil, ierr.NewError("feature not in plan").
			WithHintf("Feature %s is not included in plan %s", feature, p.Name).
			WithReportableDetails(map[string]any{
				"feature": feature,
				"plan_id": p.ID,
			}).
			Mark(ierr.ErrPermissionDenied)
	}

	return &dto.FeatureAccessResponse{Feature: feature, Allowed: true, PlanID: p.ID}, nil
}

func (s *subscriptionService) RecordChargeFailure(ctx context.Context, tenantID, reason string) (*dto.SubscriptionResponse, error) {
	current, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sub, err := s.mutate(ctx, tenantID, current.ID, func(ctx context.Context, sub *subscription.Subscription) (bool, error) {
		if sub.Status == types.SubscriptionStatusPastDue {
			return false, nil
		}
		return true, sub.TransitionTo(types.SubscriptionStatusPastDue, time.Now().UTC(), "")
	}, nil)
	if err != nil {
		return nil, err
	}

	s.Logger.Warnw("subscription charge failed", "tenant_id", tenantID, "subscription_id", sub.ID, "reason", reason)
	s.emitUpdated(ctx, sub, "charge_failed", map[string]any{"reason": reason})
	return s.response(ctx, sub)
}

func (s *subscriptionService) RecordChargeRecovered(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error) {
	current, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	grace := s.gracePeriod()
	sub, err := s.mutate(ctx, tenantID, current.ID, func(ctx context.Context, sub *subscription.Subscription) (bool, error) {
		now := time.Now().UTC()
		if sub.Status != types.SubscriptionStatusPastDue {
			return false, ierr.NewError("subscription is not past due").
				WithHintf("Subscription in status %s cannot be recovered", sub.Status).
				Mark(ierr.ErrInvalidOperation)
		}
		if sub.PastDueSince != nil && now.Sub(*sub.PastDueSince) > grace {
			return false, ierr.NewError("grace period exceeded").
				WithHint("The grace period for this subscription has ended").
				WithReportableDetails(map[string]any{"past_due_since": sub.PastDueSince}).
				Mark(ierr.ErrInvalidOperation)
		}
		return true, sub.TransitionTo(types.SubscriptionStatusActive, now, "")
	}, nil)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription charge recovered", "tenant_id", tenantID, "subscription_id", sub.ID)
	s.emitUpdated(ctx, sub, "charge_recovered", nil)
	return s.response(ctx, sub)
}

func (s *subscriptionService) ProcessLifecycle(ctx context.Context, tenantID string, now time.Time) (*dto.LifecycleSweepResponse, error) {
	result := &dto.LifecycleSweepResponse{TenantsProcessed: 1}

	current, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return result, nil
		}
		return nil, err
	}
	if current.Status == types.SubscriptionStatusCancelled {
		return result, nil
	}

	hasPaymentMethod := false
	if current.Status == types.SubscriptionStatusTrial {
		hasPaymentMethod, err = s.PaymentMethodChecker.HasValidPaymentMethod(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}

	var (
		action  subscription.LifecycleAction
		renewal *invoice.Invoice
	)
	grace := s.gracePeriod()
	sub, err := s.mutate(ctx, tenantID, current.ID,
		func(ctx context.Context, sub *subscription.Subscription) (bool, error) {
			renewal = nil
			action = subscription.NextLifecycleAction(sub, now, grace, hasPaymentMethod)
			changed, err := s.applyLifecycleAction(sub, action, now)
			if err != nil {
				return false, err
			}
			return s.refreshUsageSnapshot(ctx, sub) || changed, nil
		},
		func(ctx context.Context, sub *subscription.Subscription) error {
			if action != subscription.ActionRenew && action != subscription.ActionActivateTrial {
				return nil
			}
			inv, err := s.createPeriodInvoice(ctx, sub, now)
			renewal = inv
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	switch action {
	case subscription.ActionActivateTrial:
		result.Activated++
	case subscription.ActionTrialPastDue:
		result.PastDue++
	case subscription.ActionSuspend:
		result.Suspended++
	case subscription.ActionRenew:
		result.Renewed++
	case subscription.ActionExpire:
		result.Cancelled++
	}

	if action != subscription.ActionNone {
		s.Logger.Infow("applied subscription lifecycle action",
			"tenant_id", tenantID,
			"subscription_id", sub.ID,
			"action", action,
			"status", sub.Status,
		)
		s.emitUpdated(ctx, sub, string(action), nil)
	}
	if renewal != nil {
		emitInvoiceEvent(ctx, s.events, types.BillingEventInvoiceCreated, renewal, "subscription_period")
	}
	return result, nil
}

func (s *subscriptionService) ProcessAllLifecycles(ctx context.Context, now time.Time) (*dto.LifecycleSweepResponse, error) {
	tenants, err := s.TenantRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	total := &dto.LifecycleSweepResponse{}

	p := pool.New().WithMaxGoroutines(s.Config.Billing.SweepConcurrency)
	for _, t := range tenants {
		t := t
		p.Go(func() {
			result, err := s.ProcessLifecycle(ctx, t.ID, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				total.Failed++
				s.Logger.Errorw("subscription lifecycle failed", "tenant_id", t.ID, "error", err)
				return
			}
			total.Add(result)
		})
	}
	p.Wait()

	s.Logger.Infow("subscription lifecycle sweep finished",
		"tenants", len(tenants),
		"renewed", total.Renewed,
		"activated", total.Activated,
		"past_due", total.PastDue,
		"suspended", total.Suspended,
		"cancelled", total.Cancelled,
		"failed", total.Failed,
	)
	return total, nil
}

func (s *subscriptionService) applyLifecycleAction(sub *subscription.Subscription, action subscription.LifecycleAction, now time.Time) (bool, error) {
	switch action {
	case subscription.ActionActivateTrial:
		if err := sub.TransitionTo(types.SubscriptionStatusActive, now, ""); err != nil {
			return false, err
		}
		// the first paid period starts when the trial ends
		start := *sub.TrialEnd
		end, err := types.NextBillingDate(start, sub.BillingCycle)
		if err != nil {
			return false, err
		}
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = end
		sub.NextBillingAt = lo.ToPtr(end)
		sub.UsageSnapshot = make(subscription.UsageSnapshot)
	case subscription.ActionTrialPastDue:
		if err := sub.TransitionTo(types.SubscriptionStatusPastDue, now, ""); err != nil {
			return false, err
		}
	case subscription.ActionSuspend:
		if err := sub.TransitionTo(types.SubscriptionStatusSuspended, now, ""); err != nil {
			return false, err
		}
	case subscription.ActionRenew:
		if err := sub.Renew(); err != nil {
			return false, err
		}
	case subscription.ActionExpire:
		if err := sub.TransitionTo(types.SubscriptionStatusCancelled, now, "not renewed"); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	sub.UpdatedAt = now
	return true, nil
}

// refreshUsageSnapshot stores the current period totals of every capped metric
func (s *subscriptionService) refreshUsageSnapshot(ctx context.Context, sub *subscription.Subscription) bool {
	if !sub.Status.IsLive() {
		return false
	}
	p, err := getCachedPlan(ctx, s.ServiceParams, sub.LimitsPlanID())
	if err != nil {
		s.Logger.Warnw("skipping usage snapshot", "subscription_id", sub.ID, "error", err)
		return false
	}

	changed := false
	for metric := range p.Limits {
		total, err := s.UsageRepo.Aggregate(ctx, sub.TenantID, metric, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
		if err != nil {
			s.Logger.Warnw("skipping usage snapshot", "subscription_id", sub.ID, "metric_type", metric, "error", err)
			return changed
		}
		if prev, ok := sub.UsageSnapshot[metric]; !ok || !prev.Equal(total) {
			if sub.UsageSnapshot == nil {
				sub.UsageSnapshot = make(subscription.UsageSnapshot)
			}
			sub.UsageSnapshot[metric] = total
			changed = true
		}
	}
	return changed
}

// createPeriodInvoice bills the subscription's plan for its current period
func (s *subscriptionService) createPeriodInvoice(ctx context.Context, sub *subscription.Subscription, now time.Time) (*invoice.Invoice, error) {
	p, err := getCachedPlan(ctx, s.ServiceParams, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.Price.IsPositive() {
		return nil, nil
	}

	inv := newPeriodInvoice(ctx, sub, p, now, s.Config.Billing.InvoiceDueDays)
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// mutate loads the subscription, applies fn and writes it back under the
// version guard, retrying from a fresh read when another writer got there
// first. post runs inside the same transaction after a successful write.
func (s *subscriptionService) mutate(
	ctx context.Context,
	tenantID, id string,
	fn func(ctx context.Context, sub *subscription.Subscription) (bool, error),
	post func(ctx context.Context, sub *subscription.Subscription) error,
) (*subscription.Subscription, error) {
	var result *subscription.Subscription

	op := func() error {
		return s.DB.WithTx(ctx, func(ctx context.Context) error {
			sub, err := s.SubRepo.Get(ctx, tenantID, id)
			if err != nil {
				return backoff.Permanent(err)
			}

			changed, err := fn(ctx, sub)
			if err != nil {
				return backoff.Permanent(err)
			}
			if !changed {
				result = sub
				return nil
			}

			if err := s.SubRepo.Update(ctx, sub); err != nil {
				if ierr.IsVersionConflict(err) {
					s.Logger.Debugw("subscription version conflict, retrying",
						"tenant_id", tenantID,
						"subscription_id", id,
					)
					return err
				}
				return backoff.Permanent(err)
			}

			if post != nil {
				if err := post(ctx, sub); err != nil {
					return backoff.Permanent(err)
				}
			}
			result = sub
			return nil
		})
	}

	if err := backoff.Retry(op, backoff.WithContext(s.retryPolicy(), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *subscriptionService) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

func (s *subscriptionService) gracePeriod() time.Duration {
	return time.Duration(s.Config.Billing.GracePeriodDays) * 24 * time.Hour
}

func (s *subscriptionService) activePlan(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := getCachedPlan(ctx, s.ServiceParams, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ierr.NewError("plan is inactive").
			WithHintf("Plan %s is not available for new subscriptions", p.Name).
			WithReportableDetails(map[string]any{"plan_id": id}).
			Mark(ierr.ErrValidation)
	}
	return p, nil
}

func (s *subscriptionService) response(ctx context.Context, sub *subscription.Subscription) (*dto.SubscriptionResponse, error) {
	p, err := getCachedPlan(ctx, s.ServiceParams, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub, Plan: p}, nil
}

func (s *subscriptionService) emitUpdated(ctx context.Context, sub *subscription.Subscription, reason string, extra map[string]any) {
	payload := map[string]any{
		"subscription_id": sub.ID,
		"plan_id":         sub.PlanID,
		"status":          sub.Status,
		"reason":          reason,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.events.Emit(ctx, sub.TenantID, types.BillingEventSubscriptionUpdated, payload)
}

func nextBillingAt(sub *subscription.Subscription) *time.Time {
	if !sub.AutoRenew || !sub.Status.IsLive() {
		return nil
	}
	if sub.Status == types.SubscriptionStatusTrial && sub.TrialEnd != nil {
		return lo.ToPtr(*sub.TrialEnd)
	}
	return lo.ToPtr(sub.CurrentPeriodEnd)
}

// recoverSubscriptionOnPayment reactivates a past_due subscription once one
// of its invoices is fully paid. Failures are logged, the payment stands.
func recoverSubscriptionOnPayment(ctx context.Context, subs SubscriptionService, params ServiceParams, tenantID, invoiceSubscriptionID string) {
	sub, err := params.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil || sub.ID != invoiceSubscriptionID || sub.Status != types.SubscriptionStatusPastDue {
		return
	}
	if _, err := subs.RecordChargeRecovered(ctx, tenantID); err != nil {
		params.Logger.Warnw("could not recover subscription after payment",
			"tenant_id", tenantID,
			"subscription_id", sub.ID,
			"error", err,
		)
	}
}
