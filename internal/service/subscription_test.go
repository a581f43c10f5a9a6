package service

import (
	"sync"
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	usage    UsageService
	invoices InvoiceService
	testData struct {
		tenant *tenant.Tenant
		basic  *plan.Plan
		pro    *plan.Plan
		trial  *plan.Plan
	}
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewSubscriptionService(params)
	s.usage = NewUsageService(params)
	s.invoices = NewInvoiceService(params)

	s.testData.tenant = s.CreateTenant("northside", types.Metadata{
		types.TenantSettingPaymentMethodOnFile: "true",
	})
	s.testData.basic = s.CreatePlan("basic", "49.00", 0, types.UsageLimits{types.MetricTypePatients: 500}, "appointments")
	s.testData.pro = s.CreatePlan("pro", "99.00", 0, types.UsageLimits{types.MetricTypePatients: 5000}, "appointments", "sms_reminders")
	s.testData.trial = s.CreatePlan("starter", "29.00", 14, nil, "appointments")
}

func (s *SubscriptionServiceSuite) subscribe(tenantID, planID string) *dto.SubscriptionResponse {
	sub, err := s.service.CreateSubscription(s.GetContext(), tenantID, dto.CreateSubscriptionRequest{PlanID: planID})
	s.Require().NoError(err)
	return sub
}

func (s *SubscriptionServiceSuite) current(tenantID string) *dto.SubscriptionResponse {
	sub, err := s.service.GetCurrentSubscription(s.GetContext(), tenantID)
	s.Require().NoError(err)
	return sub
}

func (s *SubscriptionServiceSuite) TestCreateSubscription() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal(types.BillingCycleMonthly, sub.BillingCycle)
	s.True(sub.AutoRenew)
	s.Nil(sub.TrialEnd)
	s.Equal(types.AddClampedDate(sub.CurrentPeriodStart, 0, 1, 0), sub.CurrentPeriodEnd)
	s.Equal(sub.CurrentPeriodEnd, lo.FromPtr(sub.NextBillingAt))
	s.Equal(s.testData.basic.ID, sub.Plan.ID)

	created := s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventSubscriptionCreated)
	s.Require().Len(created, 1)
	s.Equal(sub.ID, created[0].Payload["subscription_id"])
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionWithTrial() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.trial.ID)

	s.Equal(types.SubscriptionStatusTrial, sub.Status)
	s.Require().NotNil(sub.TrialEnd)
	s.Equal(sub.CurrentPeriodStart.AddDate(0, 0, 14), *sub.TrialEnd)
	s.Equal(*sub.TrialEnd, lo.FromPtr(sub.NextBillingAt))

	yearly := types.BillingCycleYearly
	other := s.CreateTenant("riverside", nil)
	sub, err := s.service.CreateSubscription(s.GetContext(), other.ID, dto.CreateSubscriptionRequest{
		PlanID:       s.testData.trial.ID,
		BillingCycle: yearly,
		TrialDays:    lo.ToPtr(0),
		AutoRenew:    lo.ToPtr(false),
	})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal(types.AddClampedDate(sub.CurrentPeriodStart, 1, 0, 0), sub.CurrentPeriodEnd)
	s.Nil(sub.NextBillingAt)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionRules() {
	s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	_, err := s.service.CreateSubscription(s.GetContext(), s.testData.tenant.ID, dto.CreateSubscriptionRequest{PlanID: s.testData.pro.ID})
	s.True(ierr.IsAlreadyExists(err))

	other := s.CreateTenant("riverside", nil)
	_, err = s.service.CreateSubscription(s.GetContext(), other.ID, dto.CreateSubscriptionRequest{PlanID: "plan_missing"})
	s.True(ierr.IsNotFound(err))

	_, err = s.service.CreateSubscription(s.GetContext(), other.ID, dto.CreateSubscriptionRequest{})
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestResubscribeAfterCancel() {
	first := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	cancelled, err := s.service.CancelSubscription(s.GetContext(), s.testData.tenant.ID, first.ID, "moving")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)
	s.Equal("moving", lo.FromPtr(cancelled.CancelReason))
	s.False(cancelled.AutoRenew)

	_, err = s.service.CancelSubscription(s.GetContext(), s.testData.tenant.ID, first.ID, "again")
	s.True(ierr.IsInvalidOperation(err))

	second := s.subscribe(s.testData.tenant.ID, s.testData.pro.ID)
	s.Equal(first.ID, second.ID)
	s.Equal(types.SubscriptionStatusActive, second.Status)
	s.Equal(s.testData.pro.ID, second.PlanID)
	s.Nil(second.CancelledAt)
}

func (s *SubscriptionServiceSuite) TestUpdateSubscription() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)
	yearly := types.BillingCycleYearly

	updated, err := s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		BillingCycle: &yearly,
		AutoRenew:    lo.ToPtr(false),
	})
	s.Require().NoError(err)
	s.Equal(types.BillingCycleYearly, updated.BillingCycle)
	s.False(updated.AutoRenew)
	s.Nil(updated.NextBillingAt)
	// the running period is not stretched
	s.Equal(sub.CurrentPeriodEnd, updated.CurrentPeriodEnd)
	s.Equal(sub.Version+1, updated.Version)

	events := s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventSubscriptionUpdated)
	s.Require().Len(events, 1)

	// a no-op update writes nothing
	same, err := s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		AutoRenew: lo.ToPtr(false),
	})
	s.Require().NoError(err)
	s.Equal(updated.Version, same.Version)
	s.Len(s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventSubscriptionUpdated), 1)

	_, err = s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		Status: lo.ToPtr(types.SubscriptionStatusSuspended),
	})
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		PlanID: lo.ToPtr("plan_missing"),
	})
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestUpdateCancelledSubscription() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)
	_, err := s.service.CancelSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, "")
	s.Require().NoError(err)

	_, err = s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		PlanID: lo.ToPtr(s.testData.pro.ID),
	})
	s.True(ierr.IsInvalidOperation(err))

	updated, err := s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		CancelReason: lo.ToPtr("closed the practice"),
	})
	s.Require().NoError(err)
	s.Equal("closed the practice", lo.FromPtr(updated.CancelReason))
}

func (s *SubscriptionServiceSuite) TestPlanChangeKeepsLimitsUntilRenewal() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	updated, err := s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		PlanID: lo.ToPtr(s.testData.pro.ID),
	})
	s.Require().NoError(err)
	s.Equal(s.testData.pro.ID, updated.PlanID)
	s.Equal(s.testData.basic.ID, lo.FromPtr(updated.PreviousPlanID))

	limits, err := s.usage.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypePatients)
	s.Require().NoError(err)
	s.Equal(int64(500), limits.Limit)
	s.Equal(s.testData.basic.ID, limits.PlanID)

	// features follow the new plan straight away
	access, err := s.service.CheckFeature(s.GetContext(), s.testData.tenant.ID, "sms_reminders")
	s.Require().NoError(err)
	s.True(access.Allowed)

	resp, err := s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, updated.CurrentPeriodEnd.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, resp.Renewed)

	limits, err = s.usage.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypePatients)
	s.Require().NoError(err)
	s.Equal(int64(5000), limits.Limit)
}

func (s *SubscriptionServiceSuite) TestTrialConvertsWithPaymentMethod() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.trial.ID)

	resp, err := s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, sub.TrialEnd.Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(resp.Activated)

	now := sub.TrialEnd.Add(time.Hour)
	resp, err = s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, now)
	s.Require().NoError(err)
	s.Equal(1, resp.Activated)

	active := s.current(s.testData.tenant.ID)
	s.Equal(types.SubscriptionStatusActive, active.Status)
	s.Equal(*sub.TrialEnd, active.CurrentPeriodStart)
	s.Equal(types.AddClampedDate(*sub.TrialEnd, 0, 1, 0), active.CurrentPeriodEnd)

	invoices, err := s.invoices.ListInvoices(s.GetContext(), s.testData.tenant.ID, &types.InvoiceFilter{
		QueryFilter:    types.NewDefaultQueryFilter(),
		SubscriptionID: sub.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(invoices.Items, 1)
	inv := invoices.Items[0]
	s.Equal(types.InvoiceStatusOpen, inv.Status)
	s.True(inv.TotalAmount.Equal(decimal.RequireFromString("29.00")))
	s.Equal(now.AddDate(0, 0, s.GetConfig().Billing.InvoiceDueDays), inv.DueDate)

	// rerunning the sweep does nothing
	resp, err = s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, now)
	s.Require().NoError(err)
	s.Zero(resp.Activated)
	invoices, err = s.invoices.ListInvoices(s.GetContext(), s.testData.tenant.ID, nil)
	s.Require().NoError(err)
	s.Len(invoices.Items, 1)
}

func (s *SubscriptionServiceSuite) TestTrialWithoutPaymentMethodGoesPastDueThenSuspends() {
	other := s.CreateTenant("riverside", types.Metadata{types.TenantSettingPaymentMethodOnFile: "no"})
	sub := s.subscribe(other.ID, s.testData.trial.ID)

	now := sub.TrialEnd.Add(time.Hour)
	resp, err := s.service.ProcessLifecycle(s.GetContext(), other.ID, now)
	s.Require().NoError(err)
	s.Equal(1, resp.PastDue)

	pastDue := s.current(other.ID)
	s.Equal(types.SubscriptionStatusPastDue, pastDue.Status)
	s.Equal(now, lo.FromPtr(pastDue.PastDueSince))

	// still entitled during the grace period
	_, err = s.service.CheckFeature(s.GetContext(), other.ID, "appointments")
	s.NoError(err)

	grace := time.Duration(s.GetConfig().Billing.GracePeriodDays) * 24 * time.Hour
	resp, err = s.service.ProcessLifecycle(s.GetContext(), other.ID, now.Add(grace-time.Hour))
	s.Require().NoError(err)
	s.Zero(resp.Suspended)

	resp, err = s.service.ProcessLifecycle(s.GetContext(), other.ID, now.Add(grace+time.Hour))
	s.Require().NoError(err)
	s.Equal(1, resp.Suspended)
	s.Equal(types.SubscriptionStatusSuspended, s.current(other.ID).Status)

	_, err = s.service.CheckFeature(s.GetContext(), other.ID, "appointments")
	s.True(ierr.IsPermissionDenied(err))
}

func (s *SubscriptionServiceSuite) TestRenewalAndExpiry() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	now := sub.CurrentPeriodEnd.Add(time.Minute)
	resp, err := s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, now)
	s.Require().NoError(err)
	s.Equal(1, resp.Renewed)

	renewed := s.current(s.testData.tenant.ID)
	s.Equal(sub.CurrentPeriodEnd, renewed.CurrentPeriodStart)
	s.Equal(types.AddClampedDate(sub.CurrentPeriodEnd, 0, 1, 0), renewed.CurrentPeriodEnd)
	s.Len(s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventInvoiceCreated), 1)

	_, err = s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
		AutoRenew: lo.ToPtr(false),
	})
	s.Require().NoError(err)

	resp, err = s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, renewed.CurrentPeriodEnd.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, resp.Cancelled)

	expired := s.current(s.testData.tenant.ID)
	s.Equal(types.SubscriptionStatusCancelled, expired.Status)
	s.Equal("not renewed", lo.FromPtr(expired.CancelReason))
}

func (s *SubscriptionServiceSuite) TestLifecycleRefreshesUsageSnapshot() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)
	_, err := s.usage.RecordUsageMetric(s.GetContext(), s.testData.tenant.ID, dto.RecordUsageRequest{
		MetricType: types.MetricTypePatients,
		Value:      decimal.NewFromInt(12),
	})
	s.Require().NoError(err)

	resp, err := s.service.ProcessLifecycle(s.GetContext(), s.testData.tenant.ID, sub.CurrentPeriodStart.Add(time.Hour))
	s.Require().NoError(err)
	s.Zero(resp.Renewed)

	status, err := s.service.GetStatus(s.GetContext(), s.testData.tenant.ID)
	s.Require().NoError(err)
	s.True(status.Usage[types.MetricTypePatients].Equal(decimal.NewFromInt(12)))
}

func (s *SubscriptionServiceSuite) TestProcessAllLifecycles() {
	s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)
	for _, slug := range []string{"riverside", "hillcrest", "lakeside"} {
		t := s.CreateTenant(slug, nil)
		s.subscribe(t.ID, s.testData.basic.ID)
	}
	// tenants without a subscription are counted but untouched
	s.CreateTenant("empty", nil)

	resp, err := s.service.ProcessAllLifecycles(s.GetContext(), time.Now().UTC().AddDate(0, 2, 0))
	s.Require().NoError(err)
	s.Equal(5, resp.TenantsProcessed)
	s.Equal(4, resp.Renewed)
	s.Zero(resp.Failed)
}

func (s *SubscriptionServiceSuite) TestConcurrentUpdatesAreSerialised() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(autoRenew bool) {
			defer wg.Done()
			_, err := s.service.UpdateSubscription(s.GetContext(), s.testData.tenant.ID, sub.ID, dto.UpdateSubscriptionRequest{
				AutoRenew: lo.ToPtr(autoRenew),
			})
			s.NoError(err)
		}(i%2 == 0)
	}
	wg.Wait()

	updates := s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventSubscriptionUpdated)
	s.Equal(sub.Version+len(updates), s.current(s.testData.tenant.ID).Version)
}

func (s *SubscriptionServiceSuite) TestChargeFailureAndRecovery() {
	s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	_, err := s.service.RecordChargeRecovered(s.GetContext(), s.testData.tenant.ID)
	s.True(ierr.IsInvalidOperation(err))

	failed, err := s.service.RecordChargeFailure(s.GetContext(), s.testData.tenant.ID, "card declined")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, failed.Status)
	s.NotNil(failed.PastDueSince)

	recovered, err := s.service.RecordChargeRecovered(s.GetContext(), s.testData.tenant.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, recovered.Status)
	s.Nil(recovered.PastDueSince)
}

func (s *SubscriptionServiceSuite) TestCheckFeature() {
	_, err := s.service.CheckFeature(s.GetContext(), s.testData.tenant.ID, "appointments")
	s.True(ierr.IsPermissionDenied(err))

	s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)

	access, err := s.service.CheckFeature(s.GetContext(), s.testData.tenant.ID, "appointments")
	s.Require().NoError(err)
	s.True(access.Allowed)
	s.Equal(s.testData.basic.ID, access.PlanID)

	_, err = s.service.CheckFeature(s.GetContext(), s.testData.tenant.ID, "sms_reminders")
	s.True(ierr.IsPermissionDenied(err))
}

func (s *SubscriptionServiceSuite) TestGetStatus() {
	status, err := s.service.GetStatus(s.GetContext(), s.testData.tenant.ID)
	s.Require().NoError(err)
	s.False(status.HasSubscription)
	s.Empty(status.Features)

	s.subscribe(s.testData.tenant.ID, s.testData.trial.ID)

	status, err = s.service.GetStatus(s.GetContext(), s.testData.tenant.ID)
	s.Require().NoError(err)
	s.True(status.HasSubscription)
	s.True(status.IsTrial)
	s.Equal(types.SubscriptionStatusTrial, status.Status)
	s.Equal("starter", status.PlanSlug)
	s.InDelta(14, status.TrialDaysLeft, 1)
	s.Equal([]string{"appointments"}, status.Features)
}

func (s *SubscriptionServiceSuite) TestTenantIsolation() {
	sub := s.subscribe(s.testData.tenant.ID, s.testData.basic.ID)
	other := s.CreateTenant("riverside", nil)

	_, err := s.service.GetSubscription(s.GetContext(), other.ID, sub.ID)
	s.True(ierr.IsNotFound(err))

	_, err = s.service.CancelSubscription(s.GetContext(), other.ID, sub.ID, "")
	s.True(ierr.IsNotFound(err))

	_, err = s.service.GetCurrentSubscription(s.GetContext(), other.ID)
	s.True(ierr.IsNotFound(err))
}
