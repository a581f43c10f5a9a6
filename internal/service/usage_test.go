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

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service       UsageService
	subscriptions SubscriptionService
	testData      struct {
		tenant *tenant.Tenant
		basic  *plan.Plan
		sub    *dto.SubscriptionResponse
	}
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewUsageService(params)
	s.subscriptions = NewSubscriptionService(params)

	s.testData.tenant = s.CreateTenant("northside", nil)
	s.testData.basic = s.CreatePlan("basic", "49.00", 0, types.UsageLimits{
		types.MetricTypePatients: 500,
		types.MetricTypeUsers:    5,
		types.MetricTypeStorage:  0,
	})

	sub, err := s.subscriptions.CreateSubscription(s.GetContext(), s.testData.tenant.ID, dto.CreateSubscriptionRequest{
		PlanID: s.testData.basic.ID,
	})
	s.Require().NoError(err)
	s.testData.sub = sub
}

func (s *UsageServiceSuite) record(metric types.MetricType, value int64) *dto.UsageResponse {
	resp, err := s.service.RecordUsageMetric(s.GetContext(), s.testData.tenant.ID, dto.RecordUsageRequest{
		MetricType: metric,
		Value:      decimal.NewFromInt(value),
	})
	s.Require().NoError(err)
	return resp
}

func (s *UsageServiceSuite) overageEvents() int {
	return len(s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventUsageLimitExceeded))
}

func (s *UsageServiceSuite) TestRecordUsageDefaultsToCurrentPeriod() {
	resp := s.record(types.MetricTypeAppointments, 3)

	s.Equal(s.testData.sub.CurrentPeriodStart, resp.PeriodStart)
	s.Equal(s.testData.sub.CurrentPeriodEnd, resp.PeriodEnd)
	s.Equal(s.testData.sub.ID, lo.FromPtr(resp.SubscriptionID))
	s.Equal(types.DefaultUserID, resp.CreatedBy)
	s.False(resp.LimitExceeded)
}

func (s *UsageServiceSuite) TestOverageFlaggedOncePerPeriod() {
	for i := 0; i < 500; i++ {
		resp := s.record(types.MetricTypePatients, 1)
		s.Require().False(resp.LimitExceeded)
	}
	s.Zero(s.overageEvents())

	resp := s.record(types.MetricTypePatients, 1)
	s.True(resp.LimitExceeded)
	s.Equal(1, s.overageEvents())

	// further samples in the same period keep a single event
	for i := 0; i < 5; i++ {
		s.True(s.record(types.MetricTypePatients, 1).LimitExceeded)
	}
	s.Equal(1, s.overageEvents())

	event := s.GetBillingEvents().ByType(s.GetContext(), s.testData.tenant.ID, types.BillingEventUsageLimitExceeded)[0]
	s.EqualValues(types.MetricTypePatients, event.Payload["metric_type"])
	s.Equal("501", event.Payload["usage"])
	s.Require().NotNil(event.DedupKey)
}

func (s *UsageServiceSuite) TestConcurrentOverageFlaggedOnce() {
	s.record(types.MetricTypeUsers, 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RecordUsageMetric(s.GetContext(), s.testData.tenant.ID, dto.RecordUsageRequest{
				MetricType: types.MetricTypeUsers,
				Value:      decimal.NewFromInt(1),
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(1, s.overageEvents())
}

func (s *UsageServiceSuite) TestZeroOrMissingLimitNeverFlags() {
	s.record(types.MetricTypeStorage, 10_000)
	s.record(types.MetricTypeAppointments, 10_000)
	s.Zero(s.overageEvents())
}

func (s *UsageServiceSuite) TestUsageWithoutSubscription() {
	other := s.CreateTenant("riverside", nil)

	_, err := s.service.RecordUsageMetric(s.GetContext(), other.ID, dto.RecordUsageRequest{
		MetricType: types.MetricTypePatients,
		Value:      decimal.NewFromInt(1),
	})
	s.True(ierr.IsValidation(err))

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	resp, err := s.service.RecordUsageMetric(s.GetContext(), other.ID, dto.RecordUsageRequest{
		MetricType:  types.MetricTypePatients,
		Value:       decimal.NewFromInt(1),
		PeriodStart: &start,
		PeriodEnd:   &end,
	})
	s.Require().NoError(err)
	s.Nil(resp.SubscriptionID)
	s.False(resp.LimitExceeded)

	_, err = s.service.CheckUsageLimits(s.GetContext(), other.ID, types.MetricTypePatients)
	s.True(ierr.IsNotFound(err))
}

func (s *UsageServiceSuite) TestRecordUsageValidation() {
	start := time.Now().UTC()
	tests := []struct {
		name string
		req  dto.RecordUsageRequest
	}{
		{"unknown metric", dto.RecordUsageRequest{MetricType: "beds", Value: decimal.NewFromInt(1)}},
		{"negative value", dto.RecordUsageRequest{MetricType: types.MetricTypeUsers, Value: decimal.NewFromInt(-1)}},
		{"half period", dto.RecordUsageRequest{MetricType: types.MetricTypeUsers, Value: decimal.NewFromInt(1), PeriodStart: &start}},
		{"inverted period", dto.RecordUsageRequest{
			MetricType:  types.MetricTypeUsers,
			Value:       decimal.NewFromInt(1),
			PeriodStart: lo.ToPtr(start.Add(time.Hour)),
			PeriodEnd:   &start,
		}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.RecordUsageMetric(s.GetContext(), s.testData.tenant.ID, tt.req)
			s.True(ierr.IsValidation(err), "unexpected error %v", err)
		})
	}
}

func (s *UsageServiceSuite) TestCheckUsageLimits() {
	s.record(types.MetricTypePatients, 125)

	resp, err := s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypePatients)
	s.Require().NoError(err)
	s.True(resp.Usage.Equal(decimal.NewFromInt(125)))
	s.Equal(int64(500), resp.Limit)
	s.False(resp.Unlimited)
	s.Require().NotNil(resp.Remaining)
	s.True(resp.Remaining.Equal(decimal.NewFromInt(375)))
	s.True(resp.Percentage.Equal(decimal.NewFromInt(25)), "percentage %s", resp.Percentage)
	s.False(resp.Exceeded)
	s.Equal(s.testData.basic.ID, resp.PlanID)

	s.record(types.MetricTypeUsers, 7)
	resp, err = s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypeUsers)
	s.Require().NoError(err)
	s.True(resp.Exceeded)
	s.True(resp.Remaining.IsZero())
	s.True(resp.Percentage.Equal(decimal.NewFromInt(140)))
}

func (s *UsageServiceSuite) TestCheckUsageLimitsUnlimitedAndZero() {
	s.record(types.MetricTypeAppointments, 42)

	resp, err := s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypeAppointments)
	s.Require().NoError(err)
	s.True(resp.Unlimited)
	s.EqualValues(types.UnlimitedUsage, resp.Limit)
	s.Nil(resp.Remaining)
	s.False(resp.Exceeded)
	s.True(resp.Percentage.IsZero())

	s.record(types.MetricTypeStorage, 9)
	resp, err = s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypeStorage)
	s.Require().NoError(err)
	s.False(resp.Unlimited)
	s.True(resp.Remaining.IsZero())
	s.True(resp.Percentage.IsZero())
	s.False(resp.Exceeded)

	_, err = s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, "beds")
	s.True(ierr.IsValidation(err))
}

func (s *UsageServiceSuite) TestUsageOutsidePeriodIsIgnored() {
	start := s.testData.sub.CurrentPeriodStart.AddDate(0, -1, 0)
	end := s.testData.sub.CurrentPeriodStart
	_, err := s.service.RecordUsageMetric(s.GetContext(), s.testData.tenant.ID, dto.RecordUsageRequest{
		MetricType:  types.MetricTypePatients,
		Value:       decimal.NewFromInt(900),
		PeriodStart: &start,
		PeriodEnd:   &end,
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckUsageLimits(s.GetContext(), s.testData.tenant.ID, types.MetricTypePatients)
	s.Require().NoError(err)
	s.True(resp.Usage.IsZero())
	s.Zero(s.overageEvents())
}

func (s *UsageServiceSuite) TestListUsage() {
	s.record(types.MetricTypePatients, 1)
	s.record(types.MetricTypeUsers, 2)
	s.record(types.MetricTypeUsers, 3)

	list, err := s.service.ListUsage(s.GetContext(), s.testData.tenant.ID, &types.UsageFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		MetricType:  types.MetricTypeUsers,
	})
	s.Require().NoError(err)
	s.Len(list.Items, 2)
	s.Equal(2, list.Pagination.Total)

	other := s.CreateTenant("riverside", nil)
	list, err = s.service.ListUsage(s.GetContext(), other.ID, nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}
