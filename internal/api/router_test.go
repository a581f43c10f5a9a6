package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/internal/api/cron"
	"github.com/clinicflow/clinicflow/internal/api/dto"
	v1 "github.com/clinicflow/clinicflow/internal/api/v1"
	"github.com/clinicflow/clinicflow/internal/auth"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/ratelimit"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router     *gin.Engine
	validator  *auth.TokenValidator
	adminToken string
	northside  *tenant.Tenant
	riverside  *tenant.Tenant
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	gin.SetMode(gin.TestMode)

	cfg := s.GetConfig()
	cfg.Auth.Secret = "router-test-secret"
	log := s.GetLogger()
	stores := s.GetStores()

	params := service.NewServiceParams(
		log,
		cfg,
		s.GetDB(),
		s.GetCache(),
		stores.TenantRepo,
		stores.PlanRepo,
		stores.SubscriptionRepo,
		stores.InvoiceRepo,
		stores.PaymentRepo,
		stores.UsageRepo,
		stores.BillingEventRepo,
		s.GetPublisher(),
	)

	subscriptions := service.NewSubscriptionService(params)
	invoices := service.NewInvoiceService(params)
	s.validator = auth.NewTokenValidator(cfg)

	s.router = NewRouter(Handlers{
		Health:           v1.NewHealthHandler(log),
		Plan:             v1.NewPlanHandler(service.NewPlanService(params), log),
		Subscription:     v1.NewSubscriptionHandler(subscriptions, log),
		Usage:            v1.NewUsageHandler(service.NewUsageService(params), log),
		Invoice:          v1.NewInvoiceHandler(invoices, log),
		Payment:          v1.NewPaymentHandler(service.NewPaymentService(params), log),
		BillingEvent:     v1.NewBillingEventHandler(service.NewBillingEventService(params), log),
		CronSubscription: cron.NewSubscriptionHandler(subscriptions, log),
		CronInvoice:      cron.NewInvoiceHandler(invoices, log),
	}, RouterParams{
		Config:         cfg,
		Logger:         log,
		Sentry:         sentry.NewSentryService(cfg, log),
		TenantService:  service.NewTenantService(params),
		Limiter:        ratelimit.NewLimiterFromConfig(cfg, nil, log),
		TokenValidator: s.validator,
	})

	token, err := s.validator.GenerateToken(types.Claims{UserID: "ops", Roles: []string{types.RoleAdmin}}, time.Hour)
	s.Require().NoError(err)
	s.adminToken = "Bearer " + token

	s.northside = s.CreateTenant("northside", types.Metadata{types.TenantSettingPaymentMethodOnFile: "true"})
	s.riverside = s.CreateTenant("riverside", nil)
}

func (s *RouterSuite) TearDownTest() {
	s.GetConfig().Auth.Secret = ""
	s.BaseServiceTestSuite.TearDownTest()
}

func (s *RouterSuite) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) tenantToken(t *tenant.Tenant) string {
	token, err := s.validator.GenerateToken(types.Claims{UserID: "frontdesk", TenantID: t.ID}, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

// tenantRequest calls path with a token bound to t
func (s *RouterSuite) tenantRequest(t *tenant.Tenant, method, path string, body any) *httptest.ResponseRecorder {
	return s.request(method, path, body, map[string]string{
		types.HeaderTenantID:      t.ID,
		types.HeaderAuthorization: s.tenantToken(t),
	})
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, status int, out any) {
	s.Require().Equal(status, w.Code, w.Body.String())
	if out != nil {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (s *RouterSuite) createPlan() *dto.PlanResponse {
	req := dto.CreatePlanRequest{
		Name:         "Basic",
		Slug:         "basic",
		Price:        decimal.RequireFromString("49.00"),
		BillingCycle: types.BillingCycleMonthly,
		Currency:     "usd",
		Features:     []string{"appointments"},
		Limits:       types.UsageLimits{types.MetricTypePatients: 2},
	}

	w := s.request(http.MethodPost, "/v1/plans", req, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodPost, "/v1/plans", req, map[string]string{
		types.HeaderAuthorization: s.tenantToken(s.northside),
	})
	s.Equal(http.StatusForbidden, w.Code)

	var plan dto.PlanResponse
	s.decode(s.request(http.MethodPost, "/v1/plans", req, map[string]string{
		types.HeaderAuthorization: s.adminToken,
	}), http.StatusCreated, &plan)
	return &plan
}

func (s *RouterSuite) TestHealth() {
	var resp dto.HealthResponse
	s.decode(s.request(http.MethodGet, "/health", nil, nil), http.StatusOK, &resp)
	s.Equal("ok", resp.Status)
}

func (s *RouterSuite) TestPlanCatalog() {
	plan := s.createPlan()

	var list dto.ListPlansResponse
	s.decode(s.request(http.MethodGet, "/v1/plans", nil, nil), http.StatusOK, &list)
	s.Require().Len(list.Items, 1)
	s.Equal(plan.ID, list.Items[0].ID)

	var bySlug dto.PlanResponse
	s.decode(s.request(http.MethodGet, "/v1/plans/basic", nil, nil), http.StatusOK, &bySlug)
	s.Equal(plan.ID, bySlug.ID)

	w := s.request(http.MethodGet, "/v1/plans/missing", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestTenantRoutesRequireTenant() {
	w := s.request(http.MethodGet, "/v1/subscriptions/current", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodGet, "/v1/subscriptions/current", nil, map[string]string{
		types.HeaderAuthorization: s.adminToken,
	})
	s.Equal(http.StatusBadRequest, w.Code)

	var body ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.False(body.Success)
	s.NotEmpty(body.Error.Display)

	w = s.request(http.MethodGet, "/v1/invoices", nil, map[string]string{
		types.HeaderTenantSlug:    "nowhere",
		types.HeaderAuthorization: s.adminToken,
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestCrossTenantAccessRejected() {
	w := s.request(http.MethodGet, "/v1/invoices", nil, map[string]string{
		types.HeaderTenantID:      s.riverside.ID,
		types.HeaderAuthorization: s.tenantToken(s.northside),
	})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/v1/payments", nil, map[string]string{
		types.HeaderTenantID: s.riverside.ID,
	})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodGet, "/v1/payments", nil, map[string]string{
		types.HeaderTenantSlug:    "riverside",
		types.HeaderAuthorization: s.tenantToken(s.northside),
	})
	s.Equal(http.StatusForbidden, w.Code)

	// operators act for any tenant
	var payments dto.ListPaymentsResponse
	s.decode(s.request(http.MethodGet, "/v1/payments", nil, map[string]string{
		types.HeaderTenantID:      s.riverside.ID,
		types.HeaderAuthorization: s.adminToken,
	}), http.StatusOK, &payments)
	s.Empty(payments.Items)
}

func (s *RouterSuite) TestMalformedBody() {
	w := s.tenantRequest(s.northside, http.MethodPost, "/v1/invoices", "{not json")
	s.Equal(http.StatusBadRequest, w.Code)

	var body ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("Invalid request format", body.Error.Display)
}

func (s *RouterSuite) TestBillingFlow() {
	plan := s.createPlan()

	var sub dto.SubscriptionResponse
	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/subscriptions", dto.CreateSubscriptionRequest{
		PlanID: plan.ID,
	}), http.StatusCreated, &sub)

	var current dto.SubscriptionResponse
	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/subscriptions/current", nil), http.StatusOK, &current)
	s.Equal(sub.ID, current.ID)

	var feature dto.FeatureAccessResponse
	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/features/appointments", nil), http.StatusOK, &feature)
	s.True(feature.Allowed)

	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/status", nil), http.StatusOK, nil)

	// invoice lifecycle
	var inv dto.InvoiceResponse
	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/invoices", dto.CreateInvoiceRequest{
		Currency: "usd",
		LineItems: []dto.CreateLineItemRequest{{
			Type:        types.LineItemTypeService,
			Description: "Consultation",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.RequireFromString("50.00"),
			TaxRate:     decimal.RequireFromString("0.10"),
		}},
	}), http.StatusCreated, &inv)
	s.Equal(types.InvoiceStatusDraft, inv.Status)
	s.True(inv.TotalAmount.Equal(decimal.RequireFromString("110")))

	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/invoices/"+inv.ID+"/send", nil), http.StatusOK, &inv)
	s.Equal(types.InvoiceStatusOpen, inv.Status)

	// another tenant cannot see it
	w := s.tenantRequest(s.riverside, http.MethodGet, "/v1/invoices/"+inv.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)

	var pay dto.PaymentResponse
	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/payments", dto.RecordPaymentRequest{
		InvoiceID: &inv.ID,
		Amount:    decimal.RequireFromString("110.00"),
		Currency:  "usd",
		Method:    types.PaymentMethodTypeCard,
	}), http.StatusCreated, &pay)
	s.Equal(types.PaymentStatusPending, pay.Status)

	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/payments/"+pay.ID+"/succeed", nil), http.StatusOK, &pay)
	s.Equal(types.PaymentStatusSucceeded, pay.Status)

	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/invoices/"+inv.ID, nil), http.StatusOK, &inv)
	s.Equal(types.InvoiceStatusPaid, inv.Status)
	s.True(inv.BalanceAmount.IsZero())

	w = s.tenantRequest(s.northside, http.MethodPost, "/v1/invoices/"+inv.ID+"/cancel", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	var payments dto.ListPaymentsResponse
	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/payments?invoice_id="+inv.ID, nil), http.StatusOK, &payments)
	s.Len(payments.Items, 1)

	// usage over the plan limit is flagged once
	var usage dto.UsageResponse
	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/usage", dto.RecordUsageRequest{
		MetricType: types.MetricTypePatients,
		Value:      decimal.NewFromInt(3),
	}), http.StatusCreated, &usage)
	s.True(usage.LimitExceeded)

	var limit dto.UsageLimitResponse
	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/limits/patients", nil), http.StatusOK, &limit)
	s.True(limit.Exceeded)
	s.EqualValues(2, limit.Limit)

	var events dto.ListBillingEventsResponse
	s.decode(s.tenantRequest(s.northside, http.MethodGet, "/v1/events?event_type=usage_limit_exceeded", nil), http.StatusOK, &events)
	s.Require().Len(events.Items, 1)

	var processed dto.BillingEventResponse
	s.decode(s.tenantRequest(s.northside, http.MethodPost, "/v1/events/"+events.Items[0].ID+"/processed", nil), http.StatusOK, &processed)
	s.True(processed.Processed)

	s.decode(s.tenantRequest(s.northside, http.MethodDelete, "/v1/subscriptions/"+sub.ID, dto.CancelSubscriptionRequest{
		Reason: "closing clinic",
	}), http.StatusOK, &sub)
	s.Equal(types.SubscriptionStatusCancelled, sub.Status)
}

func (s *RouterSuite) TestCronRequiresAdmin() {
	w := s.request(http.MethodPost, "/v1/cron/invoices/overdue", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodPost, "/v1/cron/invoices/overdue", nil, map[string]string{
		types.HeaderAuthorization: s.tenantToken(s.northside),
	})
	s.Equal(http.StatusForbidden, w.Code)

	var overdue dto.OverdueSweepResponse
	s.decode(s.request(http.MethodPost, "/v1/cron/invoices/overdue", nil, map[string]string{
		types.HeaderAuthorization: s.adminToken,
	}), http.StatusOK, &overdue)
	s.Equal(2, overdue.TenantsProcessed)
	s.Zero(overdue.Failed)

	asOf := time.Now().UTC().AddDate(0, 2, 0)
	var lifecycle dto.LifecycleSweepResponse
	s.decode(s.request(http.MethodPost, "/v1/cron/subscriptions/lifecycle", dto.SweepRequest{
		AsOf:      &asOf,
		TenantIDs: []string{s.northside.ID},
	}, map[string]string{
		types.HeaderAuthorization: s.adminToken,
	}), http.StatusOK, &lifecycle)
	s.Equal(1, lifecycle.TenantsProcessed)
}
