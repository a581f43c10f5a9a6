package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/internal/auth"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/ratelimit"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/testutil"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type MiddlewareSuite struct {
	suite.Suite
	cfg       *config.Configuration
	log       *logger.Logger
	tenants   *testutil.InMemoryTenantStore
	validator *auth.TokenValidator
	engine    *gin.Engine

	northside *tenant.Tenant
	riverside *tenant.Tenant
	closed    *tenant.Tenant
}

func TestMiddleware(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.cfg = config.GetDefaultConfig()
	s.cfg.Auth.Secret = "test-secret"
	s.cfg.Tenant.BaseDomain = "clinicflow.io"
	s.log = logger.NewNoopLogger()
	s.tenants = testutil.NewInMemoryTenantStore()
	s.validator = auth.NewTokenValidator(s.cfg)

	s.northside = s.createTenant("northside", types.TenantStatusActive)
	s.riverside = s.createTenant("riverside", types.TenantStatusActive)
	s.closed = s.createTenant("closed", types.TenantStatusInactive)

	s.engine = s.newEngine(ratelimit.NewLimiter(ratelimit.NewMemoryStore(time.Minute), 1000, time.Minute, s.log))
}

func (s *MiddlewareSuite) createTenant(slug string, status types.TenantStatus) *tenant.Tenant {
	t := &tenant.Tenant{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT),
		Slug:      slug,
		Name:      slug + " clinic",
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.tenants.Create(context.Background(), t))
	return t
}

func (s *MiddlewareSuite) newEngine(limiter *ratelimit.Limiter) *gin.Engine {
	tenantService := service.NewTenantService(service.ServiceParams{
		Logger:     s.log,
		Config:     s.cfg,
		TenantRepo: s.tenants,
	})

	r := gin.New()
	r.Use(
		RequestIDMiddleware,
		ErrorHandler(sentry.NewSentryService(s.cfg, s.log), s.log),
		AuthenticateMiddleware(s.validator, s.log),
		TenantMiddleware(s.cfg, tenantService, s.log),
	)

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/health", ok)

	v1 := r.Group("/v1", RequireAuth, RequireTenant, RateLimitMiddleware(limiter))
	v1.GET("/whoami", func(c *gin.Context) {
		t, _ := types.GetTenant(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"tenant_id": t.ID, "slug": t.Slug})
	})
	v1.GET("/admin", NewPermissionMiddleware(s.log).RequireAdmin(), ok)
	v1.GET("/boom", func(c *gin.Context) {
		c.Error(ierr.NewError("pq: connection reset by peer").
			WithHint("Failed to load the invoice row").
			Mark(ierr.ErrDatabase))
	})
	v1.GET("/missing", func(c *gin.Context) {
		c.Error(ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{"invoice_id": "inv_1"}).
			Mark(ierr.ErrNotFound))
	})
	return r
}

func (s *MiddlewareSuite) do(path, host string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://"+host+path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *MiddlewareSuite) token(claims types.Claims) string {
	if claims.UserID == "" {
		claims.UserID = "user_1"
	}
	token, err := s.validator.GenerateToken(claims, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *MiddlewareSuite) adminToken() string {
	return s.token(types.Claims{Roles: []string{types.RoleAdmin}})
}

// as returns the headers of a request made with a token bound to t
func (s *MiddlewareSuite) as(t *tenant.Tenant) map[string]string {
	return map[string]string{types.HeaderAuthorization: s.token(types.Claims{TenantID: t.ID})}
}

func (s *MiddlewareSuite) resolvedSlug(w *httptest.ResponseRecorder) string {
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var body map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body["slug"]
}

func (s *MiddlewareSuite) errorBody(w *httptest.ResponseRecorder) ierr.ErrorResponse {
	var body ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.False(body.Success)
	return body
}

func (s *MiddlewareSuite) TestResolutionPriority() {
	admin := s.adminToken()

	tests := []struct {
		name    string
		host    string
		headers map[string]string
		want    string
	}{
		{
			name: "tenant id header",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantID:      s.northside.ID,
				types.HeaderAuthorization: admin,
			},
			want: "northside",
		},
		{
			name: "tenant slug header",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantSlug:    "Riverside",
				types.HeaderAuthorization: admin,
			},
			want: "riverside",
		},
		{
			name: "id header beats slug header",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantID:      s.northside.ID,
				types.HeaderTenantSlug:    "riverside",
				types.HeaderAuthorization: admin,
			},
			want: "northside",
		},
		{
			name:    "tenant id claim",
			host:    "api.example.com",
			headers: map[string]string{types.HeaderAuthorization: s.token(types.Claims{TenantID: s.riverside.ID})},
			want:    "riverside",
		},
		{
			name:    "tenant slug claim",
			host:    "api.example.com",
			headers: map[string]string{types.HeaderAuthorization: s.token(types.Claims{TenantSlug: "northside"})},
			want:    "northside",
		},
		{
			name: "slug header matching claim",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantSlug:    "riverside",
				types.HeaderAuthorization: s.token(types.Claims{TenantID: s.riverside.ID}),
			},
			want: "riverside",
		},
		{
			name: "claim on its own subdomain",
			host: "riverside.clinicflow.io",
			headers: map[string]string{
				types.HeaderAuthorization: s.token(types.Claims{TenantSlug: "riverside"}),
			},
			want: "riverside",
		},
		{
			name:    "subdomain",
			host:    "riverside.clinicflow.io:8443",
			headers: map[string]string{types.HeaderAuthorization: admin},
			want:    "riverside",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.resolvedSlug(s.do("/v1/whoami", tt.host, tt.headers)))
		})
	}
}

func (s *MiddlewareSuite) TestTokenBoundToTenant() {
	northsideToken := s.token(types.Claims{TenantID: s.northside.ID})

	tests := []struct {
		name    string
		host    string
		headers map[string]string
	}{
		{
			name: "id header for another tenant",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantID:      s.riverside.ID,
				types.HeaderAuthorization: northsideToken,
			},
		},
		{
			name: "slug header for another tenant",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantSlug:    "riverside",
				types.HeaderAuthorization: s.token(types.Claims{TenantSlug: "northside"}),
			},
		},
		{
			name:    "subdomain of another tenant",
			host:    "riverside.clinicflow.io",
			headers: map[string]string{types.HeaderAuthorization: northsideToken},
		},
		{
			name: "unbound token without admin role",
			host: "api.example.com",
			headers: map[string]string{
				types.HeaderTenantID:      s.riverside.ID,
				types.HeaderAuthorization: s.token(types.Claims{Roles: []string{"billing"}}),
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do("/v1/whoami", tt.host, tt.headers)
			s.Equal(http.StatusForbidden, w.Code)
			s.NotEmpty(s.errorBody(w).Error.Display)
		})
	}
}

func (s *MiddlewareSuite) TestAnonymousRejected() {
	w := s.do("/v1/whoami", "api.example.com", map[string]string{types.HeaderTenantID: s.riverside.ID})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.NotEmpty(s.errorBody(w).Error.Display)

	w = s.do("/v1/whoami", "riverside.clinicflow.io", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *MiddlewareSuite) TestUnresolvedInputDoesNotFallThrough() {
	w := s.do("/v1/whoami", "northside.clinicflow.io", map[string]string{
		types.HeaderTenantID:      "tenant_missing",
		types.HeaderTenantSlug:    "northside",
		types.HeaderAuthorization: s.adminToken(),
	})
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Tenant not found or inactive", s.errorBody(w).Error.Display)

	w = s.do("/v1/whoami", "unknown.clinicflow.io", map[string]string{types.HeaderAuthorization: s.adminToken()})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *MiddlewareSuite) TestInactiveTenantRejected() {
	w := s.do("/v1/whoami", "api.example.com", s.as(s.closed))
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do("/v1/whoami", "closed.clinicflow.io", map[string]string{types.HeaderAuthorization: s.adminToken()})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *MiddlewareSuite) TestMissingTenant() {
	headers := map[string]string{types.HeaderAuthorization: s.adminToken()}
	for _, host := range []string{"clinicflow.io", "www.clinicflow.io", "a.b.clinicflow.io", "api.example.com"} {
		w := s.do("/v1/whoami", host, headers)
		s.Equal(http.StatusBadRequest, w.Code, host)
		s.NotEmpty(s.errorBody(w).Error.Display)
	}
}

func (s *MiddlewareSuite) TestSkipPathsBypassResolution() {
	w := s.do("/health", "api.example.com", map[string]string{types.HeaderTenantID: "tenant_missing"})
	s.Equal(http.StatusOK, w.Code)
}

func (s *MiddlewareSuite) TestInvalidTokenRejected() {
	w := s.do("/v1/whoami", "northside.clinicflow.io", map[string]string{
		types.HeaderAuthorization: "Bearer not-a-jwt",
	})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do("/v1/whoami", "northside.clinicflow.io", map[string]string{
		types.HeaderAuthorization: "Token abc",
	})
	s.Equal(http.StatusUnauthorized, w.Code)

	other := auth.NewTokenValidator(&config.Configuration{Auth: config.AuthConfig{Secret: "other-secret"}})
	forged, err := other.GenerateToken(types.Claims{UserID: "user_1", TenantID: s.riverside.ID}, time.Hour)
	s.Require().NoError(err)
	w = s.do("/v1/whoami", "northside.clinicflow.io", map[string]string{
		types.HeaderAuthorization: "Bearer " + forged,
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *MiddlewareSuite) TestRateLimit() {
	s.engine = s.newEngine(ratelimit.NewLimiter(ratelimit.NewMemoryStore(time.Minute), 2, time.Minute, s.log))
	headers := s.as(s.northside)

	for i := 0; i < 2; i++ {
		w := s.do("/v1/whoami", "api.example.com", headers)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal("2", w.Header().Get(headerRateLimitLimit))
		s.Equal(strconv.Itoa(1-i), w.Header().Get(headerRateLimitRemaining))
	}

	w := s.do("/v1/whoami", "api.example.com", headers)
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Equal("0", w.Header().Get(headerRateLimitRemaining))

	retryAfter, err := strconv.Atoi(w.Header().Get(types.HeaderRetryAfter))
	s.Require().NoError(err)
	s.GreaterOrEqual(retryAfter, 0)
	s.LessOrEqual(retryAfter, 60)

	body := s.errorBody(w)
	s.Contains(body.Error.Details, "retry_after_seconds")
	s.Contains(body.Error.Details, "reset_at")

	// other tenants keep their own budget
	w = s.do("/v1/whoami", "api.example.com", s.as(s.riverside))
	s.Equal(http.StatusOK, w.Code)
}

func (s *MiddlewareSuite) TestErrorHandler() {
	headers := s.as(s.northside)

	w := s.do("/v1/boom", "api.example.com", headers)
	s.Equal(http.StatusInternalServerError, w.Code)
	body := s.errorBody(w)
	s.Equal("An unexpected error occurred", body.Error.Display)
	s.Empty(body.Error.Details)
	s.NotContains(w.Body.String(), "pq:")
	s.NotEmpty(body.Error.RequestID)
	s.Equal(w.Header().Get(types.HeaderRequestID), body.Error.RequestID)

	w = s.do("/v1/missing", "api.example.com", headers)
	s.Equal(http.StatusNotFound, w.Code)
	body = s.errorBody(w)
	s.Equal("Invoice not found", body.Error.Display)
	s.Equal("inv_1", body.Error.Details["invoice_id"])
}

func (s *MiddlewareSuite) TestRequireAdmin() {
	w := s.do("/v1/admin", "api.example.com", map[string]string{types.HeaderTenantID: s.northside.ID})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do("/v1/admin", "api.example.com", map[string]string{
		types.HeaderAuthorization: s.token(types.Claims{TenantID: s.northside.ID, Roles: []string{"billing"}}),
	})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do("/v1/admin", "api.example.com", map[string]string{
		types.HeaderTenantID:      s.northside.ID,
		types.HeaderAuthorization: s.token(types.Claims{TenantID: s.northside.ID, Roles: []string{types.RoleAdmin}}),
	})
	s.Equal(http.StatusOK, w.Code)

	w = s.do("/v1/admin", "api.example.com", map[string]string{
		types.HeaderTenantID:      s.northside.ID,
		types.HeaderAuthorization: s.adminToken(),
	})
	s.Equal(http.StatusOK, w.Code)
}

func (s *MiddlewareSuite) TestRequestID() {
	w := s.do("/health", "api.example.com", map[string]string{types.HeaderRequestID: "req-123"})
	s.Equal("req-123", w.Header().Get(types.HeaderRequestID))

	w = s.do("/health", "api.example.com", nil)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
}

func TestSubdomain(t *testing.T) {
	tests := []struct {
		host string
		base string
		want string
	}{
		{"northside.clinicflow.io", "clinicflow.io", "northside"},
		{"NorthSide.ClinicFlow.io:443", "clinicflow.io", "northside"},
		{"northside.clinicflow.io.", ".clinicflow.io", "northside"},
		{"clinicflow.io", "clinicflow.io", ""},
		{"www.clinicflow.io", "clinicflow.io", ""},
		{"a.b.clinicflow.io", "clinicflow.io", ""},
		{"northside.evil-clinicflow.io", "clinicflow.io", ""},
		{"northside.clinicflow.io", "", ""},
		{"", "clinicflow.io", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, subdomain(tt.host, tt.base), tt.host)
	}
}
