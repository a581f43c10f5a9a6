package api

import (
	"github.com/clinicflow/clinicflow/internal/api/cron"
	v1 "github.com/clinicflow/clinicflow/internal/api/v1"
	"github.com/clinicflow/clinicflow/internal/auth"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/ratelimit"
	"github.com/clinicflow/clinicflow/internal/rest/middleware"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Plan         *v1.PlanHandler
	Subscription *v1.SubscriptionHandler
	Usage        *v1.UsageHandler
	Invoice      *v1.InvoiceHandler
	Payment      *v1.PaymentHandler
	BillingEvent *v1.BillingEventHandler

	CronSubscription *cron.SubscriptionHandler
	CronInvoice      *cron.InvoiceHandler
}

// RouterParams are the dependencies of the middleware chain
type RouterParams struct {
	Config         *config.Configuration
	Logger         *logger.Logger
	Sentry         *sentry.Service
	TenantService  service.TenantService
	Limiter        *ratelimit.Limiter
	TokenValidator *auth.TokenValidator
}

func NewRouter(handlers Handlers, params RouterParams) *gin.Engine {
	if params.Config.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(params.Logger),
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(params.Config),
		middleware.ErrorHandler(params.Sentry, params.Logger),
		middleware.AuthenticateMiddleware(params.TokenValidator, params.Logger),
		middleware.TenantMiddleware(params.Config, params.TenantService, params.Logger),
		middleware.PyroscopeMiddleware(params.Config),
	)

	router.GET("/health", handlers.Health.Health)

	var limiter gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if params.Config.RateLimit.Enabled {
		limiter = middleware.RateLimitMiddleware(params.Limiter)
	}
	permissions := middleware.NewPermissionMiddleware(params.Logger)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers, limiter, permissions)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers, limiter gin.HandlerFunc, permissions *middleware.PermissionMiddleware) {
	// the plan catalog is global, only admin writes are gated
	plans := router.Group("/plans")
	{
		plans.GET("", handlers.Plan.ListPublicPlans)
		plans.GET("/:slug", handlers.Plan.GetPlanBySlug)
		plans.POST("", middleware.RequireAuth, permissions.RequireAdmin(), handlers.Plan.CreatePlan)
		plans.PUT("/:id", middleware.RequireAuth, permissions.RequireAdmin(), handlers.Plan.UpdatePlan)
	}

	cronGroup := router.Group("/cron", middleware.RequireAuth, permissions.RequireAdmin())
	{
		cronGroup.POST("/subscriptions/lifecycle", handlers.CronSubscription.ProcessLifecycles)
		cronGroup.POST("/invoices/overdue", handlers.CronInvoice.MarkOverdueInvoices)
	}

	tenant := router.Group("", middleware.RequireAuth, middleware.RequireTenant, limiter)

	subscriptions := tenant.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("/current", handlers.Subscription.GetCurrentSubscription)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.PUT("/:id", handlers.Subscription.UpdateSubscription)
		subscriptions.DELETE("/:id", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/current/charge-failed", permissions.RequireAdmin(), handlers.Subscription.RecordChargeFailure)
		subscriptions.POST("/current/charge-recovered", permissions.RequireAdmin(), handlers.Subscription.RecordChargeRecovered)
	}
	tenant.GET("/status", handlers.Subscription.GetStatus)
	tenant.GET("/features/:feature", handlers.Subscription.CheckFeature)

	usage := tenant.Group("/usage")
	{
		usage.GET("", handlers.Usage.ListUsage)
		usage.POST("", handlers.Usage.RecordUsage)
	}
	tenant.GET("/limits/:metricType", handlers.Usage.CheckUsageLimits)

	invoices := tenant.Group("/invoices")
	{
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.PUT("/:id", handlers.Invoice.UpdateDraftInvoice)
		invoices.POST("/:id/send", handlers.Invoice.SendInvoice)
		invoices.POST("/:id/cancel", handlers.Invoice.CancelInvoice)
		invoices.POST("/:id/write-off", handlers.Invoice.WriteOffInvoice)
		invoices.POST("/:id/uncollectible", handlers.Invoice.MarkUncollectible)
	}

	payments := tenant.Group("/payments")
	{
		payments.GET("", handlers.Payment.ListPayments)
		payments.POST("", handlers.Payment.RecordPayment)
		payments.GET("/:id", handlers.Payment.GetPayment)
		payments.POST("/:id/processing", handlers.Payment.MarkProcessing)
		payments.POST("/:id/succeed", handlers.Payment.MarkSucceeded)
		payments.POST("/:id/fail", handlers.Payment.MarkFailed)
		payments.POST("/:id/cancel", handlers.Payment.CancelPayment)
		payments.POST("/:id/refund", handlers.Payment.RefundPayment)
	}

	events := tenant.Group("/events")
	{
		events.GET("", handlers.BillingEvent.ListEvents)
		events.POST("/:id/processed", handlers.BillingEvent.MarkProcessed)
	}
}
