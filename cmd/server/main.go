package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/clinicflow/clinicflow/internal/api"
	"github.com/clinicflow/clinicflow/internal/api/cron"
	v1 "github.com/clinicflow/clinicflow/internal/api/v1"
	"github.com/clinicflow/clinicflow/internal/auth"
	"github.com/clinicflow/clinicflow/internal/cache"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/pubsub"
	"github.com/clinicflow/clinicflow/internal/pubsub/kafka"
	"github.com/clinicflow/clinicflow/internal/pubsub/memory"
	pubsubRouter "github.com/clinicflow/clinicflow/internal/pubsub/router"
	"github.com/clinicflow/clinicflow/internal/pyroscope"
	"github.com/clinicflow/clinicflow/internal/ratelimit"
	"github.com/clinicflow/clinicflow/internal/repository"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/service"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/clinicflow/clinicflow/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// @title ClinicFlow Billing API
// @version 1.0
// @description Tenant resolution, plans, subscriptions, usage, invoices and payments for clinics
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the token in the format **Bearer &lt;token&gt;**

// sweepInterval paces the in-process lifecycle and overdue sweeps in local mode
const sweepInterval = time.Hour

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			providePostgresClient,

			// Rate limiting
			provideRedisClient,
			ratelimit.NewLimiterFromConfig,

			// Auth
			auth.NewTokenValidator,

			// Event fan-out
			providePubSub,
			providePublisher,
			pubsubRouter.NewRouter,
		),
		sentry.Module(),
		pyroscope.Module(),
		repository.Module(),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewTenantService,
			service.NewPlanService,
			service.NewSubscriptionService,
			service.NewUsageService,
			service.NewInvoiceService,
			service.NewPaymentService,
			service.NewBillingEventService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func providePostgresClient(db *postgres.DB, sentrySvc *sentry.Service, log *logger.Logger) postgres.IClient {
	return postgres.NewSentryClient(postgres.NewClient(db), sentrySvc, log)
}

// provideRedisClient returns nil unless the limiter is configured to use redis
func provideRedisClient(cfg *config.Configuration, log *logger.Logger) (redis.UniversalClient, error) {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Store != types.RateLimitStoreRedis {
		return nil, nil
	}

	client, err := ratelimit.NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Infow("rate limiter counters stored in redis", "address", cfg.Redis.Address)
	return client, nil
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)

	switch cfg.Event.PubSub {
	case types.KafkaPubSub:
		ps, err = kafka.NewPubSub(cfg, log)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func providePublisher(ps pubsub.PubSub) pubsub.Publisher {
	return ps
}

func provideHandlers(
	logger *logger.Logger,
	planService service.PlanService,
	subscriptionService service.SubscriptionService,
	usageService service.UsageService,
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	billingEventService service.BillingEventService,
) api.Handlers {
	return api.Handlers{
		Health:           v1.NewHealthHandler(logger),
		Plan:             v1.NewPlanHandler(planService, logger),
		Subscription:     v1.NewSubscriptionHandler(subscriptionService, logger),
		Usage:            v1.NewUsageHandler(usageService, logger),
		Invoice:          v1.NewInvoiceHandler(invoiceService, logger),
		Payment:          v1.NewPaymentHandler(paymentService, logger),
		BillingEvent:     v1.NewBillingEventHandler(billingEventService, logger),
		CronSubscription: cron.NewSubscriptionHandler(subscriptionService, logger),
		CronInvoice:      cron.NewInvoiceHandler(invoiceService, logger),
	}
}

func provideRouter(
	handlers api.Handlers,
	cfg *config.Configuration,
	logger *logger.Logger,
	sentrySvc *sentry.Service,
	tenantService service.TenantService,
	limiter *ratelimit.Limiter,
	tokenValidator *auth.TokenValidator,
) *gin.Engine {
	return api.NewRouter(handlers, api.RouterParams{
		Config:         cfg,
		Logger:         logger,
		Sentry:         sentrySvc,
		TenantService:  tenantService,
		Limiter:        limiter,
		TokenValidator: tokenValidator,
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	db *postgres.DB,
	subscriptionService service.SubscriptionService,
	invoiceService service.InvoiceService,
	billingEventService service.BillingEventService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, db, log)
		startMessageRouter(lc, cfg, router, ps, billingEventService, log)
		startSweeper(lc, subscriptionService, invoiceService, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, db, log)
		startMessageRouter(lc, cfg, router, ps, billingEventService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	db *postgres.DB,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			err := srv.Shutdown(ctx)
			db.Close()
			return err
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	billingEventService service.BillingEventService,
	log *logger.Logger,
) {
	if !cfg.Event.ConsumerEnabled {
		log.Info("billing event consumer disabled")
		return
	}

	router.AddNoPublishHandler(
		"billing_event_consumer",
		cfg.Event.Topic,
		ps,
		func(msg *message.Message) error {
			return billingEventService.HandleMessage(msg)
		},
	)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting message router...")
			go func() {
				if err := router.Run(runCtx); err != nil {
					log.Errorf("Message router failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down message router...")
			cancel()
			return router.Close()
		},
	})
}

// startSweeper runs the lifecycle and overdue sweeps on a timer. Deployments
// in api mode drive the same sweeps through the cron endpoints instead.
func startSweeper(
	lc fx.Lifecycle,
	subscriptionService service.SubscriptionService,
	invoiceService service.InvoiceService,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sweep := func() {
		now := time.Now().UTC()

		lifecycle, err := subscriptionService.ProcessAllLifecycles(ctx, now)
		if err != nil {
			log.Errorw("lifecycle sweep failed", "error", err)
		} else {
			log.Infow("lifecycle sweep finished",
				"tenants", lifecycle.TenantsProcessed,
				"failed", lifecycle.Failed,
			)
		}

		overdue, err := invoiceService.MarkAllOverdueInvoices(ctx, now)
		if err != nil {
			log.Errorw("overdue sweep failed", "error", err)
		} else {
			log.Infow("overdue sweep finished",
				"tenants", overdue.TenantsProcessed,
				"failed", overdue.Failed,
			)
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(sweepInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						sweep()
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
