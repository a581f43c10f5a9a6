package service

import (
	"github.com/clinicflow/clinicflow/internal/cache"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/domain/billingevent"
	"github.com/clinicflow/clinicflow/internal/domain/invoice"
	"github.com/clinicflow/clinicflow/internal/domain/payment"
	"github.com/clinicflow/clinicflow/internal/domain/plan"
	"github.com/clinicflow/clinicflow/internal/domain/subscription"
	"github.com/clinicflow/clinicflow/internal/domain/tenant"
	"github.com/clinicflow/clinicflow/internal/domain/usage"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/pubsub"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache

	// Repositories
	TenantRepo       tenant.Repository
	PlanRepo         plan.Repository
	SubRepo          subscription.Repository
	InvoiceRepo      invoice.Repository
	PaymentRepo      payment.Repository
	UsageRepo        usage.Repository
	BillingEventRepo billingevent.Repository

	// Publishers
	EventPublisher pubsub.Publisher

	// PaymentMethodChecker decides trial conversion, see NewTenantSettingsPaymentMethodChecker
	PaymentMethodChecker PaymentMethodChecker
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	cache cache.Cache,
	tenantRepo tenant.Repository,
	planRepo plan.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	usageRepo usage.Repository,
	billingEventRepo billingevent.Repository,
	eventPublisher pubsub.Publisher,
) ServiceParams {
	return ServiceParams{
		Logger:               logger,
		Config:               config,
		DB:                   db,
		Cache:                cache,
		TenantRepo:           tenantRepo,
		PlanRepo:             planRepo,
		SubRepo:              subRepo,
		InvoiceRepo:          invoiceRepo,
		PaymentRepo:          paymentRepo,
		UsageRepo:            usageRepo,
		BillingEventRepo:     billingEventRepo,
		EventPublisher:       eventPublisher,
		PaymentMethodChecker: NewTenantSettingsPaymentMethodChecker(tenantRepo),
	}
}
