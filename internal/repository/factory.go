package repository

import (
	"github.com/clinicflow/clinicflow/internal/clickhouse"
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
	clickhouseRepo "github.com/clinicflow/clinicflow/internal/repository/clickhouse"
	postgresRepo "github.com/clinicflow/clinicflow/internal/repository/postgres"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/types"
	"go.uber.org/fx"
)

type RepositoryParams struct {
	fx.In

	Config *config.Configuration
	DB     *postgres.DB
	Logger *logger.Logger
	Sentry *sentry.Service
}

func NewTenantRepository(p RepositoryParams) tenant.Repository {
	return postgresRepo.NewTenantRepository(p.DB, p.Logger)
}

func NewPlanRepository(p RepositoryParams) plan.Repository {
	return postgresRepo.NewPlanRepository(p.DB, p.Logger)
}

func NewSubscriptionRepository(p RepositoryParams) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(p.DB, p.Logger)
}

func NewInvoiceRepository(p RepositoryParams) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(p.DB, p.Logger)
}

func NewPaymentRepository(p RepositoryParams) payment.Repository {
	return postgresRepo.NewPaymentRepository(p.DB, p.Logger)
}

func NewBillingEventRepository(p RepositoryParams) billingevent.Repository {
	return postgresRepo.NewBillingEventRepository(p.DB, p.Logger)
}

// NewUsageRepository picks the configured usage store. ClickHouse is opened
// lazily so deployments on the Postgres store never dial it.
func NewUsageRepository(p RepositoryParams) (usage.Repository, error) {
	if p.Config.Usage.Store != types.UsageStoreClickHouse {
		return postgresRepo.NewUsageRepository(p.DB, p.Logger), nil
	}

	store, err := clickhouse.NewClickHouseStore(p.Config, p.Sentry)
	if err != nil {
		return nil, err
	}
	p.Logger.Infow("usage metrics stored in clickhouse", "address", p.Config.ClickHouse.Address)
	return clickhouseRepo.NewUsageRepository(store, p.Logger), nil
}

// Module provides every repository to the fx graph
func Module() fx.Option {
	return fx.Provide(
		NewTenantRepository,
		NewPlanRepository,
		NewSubscriptionRepository,
		NewInvoiceRepository,
		NewPaymentRepository,
		NewBillingEventRepository,
		NewUsageRepository,
	)
}
