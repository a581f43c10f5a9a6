package internal

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/usage"
	"github.com/clinicflow/clinicflow/internal/repository"
	"github.com/clinicflow/clinicflow/internal/sentry"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultSeedCount = 100
	defaultSeedRate  = 20
)

// SeedUsage writes SEED_COUNT random daily usage samples for TENANT_ID over
// the last 30 days, paced at SEED_RATE inserts per second. Samples go straight
// to the configured usage store and do not raise overage events.
func SeedUsage() error {
	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	count, err := envInt("SEED_COUNT", defaultSeedCount)
	if err != nil {
		return err
	}
	perSecond, err := envInt("SEED_RATE", defaultSeedRate)
	if err != nil {
		return err
	}

	e := setup()
	defer e.close()

	repo, err := repository.NewUsageRepository(repository.RepositoryParams{
		Config: e.cfg,
		DB:     e.db,
		Logger: e.logger,
		Sentry: sentry.NewSentryService(e.cfg, e.logger),
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		start := today.AddDate(0, 0, -rand.Intn(30))
		m := &usage.UsageMetric{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE),
			TenantID:    tenantID,
			MetricType:  types.MetricTypes[i%len(types.MetricTypes)],
			Value:       decimal.NewFromInt(rand.Int63n(10) + 1),
			Unit:        "count",
			PeriodStart: start,
			PeriodEnd:   start.Add(24 * time.Hour),
			RecordedAt:  time.Now().UTC(),
			CreatedBy:   "seed",
		}
		if err := repo.Create(ctx, m); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}

		if (i+1)%50 == 0 {
			e.logger.Infow("seeded usage samples", "count", i+1, "tenant_id", tenantID)
		}
	}

	e.logger.Infow("usage seeding finished", "count", count, "tenant_id", tenantID)
	return nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}
