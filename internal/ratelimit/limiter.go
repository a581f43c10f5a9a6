package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/clinicflow/clinicflow/internal/config"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/redis/go-redis/v9"
)

// Result describes the window a request was counted in
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets
func (r Result) RetryAfter(now time.Time) int64 {
	return int64(math.Ceil(r.ResetAt.Sub(now).Seconds()))
}

// Limiter throttles requests per tenant in fixed windows
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
	logger *logger.Logger
	now    func() time.Time
}

func NewLimiter(store Store, limit int64, window time.Duration, logger *logger.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// NewLimiterFromConfig builds the configured store. redisClient is only used
// for the redis store and may be nil otherwise.
func NewLimiterFromConfig(cfg *config.Configuration, redisClient redis.UniversalClient, logger *logger.Logger) *Limiter {
	var store Store
	if cfg.RateLimit.Store == types.RateLimitStoreRedis && redisClient != nil {
		store = NewRedisStore(redisClient)
	} else {
		store = NewMemoryStore(cfg.RateLimit.Window)
	}
	return NewLimiter(store, int64(cfg.RateLimit.Requests), cfg.RateLimit.Window, logger)
}

// Allow counts one request for tenantID. It returns a RateLimited error once
// the window's budget is spent. Store failures admit the request.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (Result, error) {
	now := l.now().UTC()
	windowStart := now.Truncate(l.window)
	result := Result{
		Allowed: true,
		Limit:   l.limit,
		ResetAt: windowStart.Add(l.window),
	}

	count, err := l.store.Increment(ctx, tenantID, windowStart, l.window)
	if err != nil {
		l.logger.Warnw("rate limit store unavailable, admitting request",
			"tenant_id", tenantID,
			"error", err,
		)
		result.Remaining = l.limit
		return result, nil
	}

	result.Remaining = max(l.limit-count, 0)
	if count <= l.limit {
		return result, nil
	}

	result.Allowed = false
	retryAfter := result.RetryAfter(now)
	return result, ierr.NewError("rate limit exceeded").
		WithHintf("Too many requests, retry in %d seconds", retryAfter).
		WithReportableDetails(map[string]any{
			"limit":               l.limit,
			"retry_after_seconds": retryAfter,
			"reset_at":            result.ResetAt.Format(time.RFC3339),
		}).
		Mark(ierr.ErrRateLimited)
}
