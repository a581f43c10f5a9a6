package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/getsentry/sentry-go"
	goCache "github.com/patrickmn/go-cache"
)

// Cache holds read-mostly catalog data. Tenant resolution and anything tenant
// scoped that must reflect status changes immediately never goes through it.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
}

const (
	PrefixPlan       = "plan:v1:"
	PrefixPublicPlan = "plan_public:v1:"
)

const defaultCleanupInterval = 10 * time.Minute

// GenerateKey joins the prefix and params with colons
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params))
	for _, param := range params {
		parts = append(parts, fmt.Sprintf("%v", param))
	}
	return prefix + strings.Join(parts, ":")
}

// InMemoryCache implements Cache on top of github.com/patrickmn/go-cache
type InMemoryCache struct {
	cache *goCache.Cache
}

func NewInMemoryCache(cfg *config.Configuration) Cache {
	return &InMemoryCache{
		cache: goCache.New(cfg.Cache.PlanTTL, defaultCleanupInterval),
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	span := startSpan(ctx, "get", key)
	defer finishSpan(span)
	return c.cache.Get(key)
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	span := startSpan(ctx, "set", key)
	defer finishSpan(span)
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) {
	c.cache.Delete(key)
}

func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) {
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

// startSpan returns nil when no Sentry hub is bound to ctx
func startSpan(ctx context.Context, operation, key string) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}
	span := sentry.StartSpan(ctx, "cache.inmemory."+operation)
	span.Op = "db.cache"
	span.SetData("key", key)
	return span
}

func finishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}
