package cache

import (
	"context"
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(config.GetDefaultConfig())

	c.Set(ctx, GenerateKey(PrefixPlan, "plan_1"), "basic", 0)
	c.Set(ctx, GenerateKey(PrefixPlan, "plan_2"), "pro", time.Minute)
	c.Set(ctx, GenerateKey(PrefixPublicPlan, "all"), []string{"plan_1"}, 0)

	v, ok := c.Get(ctx, "plan:v1:plan_1")
	assert.True(t, ok)
	assert.Equal(t, "basic", v)

	c.DeleteByPrefix(ctx, PrefixPlan)
	_, ok = c.Get(ctx, "plan:v1:plan_2")
	assert.False(t, ok)

	_, ok = c.Get(ctx, GenerateKey(PrefixPublicPlan, "all"))
	assert.True(t, ok)
}
