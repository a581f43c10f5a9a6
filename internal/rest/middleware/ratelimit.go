package middleware

import (
	"strconv"

	"github.com/clinicflow/clinicflow/internal/ratelimit"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimitMiddleware counts every request against the resolved tenant's
// window. Requests without a tenant are not counted.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := types.GetTenantID(c.Request.Context())
		if limiter == nil || tenantID == "" {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), tenantID)
		c.Header(headerRateLimitLimit, strconv.FormatInt(result.Limit, 10))
		c.Header(headerRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
		c.Header(headerRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Next()
	}
}
