package middleware

import (
	"context"
	"fmt"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// PyroscopeMiddleware returns a middleware that adds profiling labels to HTTP requests
func PyroscopeMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Pyroscope.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// route templates only, ids would explode label cardinality
		labelPairs := []string{
			"method", c.Request.Method,
			"endpoint", c.FullPath(),
			"handler", fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
		}
		if tenant, ok := types.GetTenant(c.Request.Context()); ok {
			labelPairs = append(labelPairs, "tenant", tenant.Slug)
		}

		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(labelPairs...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
