package v1

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

// tenantID is the tenant the resolver attached, RequireTenant guarantees it is set
func tenantID(c *gin.Context) string {
	return types.GetTenantID(c.Request.Context())
}

func defaultQueryFilter(f *types.QueryFilter) *types.QueryFilter {
	if f == nil {
		return types.NewDefaultQueryFilter()
	}
	return f
}

// bindOptional binds a JSON body only when the request carries one
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength <= 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return false
	}
	return true
}
