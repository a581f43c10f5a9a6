package middleware

import (
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

// PermissionMiddleware gates routes on roles carried by the identity claims
type PermissionMiddleware struct {
	logger *logger.Logger
}

func NewPermissionMiddleware(logger *logger.Logger) *PermissionMiddleware {
	return &PermissionMiddleware{logger: logger}
}

// RequireRole aborts with PermissionDenied unless the caller holds role
func (pm *PermissionMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := types.GetClaims(c.Request.Context())
		if !ok || !claims.HasRole(role) {
			pm.logger.Infow("permission denied",
				"user_id", types.GetUserID(c.Request.Context()),
				"role", role,
				"path", c.Request.URL.Path,
			)
			c.Error(ierr.NewError("missing role "+role).
				WithHintf("The %s role is required for this operation", role).
				Mark(ierr.ErrPermissionDenied))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (pm *PermissionMiddleware) RequireAdmin() gin.HandlerFunc {
	return pm.RequireRole(types.RoleAdmin)
}
