package middleware

import (
	"net/http"
	"strings"

	"github.com/clinicflow/clinicflow/internal/auth"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/gin-gonic/gin"
)

// AuthenticateMiddleware attaches the identity claims of a Bearer token.
// Requests without an Authorization header continue anonymously and are
// turned away by RequireAuth on private routes. A malformed or invalid token
// is rejected.
func AuthenticateMiddleware(validator *auth.TokenValidator, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			c.Next()
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			logger.Debugw("failed to validate token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(types.SetClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireAuth rejects anonymous requests
func RequireAuth(c *gin.Context) {
	if _, ok := types.GetClaims(c.Request.Context()); !ok {
		c.Error(ierr.NewError("missing credentials").
			WithHint("Please provide a valid bearer token").
			Mark(ierr.ErrUnauthorized))
		c.Abort()
		return
	}
	c.Next()
}
