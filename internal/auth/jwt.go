package auth

import (
	"fmt"
	"time"

	"github.com/clinicflow/clinicflow/internal/config"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/golang-jwt/jwt/v4"
)

// TokenValidator verifies HS256 tokens issued by the identity service
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(cfg *config.Configuration) *TokenValidator {
	return &TokenValidator{secret: []byte(cfg.Auth.Secret)}
}

func (v *TokenValidator) ValidateToken(token string) (*types.Claims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid token").
			Mark(ierr.ErrUnauthorized)
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthorized)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrUnauthorized)
	}

	result := &types.Claims{UserID: userID}
	result.TenantID, _ = claims["tenant_id"].(string)
	result.TenantSlug, _ = claims["tenant_slug"].(string)
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, role := range roles {
			if s, ok := role.(string); ok {
				result.Roles = append(result.Roles, s)
			}
		}
	}
	return result, nil
}

// GenerateToken signs claims valid for ttl. Production tokens come from the
// identity service; this is used by local tooling and tests.
func (v *TokenValidator) GenerateToken(c types.Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": c.UserID,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if c.TenantID != "" {
		claims["tenant_id"] = c.TenantID
	}
	if c.TenantSlug != "" {
		claims["tenant_slug"] = c.TenantSlug
	}
	if len(c.Roles) > 0 {
		claims["roles"] = c.Roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
