package internal

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/auth"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

const defaultTokenTTL = 24 * time.Hour

// GenerateAPIToken signs a bearer token for USER_ID. TENANT_ID pins the
// token to one tenant and ROLES is a comma separated role list.
func GenerateAPIToken() error {
	userID := os.Getenv("USER_ID")
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ttl := defaultTokenTTL
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid token ttl: %w", err)
		}
	}

	roles := lo.Compact(lo.Map(strings.Split(os.Getenv("ROLES"), ","), func(r string, _ int) string {
		return strings.TrimSpace(r)
	}))

	token, err := auth.NewTokenValidator(cfg).GenerateToken(types.Claims{
		UserID:   userID,
		TenantID: os.Getenv("TENANT_ID"),
		Roles:    roles,
	}, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
