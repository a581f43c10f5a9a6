package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clinicflow/clinicflow/scripts/internal"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "onboard-tenant",
		Description: "Create a new active clinic tenant",
		Run:         internal.OnboardNewTenant,
	},
	{
		Name:        "set-tenant-status",
		Description: "Activate or deactivate a tenant",
		Run:         internal.SetTenantStatus,
	},
	{
		Name:        "seed-usage",
		Description: "Seed random usage samples for a tenant",
		Run:         internal.SeedUsage,
	},
	{
		Name:        "generate-token",
		Description: "Sign a bearer token for local testing",
		Run:         internal.GenerateAPIToken,
	},
}

func main() {
	var (
		listCommands  bool
		cmdName       string
		tenantSlug    string
		tenantName    string
		tenantID      string
		tenantStatus  string
		userID        string
		roles         string
		ttl           string
		seedCount     string
		seedRate      string
		paymentOnFile bool
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&tenantSlug, "tenant-slug", "", "Tenant slug, also its subdomain")
	flag.StringVar(&tenantName, "tenant-name", "", "Tenant display name")
	flag.StringVar(&tenantID, "tenant-id", "", "Tenant ID for operations")
	flag.StringVar(&tenantStatus, "tenant-status", "", "Tenant status: active or inactive")
	flag.StringVar(&userID, "user-id", "", "User ID for operations")
	flag.StringVar(&roles, "roles", "", "Comma separated roles for the token")
	flag.StringVar(&ttl, "ttl", "", "Token lifetime, e.g. 24h")
	flag.StringVar(&seedCount, "count", "", "Number of usage samples to seed")
	flag.StringVar(&seedRate, "rate", "", "Usage samples inserted per second")
	flag.BoolVar(&paymentOnFile, "payment-method-on-file", false, "Mark the tenant as having a payment method")

	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-20s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	// Set command-specific environment variables
	setenv := map[string]string{
		"TENANT_SLUG":   tenantSlug,
		"TENANT_NAME":   tenantName,
		"TENANT_ID":     tenantID,
		"TENANT_STATUS": tenantStatus,
		"USER_ID":       userID,
		"ROLES":         roles,
		"TOKEN_TTL":     ttl,
		"SEED_COUNT":    seedCount,
		"SEED_RATE":     seedRate,
	}
	for k, v := range setenv {
		if v != "" {
			os.Setenv(k, v)
		}
	}
	if paymentOnFile {
		os.Setenv("PAYMENT_METHOD_ON_FILE", "true")
	}

	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Error running command %s: %v", cmdName, err)
			}
			return
		}
	}

	log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
}
