package internal

import (
	"log"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
)

// env bundles what every script needs. Scripts read their arguments from
// environment variables set by main.
type env struct {
	cfg    *config.Configuration
	logger *logger.Logger
	db     *postgres.DB
}

func setup() *env {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}

	return &env{cfg: cfg, logger: logger, db: db}
}

func (e *env) close() {
	e.db.Close()
}
