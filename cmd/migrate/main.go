package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/migration"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "List the migrations on disk without connecting")
	dir := flag.String("dir", "migrations", "Directory holding the postgres and clickhouse migration folders")
	steps := flag.Int("steps", 0, "Apply n migrations, or roll back n when negative. Zero applies all pending")
	force := flag.Int("force", -1, "Mark a version as applied to clear a dirty state")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	pgDir := filepath.Join(*dir, "postgres")
	chDir := filepath.Join(*dir, "clickhouse")
	withClickHouse := cfg.Usage.Store == types.UsageStoreClickHouse

	if *dryRun {
		logger.Info("Dry run mode - listing migrations without executing")
		dirs := []string{pgDir}
		if withClickHouse {
			dirs = append(dirs, chDir)
		}
		for _, d := range dirs {
			files, err := migration.ListFiles(d)
			if err != nil {
				logger.Fatalw("Failed to read migrations", "dir", d, "error", err)
			}
			for _, f := range files {
				fmt.Printf("%s\t%03d\t%s\n", d, f.Version, f.Name)
			}
		}
		return
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}

	pg, err := migration.NewPostgres(db.DB.DB, pgDir, logger)
	if err != nil {
		logger.Fatalw("Failed to prepare postgres migrations", "error", err)
	}
	defer pg.Close()

	if err := run(pg, *steps, *force); err != nil {
		logger.Fatalw("Failed to apply postgres migrations", "error", err)
	}

	if withClickHouse {
		ch, err := migration.NewClickHouse(clickhouse_go.OpenDB(cfg.ClickHouse.GetClientOptions()), chDir, logger)
		if err != nil {
			logger.Fatalw("Failed to prepare clickhouse migrations", "error", err)
		}
		defer ch.Close()

		if err := run(ch, *steps, *force); err != nil {
			logger.Fatalw("Failed to apply clickhouse migrations", "error", err)
		}
	}

	logger.Info("Migration completed successfully")
}

func run(m *migration.Migrator, steps, force int) error {
	switch {
	case force >= 0:
		return m.Force(force)
	case steps != 0:
		return m.Steps(steps)
	default:
		return m.Up()
	}
}
