package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator applies the versioned schema of one store
type Migrator struct {
	migrate *migrate.Migrate
	name    string
	logger  *logger.Logger
}

// NewPostgres migrates the billing schema through an open postgres handle
func NewPostgres(db *sql.DB, dir string, logger *logger.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	return newMigrator("postgres", driver, dir, logger)
}

// NewClickHouse migrates the usage tables. Files may hold several statements.
func NewClickHouse(db *sql.DB, dir string, logger *logger.Logger) (*Migrator, error) {
	driver, err := clickhouse.WithInstance(db, &clickhouse.Config{
		MultiStatementEnabled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create clickhouse driver: %w", err)
	}
	return newMigrator("clickhouse", driver, dir, logger)
}

func newMigrator(name string, driver database.Driver, dir string, logger *logger.Logger) (*Migrator, error) {
	m, err := migrate.NewWithDatabaseInstance(sourceURL(dir), name, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migrate instance: %w", name, err)
	}

	return &Migrator{
		migrate: m,
		name:    name,
		logger:  logger.With("store", name),
	}, nil
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	m.logger.Info("Running migrations up")

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s migration up failed: %w", m.name, err)
	}

	return m.logVersion("Migrations completed")
}

// Steps applies n migrations, rolling back when n is negative
func (m *Migrator) Steps(n int) error {
	m.logger.Infow("Running migration steps", "steps", n)

	err := m.migrate.Steps(n)
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s migration steps failed: %w", m.name, err)
	}

	return m.logVersion("Migration steps completed")
}

// Version returns the applied version, zero when nothing ran yet
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s migration version: %w", m.name, err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. Used to clear
// a dirty state after a failed migration was repaired by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warnw("Forcing migration version", "version", version)

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force %s version %d: %w", m.name, version, err)
	}
	return nil
}

func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}

func (m *Migrator) logVersion(msg string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Infow(msg, "version", version, "dirty", dirty)
	return nil
}

// File is one versioned migration found on disk
type File struct {
	Version uint
	Name    string
}

// ListFiles walks the migrations in dir in version order without touching a
// database. Every version must carry both an up and a down file.
func ListFiles(dir string) ([]File, error) {
	src, err := source.Open(sourceURL(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations in %s: %w", dir, err)
	}
	defer src.Close()

	var files []File
	version, err := src.First()
	for err == nil {
		f, readErr := readFile(src, version)
		if readErr != nil {
			return nil, readErr
		}
		files = append(files, f)
		version, err = src.Next(version)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return files, nil
}

func readFile(src source.Driver, version uint) (File, error) {
	up, upName, err := src.ReadUp(version)
	if err != nil {
		return File{}, fmt.Errorf("version %d has no up migration: %w", version, err)
	}
	up.Close()

	down, _, err := src.ReadDown(version)
	if err != nil {
		return File{}, fmt.Errorf("version %d has no down migration: %w", version, err)
	}
	down.Close()

	return File{Version: version, Name: upName}, nil
}

func sourceURL(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return "file://" + filepath.ToSlash(abs)
}
