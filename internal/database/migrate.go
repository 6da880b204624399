// Package database provides a versioned migration runner over
// golang-migrate for the articles/usage_monthly schema. Grounded on the
// teacher's database.MigrationRunner (internal/database/migrate.go),
// trimmed to PostgreSQL only and to the SQL files under migrations/.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// MigrationConfig holds configuration for the migration runner.
type MigrationConfig struct {
	DatabaseURL    string
	MigrationsPath string
	Logger         *log.Logger
}

// MigrationRunner applies or rolls back the SQL migrations under
// MigrationsPath against a PostgreSQL database.
type MigrationRunner struct {
	config  *MigrationConfig
	migrate *migrate.Migrate
	db      *sql.DB
}

// MigrationStatus reports the current schema_migrations state.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

// NewMigrationRunner opens config.DatabaseURL and prepares a migrate.Migrate
// instance sourced from config.MigrationsPath (defaults to ./migrations).
func NewMigrationRunner(config *MigrationConfig) (*MigrationRunner, error) {
	if config == nil {
		return nil, errors.New("migration config is required")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stdout, "[migrate] ", log.LstdFlags)
	}
	if config.MigrationsPath == "" {
		config.MigrationsPath = "./migrations"
	}

	migrationsPath, err := filepath.Abs(config.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}
	config.MigrationsPath = migrationsPath

	r := &MigrationRunner{config: config}
	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MigrationRunner) initialize() error {
	var err error
	r.db, err = sql.Open("postgres", r.config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceURL := fmt.Sprintf("file://%s", r.config.MigrationsPath)
	r.migrate, err = migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	return nil
}

// Up applies all pending migrations.
func (r *MigrationRunner) Up() error {
	r.config.Logger.Println("applying pending migrations")
	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.config.Logger.Println("no migrations to apply")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, _ := r.migrate.Version()
	r.config.Logger.Printf("migrations applied, current version: %d (dirty: %v)", version, dirty)
	return nil
}

// Down rolls back the last applied migration.
func (r *MigrationRunner) Down() error {
	r.config.Logger.Println("rolling back last migration")
	if err := r.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.config.Logger.Println("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("rollback failed: %w", err)
	}
	version, dirty, _ := r.migrate.Version()
	r.config.Logger.Printf("rollback complete, current version: %d (dirty: %v)", version, dirty)
	return nil
}

// DownAll rolls back every migration.
func (r *MigrationRunner) DownAll() error {
	r.config.Logger.Println("rolling back all migrations")
	if err := r.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.config.Logger.Println("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("rollback all failed: %w", err)
	}
	r.config.Logger.Println("all migrations rolled back")
	return nil
}

// Version returns the current migration version.
func (r *MigrationRunner) Version() (MigrationStatus, error) {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, err
	}
	return MigrationStatus{Version: version, Dirty: dirty, Applied: version > 0}, nil
}

// Force sets the migration version without running any migration, for
// recovering from a dirty state.
func (r *MigrationRunner) Force(version int) error {
	r.config.Logger.Printf("forcing version to %d", version)
	if err := r.migrate.Force(version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	return nil
}

// Close releases the migration instance and its database connection.
func (r *MigrationRunner) Close() error {
	if r.migrate == nil {
		return nil
	}
	srcErr, dbErr := r.migrate.Close()
	if srcErr != nil {
		return fmt.Errorf("failed to close source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
