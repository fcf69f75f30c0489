package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var sqlSchemas embed.FS

// migrationsTable tracks the applied schema version.
const migrationsTable = "journal_migrations"

// applyMigrations brings the schema of db up to the latest embedded version.
func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(sqlSchemas, "migrations")
	if err != nil {
		return fmt.Errorf("unable to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("unable to create migration driver: %w", err)
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"iofs", source, "sqlite", driver,
	)
	if err != nil {
		return fmt.Errorf("unable to create migration: %w", err)
	}

	version, _, err := sqlMigrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to read schema version: %w", err)
	}

	log.Infof("Applying migrations from version=%v", version)

	// The migrate instance is not closed: closing it would close db.
	err = sqlMigrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	return nil
}
