// Package dbmigrations embeds and applies the schema for the auto-update
// monitor's drift-tracking database.
// Container records themselves stay flat-file; this is the one piece of
// state that is per-manifest/per-service and needs to survive monitor
// restarts without colliding with container records.
package dbmigrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Apply brings db up to the latest embedded schema version, factored
// through golang-migrate so future schema changes get numbered migration
// files instead of one growing CREATE TABLE statement.
func Apply(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("dbmigrations: load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("dbmigrations: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("dbmigrations: init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("dbmigrations: apply: %w", err)
	}
	return nil
}
