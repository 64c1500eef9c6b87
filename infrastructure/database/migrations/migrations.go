// Package migrations embeds the schema for targets, checks, incidents,
// prober_wallets, cooldowns and day_rollups and applies it with
// golang-migrate, the way the teacher's platform migrations embed their SQL
// (system/platform/migrations) but driven through migrate's versioned
// up/down runner instead of a flat sequential exec, since the engine's
// schema needs down-migrations for rollback during development.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
)

//go:embed sql/*.sql
var files embed.FS

// Apply runs every pending up-migration against db. It is idempotent: a
// process restarting with the schema already current returns nil.
func Apply(db *sql.DB) (err error) {
	m, merr := newMigrate(db)
	if merr != nil {
		return merr
	}
	defer func() { err = closeMigrator(m, err) }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back one migration step, used by operators reverting a bad
// schema change.
func Down(db *sql.DB) (err error) {
	m, merr := newMigrate(db)
	if merr != nil {
		return merr
	}
	defer func() { err = closeMigrator(m, err) }()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// closeMigrator releases the migrator's source and database handles,
// folding both into whatever error the caller already had with
// go-multierror (m.Close reports the source and database close failures
// separately, and dropping either silently would hide a leaked connection).
func closeMigrator(m *migrate.Migrate, existing error) error {
	srcErr, dbErr := m.Close()
	result := multierror.Append(nil, existing, srcErr, dbErr)
	return result.ErrorOrNil()
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("build migrator: %w", err)
	}
	return m, nil
}
