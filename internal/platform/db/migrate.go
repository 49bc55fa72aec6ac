package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// Schema versions. The polygon tier arrived in version 2; databases still
// at version 1 are served through the rectangle tier alone.
const (
	VersionRooms    uint = 1
	VersionPolygons uint = 2
	VersionLights   uint = 3
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded SQLite migration set.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		// embed guarantees the directory exists.
		panic(err)
	}
	return sub
}

// MigrateUp applies all pending migrations from src.
func MigrateUp(db *sql.DB, src fs.FS) error {
	m, err := newMigrate(db, src)
	if err != nil {
		return err
	}
	// Closing m would close db as well.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateTo moves the schema up or down to version.
func MigrateTo(db *sql.DB, src fs.FS, version uint) error {
	m, err := newMigrate(db, src)
	if err != nil {
		return err
	}

	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}
	return nil
}

// MigrationVersion returns the applied version, or 0 for a fresh database.
func MigrationVersion(db *sql.DB, src fs.FS) (uint, bool, error) {
	m, err := newMigrate(db, src)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(db *sql.DB, src fs.FS) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migrate: db is nil")
	}

	source, err := iofs.New(src, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate: create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate: create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
