package datalayer

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glizzus/mustard/internal/config"
	"github.com/golang-migrate/migrate/v4"
	sqliteMigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens the database file named by cfg, creating its directory
// if needed. The pool holds a single connection.
func OpenSQLite(cfg *config.SQLiteConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return db, nil
}

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

// MigrateSQLite applies the embedded schema. It leaves db open.
func MigrateSQLite(db *sql.DB) (err error) {
	driver, derr := sqliteMigrate.WithInstance(db, &sqliteMigrate.Config{})
	if derr != nil {
		return derr
	}

	src, serr := iofs.New(sqliteMigrationsFS, "migrations/sqlite")
	if serr != nil {
		return serr
	}

	defer func() {
		err = errors.Join(err, src.Close())
	}()

	// Closing m would also close db, so only the source is released.
	m, merr := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if merr != nil {
		return merr
	}

	if upErr := m.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}
	return nil
}
