// Package persist is the durable collaborator around the in-memory store:
// it snapshots sessions and integration state to SQLite. The engines never
// call it; the surrounding application loads the store at startup and saves
// after mutations and sync passes.
package persist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/studyplan/internal/planner/persist/migrations"
)

// DB wraps the SQLite handle and its repositories.
type DB struct {
	db *sql.DB

	Sessions    *SessionRepository
	Integration *IntegrationRepository
}

// Open opens (creating if needed) the SQLite database at dsn and applies
// pending migrations.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{
		db:          db,
		Sessions:    NewSessionRepository(db),
		Integration: NewIntegrationRepository(db),
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (d *DB) Close() error {
	return d.db.Close()
}
