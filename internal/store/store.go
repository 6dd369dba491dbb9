// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package store is the persistence layer for the automation catalog: targets,
// destinations, schedules, run history, and audit events, kept in a single
// SQLite database.
//
// The store is deliberately dumb. It speaks SQL, enforces uniqueness and
// referential integrity, and round-trips the JSON documents (configs,
// retention policies, run details); validation, secret encryption, and audit
// authorship live in the layers above. Secrets arrive and leave as opaque
// encrypted blobs; read paths expose only a secrets_present boolean.
//
// Errors use the shared taxonomy: models.ErrNotFound for missing ids,
// models.ErrConflict for unique-name collisions, models.ErrValidation for
// rejected operations such as deleting the built-in local destination.
package store

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// defaultBusyTimeout bounds how long SQLite waits on a locked database
// before returning SQLITE_BUSY.
const defaultBusyTimeout = 5 * time.Second

// Store wraps the catalog database connection.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the catalog database at path, runs pending
// migrations, and seeds the built-in local destination. The parent directory
// is created when missing.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, models.ErrProviderFailure.New("failed to create catalog directory %s: %v", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	// WAL keeps readers off the writer's back; the busy timeout absorbs the
	// remaining write contention between the API and the runner.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, int(busyTimeout/time.Millisecond))

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to open catalog database: %v", err)
	}

	// The catalog sees short, infrequent statements; a single connection
	// sidesteps SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}
	if err := s.ensureLocalDestination(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies pending schema migrations.
func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return models.ErrProviderFailure.New("failed to set migration dialect: %v", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return models.ErrProviderFailure.New("failed to run migrations: %v", err)
	}
	return nil
}

// ensureLocalDestination seeds the built-in local destination. Schedules and
// the manual-backup path rely on a consistent "Local Storage" option even
// when no remote destination is configured.
func (s *Store) ensureLocalDestination(ctx context.Context) error {
	const query = `
		INSERT INTO backup_destinations (id, name, destination_type, config, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		models.LocalDestinationID, "Local Storage", string(models.DestinationLocal),
		`{"path":"`+models.DefaultLocalBackupPath+`"}`, time.Now().UTC(),
	)
	if err != nil {
		return models.ErrProviderFailure.New("failed to seed local destination: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logging.Info().Str("destination_id", models.LocalDestinationID).Msg("Seeded built-in local destination")
	}
	return nil
}

// isUniqueConstraintError reports whether an error is a unique constraint
// violation. SQLite error text carries "UNIQUE constraint failed: <table>.<col>".
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// isForeignKeyError reports whether an error is a foreign key violation.
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func closeQuietly(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close catalog database")
	}
}
