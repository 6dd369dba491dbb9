// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/custodia/internal/models"
)

const targetColumns = `id, name, db_type, config,
	config_encrypted IS NOT NULL AND config_encrypted != '' AS secrets_present,
	is_active, created_at, updated_at`

// CreateTarget inserts a new target. secretsBlob is the already-encrypted
// secrets document, or empty when the target has no secrets. ID, CreatedAt,
// and SecretsPresent are filled on the passed struct.
func (s *Store) CreateTarget(ctx context.Context, t *models.Target, secretsBlob string) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = nil
	t.SecretsPresent = secretsBlob != ""

	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return models.ErrValidation.New("invalid target config: %v", err)
	}

	const query = `
		INSERT INTO backup_targets (id, name, db_type, config, config_encrypted, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Name, string(t.DBType), string(cfg), nullIfEmpty(secretsBlob), t.IsActive, t.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A target named '%s' already exists", t.Name)
		}
		return models.ErrProviderFailure.New("failed to create target: %v", err)
	}
	return nil
}

// GetTarget fetches one target by id.
func (s *Store) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM backup_targets WHERE id = ?`, id)

	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound.New("Target not found: %s", id)
	}
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to get target: %v", err)
	}
	return t, nil
}

// ListTargets returns all targets, newest first.
func (s *Store) ListTargets(ctx context.Context) ([]*models.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM backup_targets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to list targets: %v", err)
	}
	defer rows.Close()

	targets := make([]*models.Target, 0)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, models.ErrProviderFailure.New("failed to scan target: %v", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrProviderFailure.New("failed to iterate targets: %v", err)
	}
	return targets, nil
}

// UpdateTarget rewrites a target's mutable fields. The stored secrets blob
// is replaced only when secretsProvided is true; a provided empty blob
// clears the secrets.
func (s *Store) UpdateTarget(ctx context.Context, t *models.Target, secretsProvided bool, secretsBlob string) error {
	now := time.Now().UTC()
	t.UpdatedAt = &now

	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return models.ErrValidation.New("invalid target config: %v", err)
	}

	var res sql.Result
	if secretsProvided {
		const query = `
			UPDATE backup_targets
			SET name = ?, db_type = ?, config = ?, config_encrypted = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
		res, err = s.db.ExecContext(ctx, query,
			t.Name, string(t.DBType), string(cfg), nullIfEmpty(secretsBlob), t.IsActive, now, t.ID)
	} else {
		const query = `
			UPDATE backup_targets
			SET name = ?, db_type = ?, config = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
		res, err = s.db.ExecContext(ctx, query,
			t.Name, string(t.DBType), string(cfg), t.IsActive, now, t.ID)
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A target named '%s' already exists", t.Name)
		}
		return models.ErrProviderFailure.New("failed to update target: %v", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to update target: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Target not found: %s", t.ID)
	}

	if secretsProvided {
		t.SecretsPresent = secretsBlob != ""
	}
	return nil
}

// DeleteTarget removes a target. Schedules referencing it (and their runs)
// cascade away with it.
func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_targets WHERE id = ?`, id)
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete target: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete target: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Target not found: %s", id)
	}
	return nil
}

// TargetSecrets returns the encrypted secrets blob for a target, or the
// empty string when none is stored.
func (s *Store) TargetSecrets(ctx context.Context, id string) (string, error) {
	var blob sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT config_encrypted FROM backup_targets WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound.New("Target not found: %s", id)
	}
	if err != nil {
		return "", models.ErrProviderFailure.New("failed to read target secrets: %v", err)
	}
	return blob.String, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTarget(row scannable) (*models.Target, error) {
	var (
		t              models.Target
		dbType         string
		rawConfig      string
		secretsPresent bool
		updatedAt      sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &dbType, &rawConfig,
		&secretsPresent, &t.IsActive, &t.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	t.DBType = models.NormalizeDatabaseType(dbType)
	t.SecretsPresent = secretsPresent
	cfg, err := models.ParseTargetConfig([]byte(rawConfig))
	if err != nil {
		return nil, err
	}
	t.Config = cfg
	t.CreatedAt = t.CreatedAt.UTC()
	if updatedAt.Valid {
		u := updatedAt.Time.UTC()
		t.UpdatedAt = &u
	}
	return &t, nil
}

// nullIfEmpty maps "" to NULL so the secrets_present projection stays a
// simple NOT NULL check.
func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
