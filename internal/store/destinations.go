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

const destinationColumns = `id, name, destination_type, config,
	config_encrypted IS NOT NULL AND config_encrypted != '' AS secrets_present,
	is_active, created_at, updated_at`

// CreateDestination inserts a new destination. secretsBlob is the
// already-encrypted secrets document, or empty when there are none.
func (s *Store) CreateDestination(ctx context.Context, d *models.Destination, secretsBlob string) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = nil
	d.SecretsPresent = secretsBlob != ""

	cfg, err := json.Marshal(d.Config)
	if err != nil {
		return models.ErrValidation.New("invalid destination config: %v", err)
	}

	const query = `
		INSERT INTO backup_destinations (id, name, destination_type, config, config_encrypted, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.Name, string(d.Type), string(cfg), nullIfEmpty(secretsBlob), d.IsActive, d.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A destination named '%s' already exists", d.Name)
		}
		return models.ErrProviderFailure.New("failed to create destination: %v", err)
	}
	return nil
}

// GetDestination fetches one destination by id.
func (s *Store) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+destinationColumns+` FROM backup_destinations WHERE id = ?`, id)

	d, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound.New("Destination not found: %s", id)
	}
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to get destination: %v", err)
	}
	return d, nil
}

// ListDestinations returns all destinations, the built-in local one first,
// the rest newest first.
func (s *Store) ListDestinations(ctx context.Context) ([]*models.Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+destinationColumns+` FROM backup_destinations
		 ORDER BY id = ? DESC, created_at DESC, id DESC`, models.LocalDestinationID)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to list destinations: %v", err)
	}
	defer rows.Close()

	destinations := make([]*models.Destination, 0)
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, models.ErrProviderFailure.New("failed to scan destination: %v", err)
		}
		destinations = append(destinations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrProviderFailure.New("failed to iterate destinations: %v", err)
	}
	return destinations, nil
}

// UpdateDestination rewrites a destination's mutable fields. The stored
// secrets blob is replaced only when secretsProvided is true.
func (s *Store) UpdateDestination(ctx context.Context, d *models.Destination, secretsProvided bool, secretsBlob string) error {
	now := time.Now().UTC()
	d.UpdatedAt = &now

	cfg, err := json.Marshal(d.Config)
	if err != nil {
		return models.ErrValidation.New("invalid destination config: %v", err)
	}

	var res sql.Result
	if secretsProvided {
		const query = `
			UPDATE backup_destinations
			SET name = ?, destination_type = ?, config = ?, config_encrypted = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
		res, err = s.db.ExecContext(ctx, query,
			d.Name, string(d.Type), string(cfg), nullIfEmpty(secretsBlob), d.IsActive, now, d.ID)
	} else {
		const query = `
			UPDATE backup_destinations
			SET name = ?, destination_type = ?, config = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
		res, err = s.db.ExecContext(ctx, query,
			d.Name, string(d.Type), string(cfg), d.IsActive, now, d.ID)
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A destination named '%s' already exists", d.Name)
		}
		return models.ErrProviderFailure.New("failed to update destination: %v", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to update destination: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Destination not found: %s", d.ID)
	}

	if secretsProvided {
		d.SecretsPresent = secretsBlob != ""
	}
	return nil
}

// DeleteDestination removes a destination. The built-in local destination
// is protected; schedule links to the deleted destination cascade away.
func (s *Store) DeleteDestination(ctx context.Context, id string) error {
	if id == models.LocalDestinationID {
		return models.ErrValidation.New("The built-in 'Local Storage' destination cannot be deleted")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_destinations WHERE id = ?`, id)
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete destination: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete destination: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Destination not found: %s", id)
	}
	return nil
}

// DestinationSecrets returns the encrypted secrets blob for a destination,
// or the empty string when none is stored.
func (s *Store) DestinationSecrets(ctx context.Context, id string) (string, error) {
	var blob sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT config_encrypted FROM backup_destinations WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound.New("Destination not found: %s", id)
	}
	if err != nil {
		return "", models.ErrProviderFailure.New("failed to read destination secrets: %v", err)
	}
	return blob.String, nil
}

func scanDestination(row scannable) (*models.Destination, error) {
	var (
		d              models.Destination
		destType       string
		rawConfig      string
		secretsPresent bool
		updatedAt      sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.Name, &destType, &rawConfig,
		&secretsPresent, &d.IsActive, &d.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Type = models.DestinationType(destType)
	d.SecretsPresent = secretsPresent
	cfg, err := models.ParseDestinationConfig([]byte(rawConfig))
	if err != nil {
		return nil, err
	}
	d.Config = cfg
	d.CreatedAt = d.CreatedAt.UTC()
	if updatedAt.Valid {
		u := updatedAt.Time.UTC()
		d.UpdatedAt = &u
	}
	return &d, nil
}
