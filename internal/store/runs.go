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

const runColumns = `id, schedule_id, status, started_at, finished_at, backup_filename, details, error_message`

// RunFilter narrows and pages ListRuns. Limit <= 0 means no limit.
type RunFilter struct {
	Limit        int
	Offset       int
	IncludeTotal bool
}

// CreateRun inserts a new run in started state. ID and StartedAt are filled
// on the passed struct when empty.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.StatusStarted
	}

	details, err := json.Marshal(run.Details)
	if err != nil {
		return models.ErrValidation.New("invalid run details: %v", err)
	}

	const query = `
		INSERT INTO backup_runs (id, schedule_id, status, started_at, backup_filename, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.ScheduleID, string(run.Status), run.StartedAt.UTC(),
		nullIfEmpty(run.BackupFilename), string(details), nullIfEmpty(run.ErrorMessage))
	if err != nil {
		if isForeignKeyError(err) {
			return models.ErrNotFound.New("Schedule not found: %s", derefOr(run.ScheduleID, ""))
		}
		return models.ErrProviderFailure.New("failed to create run: %v", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM backup_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound.New("Run not found: %s", id)
	}
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to get run: %v", err)
	}
	return run, nil
}

// FinishRun writes a run's terminal fields: status, finished_at,
// backup_filename, details, and error_message.
func (s *Store) FinishRun(ctx context.Context, run *models.Run) error {
	details, err := json.Marshal(run.Details)
	if err != nil {
		return models.ErrValidation.New("invalid run details: %v", err)
	}

	const query = `
		UPDATE backup_runs
		SET status = ?, finished_at = ?, backup_filename = ?, details = ?, error_message = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(run.Status), nullableTime(run.FinishedAt),
		nullIfEmpty(run.BackupFilename), string(details), nullIfEmpty(run.ErrorMessage), run.ID)
	if err != nil {
		return models.ErrProviderFailure.New("failed to finish run: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to finish run: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Run not found: %s", run.ID)
	}
	return nil
}

// ListRuns returns runs newest first. The returned total is the unpaged
// count when filter.IncludeTotal is set, otherwise zero.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM backup_runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ? OFFSET ?`, limit, filter.Offset)
	if err != nil {
		return nil, 0, models.ErrProviderFailure.New("failed to list runs: %v", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, models.ErrProviderFailure.New("failed to scan run: %v", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, models.ErrProviderFailure.New("failed to iterate runs: %v", err)
	}

	total := 0
	if filter.IncludeTotal {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM backup_runs`).Scan(&total); err != nil {
			return nil, 0, models.ErrProviderFailure.New("failed to count runs: %v", err)
		}
	}
	return runs, total, nil
}

// DeleteRun removes one run record.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_runs WHERE id = ?`, id)
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete run: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete run: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Run not found: %s", id)
	}
	return nil
}

func scanRun(row scannable) (*models.Run, error) {
	var (
		run            models.Run
		scheduleID     sql.NullString
		status         string
		finishedAt     sql.NullTime
		backupFilename sql.NullString
		rawDetails     string
		errorMessage   sql.NullString
	)
	if err := row.Scan(&run.ID, &scheduleID, &status, &run.StartedAt,
		&finishedAt, &backupFilename, &rawDetails, &errorMessage); err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	if scheduleID.Valid {
		v := scheduleID.String
		run.ScheduleID = &v
	}
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		v := finishedAt.Time.UTC()
		run.FinishedAt = &v
	}
	run.BackupFilename = backupFilename.String
	run.ErrorMessage = errorMessage.String
	if rawDetails != "" {
		if err := json.Unmarshal([]byte(rawDetails), &run.Details); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
