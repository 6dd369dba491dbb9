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
	"github.com/jmoiron/sqlx"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

const scheduleColumns = `s.id, s.name, s.target_id, t.name AS target_name,
	s.enabled, s.interval_seconds, s.next_run_at, s.last_run_at,
	s.retention, s.created_at, s.updated_at`

const scheduleFrom = ` FROM backup_schedules s
	JOIN backup_targets t ON t.id = s.target_id`

// CreateSchedule inserts a schedule and its destination links in one
// transaction. Destination order is preserved on read. ID and CreatedAt are
// filled on the passed struct.
func (s *Store) CreateSchedule(ctx context.Context, sch *models.Schedule) (err error) {
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	sch.CreatedAt = time.Now().UTC()
	sch.UpdatedAt = nil

	retention, err := json.Marshal(sch.Retention)
	if err != nil {
		return models.ErrValidation.New("invalid retention policy: %v", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ErrProviderFailure.New("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	const query = `
		INSERT INTO backup_schedules
			(id, name, target_id, enabled, interval_seconds, next_run_at, last_run_at, retention, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		sch.ID, sch.Name, sch.TargetID, sch.Enabled, sch.IntervalSeconds,
		nullableTime(sch.NextRunAt), nullableTime(sch.LastRunAt), string(retention), sch.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A schedule named '%s' already exists", sch.Name)
		}
		if isForeignKeyError(err) {
			return models.ErrNotFound.New("Target not found: %s", sch.TargetID)
		}
		return models.ErrProviderFailure.New("failed to create schedule: %v", err)
	}

	if err := insertScheduleLinks(ctx, tx, sch.ID, sch.DestinationIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.ErrProviderFailure.New("failed to commit schedule: %v", err)
	}
	return nil
}

// GetSchedule fetches one schedule by id, with target name and destination
// links filled.
func (s *Store) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+scheduleFrom+` WHERE s.id = ?`, id)

	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound.New("Schedule not found: %s", id)
	}
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to get schedule: %v", err)
	}
	if err := s.attachDestinations(ctx, []*models.Schedule{sch}); err != nil {
		return nil, err
	}
	return sch, nil
}

// ListSchedules returns all schedules, newest first, with target names and
// destination links filled.
func (s *Store) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+scheduleFrom+` ORDER BY s.created_at DESC, s.id DESC`)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to list schedules: %v", err)
	}
	defer rows.Close()

	schedules := make([]*models.Schedule, 0)
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, models.ErrProviderFailure.New("failed to scan schedule: %v", err)
		}
		schedules = append(schedules, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrProviderFailure.New("failed to iterate schedules: %v", err)
	}
	if err := s.attachDestinations(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateSchedule rewrites a schedule's mutable fields and replaces its
// destination links.
func (s *Store) UpdateSchedule(ctx context.Context, sch *models.Schedule) (err error) {
	now := time.Now().UTC()
	sch.UpdatedAt = &now

	retention, err := json.Marshal(sch.Retention)
	if err != nil {
		return models.ErrValidation.New("invalid retention policy: %v", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ErrProviderFailure.New("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	const query = `
		UPDATE backup_schedules
		SET name = ?, target_id = ?, enabled = ?, interval_seconds = ?,
			next_run_at = ?, last_run_at = ?, retention = ?, updated_at = ?
		WHERE id = ?`

	res, err := tx.ExecContext(ctx, query,
		sch.Name, sch.TargetID, sch.Enabled, sch.IntervalSeconds,
		nullableTime(sch.NextRunAt), nullableTime(sch.LastRunAt), string(retention), now, sch.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrConflict.New("A schedule named '%s' already exists", sch.Name)
		}
		if isForeignKeyError(err) {
			return models.ErrNotFound.New("Target not found: %s", sch.TargetID)
		}
		return models.ErrProviderFailure.New("failed to update schedule: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to update schedule: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Schedule not found: %s", sch.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_schedule_destinations WHERE schedule_id = ?`, sch.ID); err != nil {
		return models.ErrProviderFailure.New("failed to replace schedule destinations: %v", err)
	}
	if err := insertScheduleLinks(ctx, tx, sch.ID, sch.DestinationIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.ErrProviderFailure.New("failed to commit schedule: %v", err)
	}
	return nil
}

// DeleteSchedule removes a schedule; its runs and destination links cascade.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_schedules WHERE id = ?`, id)
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete schedule: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to delete schedule: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Schedule not found: %s", id)
	}
	return nil
}

// DueSchedules returns up to limit enabled schedules whose next_run_at is
// unset or at/before now, soonest first. Schedules with no next_run_at sort
// ahead of dated ones.
func (s *Store) DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+scheduleFrom+`
		 WHERE s.enabled = 1 AND (s.next_run_at IS NULL OR s.next_run_at <= ?)
		 ORDER BY s.next_run_at ASC
		 LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to query due schedules: %v", err)
	}
	defer rows.Close()

	schedules := make([]*models.Schedule, 0)
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, models.ErrProviderFailure.New("failed to scan schedule: %v", err)
		}
		schedules = append(schedules, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrProviderFailure.New("failed to iterate due schedules: %v", err)
	}
	if err := s.attachDestinations(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// SetScheduleRunTimes records run bookkeeping after an execution attempt.
// Both columns are written as given; nil clears.
func (s *Store) SetScheduleRunTimes(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		nullableTime(lastRunAt), nullableTime(nextRunAt), time.Now().UTC(), id)
	if err != nil {
		return models.ErrProviderFailure.New("failed to update schedule run times: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to update schedule run times: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Schedule not found: %s", id)
	}
	return nil
}

// insertScheduleLinks writes the schedule→destination join rows. Insertion
// order fixes the read order (rowid).
func insertScheduleLinks(ctx context.Context, tx *sqlx.Tx, scheduleID string, destinationIDs []string) error {
	const query = `
		INSERT INTO backup_schedule_destinations (schedule_id, destination_id)
		VALUES (?, ?)`
	for _, destID := range destinationIDs {
		if _, err := tx.ExecContext(ctx, query, scheduleID, destID); err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrValidation.New("Duplicate destination id: %s", destID)
			}
			if isForeignKeyError(err) {
				return models.ErrNotFound.New("Destination not found: %s", destID)
			}
			return models.ErrProviderFailure.New("failed to link destination %s: %v", destID, err)
		}
	}
	return nil
}

// attachDestinations fills DestinationIDs and Destinations for all given
// schedules with a single query, preserving link insertion order.
func (s *Store) attachDestinations(ctx context.Context, schedules []*models.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}

	ids := make([]string, len(schedules))
	byID := make(map[string]*models.Schedule, len(schedules))
	for i, sch := range schedules {
		ids[i] = sch.ID
		byID[sch.ID] = sch
		sch.DestinationIDs = make([]string, 0)
		sch.Destinations = make([]models.DestinationRef, 0)
	}

	query, args, err := sqlx.In(`
		SELECT sd.schedule_id, d.id, d.name, d.destination_type
		FROM backup_schedule_destinations sd
		JOIN backup_destinations d ON d.id = sd.destination_id
		WHERE sd.schedule_id IN (?)
		ORDER BY sd.rowid`, ids)
	if err != nil {
		return models.ErrProviderFailure.New("failed to build destination query: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return models.ErrProviderFailure.New("failed to load schedule destinations: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scheduleID string
		var ref models.DestinationRef
		var destType string
		if err := rows.Scan(&scheduleID, &ref.ID, &ref.Name, &destType); err != nil {
			return models.ErrProviderFailure.New("failed to scan schedule destination: %v", err)
		}
		ref.Type = models.DestinationType(destType)
		if sch, ok := byID[scheduleID]; ok {
			sch.DestinationIDs = append(sch.DestinationIDs, ref.ID)
			sch.Destinations = append(sch.Destinations, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return models.ErrProviderFailure.New("failed to iterate schedule destinations: %v", err)
	}
	return nil
}

func scanSchedule(row scannable) (*models.Schedule, error) {
	var (
		sch          models.Schedule
		nextRunAt    sql.NullTime
		lastRunAt    sql.NullTime
		rawRetention string
		updatedAt    sql.NullTime
	)
	if err := row.Scan(&sch.ID, &sch.Name, &sch.TargetID, &sch.TargetName,
		&sch.Enabled, &sch.IntervalSeconds, &nextRunAt, &lastRunAt,
		&rawRetention, &sch.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	if rawRetention == "" {
		sch.Retention = models.DefaultRetentionPolicy()
	} else if err := json.Unmarshal([]byte(rawRetention), &sch.Retention); err != nil {
		return nil, err
	}

	sch.CreatedAt = sch.CreatedAt.UTC()
	if nextRunAt.Valid {
		v := nextRunAt.Time.UTC()
		sch.NextRunAt = &v
	}
	if lastRunAt.Valid {
		v := lastRunAt.Time.UTC()
		sch.LastRunAt = &v
	}
	if updatedAt.Valid {
		v := updatedAt.Time.UTC()
		sch.UpdatedAt = &v
	}
	return &sch, nil
}

// nullableTime maps a nil *time.Time to NULL and normalizes the rest to UTC.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
