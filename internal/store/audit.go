// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/custodia/internal/models"
)

const auditColumns = `id, operation, "trigger", status, started_at, finished_at,
	target_id, target_name, destination_id, destination_name,
	schedule_id, schedule_name, backup_id, backup_name, run_id,
	details, error_message, user_id, user_name`

// AuditFilter narrows and pages ListAuditEvents. Trigger accepts the
// special value "non_scheduled" meaning any trigger except scheduled.
// Limit <= 0 means no limit.
type AuditFilter struct {
	TargetID     string
	Operation    string
	Trigger      string
	Limit        int
	Offset       int
	IncludeTotal bool
}

// AppendAuditEvent inserts a new audit event. ID, StartedAt, and Status are
// defaulted on the passed struct when empty. Instantaneous operations are
// appended directly in a terminal status with FinishedAt set.
func (s *Store) AppendAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = models.StatusSuccess
	}

	details, err := marshalDetails(ev.Details)
	if err != nil {
		return models.ErrValidation.New("invalid audit details: %v", err)
	}

	const query = `
		INSERT INTO audit_events
			(id, operation, "trigger", status, started_at, finished_at,
			 target_id, target_name, destination_id, destination_name,
			 schedule_id, schedule_name, backup_id, backup_name, run_id,
			 details, error_message, user_id, user_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Operation, string(ev.Trigger), string(ev.Status),
		ev.StartedAt.UTC(), nullableTime(ev.FinishedAt),
		nullIfEmpty(ev.TargetID), nullIfEmpty(ev.TargetName),
		nullIfEmpty(ev.DestinationID), nullIfEmpty(ev.DestinationName),
		nullIfEmpty(ev.ScheduleID), nullIfEmpty(ev.ScheduleName),
		nullIfEmpty(ev.BackupID), nullIfEmpty(ev.BackupName),
		nullIfEmpty(ev.RunID),
		details, nullIfEmpty(ev.ErrorMessage),
		nullIfEmpty(ev.UserID), nullIfEmpty(ev.UserName))
	if err != nil {
		return models.ErrProviderFailure.New("failed to append audit event: %v", err)
	}
	return nil
}

// FinishAuditEvent writes an event's terminal fields: status, finished_at,
// backup id/name learned mid-operation, details, and error_message.
func (s *Store) FinishAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	details, err := marshalDetails(ev.Details)
	if err != nil {
		return models.ErrValidation.New("invalid audit details: %v", err)
	}

	const query = `
		UPDATE audit_events
		SET status = ?, finished_at = ?, backup_id = ?, backup_name = ?,
			details = ?, error_message = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(ev.Status), nullableTime(ev.FinishedAt),
		nullIfEmpty(ev.BackupID), nullIfEmpty(ev.BackupName),
		details, nullIfEmpty(ev.ErrorMessage), ev.ID)
	if err != nil {
		return models.ErrProviderFailure.New("failed to finish audit event: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ErrProviderFailure.New("failed to finish audit event: %v", err)
	}
	if n == 0 {
		return models.ErrNotFound.New("Audit event not found: %s", ev.ID)
	}
	return nil
}

// GetAuditEvent fetches one audit event by id.
func (s *Store) GetAuditEvent(ctx context.Context, id string) (*models.AuditEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events WHERE id = ?`, id)

	ev, err := scanAuditEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound.New("Audit event not found: %s", id)
	}
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to get audit event: %v", err)
	}
	return ev, nil
}

// ListAuditEvents returns events newest first, narrowed by the filter. The
// returned total is the filtered (unpaged) count when filter.IncludeTotal
// is set, otherwise zero.
func (s *Store) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, int, error) {
	var conditions []string
	var args []any

	if filter.TargetID != "" {
		conditions = append(conditions, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, filter.Operation)
	}
	switch filter.Trigger {
	case "":
	case models.TriggerNonScheduled:
		conditions = append(conditions, `"trigger" != ?`)
		args = append(args, string(models.TriggerScheduled))
	default:
		conditions = append(conditions, `"trigger" = ?`)
		args = append(args, filter.Trigger)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events` + where +
		` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, models.ErrProviderFailure.New("failed to list audit events: %v", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, 0, models.ErrProviderFailure.New("failed to scan audit event: %v", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, models.ErrProviderFailure.New("failed to iterate audit events: %v", err)
	}

	total := 0
	if filter.IncludeTotal {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
			return nil, 0, models.ErrProviderFailure.New("failed to count audit events: %v", err)
		}
	}
	return events, total, nil
}

func scanAuditEvent(row scannable) (*models.AuditEvent, error) {
	var (
		ev              models.AuditEvent
		trigger         string
		status          string
		finishedAt      sql.NullTime
		targetID        sql.NullString
		targetName      sql.NullString
		destinationID   sql.NullString
		destinationName sql.NullString
		scheduleID      sql.NullString
		scheduleName    sql.NullString
		backupID        sql.NullString
		backupName      sql.NullString
		runID           sql.NullString
		rawDetails      string
		errorMessage    sql.NullString
		userID          sql.NullString
		userName        sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Operation, &trigger, &status,
		&ev.StartedAt, &finishedAt,
		&targetID, &targetName, &destinationID, &destinationName,
		&scheduleID, &scheduleName, &backupID, &backupName, &runID,
		&rawDetails, &errorMessage, &userID, &userName); err != nil {
		return nil, err
	}

	ev.Trigger = models.Trigger(trigger)
	ev.Status = models.RunStatus(status)
	ev.StartedAt = ev.StartedAt.UTC()
	if finishedAt.Valid {
		v := finishedAt.Time.UTC()
		ev.FinishedAt = &v
	}
	ev.TargetID = targetID.String
	ev.TargetName = targetName.String
	ev.DestinationID = destinationID.String
	ev.DestinationName = destinationName.String
	ev.ScheduleID = scheduleID.String
	ev.ScheduleName = scheduleName.String
	ev.BackupID = backupID.String
	ev.BackupName = backupName.String
	ev.RunID = runID.String
	ev.ErrorMessage = errorMessage.String
	ev.UserID = userID.String
	ev.UserName = userName.String
	if rawDetails != "" && rawDetails != "{}" {
		if err := json.Unmarshal([]byte(rawDetails), &ev.Details); err != nil {
			return nil, err
		}
	}
	return &ev, nil
}

// marshalDetails keeps the details column a JSON object even when no
// details were recorded.
func marshalDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
