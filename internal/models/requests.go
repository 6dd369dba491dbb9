// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import "time"

// RestoreConfirmation is the literal the restore endpoint requires before
// it will overwrite a database.
const RestoreConfirmation = "RESTORE"

// TargetCreateRequest creates a backup target.
type TargetCreateRequest struct {
	Name    string       `json:"name" validate:"required,min=1,max=255"`
	DBType  string       `json:"db_type" validate:"required,oneof=postgresql postgres mysql sqlite neo4j"`
	Config  TargetConfig `json:"config"`
	Secrets Secrets      `json:"secrets,omitempty"`
}

// TargetUpdateRequest mutates a target. Nil fields are left unchanged;
// a non-nil empty Secrets map clears the stored blob.
type TargetUpdateRequest struct {
	Name     *string       `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	DBType   *string       `json:"db_type,omitempty" validate:"omitempty,oneof=postgresql postgres mysql sqlite neo4j"`
	Config   *TargetConfig `json:"config,omitempty"`
	Secrets  Secrets       `json:"secrets,omitempty"`
	IsActive *bool         `json:"is_active,omitempty"`
}

// TargetTestRequest probes connectivity without persisting anything.
type TargetTestRequest struct {
	DBType  string       `json:"db_type" validate:"required,oneof=postgresql postgres mysql sqlite neo4j"`
	Config  TargetConfig `json:"config"`
	Secrets Secrets      `json:"secrets,omitempty"`
}

// DestinationCreateRequest creates a destination.
type DestinationCreateRequest struct {
	Name    string            `json:"name" validate:"required,min=1,max=255"`
	Type    string            `json:"destination_type" validate:"required,oneof=local sftp google_drive"`
	Config  DestinationConfig `json:"config"`
	Secrets Secrets           `json:"secrets,omitempty"`
}

// DestinationUpdateRequest mutates a destination.
type DestinationUpdateRequest struct {
	Name     *string            `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type     *string            `json:"destination_type,omitempty" validate:"omitempty,oneof=local sftp google_drive"`
	Config   *DestinationConfig `json:"config,omitempty"`
	Secrets  Secrets            `json:"secrets,omitempty"`
	IsActive *bool              `json:"is_active,omitempty"`
}

// DestinationTestRequest probes a destination without persisting it.
type DestinationTestRequest struct {
	Type    string            `json:"destination_type" validate:"required,oneof=local sftp google_drive"`
	Config  DestinationConfig `json:"config"`
	Secrets Secrets           `json:"secrets,omitempty"`
}

// ScheduleCreateRequest creates a schedule.
type ScheduleCreateRequest struct {
	Name            string          `json:"name" validate:"required,min=1,max=255"`
	TargetID        string          `json:"target_id" validate:"required"`
	DestinationIDs  []string        `json:"destination_ids" validate:"required,min=1,dive,required"`
	IntervalSeconds int             `json:"interval_seconds" validate:"required,min=1"`
	Retention       RetentionPolicy `json:"retention"`
	Enabled         bool            `json:"enabled"`
}

// ScheduleUpdateRequest mutates a schedule.
type ScheduleUpdateRequest struct {
	Name            *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	TargetID        *string          `json:"target_id,omitempty"`
	DestinationIDs  []string         `json:"destination_ids,omitempty" validate:"omitempty,min=1,dive,required"`
	IntervalSeconds *int             `json:"interval_seconds,omitempty" validate:"omitempty,min=1"`
	Retention       *RetentionPolicy `json:"retention,omitempty"`
	Enabled         *bool            `json:"enabled,omitempty"`
}

// BackupNowRequest performs an immediate backup of a target.
type BackupNowRequest struct {
	TargetID           string   `json:"target_id" validate:"required"`
	DestinationIDs     []string `json:"destination_ids,omitempty"`
	UseLocalStorage    bool     `json:"use_local_storage,omitempty"`
	EncryptionPassword string   `json:"encryption_password,omitempty"`
}

// RestoreNowRequest restores a target from a stored backup. Confirmation
// must equal RestoreConfirmation.
type RestoreNowRequest struct {
	TargetID           string `json:"target_id" validate:"required"`
	DestinationID      string `json:"destination_id,omitempty"`
	BackupID           string `json:"backup_id" validate:"required"`
	EncryptionPassword string `json:"encryption_password,omitempty"`
	Confirmation       string `json:"confirmation" validate:"required"`
	UseLocalStorage    bool   `json:"use_local_storage,omitempty"`
}

// RunDueRequest is the runner endpoint payload.
type RunDueRequest struct {
	MaxSchedules int `json:"max_schedules,omitempty" validate:"omitempty,min=1,max=100"`
}

// RunNowResponse reports one schedule execution.
type RunNowResponse struct {
	RunID          string         `json:"run_id"`
	ScheduleID     string         `json:"schedule_id,omitempty"`
	Status         RunStatus      `json:"status"`
	BackupFilename string         `json:"backup_filename,omitempty"`
	Uploads        []UploadResult `json:"uploads,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// RunDueResponse reports one runner cycle.
type RunDueResponse struct {
	Now     time.Time        `json:"now"`
	Count   int              `json:"count"`
	Results []RunNowResponse `json:"results"`
}

// TestConnectionResponse is returned by both test-connection endpoints.
type TestConnectionResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
