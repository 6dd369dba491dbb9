// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import (
	"strings"
	"time"
)

// DatabaseType identifies a supported backup source engine.
type DatabaseType string

// Supported database types. The set is closed; the store rejects
// anything else at the boundary.
const (
	DatabasePostgreSQL DatabaseType = "postgresql"
	DatabaseMySQL      DatabaseType = "mysql"
	DatabaseSQLite     DatabaseType = "sqlite"
	DatabaseNeo4j      DatabaseType = "neo4j"
)

// NormalizeDatabaseType lowercases a raw db_type value and folds the
// legacy "postgres" spelling into "postgresql".
func NormalizeDatabaseType(raw string) DatabaseType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql":
		return DatabasePostgreSQL
	case "mysql":
		return DatabaseMySQL
	case "sqlite":
		return DatabaseSQLite
	case "neo4j":
		return DatabaseNeo4j
	default:
		return DatabaseType(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// Valid reports whether the database type is one of the supported engines.
func (t DatabaseType) Valid() bool {
	switch t {
	case DatabasePostgreSQL, DatabaseMySQL, DatabaseSQLite, DatabaseNeo4j:
		return true
	default:
		return false
	}
}

// DestinationType identifies a supported storage provider.
type DestinationType string

// Supported destination types.
const (
	DestinationLocal       DestinationType = "local"
	DestinationSFTP        DestinationType = "sftp"
	DestinationGoogleDrive DestinationType = "google_drive"
)

// Valid reports whether the destination type is one of the supported providers.
func (t DestinationType) Valid() bool {
	switch t {
	case DestinationLocal, DestinationSFTP, DestinationGoogleDrive:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle state of a run. A run is created as
// StatusStarted and transitions exactly once to StatusSuccess or
// StatusFailed.
type RunStatus string

const (
	StatusStarted RunStatus = "started"
	StatusSuccess RunStatus = "success"
	StatusWarning RunStatus = "warning"
	StatusFailed  RunStatus = "failed"
)

// Trigger records what initiated an operation.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerSystem    Trigger = "system"
)

// TriggerNonScheduled is a query-only filter value meaning
// "any trigger except scheduled".
const TriggerNonScheduled = "non_scheduled"

// Target is a configured database that can be backed up.
//
// Secrets never round-trip through the API; read paths expose only
// SecretsPresent.
type Target struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	DBType         DatabaseType `json:"db_type"`
	Config         TargetConfig `json:"config"`
	SecretsPresent bool         `json:"secrets_present"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      *time.Time   `json:"updated_at,omitempty"`
}

// TargetConfig is the non-secret, engine-specific connection configuration.
// Exactly the fields relevant to the target's DBType are set; the rest are
// zero. Legacy dual-name keys (db_host/host, db_user/user, db_name/database,
// neo4j_url/host, db_port/port) are folded into this canonical shape when
// rows are loaded.
type TargetConfig struct {
	// Host is the server address for postgresql/mysql, or the Bolt host
	// (optionally a full bolt:// or neo4j:// URL) for neo4j.
	Host string `json:"host,omitempty"`
	// Port is the server port. Zero means engine default
	// (5432 postgresql, 3306 mysql, 7687 neo4j).
	Port int `json:"port,omitempty"`
	// Database is the database name for postgresql/mysql.
	Database string `json:"database,omitempty"`
	// User is the connection username.
	User string `json:"user,omitempty"`
	// Path is the database file path for sqlite.
	Path string `json:"path,omitempty"`
}

// Destination is a storage location to which backup artifacts are uploaded.
type Destination struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Type           DestinationType   `json:"destination_type"`
	Config         DestinationConfig `json:"config"`
	SecretsPresent bool              `json:"secrets_present"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
}

// LocalDestinationID is the id of the built-in local destination. It is
// seeded at migration time and cannot be deleted.
const LocalDestinationID = "local"

// DefaultLocalBackupPath is the base path of the built-in local destination.
const DefaultLocalBackupPath = "/app/backups"

// DestinationConfig is the non-secret, provider-specific configuration.
// The legacy base_path key folds into Path when rows are loaded.
type DestinationConfig struct {
	// Path is the base directory for local and sftp destinations.
	Path string `json:"path,omitempty"`
	// Host and Port address the sftp server. Port zero means 22.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	// Username is the sftp login name.
	Username string `json:"username,omitempty"`
	// FolderID is the Google Drive root folder id.
	FolderID string `json:"folder_id,omitempty"`
}

// Secrets is decrypted secret material for a target or destination. Keys
// are canonical: password, private_key, private_key_passphrase,
// service_account_json, username (test-connection only). The store persists
// this map as a single encrypted blob and never returns it over the API.
type Secrets map[string]string

// Password returns the password secret, if present.
func (s Secrets) Password() string { return s["password"] }

// Schedule plans periodic backups of one target to one or more destinations.
//
// TargetName and Destinations are read-path enrichment filled by the store;
// writes only consume TargetID and DestinationIDs.
type Schedule struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	TargetID        string           `json:"target_id"`
	TargetName      string           `json:"target_name,omitempty"`
	DestinationIDs  []string         `json:"destination_ids"`
	Destinations    []DestinationRef `json:"destinations,omitempty"`
	Enabled         bool             `json:"enabled"`
	IntervalSeconds int              `json:"interval_seconds"`
	NextRunAt       *time.Time       `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time       `json:"last_run_at,omitempty"`
	Retention       RetentionPolicy  `json:"retention"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
}

// DestinationRef is the compact destination shape embedded in schedule
// responses.
type DestinationRef struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Type DestinationType `json:"destination_type"`
}

// Run is one execution attempt of a scheduled or manual backup/restore.
// Immutable after reaching a terminal status.
type Run struct {
	ID             string     `json:"id"`
	ScheduleID     *string    `json:"schedule_id,omitempty"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	BackupFilename string     `json:"backup_filename,omitempty"`
	Details        RunDetails `json:"details"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// RunDetails is the structured payload recorded with each run.
type RunDetails struct {
	Type          string               `json:"type,omitempty"` // scheduled | immediate | restore
	TargetID      string               `json:"target_id,omitempty"`
	TargetName    string               `json:"target_name,omitempty"`
	Encrypted     bool                 `json:"encrypted,omitempty"`
	Uploads       []UploadResult       `json:"uploads,omitempty"`
	Retention     []RetentionAction    `json:"retention,omitempty"`
	Notifications []NotificationResult `json:"notifications,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// UploadResult records one per-destination upload outcome.
type UploadResult struct {
	DestinationID   string    `json:"destination_id"`
	DestinationName string    `json:"destination_name"`
	BackupID        string    `json:"backup_id"`
	BackupName      string    `json:"backup_name"`
	Size            int64     `json:"size"`
	CreatedAt       time.Time `json:"created_at"`
}

// RetentionAction records the outcome of a per-destination retention sweep.
type RetentionAction struct {
	DestinationID string `json:"destination_id"`
	Listed        int    `json:"listed"`
	Kept          int    `json:"kept"`
	Deleted       int    `json:"deleted"`
	Error         string `json:"error,omitempty"`
}

// NotificationResult records one per-recipient delivery outcome.
type NotificationResult struct {
	Channel   string `json:"channel"` // telegram | email
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// AuditEvent is one entry in the append-only operational history. It
// covers backup/restore attempts, retention deletions, and configuration
// mutations. Entity names are denormalized at write time so history stays
// readable after the entity is deleted.
type AuditEvent struct {
	ID              string         `json:"id"`
	Operation       string         `json:"operation"`
	Trigger         Trigger        `json:"trigger"`
	Status          RunStatus      `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	TargetID        string         `json:"target_id,omitempty"`
	TargetName      string         `json:"target_name,omitempty"`
	DestinationID   string         `json:"destination_id,omitempty"`
	DestinationName string         `json:"destination_name,omitempty"`
	ScheduleID      string         `json:"schedule_id,omitempty"`
	ScheduleName    string         `json:"schedule_name,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	BackupID        string         `json:"backup_id,omitempty"`
	BackupName      string         `json:"backup_name,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	UserName        string         `json:"user_name,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// Audit operation names.
const (
	OpBackup            = "backup"
	OpRestore           = "restore"
	OpDeleteBackup      = "delete_backup"
	OpTargetCreate      = "target_create"
	OpTargetUpdate      = "target_update"
	OpTargetDelete      = "target_delete"
	OpDestinationCreate = "destination_create"
	OpDestinationUpdate = "destination_update"
	OpDestinationDelete = "destination_delete"
	OpScheduleCreate    = "schedule_create"
	OpScheduleUpdate    = "schedule_update"
	OpScheduleDelete    = "schedule_delete"
)

// StoredBackup is one artifact enumerated from a storage provider. It is
// never persisted in the configuration store.
type StoredBackup struct {
	// ID is the provider-scoped identifier: a relative path for local,
	// the full remote path for sftp, a file id for Google Drive.
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size,omitempty"`
}

// DatabaseStats is the get_stats payload for a target. SQL engines fill
// Tables; Neo4j fills the graph counters.
type DatabaseStats struct {
	TableCount        int          `json:"table_count,omitempty"`
	TotalRows         int64        `json:"total_rows,omitempty"`
	DatabaseSizeMB    float64      `json:"database_size_mb,omitempty"`
	Tables            []TableStats `json:"tables,omitempty"`
	NodeCount         int64        `json:"node_count,omitempty"`
	RelationshipCount int64        `json:"relationship_count,omitempty"`
	Labels            []string     `json:"labels,omitempty"`
	RelationshipTypes []string     `json:"relationship_types,omitempty"`
}

// TableStats is per-table detail inside DatabaseStats.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb,omitempty"`
}

// RestoreProgress is the polled status of an in-flight or finished restore.
type RestoreProgress struct {
	Status        string    `json:"status"` // in_progress | completed | failed | none
	Current       int       `json:"current"`
	Total         int       `json:"total"`
	Message       string    `json:"message"`
	WarningsCount int       `json:"warnings_count"`
	Warnings      []string  `json:"warnings,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	IsLocked      bool      `json:"is_locked"`
	LockOperation string    `json:"lock_operation,omitempty"`
}
