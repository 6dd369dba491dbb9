// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
engine.go - Backup Engine Core

The Engine owns every backup and restore execution. It resolves schedules,
targets, and destinations from the catalog, decodes stored secrets, claims
the per-family operation lock, and drives Run and AuditEvent records from
started to terminal status.

Engine Responsibilities:
  - Schedule, target, and destination resolution with secret decoding
  - Per-schedule in-flight exclusivity for the runner and run-now paths
  - Operation lock acquisition around every backup and restore
  - Terminal bookkeeping: run history, audit trail, next_run_at advancement

Collaborators:
The Engine depends on narrow interfaces so pipeline logic tests against
fakes. Production wiring passes *store.Store as the Catalog, the notify
dispatcher as the Notifier, and the events bus as the EventSink. Adapter and
provider construction go through function fields for the same reason.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/tomtom215/custodia/internal/adapter"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
	"github.com/tomtom215/custodia/internal/storage"
)

// Catalog is the persistence surface the engine executes against.
// *store.Store implements it.
type Catalog interface {
	// GetTarget returns a target by id.
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	// TargetSecrets returns the stored secrets blob for a target, "" when none.
	TargetSecrets(ctx context.Context, id string) (string, error)
	// GetDestination returns a destination by id.
	GetDestination(ctx context.Context, id string) (*models.Destination, error)
	// DestinationSecrets returns the stored secrets blob for a destination.
	DestinationSecrets(ctx context.Context, id string) (string, error)
	// GetSchedule returns a schedule by id with destination refs attached.
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	// ListSchedules returns all schedules.
	ListSchedules(ctx context.Context) ([]*models.Schedule, error)
	// DueSchedules returns enabled schedules due at now, oldest first.
	DueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error)
	// SetScheduleRunTimes updates last_run_at and next_run_at.
	SetScheduleRunTimes(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error
	// CreateRun inserts a run record, assigning id and start time when unset.
	CreateRun(ctx context.Context, run *models.Run) error
	// FinishRun records a run's terminal status and details.
	FinishRun(ctx context.Context, run *models.Run) error
	// AppendAuditEvent inserts an audit event.
	AppendAuditEvent(ctx context.Context, ev *models.AuditEvent) error
	// FinishAuditEvent records an audit event's terminal status.
	FinishAuditEvent(ctx context.Context, ev *models.AuditEvent) error
}

// RunNotification is the payload handed to the Notifier once a run reaches
// terminal status. ArtifactPath points at the local staging file, which is
// still on disk while notifications are delivered so channels can attach it.
type RunNotification struct {
	ScheduleName   string
	TargetName     string
	Status         models.RunStatus
	BackupFilename string
	ErrorMessage   string
	Uploads        []models.UploadResult
	ArtifactPath   string
	ArtifactSize   int64
	Settings       *models.NotificationSettings
}

// Notifier delivers terminal-run notifications. It is called synchronously
// before the run record is persisted so per-recipient delivery results are
// stored with the run.
type Notifier interface {
	Notify(ctx context.Context, n RunNotification) []models.NotificationResult
}

// EventSink receives terminal runs for out-of-band consumers such as the
// metrics collector. Implementations must not block.
type EventSink interface {
	RunCompleted(run *models.Run)
}

// Engine executes backup and restore pipelines against a catalog.
type Engine struct {
	catalog Catalog
	locks   *oplock.Manager
	codec   *config.SecretsCodec
	cfg     *config.Config

	notifier Notifier
	events   EventSink

	// Construction seams for adapters and storage providers.
	adapterFor  func(target *models.Target, secrets models.Secrets) (adapter.Adapter, error)
	providerFor func(ctx context.Context, d *models.Destination, secrets models.Secrets) (storage.Provider, error)

	// In-flight schedule ids, guarded by mu. A schedule never has two
	// concurrent runs in this process.
	mu       sync.Mutex
	inFlight map[string]struct{}

	statusFile   string
	warningsFile string
}

// NewEngine wires an engine against the given catalog, lock manager, and
// secrets codec. Restore progress files live under the database data
// directory.
func NewEngine(cfg *config.Config, catalog Catalog, locks *oplock.Manager, codec *config.SecretsCodec) *Engine {
	return &Engine{
		catalog:      catalog,
		locks:        locks,
		codec:        codec,
		cfg:          cfg,
		adapterFor:   adapter.ForTarget,
		providerFor:  storage.ForDestination,
		inFlight:     make(map[string]struct{}),
		statusFile:   filepath.Join(cfg.Database.DataDir, "restore_status.json"),
		warningsFile: filepath.Join(cfg.Database.DataDir, "restore_warnings.json"),
	}
}

// SetNotifier installs the notification dispatcher. A nil notifier disables
// run notifications.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetEventSink installs the terminal-run event sink.
func (e *Engine) SetEventSink(s EventSink) {
	e.events = s
}

// claimSchedule marks a schedule as in flight. It reports false when the
// schedule already has a run executing in this process.
func (e *Engine) claimSchedule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

// releaseSchedule clears a schedule's in-flight mark.
func (e *Engine) releaseSchedule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

// scheduleInFlight reports whether a schedule currently has a run executing.
func (e *Engine) scheduleInFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[id]
	return busy
}

// resolveTarget loads a target and its decoded secrets.
func (e *Engine) resolveTarget(ctx context.Context, id string) (*models.Target, models.Secrets, error) {
	target, err := e.catalog.GetTarget(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	blob, err := e.catalog.TargetSecrets(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := e.codec.DecodeSecrets(blob)
	if err != nil {
		return nil, nil, err
	}
	return target, secrets, nil
}

// resolveDestination loads a destination and its decoded secrets.
func (e *Engine) resolveDestination(ctx context.Context, id string) (*models.Destination, models.Secrets, error) {
	dest, err := e.catalog.GetDestination(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	blob, err := e.catalog.DestinationSecrets(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := e.codec.DecodeSecrets(blob)
	if err != nil {
		return nil, nil, err
	}
	return dest, secrets, nil
}

// schedulePassword recovers the envelope encryption password for a schedule
// whose retention policy enables encryption.
func (e *Engine) schedulePassword(sched *models.Schedule) (string, error) {
	if !sched.Retention.Encrypt {
		return "", nil
	}
	if sched.Retention.EncryptPasswordEncrypted == "" {
		return "", models.ErrEncryptionNotConfigured.New(
			"schedule %s requires encryption but no password is stored", sched.ID)
	}
	password, err := e.codec.DecryptValue(sched.Retention.EncryptPasswordEncrypted)
	if err != nil {
		return "", err
	}
	return password, nil
}
