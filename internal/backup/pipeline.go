// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
pipeline.go - Backup Execution Pipeline

One invocation takes a resolved job through artifact production, optional
envelope encryption, serial per-destination upload, retention sweep, and
terminal bookkeeping. The artifact is produced once and every destination is
written from the same on-disk file.

Exit Discipline:
The operation lock is released and temporary files are unlinked on every exit
path. Terminal bookkeeping runs for success and failure alike: a scheduled
run that fails still advances next_run_at so one broken backup cannot wedge
its schedule. That holds even when the job never resolves (missing target,
broken destination, undecodable stored password); those failures also land
as failed runs in history. Uploads are not retried; the retry is the next
scheduled run.

Filename Contract:
Adapters return backup_<db_type>_<YYYYMMDD_HHMMSS>.<ext>[.gz]. The pipeline
prefixes sched-<schedule_id>- or manual-<sanitized_target_name>-, appends
.enc after envelope encryption, and uploads to
"<sanitized_target_name>/<final_filename>". The retention sweep lists only
the schedule's own prefix, so manual artifacts are never reaped.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"os"
	"time"

	"github.com/tomtom215/custodia/internal/envelope"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
	"github.com/tomtom215/custodia/internal/storage"
)

// ManualBackupRequest is the input of BackupNow. Destinations are either an
// explicit id list or the built-in local destination.
type ManualBackupRequest struct {
	TargetID           string   `json:"target_id"`
	DestinationIDs     []string `json:"destination_ids"`
	UseLocalStorage    bool     `json:"use_local_storage"`
	EncryptionPassword string   `json:"encryption_password"`

	// Acting user, stamped on audit events. Filled by the API layer.
	UserID   string `json:"-"`
	UserName string `json:"-"`
}

// RunResult is the caller-visible outcome of a completed backup run.
type RunResult struct {
	RunID          string                `json:"run_id"`
	Status         models.RunStatus      `json:"status"`
	BackupFilename string                `json:"backup_filename,omitempty"`
	Uploads        []models.UploadResult `json:"uploads,omitempty"`
}

// backupJob is one fully resolved pipeline input.
type backupJob struct {
	schedule     *models.Schedule // nil for manual backups
	target       *models.Target
	secrets      models.Secrets
	destinations []*models.Destination
	destSecrets  []models.Secrets
	trigger      models.Trigger

	prefix          string
	encryptPassword string
	sweep           bool
	advance         bool

	userID   string
	userName string
}

func (j *backupJob) runType() string {
	if j.schedule != nil {
		return "scheduled"
	}
	return "immediate"
}

// RunSchedule executes one schedule's backup pipeline. The runner passes
// TriggerScheduled; run-now passes TriggerManual, which skips the retention
// sweep and leaves next_run_at untouched.
func (e *Engine) RunSchedule(ctx context.Context, scheduleID string, trigger models.Trigger) (*RunResult, error) {
	if !e.claimSchedule(scheduleID) {
		return nil, models.ErrConflict.New("schedule %s already has a run in progress", scheduleID)
	}
	defer e.releaseSchedule(scheduleID)

	sched, err := e.catalog.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	target, secrets, err := e.resolveTarget(ctx, sched.TargetID)
	if err != nil {
		return e.failUnresolved(ctx, sched, nil, trigger, err)
	}
	if len(sched.DestinationIDs) == 0 {
		return e.failUnresolved(ctx, sched, target, trigger,
			models.ErrValidation.New("schedule %s has no destinations", scheduleID))
	}

	job := &backupJob{
		schedule: sched,
		target:   target,
		secrets:  secrets,
		trigger:  trigger,
		prefix:   "sched-" + sched.ID + "-",
		sweep:    trigger == models.TriggerScheduled,
		advance:  trigger == models.TriggerScheduled,
	}
	for _, destID := range sched.DestinationIDs {
		dest, destSecrets, err := e.resolveDestination(ctx, destID)
		if err != nil {
			return e.failUnresolved(ctx, sched, target, trigger, err)
		}
		job.destinations = append(job.destinations, dest)
		job.destSecrets = append(job.destSecrets, destSecrets)
	}
	if job.encryptPassword, err = e.schedulePassword(sched); err != nil {
		return e.failUnresolved(ctx, sched, target, trigger, err)
	}

	return e.execute(ctx, job)
}

// failUnresolved handles a schedule that cannot be resolved into a job: the
// target is gone, a destination is broken, or the stored encryption password
// no longer decodes. A scheduled trigger still records a failed run with an
// audit entry and notifications, and advances next_run_at through the same
// terminal path execute uses, so the runner does not retry a broken schedule
// every tick. Manual triggers surface the error to the caller directly.
func (e *Engine) failUnresolved(ctx context.Context, sched *models.Schedule, target *models.Target, trigger models.Trigger, cause error) (*RunResult, error) {
	if trigger != models.TriggerScheduled {
		return nil, cause
	}
	if target == nil {
		target = &models.Target{ID: sched.TargetID}
	}

	job := &backupJob{
		schedule: sched,
		target:   target,
		trigger:  trigger,
		advance:  true,
	}

	started := time.Now().UTC()
	run := &models.Run{
		Status:     models.StatusStarted,
		StartedAt:  started,
		ScheduleID: &sched.ID,
		Details: models.RunDetails{
			Type:       job.runType(),
			TargetID:   target.ID,
			TargetName: target.Name,
		},
	}
	if err := e.catalog.CreateRun(ctx, run); err != nil {
		logging.Error().Err(err).
			Str("schedule_id", sched.ID).
			Msg("Failed to record unresolvable scheduled run")
		return nil, cause
	}

	audit := &models.AuditEvent{
		Operation:    models.OpBackup,
		Trigger:      trigger,
		Status:       models.StatusStarted,
		StartedAt:    started,
		TargetID:     target.ID,
		TargetName:   target.Name,
		ScheduleID:   sched.ID,
		ScheduleName: sched.Name,
		RunID:        run.ID,
	}
	if err := e.catalog.AppendAuditEvent(ctx, audit); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to append backup audit event")
	}

	return e.finalize(ctx, job, run, audit, &produceOutcome{err: cause})
}

// BackupNow executes an ad-hoc backup of a target outside any schedule. The
// artifact carries a manual- prefix and is exempt from retention sweeps.
func (e *Engine) BackupNow(ctx context.Context, req ManualBackupRequest) (*RunResult, error) {
	target, secrets, err := e.resolveTarget(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	destIDs := req.DestinationIDs
	if req.UseLocalStorage {
		destIDs = []string{models.LocalDestinationID}
	}
	if len(destIDs) == 0 {
		return nil, models.ErrValidation.New("no destination selected: provide destination_ids or use_local_storage")
	}

	job := &backupJob{
		target:          target,
		secrets:         secrets,
		trigger:         models.TriggerManual,
		prefix:          "manual-" + SanitizeName(target.Name) + "-",
		encryptPassword: req.EncryptionPassword,
		userID:          req.UserID,
		userName:        req.UserName,
	}
	for _, destID := range destIDs {
		dest, destSecrets, err := e.resolveDestination(ctx, destID)
		if err != nil {
			return nil, err
		}
		job.destinations = append(job.destinations, dest)
		job.destSecrets = append(job.destSecrets, destSecrets)
	}

	return e.execute(ctx, job)
}

// backupLockWait bounds how long a backup queues behind another backup on
// the same family before giving up. Parallel runner batches rely on this;
// a held restore lock always rejects immediately.
const backupLockWait = 30 * time.Minute

// execute runs the pipeline for a resolved job: lock, run + audit records,
// artifact production and upload, then terminal bookkeeping.
func (e *Engine) execute(ctx context.Context, job *backupJob) (*RunResult, error) {
	lock := e.locks.ForDatabase(job.target.DBType)
	if err := lock.AcquireQueued(ctx, oplock.OpBackup, backupLockWait); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.Warn().Err(err).Msg("Failed to release backup operation lock")
		}
	}()

	started := time.Now().UTC()
	run := &models.Run{
		Status:    models.StatusStarted,
		StartedAt: started,
		Details: models.RunDetails{
			Type:       job.runType(),
			TargetID:   job.target.ID,
			TargetName: job.target.Name,
		},
	}
	if job.schedule != nil {
		run.ScheduleID = &job.schedule.ID
	}
	if err := e.catalog.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	audit := &models.AuditEvent{
		Operation:  models.OpBackup,
		Trigger:    job.trigger,
		Status:     models.StatusStarted,
		StartedAt:  started,
		TargetID:   job.target.ID,
		TargetName: job.target.Name,
		RunID:      run.ID,
		UserID:     job.userID,
		UserName:   job.userName,
	}
	if job.schedule != nil {
		audit.ScheduleID = job.schedule.ID
		audit.ScheduleName = job.schedule.Name
	}
	if err := e.catalog.AppendAuditEvent(ctx, audit); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to append backup audit event")
	}

	out := e.produce(ctx, job, run)
	defer out.cleanup()

	return e.finalize(ctx, job, run, audit, out)
}

// produceOutcome carries the artifact state from production through
// bookkeeping. tempFiles are unlinked by cleanup once notifications no
// longer need the local artifact.
type produceOutcome struct {
	err            error
	backupFilename string
	artifactPath   string
	artifactSize   int64
	uploads        []models.UploadResult
	retention      []models.RetentionAction
	tempFiles      []string
}

func (o *produceOutcome) cleanup() {
	for _, p := range o.tempFiles {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove backup temp file")
		}
	}
}

// produce creates the artifact, optionally encrypts it, uploads it to every
// destination in order, and sweeps retention. The first fatal error stops
// the sequence; partial uploads stay recorded.
func (e *Engine) produce(ctx context.Context, job *backupJob, run *models.Run) *produceOutcome {
	out := &produceOutcome{}

	ad, err := e.adapterFor(job.target, job.secrets)
	if err != nil {
		out.err = err
		return out
	}

	filename, tempPath, err := ad.CreateBackupToTemp(ctx, true)
	if err != nil {
		out.err = err
		return out
	}
	out.tempFiles = append(out.tempFiles, tempPath)

	finalName := job.prefix + filename
	artifact := tempPath
	if job.encryptPassword != "" {
		encPath := tempPath + ".enc"
		if err := envelope.EncryptFile(ctx, tempPath, encPath, job.encryptPassword); err != nil {
			out.err = err
			return out
		}
		out.tempFiles = append(out.tempFiles, encPath)
		artifact = encPath
		finalName += ".enc"
		run.Details.Encrypted = true
	}
	out.backupFilename = finalName
	out.artifactPath = artifact
	if info, err := os.Stat(artifact); err == nil {
		out.artifactSize = info.Size()
	}

	remoteName := SanitizeName(job.target.Name) + "/" + finalName
	for i, dest := range job.destinations {
		provider, err := e.providerFor(ctx, dest, job.destSecrets[i])
		if err != nil {
			out.err = err
			return out
		}
		stored, err := provider.Upload(ctx, artifact, remoteName)
		if err != nil {
			out.err = err
			return out
		}
		out.uploads = append(out.uploads, models.UploadResult{
			DestinationID:   dest.ID,
			DestinationName: dest.Name,
			BackupID:        stored.ID,
			BackupName:      stored.Name,
			Size:            stored.Size,
			CreatedAt:       stored.CreatedAt,
		})
		logging.Info().
			Str("target", job.target.Name).
			Str("destination", dest.Name).
			Str("backup", stored.Name).
			Int64("size", stored.Size).
			Msg("Backup uploaded")
	}

	if job.sweep && job.schedule != nil {
		out.retention = e.sweepRetention(ctx, job)
	}
	return out
}

// sweepRetention applies the schedule's retention policy to each destination
// over the schedule's own artifact prefix. Sweep failures are recorded per
// destination and never fail the run; the new artifact is already uploaded.
func (e *Engine) sweepRetention(ctx context.Context, job *backupJob) []models.RetentionAction {
	prefix := SanitizeName(job.target.Name) + "/sched-" + job.schedule.ID + "-"
	now := time.Now().UTC()
	actions := make([]models.RetentionAction, 0, len(job.destinations))

	for i, dest := range job.destinations {
		action := models.RetentionAction{DestinationID: dest.ID}

		provider, err := e.providerFor(ctx, dest, job.destSecrets[i])
		if err != nil {
			action.Error = err.Error()
			actions = append(actions, action)
			continue
		}
		existing, err := provider.List(ctx, prefix)
		if err != nil {
			action.Error = err.Error()
			actions = append(actions, action)
			continue
		}

		keep, del := PlanRetention(existing, job.schedule.Retention, now)
		action.Listed = len(existing)
		action.Kept = len(keep)
		if len(del) > 0 {
			if err := e.deleteWithAudit(ctx, job, dest, provider, del); err != nil {
				action.Error = err.Error()
				logging.Warn().Err(err).
					Str("schedule_id", job.schedule.ID).
					Str("destination", dest.Name).
					Msg("Retention deletion failed")
			} else {
				action.Deleted = len(del)
			}
		}
		actions = append(actions, action)
	}
	return actions
}

// deleteWithAudit deletes a retention batch and records it in the audit
// trail as a delete_backup operation.
func (e *Engine) deleteWithAudit(ctx context.Context, job *backupJob, dest *models.Destination, provider storage.Provider, del []models.StoredBackup) error {
	names := make([]string, len(del))
	for i, b := range del {
		names[i] = b.Name
	}

	started := time.Now().UTC()
	ev := &models.AuditEvent{
		Operation:       models.OpDeleteBackup,
		Trigger:         job.trigger,
		Status:          models.StatusStarted,
		StartedAt:       started,
		TargetID:        job.target.ID,
		TargetName:      job.target.Name,
		DestinationID:   dest.ID,
		DestinationName: dest.Name,
		ScheduleID:      job.schedule.ID,
		ScheduleName:    job.schedule.Name,
		Details:         map[string]any{"count": len(del), "backups": names},
	}
	if err := e.catalog.AppendAuditEvent(ctx, ev); err != nil {
		logging.Warn().Err(err).Msg("Failed to append retention audit event")
	}

	err := provider.Delete(ctx, del)

	finished := time.Now().UTC()
	ev.FinishedAt = &finished
	if err != nil {
		ev.Status = models.StatusFailed
		ev.ErrorMessage = err.Error()
	} else {
		ev.Status = models.StatusSuccess
	}
	if ferr := e.catalog.FinishAuditEvent(ctx, ev); ferr != nil {
		logging.Warn().Err(ferr).Msg("Failed to finalize retention audit event")
	}
	return err
}

// finalize records the terminal run and audit status, delivers
// notifications, advances the schedule, and publishes the completed run.
func (e *Engine) finalize(ctx context.Context, job *backupJob, run *models.Run, audit *models.AuditEvent, out *produceOutcome) (*RunResult, error) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.BackupFilename = out.backupFilename
	run.Details.Uploads = out.uploads
	run.Details.Retention = out.retention

	if out.err != nil {
		run.Status = models.StatusFailed
		run.ErrorMessage = out.err.Error()
	} else {
		run.Status = models.StatusSuccess
	}

	// Notifications go out before the run record is persisted so their
	// delivery results land in the stored details. The artifact is still
	// on disk here for channels that attach it.
	if results := e.notifyRun(ctx, job, run, out); len(results) > 0 {
		run.Details.Notifications = results
	}

	if err := e.catalog.FinishRun(ctx, run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID).Msg("Failed to finalize run record")
	}

	audit.FinishedAt = &finished
	audit.Status = run.Status
	audit.BackupName = out.backupFilename
	audit.ErrorMessage = run.ErrorMessage
	if err := e.catalog.FinishAuditEvent(ctx, audit); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to finalize backup audit event")
	}

	if job.advance && job.schedule != nil {
		e.advanceSchedule(ctx, job.schedule, run.StartedAt, finished)
	}

	if e.events != nil {
		e.events.RunCompleted(run)
	}

	if out.err != nil {
		logging.Error().Err(out.err).
			Str("run_id", run.ID).
			Str("target", job.target.Name).
			Msg("Backup run failed")
		return nil, out.err
	}
	logging.Info().
		Str("run_id", run.ID).
		Str("target", job.target.Name).
		Str("backup", run.BackupFilename).
		Int("destinations", len(out.uploads)).
		Msg("Backup run completed")
	return &RunResult{
		RunID:          run.ID,
		Status:         run.Status,
		BackupFilename: run.BackupFilename,
		Uploads:        out.uploads,
	}, nil
}

// advanceSchedule moves a schedule past this run: last_run_at is the run's
// start, next_run_at is anchored from the actual finish time.
func (e *Engine) advanceSchedule(ctx context.Context, sched *models.Schedule, startedAt, finishedAt time.Time) {
	next, err := NextRunAt(finishedAt, sched.IntervalSeconds, sched.Retention)
	if err != nil {
		logging.Error().Err(err).Str("schedule_id", sched.ID).Msg("Failed to compute next run time")
		return
	}
	if err := e.catalog.SetScheduleRunTimes(ctx, sched.ID, &startedAt, &next); err != nil {
		logging.Error().Err(err).Str("schedule_id", sched.ID).Msg("Failed to advance schedule run times")
	}
}

func (e *Engine) notifyRun(ctx context.Context, job *backupJob, run *models.Run, out *produceOutcome) []models.NotificationResult {
	if e.notifier == nil || job.schedule == nil {
		return nil
	}
	settings := job.schedule.Retention.Notifications
	if settings == nil {
		return nil
	}
	return e.notifier.Notify(ctx, RunNotification{
		ScheduleName:   job.schedule.Name,
		TargetName:     job.target.Name,
		Status:         run.Status,
		BackupFilename: run.BackupFilename,
		ErrorMessage:   run.ErrorMessage,
		Uploads:        out.uploads,
		ArtifactPath:   out.artifactPath,
		ArtifactSize:   out.artifactSize,
		Settings:       settings,
	})
}
