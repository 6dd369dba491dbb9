// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
restore.go - Restore Pipeline

A restore locates an artifact on a destination, downloads it to a staging
file, decrypts it when the envelope magic is present, validates that its
detected shape can apply to the target, and hands it to the database
adapter. The adapter empties the target database before applying, so the
restore lock must exclude every concurrent backup on the same family, and
the HTTP write guard keeps application writes out while it runs.

Progress is written to a status file next to the catalog database and polled
through GET /automation/restore-status; the API never blocks on a running
restore.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/envelope"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
)

// RestoreResult is the caller-visible outcome of a completed restore.
type RestoreResult struct {
	RunID    string   `json:"run_id"`
	Status   string   `json:"status"`
	Target   string   `json:"target"`
	Backup   string   `json:"backup"`
	Warnings []string `json:"warnings,omitempty"`
}

// RestoreRequest is the input of RestoreNow. Confirmation must equal
// models.RestoreConfirmation; the check happens before anything is touched.
type RestoreRequest struct {
	TargetID           string
	DestinationID      string
	BackupID           string
	EncryptionPassword string
	Confirmation       string
	UseLocalStorage    bool

	UserID   string
	UserName string
}

// RestoreNow restores a target database from a stored backup artifact.
func (e *Engine) RestoreNow(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	if req.Confirmation != models.RestoreConfirmation {
		return nil, models.ErrValidation.New(
			"restore requires confirmation %q", models.RestoreConfirmation)
	}
	if strings.TrimSpace(req.BackupID) == "" {
		return nil, models.ErrValidation.New("backup_id is required")
	}

	target, secrets, err := e.resolveTarget(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	destID := req.DestinationID
	if req.UseLocalStorage || destID == "" {
		destID = models.LocalDestinationID
	}
	dest, destSecrets, err := e.resolveDestination(ctx, destID)
	if err != nil {
		return nil, err
	}
	provider, err := e.providerFor(ctx, dest, destSecrets)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidateBackupID(req.BackupID); err != nil {
		return nil, err
	}

	// Cheap suffix pre-check. Drive ids are opaque, so there the content
	// detection below is the only gate.
	if dest.Type != models.DestinationGoogleDrive {
		if name := filepath.Base(req.BackupID); !IsBackupNameCompatible(target.DBType, name) {
			return nil, models.ErrValidation.New(
				"backup %q does not match target database type %s", name, target.DBType)
		}
	}

	lock := e.locks.ForDatabase(target.DBType)
	if err := lock.Acquire(oplock.OpRestore); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.Warn().Err(err).Msg("Failed to release restore operation lock")
		}
	}()

	return e.runRestore(ctx, target, secrets, dest, provider, req)
}

// runRestore executes the restore under an already-held lock and guarantees
// terminal bookkeeping on every exit path.
func (e *Engine) runRestore(
	ctx context.Context,
	target *models.Target,
	secrets models.Secrets,
	dest *models.Destination,
	provider restoreProvider,
	req RestoreRequest,
) (result *RestoreResult, err error) {
	started := time.Now().UTC()

	run := &models.Run{
		Status:    models.StatusStarted,
		StartedAt: started,
		Details: models.RunDetails{
			Type:       "restore",
			TargetID:   target.ID,
			TargetName: target.Name,
		},
	}
	if err := e.catalog.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	audit := &models.AuditEvent{
		Operation:       models.OpRestore,
		Trigger:         models.TriggerManual,
		Status:          models.StatusStarted,
		StartedAt:       started,
		TargetID:        target.ID,
		TargetName:      target.Name,
		DestinationID:   dest.ID,
		DestinationName: dest.Name,
		RunID:           run.ID,
		BackupID:        req.BackupID,
		UserID:          req.UserID,
		UserName:        req.UserName,
	}
	if aerr := e.catalog.AppendAuditEvent(ctx, audit); aerr != nil {
		logging.Warn().Err(aerr).Str("run_id", run.ID).Msg("Failed to append restore audit event")
	}

	e.writeRestoreProgress("in_progress", 0, 0, "Downloading backup")
	var warnings []string
	var tempFiles []string
	defer func() {
		for _, p := range tempFiles {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.Warn().Err(rmErr).Str("path", p).Msg("Failed to remove restore temp file")
			}
		}

		finished := time.Now().UTC()
		run.FinishedAt = &finished
		run.Details.Warnings = warnings
		audit.FinishedAt = &finished
		if err != nil {
			run.Status = models.StatusFailed
			run.ErrorMessage = err.Error()
			audit.Status = models.StatusFailed
			audit.ErrorMessage = err.Error()
			e.writeRestoreProgress("failed", 0, 0, err.Error())
		} else {
			run.Status = models.StatusSuccess
			audit.Status = models.StatusSuccess
			e.writeRestoreProgress("completed", 1, 1, "Restore completed")
		}
		e.writeRestoreWarnings(warnings)
		if len(warnings) > 0 {
			audit.Details = map[string]any{"warnings": warnings}
		}

		if ferr := e.catalog.FinishRun(ctx, run); ferr != nil {
			logging.Error().Err(ferr).Str("run_id", run.ID).Msg("Failed to finalize restore run record")
		}
		if ferr := e.catalog.FinishAuditEvent(ctx, audit); ferr != nil {
			logging.Warn().Err(ferr).Str("run_id", run.ID).Msg("Failed to finalize restore audit event")
		}
		if e.events != nil {
			e.events.RunCompleted(run)
		}
	}()

	staging, err := os.CreateTemp("", "custodia-restore-*")
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to create restore staging file: %v", err)
	}
	stagingPath := staging.Name()
	staging.Close() //nolint:errcheck // The provider reopens the path
	tempFiles = append(tempFiles, stagingPath)

	if err = provider.Download(ctx, req.BackupID, stagingPath); err != nil {
		return nil, err
	}

	restoreInput := stagingPath
	if envelope.IsEncryptedFile(stagingPath) {
		if strings.TrimSpace(req.EncryptionPassword) == "" {
			err = models.ErrCrypto.New("backup is encrypted: encryption_password is required")
			return nil, err
		}
		e.writeRestoreProgress("in_progress", 0, 0, "Decrypting backup")
		decrypted, derr := envelope.DecryptToTemp(ctx, stagingPath, req.EncryptionPassword, decryptedSuffix(req.BackupID))
		if derr != nil {
			err = derr
			return nil, err
		}
		tempFiles = append(tempFiles, decrypted)
		restoreInput = decrypted
	}

	compat, err := ValidateBackupCompatibility(target.DBType, restoreInput)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, compat.Warnings...)

	ad, err := e.adapterFor(target, secrets)
	if err != nil {
		return nil, err
	}

	e.writeRestoreProgress("in_progress", 0, 0, "Applying backup")
	restoreWarnings, err := ad.Restore(ctx, restoreInput, func(current, total int, message string) {
		e.writeRestoreProgress("in_progress", current, total, message)
	})
	warnings = append(warnings, restoreWarnings...)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("run_id", run.ID).
		Str("target", target.Name).
		Str("backup_id", req.BackupID).
		Int("warnings", len(warnings)).
		Msg("Restore completed")
	return &RestoreResult{
		RunID:    run.ID,
		Status:   string(models.StatusSuccess),
		Target:   target.Name,
		Backup:   req.BackupID,
		Warnings: warnings,
	}, nil
}

// restoreProvider is the slice of storage.Provider the restore path uses.
type restoreProvider interface {
	Download(ctx context.Context, backupID, destPath string) error
}

// decryptedSuffix recovers the artifact suffix hidden behind ".enc" so the
// adapter's gzip sniffing sees a familiar name.
func decryptedSuffix(backupID string) string {
	name := strings.TrimSuffix(filepath.Base(backupID), ".enc")
	if idx := strings.Index(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}

// restoreProgressFile is the on-disk shape of restore_status.json.
type restoreProgressFile struct {
	Status    string    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type restoreWarningsFile struct {
	Warnings  []string  `json:"warnings"`
	Timestamp time.Time `json:"timestamp"`
}

// writeRestoreProgress persists the polled restore status. Progress is
// advisory; write failures are logged and never fail the restore.
func (e *Engine) writeRestoreProgress(status string, current, total int, message string) {
	data, err := json.Marshal(restoreProgressFile{
		Status:    status,
		Current:   current,
		Total:     total,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		err = os.WriteFile(e.statusFile, data, 0o600)
	}
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to write restore progress file")
	}
}

func (e *Engine) writeRestoreWarnings(warnings []string) {
	data, err := json.Marshal(restoreWarningsFile{
		Warnings:  warnings,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		err = os.WriteFile(e.warningsFile, data, 0o600)
	}
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to write restore warnings file")
	}
}

// RestoreStatus merges the progress file, the warnings file, and the live
// lock state into the polled status payload. A missing progress file reports
// status "none".
func (e *Engine) RestoreStatus() *models.RestoreProgress {
	progress := &models.RestoreProgress{Status: "none"}

	if data, err := os.ReadFile(e.statusFile); err == nil {
		var pf restoreProgressFile
		if err := json.Unmarshal(data, &pf); err == nil {
			progress.Status = pf.Status
			progress.Current = pf.Current
			progress.Total = pf.Total
			progress.Message = pf.Message
			progress.Timestamp = pf.Timestamp
		}
	}
	if data, err := os.ReadFile(e.warningsFile); err == nil {
		var wf restoreWarningsFile
		if err := json.Unmarshal(data, &wf); err == nil {
			progress.Warnings = wf.Warnings
			progress.WarningsCount = len(wf.Warnings)
		}
	}

	if op := e.locks.ActiveOperation(); op != "" {
		progress.IsLocked = true
		progress.LockOperation = op
	}
	return progress
}
