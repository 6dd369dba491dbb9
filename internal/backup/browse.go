// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
browse.go - Stored Backup Browsing

Engine operations behind the destination backup endpoints: enumerate stored
artifacts, stage one for download, delete one with an audit trail, probe
target and destination connectivity, and collect target statistics. Every
operation that accepts a backup id from a caller validates it against the
provider's shape first.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// ListDestinationBackups enumerates stored artifacts on a destination,
// newest first. When targetID is set, the listing is scoped to that target's
// sanitized directory prefix.
func (e *Engine) ListDestinationBackups(ctx context.Context, destinationID, targetID string) ([]models.StoredBackup, error) {
	dest, destSecrets, err := e.resolveDestination(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	provider, err := e.providerFor(ctx, dest, destSecrets)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if targetID != "" {
		target, err := e.catalog.GetTarget(ctx, targetID)
		if err != nil {
			return nil, err
		}
		prefix = SanitizeName(target.Name) + "/"
	}
	return provider.List(ctx, prefix)
}

// StageBackupDownload downloads a stored artifact into a temporary file for
// the download endpoint to stream. The caller owns the returned path and
// must remove it.
func (e *Engine) StageBackupDownload(ctx context.Context, destinationID, backupID string) (string, error) {
	dest, destSecrets, err := e.resolveDestination(ctx, destinationID)
	if err != nil {
		return "", err
	}
	provider, err := e.providerFor(ctx, dest, destSecrets)
	if err != nil {
		return "", err
	}
	if err := provider.ValidateBackupID(backupID); err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "custodia-download-*")
	if err != nil {
		return "", models.ErrProviderFailure.New("failed to create download staging file: %v", err)
	}
	path := f.Name()
	f.Close() //nolint:errcheck // The provider reopens the path

	if err := provider.Download(ctx, backupID, path); err != nil {
		os.Remove(path) //nolint:errcheck // Best effort cleanup on error
		return "", err
	}
	return path, nil
}

// DeleteStoredBackup deletes one artifact from a destination and records the
// deletion in the audit trail. name is the display name recorded with the
// event; it falls back to the id.
func (e *Engine) DeleteStoredBackup(ctx context.Context, destinationID, backupID, name, userID, userName string) error {
	dest, destSecrets, err := e.resolveDestination(ctx, destinationID)
	if err != nil {
		return err
	}
	provider, err := e.providerFor(ctx, dest, destSecrets)
	if err != nil {
		return err
	}
	if err := provider.ValidateBackupID(backupID); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		name = backupID
	}

	started := time.Now().UTC()
	err = provider.Delete(ctx, []models.StoredBackup{{ID: backupID, Name: name}})

	finished := time.Now().UTC()
	ev := &models.AuditEvent{
		Operation:       models.OpDeleteBackup,
		Trigger:         models.TriggerManual,
		Status:          models.StatusSuccess,
		StartedAt:       started,
		FinishedAt:      &finished,
		DestinationID:   dest.ID,
		DestinationName: dest.Name,
		BackupID:        backupID,
		BackupName:      name,
		UserID:          userID,
		UserName:        userName,
	}
	if err != nil {
		ev.Status = models.StatusFailed
		ev.ErrorMessage = err.Error()
	}
	if aerr := e.catalog.AppendAuditEvent(ctx, ev); aerr != nil {
		logging.Warn().Err(aerr).Msg("Failed to append delete_backup audit event")
	}
	return err
}

// TestTarget probes connectivity for an unsaved target definition. The 10 s
// budget lives inside the adapter contract.
func (e *Engine) TestTarget(ctx context.Context, dbType string, cfg models.TargetConfig, secrets models.Secrets) *models.TestConnectionResponse {
	target := &models.Target{
		Name:   "connection-test",
		DBType: models.NormalizeDatabaseType(dbType),
		Config: cfg,
	}
	ad, err := e.adapterFor(target, secrets)
	if err != nil {
		return &models.TestConnectionResponse{Success: false, Message: err.Error()}
	}

	details, err := ad.TestConnection(ctx)
	if err != nil {
		return &models.TestConnectionResponse{Success: false, Message: err.Error(), Details: details}
	}
	return &models.TestConnectionResponse{
		Success: true,
		Message: "Connection successful",
		Details: details,
	}
}

// TestSavedTarget probes connectivity for a stored target using its stored
// secrets.
func (e *Engine) TestSavedTarget(ctx context.Context, targetID string) (*models.TestConnectionResponse, error) {
	target, secrets, err := e.resolveTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return e.TestTarget(ctx, string(target.DBType), target.Config, secrets), nil
}

// TestDestination probes an unsaved destination definition with a real
// write (local, SFTP) or a one-item listing (Drive).
func (e *Engine) TestDestination(ctx context.Context, destType string, cfg models.DestinationConfig, secrets models.Secrets) *models.TestConnectionResponse {
	dest := &models.Destination{
		Name:   "connection-test",
		Type:   models.DestinationType(strings.ToLower(strings.TrimSpace(destType))),
		Config: cfg,
	}
	provider, err := e.providerFor(ctx, dest, secrets)
	if err != nil {
		return &models.TestConnectionResponse{Success: false, Message: err.Error()}
	}
	if err := provider.Probe(ctx); err != nil {
		return &models.TestConnectionResponse{Success: false, Message: err.Error()}
	}
	return &models.TestConnectionResponse{Success: true, Message: "Destination is reachable and writable"}
}

// TargetStats collects statistics for a stored target via its adapter.
func (e *Engine) TargetStats(ctx context.Context, targetID string) (*models.DatabaseStats, error) {
	target, secrets, err := e.resolveTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	ad, err := e.adapterFor(target, secrets)
	if err != nil {
		return nil, err
	}
	return ad.GetStats(ctx)
}
