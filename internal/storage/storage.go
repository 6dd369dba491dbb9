// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package storage implements the destination providers backup artifacts are
// uploaded to: local filesystem, SFTP, and Google Drive.
//
// All three speak the same Provider interface so the pipeline, the retention
// sweep, and the restore flow never branch on destination type. Backup ids
// are provider-scoped (a relative path for local, the full remote path for
// SFTP, an opaque file id for Google Drive), and every operation that accepts
// an id from an external caller validates it against the provider's allowed
// shape before touching anything.
package storage

import (
	"context"
	"sort"

	"github.com/tomtom215/custodia/internal/models"
)

// Provider is one configured backup destination.
//
// List returns artifacts newest first. Upload places a local file under the
// destination root; destName may carry one directory segment
// ("pg_main/backup_....sql.gz") to scope artifacts per target. Delete
// refuses ids that resolve outside the destination root.
type Provider interface {
	List(ctx context.Context, prefix string) ([]models.StoredBackup, error)
	Upload(ctx context.Context, localPath, destName string) (*models.StoredBackup, error)
	Download(ctx context.Context, backupID, destPath string) error
	Delete(ctx context.Context, backups []models.StoredBackup) error

	// ValidateBackupID rejects ids of the wrong shape for this provider
	// before any remote call is made.
	ValidateBackupID(backupID string) error

	// Probe verifies the destination is reachable and writable. It backs
	// the connection-test endpoint and performs real IO.
	Probe(ctx context.Context) error
}

// ForDestination builds the provider for a destination record. secrets is
// the decrypted secret material, or nil when the destination has none.
func ForDestination(ctx context.Context, d *models.Destination, secrets models.Secrets) (Provider, error) {
	switch d.Type {
	case models.DestinationLocal:
		base := d.Config.Path
		if base == "" {
			base = models.DefaultLocalBackupPath
		}
		return NewLocal(base), nil

	case models.DestinationSFTP:
		return NewSFTP(d.Config, secrets), nil

	case models.DestinationGoogleDrive:
		return NewDrive(ctx, secrets["service_account_json"], d.Config.FolderID)

	default:
		return nil, models.ErrValidation.New("Unsupported destination type: %s", d.Type)
	}
}

// sortNewestFirst orders backups by created_at descending; equal timestamps
// break on id ascending so pagination is stable.
func sortNewestFirst(backups []models.StoredBackup) {
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].ID < backups[j].ID
	})
}
