// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/custodia/internal/models"
)

// Local stores backup artifacts on the local filesystem under a base
// directory. Backup ids are POSIX-style paths relative to the base, so ids
// survive a base-path move and never leak the host layout.
type Local struct {
	base string
}

// NewLocal creates a local provider rooted at base. The directory is created
// lazily on first upload or probe.
func NewLocal(base string) *Local {
	return &Local{base: filepath.Clean(base)}
}

// List walks the base directory and returns every regular file whose
// relative path starts with prefix, newest first. A missing base directory
// is an empty destination, not an error.
func (l *Local) List(_ context.Context, prefix string) ([]models.StoredBackup, error) {
	backups := []models.StoredBackup{}

	err := filepath.WalkDir(l.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.base, p)
		if relErr != nil {
			return relErr
		}
		id := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		backups = append(backups, models.StoredBackup{
			ID:        id,
			Name:      path.Base(id),
			CreatedAt: info.ModTime().UTC(),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []models.StoredBackup{}, nil
		}
		return nil, models.ErrProviderFailure.New("failed to list local backups: %v", err)
	}

	sortNewestFirst(backups)
	return backups, nil
}

// Upload copies localPath to base/destName, creating the per-target
// subdirectory when destName carries one.
func (l *Local) Upload(_ context.Context, localPath, destName string) (*models.StoredBackup, error) {
	if err := validateDestName(destName); err != nil {
		return nil, err
	}

	dest := filepath.Join(l.base, filepath.FromSlash(destName))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, models.ErrProviderFailure.New("failed to create backup directory: %v", err)
	}

	size, err := copyFile(localPath, dest)
	if err != nil {
		return nil, models.ErrProviderFailure.New("failed to store backup locally: %v", err)
	}

	return &models.StoredBackup{
		ID:        destName,
		Name:      path.Base(destName),
		CreatedAt: time.Now().UTC(),
		Size:      size,
	}, nil
}

// Download copies the artifact identified by backupID to destPath.
func (l *Local) Download(_ context.Context, backupID, destPath string) error {
	if err := l.ValidateBackupID(backupID); err != nil {
		return err
	}

	src := filepath.Join(l.base, filepath.FromSlash(backupID))
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return models.ErrNotFound.New("backup not found: %s", backupID)
		}
		return models.ErrProviderFailure.New("failed to access backup: %v", err)
	}

	if _, err := copyFile(src, destPath); err != nil {
		return models.ErrProviderFailure.New("failed to read local backup: %v", err)
	}
	return nil
}

// Delete removes the given artifacts and prunes per-target directories left
// empty by the removal. Directories above the base are never touched.
func (l *Local) Delete(_ context.Context, backups []models.StoredBackup) error {
	for _, b := range backups {
		if err := l.ValidateBackupID(b.ID); err != nil {
			return err
		}

		target := filepath.Join(l.base, filepath.FromSlash(b.ID))
		if err := os.Remove(target); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return models.ErrProviderFailure.New("failed to delete backup %s: %v", b.ID, err)
		}
		l.pruneEmptyParents(filepath.Dir(target))
	}
	return nil
}

// pruneEmptyParents removes empty directories between dir and the base,
// stopping at the first non-empty one.
func (l *Local) pruneEmptyParents(dir string) {
	for dir != l.base && strings.HasPrefix(dir, l.base+string(os.PathSeparator)) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// ValidateBackupID accepts only relative POSIX paths that stay inside the
// base directory.
func (l *Local) ValidateBackupID(backupID string) error {
	if backupID == "" {
		return models.ErrValidation.New("backup id is required")
	}
	if strings.HasPrefix(backupID, "/") || strings.Contains(backupID, "\\") {
		return models.ErrValidation.New("invalid backup id: %s", backupID)
	}
	clean := path.Clean(backupID)
	if clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return models.ErrValidation.New("invalid backup id: %s", backupID)
	}
	return nil
}

// Probe creates the base directory if needed and verifies it is writable.
func (l *Local) Probe(_ context.Context) error {
	if err := os.MkdirAll(l.base, 0o750); err != nil {
		return models.ErrProviderFailure.New("backup directory is not creatable: %v", err)
	}

	probe := filepath.Join(l.base, ".custodia-write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return models.ErrProviderFailure.New("backup directory is not writable: %v", err)
	}
	_ = os.Remove(probe)
	return nil
}

// validateDestName enforces the destination-name grammar shared by the
// path-rooted providers: relative, at most one directory segment, no dot
// traversal.
func validateDestName(destName string) error {
	if destName == "" {
		return models.ErrValidation.New("destination name is required")
	}
	if strings.HasPrefix(destName, "/") || strings.Contains(destName, "\\") {
		return models.ErrValidation.New("invalid destination name: %s", destName)
	}
	if strings.Count(destName, "/") > 1 {
		return models.ErrValidation.New("destination name may contain at most one directory segment: %s", destName)
	}
	for _, seg := range strings.Split(destName, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return models.ErrValidation.New("invalid destination name: %s", destName)
		}
	}
	return nil
}

// copyFile copies src to dst and returns the number of bytes written. dst is
// truncated if it already exists.
//
//nolint:gosec // G304: both paths are produced by the pipeline, not callers
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return 0, err
	}
	return n, out.Close()
}
