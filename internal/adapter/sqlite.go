// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver registration

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// SQLite treats the database as a plain file: backup copies it, restore
// replaces it. A safety copy of the live file is written next to it before
// replacement and rolled back if the replacement fails.
type SQLite struct {
	path string
}

// NewSQLite creates the adapter for the database file at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// CreateBackupToTemp copies the database file into a temp artifact,
// optionally gzip-compressed.
func (a *SQLite) CreateBackupToTemp(_ context.Context, compress bool) (string, string, error) {
	if _, err := os.Stat(a.path); err != nil {
		return "", "", models.ErrAdapterFailure.New("sqlite database file not found: %s", a.path)
	}

	ts := backupTimestamp()
	filename := "backup_sqlite_" + ts + ".db"
	suffix := ".db"
	if compress {
		filename += ".gz"
		suffix = ".db.gz"
	}

	tmp, err := newTempArtifact(suffix)
	if err != nil {
		return "", "", err
	}
	tempPath := tmp.Name()

	src, err := os.Open(a.path) //nolint:gosec // G304: path comes from the validated target record
	if err != nil {
		tmp.Close()         //nolint:errcheck // Best effort cleanup on error
		os.Remove(tempPath) //nolint:errcheck // Best effort cleanup on error
		return "", "", models.ErrAdapterFailure.New("sqlite backup failed: %v", err)
	}

	var out io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		out = gz
	}

	_, copyErr := io.Copy(out, src)
	src.Close() //nolint:errcheck // Read side, nothing to flush
	if gz != nil {
		if err := gz.Close(); err != nil && copyErr == nil {
			copyErr = err
		}
	}
	if err := tmp.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		os.Remove(tempPath) //nolint:errcheck // Best effort cleanup on error
		return "", "", models.ErrAdapterFailure.New("sqlite backup failed: %v", copyErr)
	}

	logging.Info().Str("filename", filename).Str("database", a.path).Msg("SQLite file copy completed")
	return filename, tempPath, nil
}

// Restore drops all user objects and then replaces the database file with
// the artifact contents.
func (a *SQLite) Restore(ctx context.Context, backupPath string, progress Progress) ([]string, error) {
	progress.report(0, 0, "Dropping existing database data...")
	if err := a.dropAll(ctx); err != nil {
		return nil, models.ErrAdapterFailure.New("failed to drop sqlite objects: %v", err)
	}

	progress.report(0, 0, "Restoring sqlite database from backup...")
	safetyPath := a.path + ".backup"
	haveSafety := false
	if _, err := os.Stat(a.path); err == nil {
		if err := copyFileContents(a.path, safetyPath); err != nil {
			return nil, models.ErrAdapterFailure.New("failed to snapshot current database file: %v", err)
		}
		haveSafety = true
	}

	if err := a.replaceFromArtifact(backupPath); err != nil {
		if haveSafety {
			if rbErr := copyFileContents(safetyPath, a.path); rbErr != nil {
				logging.Error().Err(rbErr).Str("database", a.path).Msg("Failed to roll back sqlite database file")
			}
		}
		return nil, models.ErrAdapterFailure.New("sqlite restore failed: %v", err)
	}
	return nil, nil
}

// dropAll removes views, triggers and tables in that order, skipping the
// sqlite_* internals, then resets autoincrement counters. A missing database
// file means there is nothing to drop.
func (a *SQLite) dropAll(ctx context.Context) error {
	if _, err := os.Stat(a.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	db, err := sql.Open("sqlite3", a.path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=OFF;"); err != nil {
		return err
	}

	for _, objType := range []string{"view", "trigger", "table"} {
		names, err := listUserObjects(ctx, db, objType)
		if err != nil {
			return err
		}
		for _, name := range names {
			stmt := fmt.Sprintf("DROP %s IF EXISTS %s;", strings.ToUpper(objType), quoteSQLiteIdentifier(name))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}

	// sqlite_sequence only exists once an AUTOINCREMENT table has been created.
	db.ExecContext(ctx, "DELETE FROM sqlite_sequence;") //nolint:errcheck // Absent table is fine
	return nil
}

func listUserObjects(ctx context.Context, db *sql.DB, objType string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%'", objType)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// replaceFromArtifact overwrites the database file with the (decompressed)
// artifact contents.
func (a *SQLite) replaceFromArtifact(backupPath string) error {
	in, err := openArtifact(backupPath)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	dst, err := os.OpenFile(a.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: path comes from the validated target record
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, in); err != nil {
		dst.Close() //nolint:errcheck // Already failing
		return err
	}
	return dst.Close()
}

// TestConnection opens the file read-only so a missing database fails the
// test instead of being silently created, and proves the file is a real
// SQLite database by querying its schema.
func (a *SQLite) TestConnection(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, testConnectionTimeout)
	defer cancel()

	if _, err := os.Stat(a.path); err != nil {
		return nil, models.ErrAdapterFailure.New("sqlite database file not found: %s", a.path)
	}

	db, err := sql.Open("sqlite3", "file:"+a.path+"?mode=ro")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to initialize sqlite client: %v", err)
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	var objects int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&objects); err != nil {
		return nil, models.ErrAdapterFailure.New("connection test failed: %v", err)
	}

	return map[string]interface{}{
		"db_type":  string(models.DatabaseSQLite),
		"database": a.path,
	}, nil
}

// GetStats lists user tables with exact row counts. database_size_mb is the
// file size on disk.
func (a *SQLite) GetStats(ctx context.Context) (*models.DatabaseStats, error) {
	info, err := os.Stat(a.path)
	if err != nil {
		return nil, models.ErrAdapterFailure.New("sqlite database file not found: %s", a.path)
	}

	db, err := sql.Open("sqlite3", "file:"+a.path+"?mode=ro")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to initialize sqlite client: %v", err)
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	names, err := listUserObjects(ctx, db, "table")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("sqlite stats query failed: %v", err)
	}

	stats := &models.DatabaseStats{}
	for _, name := range names {
		var rowCount int64
		query := "SELECT COUNT(*) FROM " + quoteSQLiteIdentifier(name)
		if err := db.QueryRowContext(ctx, query).Scan(&rowCount); err != nil {
			return nil, models.ErrAdapterFailure.New("sqlite stats query failed for table %s: %v", name, err)
		}
		stats.Tables = append(stats.Tables, models.TableStats{Name: name, RowCount: rowCount})
		stats.TotalRows += rowCount
	}

	stats.TableCount = len(stats.Tables)
	stats.DatabaseSizeMB = roundMB(info.Size())
	return stats, nil
}

func quoteSQLiteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// copyFileContents copies src to dst, truncating dst if it exists.
func copyFileContents(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: pipeline-owned paths
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read side, nothing to flush

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: pipeline-owned paths
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck // Already failing
		return err
	}
	return out.Close()
}
