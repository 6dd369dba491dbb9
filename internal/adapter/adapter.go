// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package adapter implements the per-engine database contract the backup
// pipeline drives: dump to a temp artifact, restore from one, test the
// connection, and collect statistics.
//
// PostgreSQL and MySQL shell out to the engine's own dump/apply tooling
// (pg_dump/psql, mariadb-dump/mysqldump with client fallback) because those
// tools encode a decade of edge cases no reimplementation should attempt;
// connection tests and statistics go through the native Go drivers. SQLite
// is a file copy. Neo4j is exported over Bolt as textual Cypher.
//
// Restores remove all user objects first so a dump applies onto a clean
// database, and report non-fatal statement failures as structured warnings
// instead of aborting.
package adapter

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/tomtom215/custodia/internal/models"
)

// testConnectionTimeout bounds every connection test.
const testConnectionTimeout = 10 * time.Second

// maxRestoreWarnings caps the structured warnings collected during a
// restore; failures past the cap are counted but not recorded.
const maxRestoreWarnings = 100

// Progress receives phase and statement-level updates during a restore.
// Implementations must tolerate a nil callback.
type Progress func(current, total int, message string)

func (p Progress) report(current, total int, message string) {
	if p != nil {
		p(current, total, message)
	}
}

// Adapter is the contract one database engine implements.
type Adapter interface {
	// CreateBackupToTemp dumps the target into a fresh temporary file and
	// returns the canonical artifact filename
	// (backup_<db_type>_<YYYYMMDD_HHMMSS>.<ext>[.gz]) plus the temp path.
	// The caller owns the temp file and must remove it.
	CreateBackupToTemp(ctx context.Context, compress bool) (filename string, tempPath string, err error)

	// Restore drops all user objects in the target database, then applies
	// the backup at backupPath. Non-fatal statement failures are returned
	// as warnings; a non-nil error means the restore did not complete.
	Restore(ctx context.Context, backupPath string, progress Progress) (warnings []string, err error)

	// TestConnection verifies the target is reachable with the configured
	// credentials. It must finish within the 10 s budget. The returned
	// details map feeds the test-connection response payload.
	TestConnection(ctx context.Context) (map[string]interface{}, error)

	// GetStats collects table/row/size statistics (SQL engines) or graph
	// counters (Neo4j).
	GetStats(ctx context.Context) (*models.DatabaseStats, error)
}

// ConnParams is the resolved connection material for a network engine.
type ConnParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ForTarget builds the adapter for a target record and its decrypted
// secrets.
func ForTarget(target *models.Target, secrets models.Secrets) (Adapter, error) {
	switch target.DBType {
	case models.DatabasePostgreSQL:
		return NewPostgres(connParams(target, secrets, 5432)), nil
	case models.DatabaseMySQL:
		return NewMySQL(connParams(target, secrets, 3306)), nil
	case models.DatabaseSQLite:
		path := target.Config.Path
		if path == "" {
			path = target.Config.Database
		}
		return NewSQLite(path), nil
	case models.DatabaseNeo4j:
		return NewNeo4j(target.Config.Host, target.Config.Port, target.Config.User, secrets.Password()), nil
	default:
		return nil, models.ErrValidation.New("unsupported database type: %s", target.DBType)
	}
}

func connParams(target *models.Target, secrets models.Secrets, defaultPort int) ConnParams {
	port := target.Config.Port
	if port == 0 {
		port = defaultPort
	}
	user := target.Config.User
	if user == "" {
		user = secrets["username"]
	}
	return ConnParams{
		Host:     target.Config.Host,
		Port:     port,
		Database: target.Config.Database,
		User:     user,
		Password: secrets.Password(),
	}
}

// backupTimestamp is the artifact-name timestamp, always UTC.
func backupTimestamp() string {
	return time.Now().UTC().Format("20060102_150405")
}

// newTempArtifact creates the temp file a dump is written into. The suffix
// keeps the artifact recognizable in the temp directory.
func newTempArtifact(suffix string) (*os.File, error) {
	f, err := os.CreateTemp("", "custodia-backup-*"+suffix)
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to create temporary backup file: %v", err)
	}
	return f, nil
}

// stderrSnippet trims subprocess stderr to a single readable line for error
// messages: first 500 bytes, newlines collapsed.
func stderrSnippet(stderr *bytes.Buffer) string {
	s := strings.TrimSpace(stderr.String())
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return strings.Join(strings.Fields(s), " ")
}

// subprocessFailure picks the most useful detail for a failed subprocess:
// captured stderr when there is any, the exec error otherwise.
func subprocessFailure(err error, stderr *bytes.Buffer) string {
	if s := stderrSnippet(stderr); s != "" {
		return s
	}
	return err.Error()
}

// openArtifact opens a backup artifact for reading, transparently
// decompressing gzip content.
func openArtifact(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to open backup file: %v", err)
	}
	if !isCompressedArtifact(path) {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, models.ErrAdapterFailure.New("failed to read compressed backup: %v", err)
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	if err := g.f.Close(); err != nil && gzErr == nil {
		return err
	}
	return gzErr
}

// roundMB converts bytes to megabytes rounded to two decimals, matching the
// stats payload precision.
func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

// looksLikeGzip reports whether the file at path starts with the gzip magic
// bytes. Providers that restore by opaque id (Google Drive) lose the .gz
// suffix on the temp file, so suffix checks alone are not trustworthy.
func looksLikeGzip(path string) bool {
	f, err := os.Open(path) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	var magic [2]byte
	if _, err := f.Read(magic[:]); err != nil {
		return false
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}

// isCompressedArtifact combines the suffix and magic-byte checks.
func isCompressedArtifact(path string) bool {
	return strings.HasSuffix(path, ".gz") || looksLikeGzip(path)
}
