// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/tomtom215/custodia/internal/models"
)

// Backup kind labels produced by DetectBackupKind.
const (
	KindSQLiteDB = "sqlite_db"
	KindCypher   = "cypher"
	KindSQL      = "sql"
	KindUnknown  = "unknown"
)

var (
	sqliteMagic = []byte("SQLite format 3\x00")
	gzipMagic   = []byte{0x1f, 0x8b}
)

// compatHeadBytes bounds how much of an artifact the detector inspects.
// Dumps produced by this project carry their markers in the first few lines.
const compatHeadBytes = 64 * 1024

// Compatibility is the outcome of validating a backup against a restore
// target. Warnings accompany restores that proceed with caveats, such as a
// MariaDB dump going into a MySQL target.
type Compatibility struct {
	DetectedKind string   `json:"detected_kind"`
	SQLFlavor    string   `json:"detected_sql_flavor,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// AllowedBackupExtensions returns the filename suffixes accepted for a
// target's database type, including the gzip and encrypted variants.
func AllowedBackupExtensions(dbType models.DatabaseType) []string {
	var base []string
	switch models.NormalizeDatabaseType(string(dbType)) {
	case models.DatabaseNeo4j:
		base = []string{".cypher", ".cypher.gz"}
	case models.DatabasePostgreSQL, models.DatabaseMySQL:
		base = []string{".sql", ".sql.gz"}
	case models.DatabaseSQLite:
		base = []string{".db", ".db.gz"}
	default:
		return nil
	}

	out := make([]string, 0, len(base)*2)
	out = append(out, base...)
	for _, suffix := range base {
		out = append(out, suffix+".enc")
	}
	return out
}

// IsBackupNameCompatible reports whether a backup filename's suffix matches
// the target's database type. It is a cheap pre-check used for non-Drive
// destinations, where filenames are authored by this project.
func IsBackupNameCompatible(dbType models.DatabaseType, backupName string) bool {
	name := strings.ToLower(backupName)
	allowed := AllowedBackupExtensions(dbType)
	for _, suffix := range allowed {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// readDecompressedHead reads up to compatHeadBytes from the file,
// transparently gunzipping when the gzip magic is present.
func readDecompressedHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 2)
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if n == 2 && bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, models.ErrCompatibilityReject.New("Backup appears to be gzip but cannot be decompressed: %v", err)
		}
		defer gz.Close()
		head, err := io.ReadAll(io.LimitReader(gz, compatHeadBytes))
		if err != nil {
			return nil, models.ErrCompatibilityReject.New("Backup appears to be gzip but cannot be decompressed: %v", err)
		}
		return head, nil
	}

	return io.ReadAll(io.LimitReader(f, compatHeadBytes))
}

// DetectBackupKind inspects a local artifact and classifies it as a SQLite
// database, a Cypher export, a SQL dump (with an optional flavor) or
// unknown. Detection is snippet-based and tuned for artifacts produced by
// this project's adapters.
func DetectBackupKind(path string) (kind, sqlFlavor string, warnings []string, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return "", "", nil, models.ErrCompatibilityReject.New("Backup file not found: %s", path)
	}

	head, err := readDecompressedHead(path)
	if err != nil {
		return "", "", nil, err
	}

	if bytes.HasPrefix(head, sqliteMagic) {
		return KindSQLiteDB, "", nil, nil
	}

	text := string(head)
	upper := strings.ToUpper(text)

	if strings.Contains(upper, "MATCH (") || strings.Contains(upper, "DETACH DELETE") || strings.Contains(upper, "CALL DB.") {
		return KindCypher, "", nil, nil
	}

	sqlMarkers := []string{"CREATE TABLE", "INSERT INTO", "DROP TABLE", "BEGIN TRANSACTION", "COMMIT", "SET "}
	for _, marker := range sqlMarkers {
		if !strings.Contains(upper, marker) {
			continue
		}
		switch {
		case strings.Contains(upper, "POSTGRESQL DATABASE DUMP") ||
			strings.Contains(upper, "PG_DUMP") ||
			strings.Contains(upper, "SET STATEMENT_TIMEOUT"):
			sqlFlavor = string(models.DatabasePostgreSQL)
		case strings.Contains(upper, "MYSQL DUMP") ||
			strings.Contains(upper, "MARIADB") ||
			strings.Contains(text, "/*!"):
			sqlFlavor = string(models.DatabaseMySQL)
			if strings.Contains(upper, "MARIADB") {
				warnings = append(warnings, "Backup appears to be a MariaDB/MySQL dump. Restoring to a MySQL-compatible target should work, but syntax edge cases are possible.")
			}
		}
		return KindSQL, sqlFlavor, warnings, nil
	}

	return KindUnknown, "", nil, nil
}

// ValidateBackupCompatibility rejects restores whose artifact clearly does
// not match the target's database type. The check is conservative: it never
// claims a backup will restore cleanly, only that it is not obviously wrong.
func ValidateBackupCompatibility(dbType models.DatabaseType, path string) (*Compatibility, error) {
	target := models.NormalizeDatabaseType(string(dbType))

	kind, flavor, warnings, err := DetectBackupKind(path)
	if err != nil {
		return nil, err
	}
	result := &Compatibility{DetectedKind: kind, SQLFlavor: flavor, Warnings: warnings}

	switch target {
	case models.DatabaseSQLite:
		if kind != KindSQLiteDB {
			return nil, models.ErrCompatibilityReject.New("Selected backup does not look like a SQLite database file")
		}
		return result, nil

	case models.DatabaseNeo4j:
		if kind != KindCypher {
			return nil, models.ErrCompatibilityReject.New("Selected backup does not look like a Neo4j cypher export")
		}
		return result, nil

	case models.DatabasePostgreSQL, models.DatabaseMySQL:
		if kind != KindSQL {
			return nil, models.ErrCompatibilityReject.New("Selected backup does not look like a SQL dump")
		}
		if flavor != "" && flavor != string(target) {
			return nil, models.ErrCompatibilityReject.New("Selected SQL dump looks like '%s' and is not compatible with target '%s'", flavor, target)
		}
		return result, nil

	default:
		return nil, models.ErrCompatibilityReject.New("Unsupported target db_type: %s", dbType)
	}
}
