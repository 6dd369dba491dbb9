// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/tomtom215/custodia/internal/models"
)

// seedSQLiteFixture builds a database with two tables, a view and a trigger
// so drops have every object type to chew on.
func seedSQLiteFixture(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`INSERT INTO users (name) VALUES ('ada'), ('grace')`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT)`,
		`INSERT INTO orders VALUES (1, 'widget')`,
		`CREATE VIEW user_names AS SELECT name FROM users`,
		`CREATE TRIGGER orders_touch AFTER INSERT ON orders BEGIN UPDATE users SET name = name; END`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func countUserObjects(t *testing.T, path string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	var n int
	err = db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE name NOT LIKE 'sqlite_%'").Scan(&n)
	if err != nil {
		t.Fatalf("count objects: %v", err)
	}
	return n
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + quoteSQLiteIdentifier(table)).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteBackupAndRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "source.db")
	seedSQLiteFixture(t, src)

	filename, tempPath, err := NewSQLite(src).CreateBackupToTemp(context.Background(), false)
	if err != nil {
		t.Fatalf("CreateBackupToTemp: %v", err)
	}
	defer os.Remove(tempPath) //nolint:errcheck // Test cleanup

	if !regexp.MustCompile(`^backup_sqlite_\d{8}_\d{6}\.db$`).MatchString(filename) {
		t.Errorf("unexpected artifact name %q", filename)
	}

	// Restore onto a database holding unrelated data.
	dst := filepath.Join(dir, "replica.db")
	stale, err := sql.Open("sqlite3", dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stale.Exec(`CREATE TABLE legacy (id INTEGER)`); err != nil {
		t.Fatal(err)
	}
	stale.Close() //nolint:errcheck // Test cleanup

	warnings, err := NewSQLite(dst).Restore(context.Background(), tempPath, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if got := countRows(t, dst, "users"); got != 2 {
		t.Errorf("users rows = %d, want 2", got)
	}
	db, err := sql.Open("sqlite3", dst)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	var n int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='legacy'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("stale table survived the restore")
	}

	if _, err := os.Stat(dst + ".backup"); err != nil {
		t.Errorf("safety copy missing: %v", err)
	}
}

func TestSQLiteCompressedBackupRestores(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "source.db")
	seedSQLiteFixture(t, src)

	filename, tempPath, err := NewSQLite(src).CreateBackupToTemp(context.Background(), true)
	if err != nil {
		t.Fatalf("CreateBackupToTemp: %v", err)
	}
	defer os.Remove(tempPath) //nolint:errcheck // Test cleanup

	if !regexp.MustCompile(`^backup_sqlite_\d{8}_\d{6}\.db\.gz$`).MatchString(filename) {
		t.Errorf("unexpected artifact name %q", filename)
	}
	if !looksLikeGzip(tempPath) {
		t.Error("compressed artifact is not gzip")
	}

	dst := filepath.Join(dir, "restored.db")
	if _, err := NewSQLite(dst).Restore(context.Background(), tempPath, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := countRows(t, dst, "orders"); got != 1 {
		t.Errorf("orders rows = %d, want 1", got)
	}
}

func TestSQLiteBackupMissingFile(t *testing.T) {
	t.Parallel()

	a := NewSQLite(filepath.Join(t.TempDir(), "absent.db"))
	if _, _, err := a.CreateBackupToTemp(context.Background(), false); !models.ErrAdapterFailure.Has(err) {
		t.Errorf("expected adapter failure, got %v", err)
	}
}

func TestSQLiteDropAllRemovesUserObjects(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	seedSQLiteFixture(t, path)
	if n := countUserObjects(t, path); n == 0 {
		t.Fatal("fixture produced no objects")
	}

	if err := NewSQLite(path).dropAll(context.Background()); err != nil {
		t.Fatalf("dropAll: %v", err)
	}
	if n := countUserObjects(t, path); n != 0 {
		t.Errorf("%d user objects survived the drop", n)
	}
}

func TestSQLiteDropAllMissingFileIsNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.db")
	if err := NewSQLite(path).dropAll(context.Background()); err != nil {
		t.Errorf("dropAll on missing file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("dropAll created the database file")
	}
}

func TestSQLiteTestConnection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "app.db")
	seedSQLiteFixture(t, path)

	details, err := NewSQLite(path).TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if details["db_type"] != "sqlite" || details["database"] != path {
		t.Errorf("details = %v", details)
	}

	missing := filepath.Join(dir, "absent.db")
	if _, err := NewSQLite(missing).TestConnection(context.Background()); !models.ErrAdapterFailure.Has(err) {
		t.Errorf("expected adapter failure for missing file, got %v", err)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("connection test created the database file")
	}
}

func TestSQLiteGetStats(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.db")
	seedSQLiteFixture(t, path)

	stats, err := NewSQLite(path).GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	if stats.TableCount != 2 {
		t.Errorf("TableCount = %d, want 2", stats.TableCount)
	}
	if stats.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", stats.TotalRows)
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Errorf("DatabaseSizeMB = %v, want > 0", stats.DatabaseSizeMB)
	}

	byName := map[string]int64{}
	for _, tbl := range stats.Tables {
		byName[tbl.Name] = tbl.RowCount
	}
	if byName["users"] != 2 || byName["orders"] != 1 {
		t.Errorf("per-table counts = %v", byName)
	}
}

func TestQuoteSQLiteIdentifier(t *testing.T) {
	t.Parallel()

	if got := quoteSQLiteIdentifier(`weird"name`); got != `"weird""name"` {
		t.Errorf("quoted = %s", got)
	}
	if got := quoteSQLiteIdentifier("users"); got != `"users"` {
		t.Errorf("quoted = %s", got)
	}
}
