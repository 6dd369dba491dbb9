// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/envelope"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
)

// sqliteArtifact is a minimal payload carrying the SQLite file magic.
var sqliteArtifact = []byte("SQLite format 3\x00fake page data")

func TestRestoreNowRequiresConfirmation(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{})

	_, err := e.RestoreNow(context.Background(), RestoreRequest{
		TargetID:     "t-1",
		BackupID:     "app_db/backup_sqlite_20260318_120000.db",
		Confirmation: "yes please",
	})
	if !models.ErrValidation.Has(err) {
		t.Fatalf("RestoreNow = %v, want validation error", err)
	}
	if len(cat.runs) != 0 {
		t.Error("rejected restore still created a run record")
	}
}

func TestRestoreNowRejectsWrongSuffix(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{})

	// A .sql dump cannot restore into a sqlite target; the filename check
	// fires before any download.
	_, err := e.RestoreNow(context.Background(), RestoreRequest{
		TargetID:        "t-1",
		BackupID:        "app_db/backup_postgresql_20260318_120000.sql.gz",
		Confirmation:    models.RestoreConfirmation,
		UseLocalStorage: true,
	})
	if !models.ErrValidation.Has(err) {
		t.Fatalf("RestoreNow = %v, want validation error", err)
	}
}

func TestRestoreNowSuccess(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)
	ad := &fakeAdapter{restoreWarnings: []string{"index rebuilt"}}
	provider := &fakeProvider{downloadContent: sqliteArtifact}
	sink := &captureSink{}

	e := newTestEngine(t, cat, ad, provider)
	e.SetEventSink(sink)

	result, err := e.RestoreNow(context.Background(), RestoreRequest{
		TargetID:        "t-1",
		BackupID:        "app_db/backup_sqlite_20260318_120000.db",
		Confirmation:    models.RestoreConfirmation,
		UseLocalStorage: true,
		UserID:          "u1",
		UserName:        "alice",
	})
	if err != nil {
		t.Fatalf("RestoreNow: %v", err)
	}
	if result.Status != string(models.StatusSuccess) || result.Target != "App DB" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != "index rebuilt" {
		t.Errorf("Warnings = %v, want adapter warning", result.Warnings)
	}
	if len(ad.restored) != 1 {
		t.Fatalf("adapter restored %d times, want 1", len(ad.restored))
	}

	if len(cat.finishedRuns) != 1 {
		t.Fatalf("finished runs = %d, want 1", len(cat.finishedRuns))
	}
	run := cat.finishedRuns[0]
	if run.Details.Type != "restore" || run.Status != models.StatusSuccess {
		t.Errorf("run = type %q status %s", run.Details.Type, run.Status)
	}

	ev := cat.lastAudit(models.OpRestore)
	if ev == nil {
		t.Fatal("no restore audit event")
	}
	if ev.UserName != "alice" || ev.BackupID == "" {
		t.Errorf("audit = %+v, want user and backup recorded", ev)
	}

	// The lock is released and the event published on completion.
	if e.locks.ActiveOperation() != "" {
		t.Error("operation lock still held after restore")
	}
	if len(sink.runs) != 1 {
		t.Errorf("event sink saw %d runs, want 1", len(sink.runs))
	}

	status := e.RestoreStatus()
	if status.Status != "completed" {
		t.Errorf("RestoreStatus = %q, want completed", status.Status)
	}
	if status.WarningsCount != 1 {
		t.Errorf("WarningsCount = %d, want 1", status.WarningsCount)
	}
}

func TestRestoreNowEncryptedRequiresPassword(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)

	// Craft a genuinely envelope-encrypted artifact for the provider to
	// serve.
	plain := t.TempDir() + "/plain.db"
	enc := t.TempDir() + "/backup_sqlite_20260318_120000.db.enc"
	if err := os.WriteFile(plain, sqliteArtifact, 0o600); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	if err := envelope.EncryptFile(context.Background(), plain, enc, "correct horse"); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}
	encrypted, err := os.ReadFile(enc)
	if err != nil {
		t.Fatalf("read encrypted: %v", err)
	}

	ad := &fakeAdapter{}
	provider := &fakeProvider{downloadContent: encrypted}
	e := newTestEngine(t, cat, ad, provider)

	req := RestoreRequest{
		TargetID:        "t-1",
		BackupID:        "app_db/backup_sqlite_20260318_120000.db.enc",
		Confirmation:    models.RestoreConfirmation,
		UseLocalStorage: true,
	}
	_, err = e.RestoreNow(context.Background(), req)
	if !models.ErrCrypto.Has(err) {
		t.Fatalf("RestoreNow without password = %v, want crypto error", err)
	}
	if len(cat.finishedRuns) != 1 || cat.finishedRuns[0].Status != models.StatusFailed {
		t.Error("failed restore was not recorded as a failed run")
	}
	if status := e.RestoreStatus(); status.Status != "failed" {
		t.Errorf("RestoreStatus = %q, want failed", status.Status)
	}

	// With the password the same artifact restores.
	req.EncryptionPassword = "correct horse"
	if _, err := e.RestoreNow(context.Background(), req); err != nil {
		t.Fatalf("RestoreNow with password: %v", err)
	}
	if len(ad.restored) != 1 {
		t.Fatalf("adapter restored %d times, want 1", len(ad.restored))
	}
	// The decrypted staging file keeps a .db suffix for content sniffing
	// and is removed afterwards.
	if !strings.Contains(ad.restored[0], ".db") {
		t.Errorf("restore input = %q, want .db suffix", ad.restored[0])
	}
	if _, err := os.Stat(ad.restored[0]); !os.IsNotExist(err) {
		t.Error("decrypted staging file was not cleaned up")
	}
}

func TestRestoreNowIncompatibleContent(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)

	// Correct suffix, wrong content: a SQL dump renamed .db.
	provider := &fakeProvider{downloadContent: []byte("CREATE TABLE t (id int);\nINSERT INTO t VALUES (1);\n")}
	e := newTestEngine(t, cat, &fakeAdapter{}, provider)

	_, err := e.RestoreNow(context.Background(), RestoreRequest{
		TargetID:        "t-1",
		BackupID:        "app_db/backup_sqlite_20260318_120000.db",
		Confirmation:    models.RestoreConfirmation,
		UseLocalStorage: true,
	})
	if !models.ErrCompatibilityReject.Has(err) {
		t.Fatalf("RestoreNow = %v, want compatibility rejection", err)
	}
}

func TestRestoreNowBlockedByBackupLock(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedScheduleFixture(t, cat)
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{downloadContent: sqliteArtifact})

	lock := e.locks.ForDatabase(models.DatabaseMySQL)
	if err := lock.Acquire(oplock.OpBackup); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release() //nolint:errcheck // Test cleanup

	_, err := e.RestoreNow(context.Background(), RestoreRequest{
		TargetID:        "t-1",
		BackupID:        "app_db/backup_sqlite_20260318_120000.db",
		Confirmation:    models.RestoreConfirmation,
		UseLocalStorage: true,
	})
	if !models.ErrConflict.Has(err) {
		t.Fatalf("RestoreNow under backup lock = %v, want conflict", err)
	}
}

func TestRestoreStatusNone(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{})

	status := e.RestoreStatus()
	if status.Status != "none" || status.IsLocked {
		t.Errorf("RestoreStatus = %+v, want none and unlocked", status)
	}
}

func TestRestoreStatusMergesLockState(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{})

	lock := e.locks.ForDatabase(models.DatabaseSQLite)
	if err := lock.Acquire(oplock.OpRestore); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release() //nolint:errcheck // Test cleanup

	status := e.RestoreStatus()
	if !status.IsLocked || status.LockOperation != oplock.OpRestore {
		t.Errorf("RestoreStatus = %+v, want restore lock surfaced", status)
	}
}

func TestRestoreStatusReadsProgressFile(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	e := newTestEngine(t, cat, &fakeAdapter{}, &fakeProvider{})

	data, err := json.Marshal(restoreProgressFile{Status: "in_progress", Current: 3, Total: 10, Message: "Applying backup"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(e.statusFile, data, 0o600); err != nil {
		t.Fatalf("write status file: %v", err)
	}

	status := e.RestoreStatus()
	if status.Status != "in_progress" || status.Current != 3 || status.Total != 10 {
		t.Errorf("RestoreStatus = %+v", status)
	}
}
