// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/custodia/internal/models"
)

// seedDueSchedules creates n enabled schedules, all sharing one target and
// one destination and all past due.
func seedDueSchedules(t *testing.T, cat *fakeCatalog, n int) []*models.Schedule {
	t.Helper()
	ctx := context.Background()

	target := &models.Target{Name: "App DB", DBType: models.DatabaseSQLite, IsActive: true}
	if err := cat.CreateTarget(ctx, target, ""); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	dest := &models.Destination{Name: "Local Disk", Type: models.DestinationLocal, IsActive: true}
	if err := cat.CreateDestination(ctx, dest, ""); err != nil {
		t.Fatalf("CreateDestination: %v", err)
	}

	schedules := make([]*models.Schedule, 0, n)
	for i := 0; i < n; i++ {
		due := time.Now().UTC().Add(-time.Duration(n-i) * time.Minute)
		sched := &models.Schedule{
			Name:            "batch",
			TargetID:        target.ID,
			DestinationIDs:  []string{dest.ID},
			Enabled:         true,
			IntervalSeconds: 600,
			NextRunAt:       &due,
			Retention:       models.DefaultRetentionPolicy(),
		}
		if err := cat.CreateSchedule(ctx, sched); err != nil {
			t.Fatalf("CreateSchedule: %v", err)
		}
		schedules = append(schedules, sched)
	}
	return schedules
}

func TestRunDueExecutesBatchInOrder(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	schedules := seedDueSchedules(t, cat, 3)
	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	resp, err := e.RunDue(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if resp.Count != 3 || len(resp.Results) != 3 {
		t.Fatalf("Count = %d, Results = %d, want 3 and 3", resp.Count, len(resp.Results))
	}
	for i, res := range resp.Results {
		if res.ScheduleID != schedules[i].ID {
			t.Errorf("Results[%d].ScheduleID = %s, want %s (oldest first)", i, res.ScheduleID, schedules[i].ID)
		}
		if res.Status != models.StatusSuccess {
			t.Errorf("Results[%d].Status = %s: %s", i, res.Status, res.Error)
		}
	}

	// Every schedule was advanced past now, so a second cycle finds nothing.
	resp, err = e.RunDue(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("RunDue second cycle: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("second cycle Count = %d, want 0", resp.Count)
	}
}

func TestRunDueHonorsLimit(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedDueSchedules(t, cat, 5)
	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	resp, err := e.RunDue(context.Background(), time.Now().UTC(), 2)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Count = %d, want 2", resp.Count)
	}
}

func TestRunDueReportsPerScheduleFailures(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	schedules := seedDueSchedules(t, cat, 2)

	// Break the second schedule by pointing it at a missing target.
	schedules[1].TargetID = "nope"
	if err := cat.UpdateSchedule(context.Background(), schedules[1]); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	resp, err := e.RunDue(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if resp.Results[0].Status != models.StatusSuccess {
		t.Errorf("healthy schedule failed: %s", resp.Results[0].Error)
	}
	if resp.Results[1].Status != models.StatusFailed || resp.Results[1].Error == "" {
		t.Errorf("broken schedule = %+v, want failed with error", resp.Results[1])
	}
}

func TestRunEnabledNowSkipsDisabled(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	schedules := seedDueSchedules(t, cat, 3)
	schedules[1].Enabled = false
	if err := cat.UpdateSchedule(context.Background(), schedules[1]); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	resp, err := e.RunEnabledNow(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunEnabledNow: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("Count = %d, want 2 enabled schedules", resp.Count)
	}
	for _, res := range resp.Results {
		if res.ScheduleID == schedules[1].ID {
			t.Errorf("disabled schedule %s was executed", res.ScheduleID)
		}
	}

	// Manual trigger leaves next_run_at alone, so the schedules stay due.
	for _, id := range []string{schedules[0].ID, schedules[2].ID} {
		sched, _ := cat.GetSchedule(context.Background(), id)
		if sched.NextRunAt == nil || sched.NextRunAt.After(time.Now().UTC()) {
			t.Errorf("run-enabled-now advanced schedule %s: %v", id, sched.NextRunAt)
		}
	}
}

func TestTickDrainsFullBatches(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedDueSchedules(t, cat, 5)
	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	r := NewRunner(e, RunnerOptions{MaxSchedules: 2, DrainMode: true})
	r.Tick(context.Background())

	// Batches of 2, 2, 1: the short batch ends the drain with all 5 run.
	if len(cat.finishedRuns) != 5 {
		t.Errorf("finished runs = %d, want 5", len(cat.finishedRuns))
	}
	resp, err := e.RunDue(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("schedules still due after drain: %d", resp.Count)
	}
}

func TestTickWithoutDrainRunsOneBatch(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedDueSchedules(t, cat, 5)
	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	r := NewRunner(e, RunnerOptions{MaxSchedules: 2})
	r.Tick(context.Background())

	if len(cat.finishedRuns) != 2 {
		t.Errorf("finished runs = %d, want one batch of 2", len(cat.finishedRuns))
	}
}

func TestTickDrainCap(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seedDueSchedules(t, cat, 6)
	ad := &fakeAdapter{filename: "backup_sqlite_20260318_120000.db.gz", dumpContent: []byte("dump")}
	e := newTestEngine(t, cat, ad, &fakeProvider{})

	r := NewRunner(e, RunnerOptions{MaxSchedules: 2, DrainMode: true, DrainMaxBatches: 2})
	r.Tick(context.Background())

	if len(cat.finishedRuns) != 4 {
		t.Errorf("finished runs = %d, want 4 (two capped batches)", len(cat.finishedRuns))
	}
}
