// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/custodia/internal/events"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("scheduled", "success"))
	encBefore := testutil.ToFloat64(RunsEncrypted)
	bytesBefore := testutil.ToFloat64(RunBytesUploaded)

	RecordRun("scheduled", "success", 42*time.Second, 4096, true)

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("scheduled", "success")); got != before+1 {
		t.Errorf("RunsTotal = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(RunsEncrypted); got != encBefore+1 {
		t.Errorf("RunsEncrypted = %v, want %v", got, encBefore+1)
	}
	if got := testutil.ToFloat64(RunBytesUploaded); got != bytesBefore+4096 {
		t.Errorf("RunBytesUploaded = %v, want %v", got, bytesBefore+4096)
	}
	if got := testutil.ToFloat64(LastSuccessfulRun); got == 0 {
		t.Error("LastSuccessfulRun not set on success")
	}
}

func TestRecordRunRestoreDoesNotTouchLastSuccess(t *testing.T) {
	LastSuccessfulRun.Set(0)
	RecordRun("restore", "success", time.Second, 0, false)
	if got := testutil.ToFloat64(LastSuccessfulRun); got != 0 {
		t.Errorf("LastSuccessfulRun = %v, restore must not update it", got)
	}
}

func TestRecordUpload(t *testing.T) {
	tests := []struct {
		name     string
		destType string
		err      error
		result   string
	}{
		{name: "local success", destType: "local", err: nil, result: "success"},
		{name: "sftp failure", destType: "sftp", err: errors.New("dial tcp: refused"), result: "failure"},
		{name: "drive success", destType: "google_drive", err: nil, result: "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(UploadsTotal.WithLabelValues(tt.destType, tt.result))
			RecordUpload(tt.destType, 250*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(UploadsTotal.WithLabelValues(tt.destType, tt.result)); got != before+1 {
				t.Errorf("UploadsTotal[%s,%s] = %v, want %v", tt.destType, tt.result, got, before+1)
			}
		})
	}
}

func TestRecordRetentionSweep(t *testing.T) {
	delBefore := testutil.ToFloat64(RetentionDeletions.WithLabelValues("local"))
	errBefore := testutil.ToFloat64(RetentionSweepErrors)

	RecordRetentionSweep("local", 3, nil)
	RecordRetentionSweep("local", 0, errors.New("list failed"))

	if got := testutil.ToFloat64(RetentionDeletions.WithLabelValues("local")); got != delBefore+3 {
		t.Errorf("RetentionDeletions = %v, want %v", got, delBefore+3)
	}
	if got := testutil.ToFloat64(RetentionSweepErrors); got != errBefore+1 {
		t.Errorf("RetentionSweepErrors = %v, want %v", got, errBefore+1)
	}
}

func TestRecordLockConflict(t *testing.T) {
	before := testutil.ToFloat64(LockConflicts.WithLabelValues("sql", "restore"))
	RecordLockConflict("sql", "restore")
	if got := testutil.ToFloat64(LockConflicts.WithLabelValues("sql", "restore")); got != before+1 {
		t.Errorf("LockConflicts = %v, want %v", got, before+1)
	}
}

func TestRecordNotification(t *testing.T) {
	okBefore := testutil.ToFloat64(NotificationsSent.WithLabelValues("telegram", "success"))
	failBefore := testutil.ToFloat64(NotificationsSent.WithLabelValues("email", "failure"))

	RecordNotification("telegram", true)
	RecordNotification("email", false)

	if got := testutil.ToFloat64(NotificationsSent.WithLabelValues("telegram", "success")); got != okBefore+1 {
		t.Errorf("telegram success = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(NotificationsSent.WithLabelValues("email", "failure")); got != failBefore+1 {
		t.Errorf("email failure = %v, want %v", got, failBefore+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/backup-now", "202"))
	RecordAPIRequest("POST", "/api/v1/backup-now", "202", 15*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/backup-now", "202")); got != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("APIActiveRequests = %v, want %v", got, base+2)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("APIActiveRequests = %v, want %v", got, base)
	}
}

func TestRunEventHandler(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("immediate", "failed"))
	err := RunEventHandler(context.Background(), events.RunCompletedEvent{
		RunID:           "run-9",
		Type:            "immediate",
		Status:          "failed",
		DurationSeconds: 1.5,
	})
	if err != nil {
		t.Fatalf("RunEventHandler: %v", err)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("immediate", "failed")); got != before+1 {
		t.Errorf("RunsTotal = %v, want %v", got, before+1)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.0.0-test")
	// The gauge carries the running Go version as a label; presence is enough.
	if n := testutil.CollectAndCount(AppInfo); n == 0 {
		t.Error("AppInfo gauge not registered")
	}
}
