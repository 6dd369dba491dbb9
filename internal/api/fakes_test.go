// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/custodia/internal/auth"
	"github.com/tomtom215/custodia/internal/authz"
	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
	"github.com/tomtom215/custodia/internal/store"
)

// fakeEngine implements Engine with per-method function hooks. Unhooked
// methods return zero values.
type fakeEngine struct {
	runSchedule     func(ctx context.Context, id string, trigger models.Trigger) (*backup.RunResult, error)
	backupNow       func(ctx context.Context, req backup.ManualBackupRequest) (*backup.RunResult, error)
	runDue          func(ctx context.Context, now time.Time, limit int) (*models.RunDueResponse, error)
	runEnabledNow   func(ctx context.Context, max int) (*models.RunDueResponse, error)
	restoreNow      func(ctx context.Context, req backup.RestoreRequest) (*backup.RestoreResult, error)
	restoreStatus   func() *models.RestoreProgress
	listBackups     func(ctx context.Context, destID, targetID string) ([]models.StoredBackup, error)
	stageDownload   func(ctx context.Context, destID, backupID string) (string, error)
	deleteStored    func(ctx context.Context, destID, backupID, name, userID, userName string) error
	testTarget      func(ctx context.Context, dbType string, cfg models.TargetConfig, secrets models.Secrets) *models.TestConnectionResponse
	testSavedTarget func(ctx context.Context, targetID string) (*models.TestConnectionResponse, error)
	testDestination func(ctx context.Context, destType string, cfg models.DestinationConfig, secrets models.Secrets) *models.TestConnectionResponse
	targetStats     func(ctx context.Context, targetID string) (*models.DatabaseStats, error)
}

func (f *fakeEngine) RunSchedule(ctx context.Context, id string, trigger models.Trigger) (*backup.RunResult, error) {
	if f.runSchedule != nil {
		return f.runSchedule(ctx, id, trigger)
	}
	return &backup.RunResult{}, nil
}

func (f *fakeEngine) BackupNow(ctx context.Context, req backup.ManualBackupRequest) (*backup.RunResult, error) {
	if f.backupNow != nil {
		return f.backupNow(ctx, req)
	}
	return &backup.RunResult{}, nil
}

func (f *fakeEngine) RunDue(ctx context.Context, now time.Time, limit int) (*models.RunDueResponse, error) {
	if f.runDue != nil {
		return f.runDue(ctx, now, limit)
	}
	return &models.RunDueResponse{Now: now}, nil
}

func (f *fakeEngine) RunEnabledNow(ctx context.Context, max int) (*models.RunDueResponse, error) {
	if f.runEnabledNow != nil {
		return f.runEnabledNow(ctx, max)
	}
	return &models.RunDueResponse{}, nil
}

func (f *fakeEngine) RestoreNow(ctx context.Context, req backup.RestoreRequest) (*backup.RestoreResult, error) {
	if f.restoreNow != nil {
		return f.restoreNow(ctx, req)
	}
	return &backup.RestoreResult{}, nil
}

func (f *fakeEngine) RestoreStatus() *models.RestoreProgress {
	if f.restoreStatus != nil {
		return f.restoreStatus()
	}
	return &models.RestoreProgress{Status: "none"}
}

func (f *fakeEngine) ListDestinationBackups(ctx context.Context, destID, targetID string) ([]models.StoredBackup, error) {
	if f.listBackups != nil {
		return f.listBackups(ctx, destID, targetID)
	}
	return nil, nil
}

func (f *fakeEngine) StageBackupDownload(ctx context.Context, destID, backupID string) (string, error) {
	if f.stageDownload != nil {
		return f.stageDownload(ctx, destID, backupID)
	}
	return "", models.ErrNotFound.New("backup not found")
}

func (f *fakeEngine) DeleteStoredBackup(ctx context.Context, destID, backupID, name, userID, userName string) error {
	if f.deleteStored != nil {
		return f.deleteStored(ctx, destID, backupID, name, userID, userName)
	}
	return nil
}

func (f *fakeEngine) TestTarget(ctx context.Context, dbType string, cfg models.TargetConfig, secrets models.Secrets) *models.TestConnectionResponse {
	if f.testTarget != nil {
		return f.testTarget(ctx, dbType, cfg, secrets)
	}
	return &models.TestConnectionResponse{Success: true, Message: "connection successful"}
}

func (f *fakeEngine) TestDestination(ctx context.Context, destType string, cfg models.DestinationConfig, secrets models.Secrets) *models.TestConnectionResponse {
	if f.testDestination != nil {
		return f.testDestination(ctx, destType, cfg, secrets)
	}
	return &models.TestConnectionResponse{Success: true, Message: "connection successful"}
}

func (f *fakeEngine) TestSavedTarget(ctx context.Context, targetID string) (*models.TestConnectionResponse, error) {
	if f.testSavedTarget != nil {
		return f.testSavedTarget(ctx, targetID)
	}
	return &models.TestConnectionResponse{Success: true, Message: "connection successful"}, nil
}

func (f *fakeEngine) TargetStats(ctx context.Context, targetID string) (*models.DatabaseStats, error) {
	if f.targetStats != nil {
		return f.targetStats(ctx, targetID)
	}
	return &models.DatabaseStats{}, nil
}

// fakeAdmin implements Admin.
type fakeAdmin struct {
	createTarget      func(ctx context.Context, req models.TargetCreateRequest, actor backup.Actor) (*models.Target, error)
	updateTarget      func(ctx context.Context, id string, req models.TargetUpdateRequest, actor backup.Actor) (*models.Target, error)
	deleteTarget      func(ctx context.Context, id string, actor backup.Actor) error
	createDestination func(ctx context.Context, req models.DestinationCreateRequest, actor backup.Actor) (*models.Destination, error)
	updateDestination func(ctx context.Context, id string, req models.DestinationUpdateRequest, actor backup.Actor) (*models.Destination, error)
	deleteDestination func(ctx context.Context, id string, actor backup.Actor) error
	createSchedule    func(ctx context.Context, req models.ScheduleCreateRequest, actor backup.Actor) (*models.Schedule, error)
	updateSchedule    func(ctx context.Context, id string, req models.ScheduleUpdateRequest, actor backup.Actor) (*models.Schedule, error)
	deleteSchedule    func(ctx context.Context, id string, actor backup.Actor) error
}

func (f *fakeAdmin) CreateTarget(ctx context.Context, req models.TargetCreateRequest, actor backup.Actor) (*models.Target, error) {
	if f.createTarget != nil {
		return f.createTarget(ctx, req, actor)
	}
	return &models.Target{ID: "t1", Name: req.Name}, nil
}

func (f *fakeAdmin) UpdateTarget(ctx context.Context, id string, req models.TargetUpdateRequest, actor backup.Actor) (*models.Target, error) {
	if f.updateTarget != nil {
		return f.updateTarget(ctx, id, req, actor)
	}
	return &models.Target{ID: id}, nil
}

func (f *fakeAdmin) DeleteTarget(ctx context.Context, id string, actor backup.Actor) error {
	if f.deleteTarget != nil {
		return f.deleteTarget(ctx, id, actor)
	}
	return nil
}

func (f *fakeAdmin) CreateDestination(ctx context.Context, req models.DestinationCreateRequest, actor backup.Actor) (*models.Destination, error) {
	if f.createDestination != nil {
		return f.createDestination(ctx, req, actor)
	}
	return &models.Destination{ID: "d1", Name: req.Name}, nil
}

func (f *fakeAdmin) UpdateDestination(ctx context.Context, id string, req models.DestinationUpdateRequest, actor backup.Actor) (*models.Destination, error) {
	if f.updateDestination != nil {
		return f.updateDestination(ctx, id, req, actor)
	}
	return &models.Destination{ID: id}, nil
}

func (f *fakeAdmin) DeleteDestination(ctx context.Context, id string, actor backup.Actor) error {
	if f.deleteDestination != nil {
		return f.deleteDestination(ctx, id, actor)
	}
	return nil
}

func (f *fakeAdmin) CreateSchedule(ctx context.Context, req models.ScheduleCreateRequest, actor backup.Actor) (*models.Schedule, error) {
	if f.createSchedule != nil {
		return f.createSchedule(ctx, req, actor)
	}
	return &models.Schedule{ID: "s1", Name: req.Name}, nil
}

func (f *fakeAdmin) UpdateSchedule(ctx context.Context, id string, req models.ScheduleUpdateRequest, actor backup.Actor) (*models.Schedule, error) {
	if f.updateSchedule != nil {
		return f.updateSchedule(ctx, id, req, actor)
	}
	return &models.Schedule{ID: id}, nil
}

func (f *fakeAdmin) DeleteSchedule(ctx context.Context, id string, actor backup.Actor) error {
	if f.deleteSchedule != nil {
		return f.deleteSchedule(ctx, id, actor)
	}
	return nil
}

// fakeCatalog implements Catalog.
type fakeCatalog struct {
	getTarget       func(ctx context.Context, id string) (*models.Target, error)
	listTargets     func(ctx context.Context) ([]*models.Target, error)
	getDestination  func(ctx context.Context, id string) (*models.Destination, error)
	listDests       func(ctx context.Context) ([]*models.Destination, error)
	getSchedule     func(ctx context.Context, id string) (*models.Schedule, error)
	listSchedules   func(ctx context.Context) ([]*models.Schedule, error)
	getRun          func(ctx context.Context, id string) (*models.Run, error)
	listRuns        func(ctx context.Context, filter store.RunFilter) ([]*models.Run, int, error)
	deleteRun       func(ctx context.Context, id string) error
	getAuditEvent   func(ctx context.Context, id string) (*models.AuditEvent, error)
	listAuditEvents func(ctx context.Context, filter store.AuditFilter) ([]*models.AuditEvent, int, error)
	ping            func(ctx context.Context) error
}

func (f *fakeCatalog) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	if f.getTarget != nil {
		return f.getTarget(ctx, id)
	}
	return &models.Target{ID: id}, nil
}

func (f *fakeCatalog) ListTargets(ctx context.Context) ([]*models.Target, error) {
	if f.listTargets != nil {
		return f.listTargets(ctx)
	}
	return nil, nil
}

func (f *fakeCatalog) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	if f.getDestination != nil {
		return f.getDestination(ctx, id)
	}
	return &models.Destination{ID: id}, nil
}

func (f *fakeCatalog) ListDestinations(ctx context.Context) ([]*models.Destination, error) {
	if f.listDests != nil {
		return f.listDests(ctx)
	}
	return nil, nil
}

func (f *fakeCatalog) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	if f.getSchedule != nil {
		return f.getSchedule(ctx, id)
	}
	return &models.Schedule{ID: id}, nil
}

func (f *fakeCatalog) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	if f.listSchedules != nil {
		return f.listSchedules(ctx)
	}
	return nil, nil
}

func (f *fakeCatalog) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if f.getRun != nil {
		return f.getRun(ctx, id)
	}
	return &models.Run{ID: id}, nil
}

func (f *fakeCatalog) ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.Run, int, error) {
	if f.listRuns != nil {
		return f.listRuns(ctx, filter)
	}
	return nil, 0, nil
}

func (f *fakeCatalog) DeleteRun(ctx context.Context, id string) error {
	if f.deleteRun != nil {
		return f.deleteRun(ctx, id)
	}
	return nil
}

func (f *fakeCatalog) GetAuditEvent(ctx context.Context, id string) (*models.AuditEvent, error) {
	if f.getAuditEvent != nil {
		return f.getAuditEvent(ctx, id)
	}
	return &models.AuditEvent{ID: id}, nil
}

func (f *fakeCatalog) ListAuditEvents(ctx context.Context, filter store.AuditFilter) ([]*models.AuditEvent, int, error) {
	if f.listAuditEvents != nil {
		return f.listAuditEvents(ctx, filter)
	}
	return nil, 0, nil
}

func (f *fakeCatalog) Ping(ctx context.Context) error {
	if f.ping != nil {
		return f.ping(ctx)
	}
	return nil
}

// testRouterOptions carries the knobs test cases override.
type testRouterOptions struct {
	cfg     *config.Config
	engine  *fakeEngine
	admin   *fakeAdmin
	catalog *fakeCatalog
	locks   *oplock.Manager
}

// newTestHandler builds a full route tree over fakes, with auth mode none
// and rate limiting off unless the test says otherwise.
func newTestHandler(t *testing.T, opts testRouterOptions) http.Handler {
	t.Helper()

	cfg := opts.cfg
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Security.AuthMode = "none"
		cfg.Security.RateLimitDisabled = true
	}
	engine := opts.engine
	if engine == nil {
		engine = &fakeEngine{}
	}
	admin := opts.admin
	if admin == nil {
		admin = &fakeAdmin{}
	}
	catalog := opts.catalog
	if catalog == nil {
		catalog = &fakeCatalog{}
	}
	locks := opts.locks
	if locks == nil {
		locks = oplock.NewManager(t.TempDir())
	}

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	authn, err := auth.NewAuthenticator(&cfg.Security, enforcer)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	return New(cfg, engine, admin, catalog, authn, locks, "test").Handler()
}

func doRequest(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
