// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/custodia/internal/auth"
	"github.com/tomtom215/custodia/internal/authz"
	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/metrics"
	"github.com/tomtom215/custodia/internal/middleware"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
	"github.com/tomtom215/custodia/internal/store"
)

// Batch caps for the execution endpoints when the request does not name
// its own maximum.
const (
	defaultRunDueBatch     = 10
	defaultRunEnabledBatch = 50
)

// Engine is the backup engine surface the handlers call.
type Engine interface {
	RunSchedule(ctx context.Context, scheduleID string, trigger models.Trigger) (*backup.RunResult, error)
	BackupNow(ctx context.Context, req backup.ManualBackupRequest) (*backup.RunResult, error)
	RunDue(ctx context.Context, now time.Time, limit int) (*models.RunDueResponse, error)
	RunEnabledNow(ctx context.Context, max int) (*models.RunDueResponse, error)
	RestoreNow(ctx context.Context, req backup.RestoreRequest) (*backup.RestoreResult, error)
	RestoreStatus() *models.RestoreProgress
	ListDestinationBackups(ctx context.Context, destinationID, targetID string) ([]models.StoredBackup, error)
	StageBackupDownload(ctx context.Context, destinationID, backupID string) (string, error)
	DeleteStoredBackup(ctx context.Context, destinationID, backupID, name, userID, userName string) error
	TestTarget(ctx context.Context, dbType string, cfg models.TargetConfig, secrets models.Secrets) *models.TestConnectionResponse
	TestSavedTarget(ctx context.Context, targetID string) (*models.TestConnectionResponse, error)
	TestDestination(ctx context.Context, destType string, cfg models.DestinationConfig, secrets models.Secrets) *models.TestConnectionResponse
	TargetStats(ctx context.Context, targetID string) (*models.DatabaseStats, error)
}

// Admin executes configuration mutations with audit bookkeeping.
type Admin interface {
	CreateTarget(ctx context.Context, req models.TargetCreateRequest, actor backup.Actor) (*models.Target, error)
	UpdateTarget(ctx context.Context, id string, req models.TargetUpdateRequest, actor backup.Actor) (*models.Target, error)
	DeleteTarget(ctx context.Context, id string, actor backup.Actor) error
	CreateDestination(ctx context.Context, req models.DestinationCreateRequest, actor backup.Actor) (*models.Destination, error)
	UpdateDestination(ctx context.Context, id string, req models.DestinationUpdateRequest, actor backup.Actor) (*models.Destination, error)
	DeleteDestination(ctx context.Context, id string, actor backup.Actor) error
	CreateSchedule(ctx context.Context, req models.ScheduleCreateRequest, actor backup.Actor) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, req models.ScheduleUpdateRequest, actor backup.Actor) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id string, actor backup.Actor) error
}

// Catalog is the read side of the configuration store plus run and audit
// history.
type Catalog interface {
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	ListTargets(ctx context.Context) ([]*models.Target, error)
	GetDestination(ctx context.Context, id string) (*models.Destination, error)
	ListDestinations(ctx context.Context) ([]*models.Destination, error)
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context) ([]*models.Schedule, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.Run, int, error)
	DeleteRun(ctx context.Context, id string) error
	GetAuditEvent(ctx context.Context, id string) (*models.AuditEvent, error)
	ListAuditEvents(ctx context.Context, filter store.AuditFilter) ([]*models.AuditEvent, int, error)
	Ping(ctx context.Context) error
}

// Router wires handlers, middleware, and routes into one http.Handler.
type Router struct {
	cfg     *config.Config
	engine  Engine
	admin   Admin
	catalog Catalog
	authn   *auth.Authenticator
	locks   *oplock.Manager
	version string
}

// New assembles the router. The concrete *backup.Engine, *backup.Admin,
// and *store.Store satisfy the three interfaces.
func New(
	cfg *config.Config,
	engine Engine,
	admin Admin,
	catalog Catalog,
	authn *auth.Authenticator,
	locks *oplock.Manager,
	version string,
) *Router {
	return &Router{
		cfg:     cfg,
		engine:  engine,
		admin:   admin,
		catalog: catalog,
		authn:   authn,
		locks:   locks,
		version: version,
	}
}

// Handler builds the complete route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)
	if len(rt.cfg.Security.CORSOrigins) > 0 {
		r.Use(rt.corsMiddleware())
	}

	r.Get("/health", rt.Health)
	r.Get("/health/ready", rt.HealthReady)
	r.Get("/version", rt.Version)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/automation", func(r chi.Router) {
		r.Use(rt.rateLimiter())
		r.Use(middleware.RestoreGuard(rt.locks))
		r.Use(rt.authn.Authenticate)

		read := rt.authn.Require(authz.ObjectAutomation, authz.ActionRead)
		write := rt.authn.Require(authz.ObjectConfig, authz.ActionWrite)
		run := rt.authn.Require(authz.ObjectBackup, authz.ActionRun)
		restore := rt.authn.Require(authz.ObjectBackup, authz.ActionRestore)

		r.With(write).Post("/targets", rt.CreateTarget)
		r.With(read).Get("/targets", rt.ListTargets)
		r.With(write).Post("/targets/test-connection", rt.TestTargetConnection)
		r.With(read).Get("/targets/{id}", rt.GetTarget)
		r.With(write).Post("/targets/{id}/test-connection", rt.TestSavedTargetConnection)
		r.With(write).Put("/targets/{id}", rt.UpdateTarget)
		r.With(write).Delete("/targets/{id}", rt.DeleteTarget)
		r.With(read).Get("/targets/{id}/stats", rt.TargetStats)

		r.With(write).Post("/destinations", rt.CreateDestination)
		r.With(read).Get("/destinations", rt.ListDestinations)
		r.With(write).Post("/destinations/test-connection", rt.TestDestinationConnection)
		r.With(read).Get("/destinations/{id}", rt.GetDestination)
		r.With(write).Put("/destinations/{id}", rt.UpdateDestination)
		r.With(write).Delete("/destinations/{id}", rt.DeleteDestination)

		r.With(read).Get("/destinations/{id}/backups", rt.ListDestinationBackups)
		r.With(run).Get("/destinations/{id}/backups/download", rt.DownloadStoredBackup)
		r.With(restore).Delete("/destinations/{id}/backups/delete", rt.DeleteStoredBackup)

		r.With(write).Post("/schedules", rt.CreateSchedule)
		r.With(read).Get("/schedules", rt.ListSchedules)
		r.With(run).Post("/schedules/run-enabled-now", rt.RunEnabledNow)
		r.With(read).Get("/schedules/{id}", rt.GetSchedule)
		r.With(write).Put("/schedules/{id}", rt.UpdateSchedule)
		r.With(write).Delete("/schedules/{id}", rt.DeleteSchedule)
		r.With(run).Post("/schedules/{id}/run-now", rt.RunScheduleNow)

		r.With(run).Post("/runner/run-due", rt.RunDue)

		r.With(run).Post("/backup-now", rt.BackupNow)
		r.With(restore).Post("/restore-now", rt.RestoreNow)
		r.With(read).Get("/restore-status", rt.RestoreStatus)

		r.With(read).Get("/runs", rt.ListRuns)
		r.With(read).Get("/runs/{id}", rt.GetRun)
		r.With(write).Delete("/runs/{id}", rt.DeleteRun)

		r.With(read).Get("/audit", rt.ListAuditEvents)
		r.With(read).Get("/audit/{id}", rt.GetAuditEvent)
	})

	return r
}

// corsMiddleware allows the configured origins. Credentials stay off; the
// API is token-authenticated, not cookie-authenticated.
func (rt *Router) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Admin-Key"},
		MaxAge:         86400,
	})
}

// rateLimiter applies per-IP limiting to the automation routes. Disabled
// deployments get a pass-through.
func (rt *Router) rateLimiter() func(http.Handler) http.Handler {
	sec := rt.cfg.Security
	if sec.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	reqs := sec.RateLimitReqs
	if reqs <= 0 {
		reqs = 100
	}
	window := sec.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		reqs,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			respondCode(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				"too many requests", nil)
		}),
	)
}

// defaultPageSize honors APIConfig with a sane fallback.
func (rt *Router) defaultPageSize() int {
	if rt.cfg.API.DefaultPageSize > 0 {
		return rt.cfg.API.DefaultPageSize
	}
	return 50
}

// clampPageSize bounds a caller-supplied limit.
func (rt *Router) clampPageSize(limit int) int {
	max := rt.cfg.API.MaxPageSize
	if max <= 0 {
		max = 500
	}
	if limit <= 0 {
		return rt.defaultPageSize()
	}
	if limit > max {
		return max
	}
	return limit
}

// actorFrom stamps the authenticated caller on admin mutations and audit
// events.
func actorFrom(ctx context.Context) backup.Actor {
	id, _ := auth.IdentityFrom(ctx)
	return backup.Actor{UserID: id.Username, UserName: id.Username}
}
