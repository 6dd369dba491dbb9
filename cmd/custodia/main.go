// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tomtom215/custodia/internal/api"
	"github.com/tomtom215/custodia/internal/auth"
	"github.com/tomtom215/custodia/internal/authz"
	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/events"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/metrics"
	"github.com/tomtom215/custodia/internal/notify"
	"github.com/tomtom215/custodia/internal/oplock"
	"github.com/tomtom215/custodia/internal/store"
	"github.com/tomtom215/custodia/internal/supervisor"
	"github.com/tomtom215/custodia/internal/supervisor/services"
)

// version is set at build time via -ldflags "-X main.version=v1.2.3".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Custodia with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.ResolvedPath()).
		Str("backup_dir", cfg.Backup.Dir).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("runner_mode", cfg.Runner.Mode).
		Msg("Configuration loaded")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the SQLite catalog store
	catalog, err := store.Open(ctx, cfg.Database.ResolvedPath(), cfg.Database.BusyTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog store")
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog store")
		}
	}()
	logging.Info().Msg("Catalog store initialized successfully")

	// Secrets codec for at-rest credential encryption. Without a master key
	// mutations carrying secrets and encrypted backups are refused, so make
	// the degraded state loud.
	codec, err := config.NewSecretsCodec(cfg.Security.MasterEncryptionKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize secrets codec")
	}
	if cfg.Security.HasMasterKey() {
		logging.Info().Msg("Credential encryption enabled (MASTER_ENCRYPTION_KEY set)")
	} else {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  NOTICE: MASTER_ENCRYPTION_KEY is not set")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  Targets and destinations that carry credentials cannot be")
		logging.Warn().Msg("  created or updated, and encrypted backups cannot be")
		logging.Warn().Msg("  created or restored, until a master key is configured.")
		logging.Warn().Msg("============================================================")
	}

	// File locks serializing operations per target family
	locks := oplock.NewManager(filepath.Join(cfg.Database.DataDir, "locks"))

	// Backup engine and configuration admin surface
	engine := backup.NewEngine(cfg, catalog, locks, codec)
	admin := backup.NewAdmin(catalog, codec)

	// Notification dispatcher (Telegram and SMTP, either may be absent)
	engine.SetNotifier(notify.NewDispatcher(cfg))

	// Event bus: terminal runs fan out to subscribers. Metrics consume every
	// run. Subscriptions must be registered before the bus starts serving.
	bus, err := events.NewBus()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event bus")
	}
	bus.Subscribe("metrics", metrics.RunEventHandler)
	engine.SetEventSink(bus)

	// Authentication and RBAC
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize RBAC enforcer")
	}
	authn, err := auth.NewAuthenticator(&cfg.Security, enforcer)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authenticator")
	}
	switch cfg.Security.AuthMode {
	case "jwt":
		logging.Info().Msg("JWT authentication enabled")
	case "none":
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  All endpoints are publicly accessible without authentication!")
		logging.Warn().Msg("  This mode should ONLY be used for:")
		logging.Warn().Msg("    - Local development")
		logging.Warn().Msg("    - Completely isolated private networks")
		logging.Warn().Msg("    - CI/CD testing environments")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  NEVER use AUTH_MODE=none in production or on public networks!")
		logging.Warn().Msg("============================================================")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	router := api.New(cfg, engine, admin, catalog, authn, locks, version)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	// Engine layer services
	tree.AddEngineService(bus)
	if cfg.Runner.Mode == "api" {
		logging.Info().Msg("In-process runner disabled (RUNNER_MODE=api); schedules are driven by custodia-runner")
	} else {
		runner := backup.NewRunner(engine, backup.RunnerOptions{
			Interval:        cfg.Runner.Interval(),
			MaxSchedules:    cfg.Runner.MaxSchedules,
			DrainMode:       cfg.Runner.DrainMode,
			DrainMaxBatches: cfg.Runner.DrainMaxBatches,
		})
		tree.AddEngineService(runner)
		logging.Info().
			Dur("interval", cfg.Runner.Interval()).
			Int("max_schedules", cfg.Runner.MaxSchedules).
			Bool("drain_mode", cfg.Runner.DrainMode).
			Msg("Backup runner service added")
	}

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Publish build info and keep the uptime gauge fresh
	metrics.SetAppInfo(version)
	startedAt := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateUptime(startedAt)
			}
		}
	}()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
