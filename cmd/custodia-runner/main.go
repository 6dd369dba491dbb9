// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package main is the standalone schedule runner for "api" mode.
//
// custodia-runner triggers due schedules by calling the Custodia REST API
// instead of embedding the engine, so the scheduler can be deployed,
// restarted, and scaled independently of the API server:
//
//	export RUNNER_MODE=api
//	export BACKUP_API_URL=http://custodia:8080
//	export ADMIN_API_KEY=<same key as the server>
//	./custodia-runner            # poll every RUNNER_INTERVAL seconds
//	./custodia-runner --once     # single tick, for cron or smoke tests
//
// The runner authenticates with the X-Admin-Key header and waits for the
// API's /health probe before its first tick.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/logging"
)

const (
	healthWaitTimeout = 120 * time.Second
	requestTimeout    = 10 * time.Minute
)

// runDueData is the data payload of a successful run-due response.
type runDueData struct {
	Count   int `json:"count"`
	Results []struct {
		ScheduleID string `json:"schedule_id"`
		Status     string `json:"status"`
		Error      string `json:"error,omitempty"`
	} `json:"results"`
}

// envelope is the slice of the API response envelope the runner reads.
type envelope struct {
	Status string     `json:"status"`
	Data   runDueData `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// runner drives the run-due endpoint on a fixed interval.
type runner struct {
	baseURL  string
	adminKey string
	client   *http.Client
}

func main() {
	once := flag.Bool("once", false, "trigger a single tick and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if cfg.Security.AdminAPIKey == "" {
		logging.Fatal().Msg("ADMIN_API_KEY is required: the runner authenticates with the X-Admin-Key header")
	}

	r := &runner{
		baseURL:  strings.TrimRight(cfg.Runner.APIURL, "/"),
		adminKey: cfg.Security.AdminAPIKey,
		client:   &http.Client{Timeout: requestTimeout},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("api_url", r.baseURL).
		Dur("interval", cfg.Runner.Interval()).
		Bool("once", *once).
		Msg("Starting Custodia schedule runner")

	if err := r.waitHealthy(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Custodia API did not become healthy")
	}

	if *once {
		if err := r.tick(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Tick failed")
		}
		return
	}

	ticker := time.NewTicker(cfg.Runner.Interval())
	defer ticker.Stop()
	for {
		if err := r.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			// Transient API failures are retried on the next tick.
			logging.Warn().Err(err).Msg("Tick failed, will retry")
		}
		select {
		case <-ctx.Done():
			logging.Info().Msg("Shutdown signal received, stopping runner")
			return
		case <-ticker.C:
		}
	}
}

// waitHealthy polls GET /health until the API answers 200 or the wait
// budget runs out. A fresh deployment usually brings the runner up before
// the server finishes catalog migrations.
func (r *runner) waitHealthy(ctx context.Context) error {
	deadline := time.Now().Add(healthWaitTimeout)
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.baseURL+"/health", nil)
		if err != nil {
			cancel()
			return err
		}
		resp, err := r.client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				logging.Info().Msg("Custodia API is healthy")
				return nil
			}
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("health check failed after %s: %w", healthWaitTimeout, err)
			}
			return fmt.Errorf("health check failed after %s: status %d", healthWaitTimeout, resp.StatusCode)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// tick triggers one due-schedule batch. The server applies its own
// RUNNER_MAX_SCHEDULES default, so the request body stays empty.
func (r *runner) tick(ctx context.Context) error {
	url := r.baseURL + "/api/v1/automation/runner/run-due"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Key", r.adminKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("run-due request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("run-due response decode failed (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		if env.Error != nil {
			return fmt.Errorf("run-due rejected: %s (%s)", env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("run-due rejected: status %d", resp.StatusCode)
	}

	if env.Data.Count == 0 {
		logging.Debug().Msg("No schedules due")
		return nil
	}
	failed := 0
	for _, res := range env.Data.Results {
		if res.Status == "failed" {
			failed++
			logging.Warn().
				Str("schedule_id", res.ScheduleID).
				Str("error", res.Error).
				Msg("Scheduled backup failed")
		}
	}
	logging.Info().
		Int("triggered", env.Data.Count).
		Int("failed", failed).
		Msg("Due schedules triggered")
	return nil
}
