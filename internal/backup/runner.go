// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
runner.go - Scheduler Loop

The runner ticks at a fixed interval, claims due schedules from the catalog,
and executes each through the pipeline. Schedules within one batch run in
parallel; the batch size bounds that parallelism. The runner never computes
next_run_at itself; the pipeline advances it after the run terminates, so
the next fire reflects the actual finish time.

Drain mode lets the engine catch up after downtime: when a batch comes back
full, the runner immediately claims another inside the same tick, up to a
safety cap of consecutive batches.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// Runner defaults, overridable through RUNNER_* configuration.
const (
	DefaultRunnerInterval   = 60 * time.Second
	DefaultMaxSchedules     = 10
	DefaultDrainMaxBatches  = 20
	DefaultRunEnabledNowMax = 50
)

// RunDue executes one batch of due schedules and reports per-schedule
// outcomes. Failed runs are reported in the results, not as an error; the
// returned error covers only the due query itself.
func (e *Engine) RunDue(ctx context.Context, now time.Time, limit int) (*models.RunDueResponse, error) {
	if limit <= 0 {
		limit = DefaultMaxSchedules
	}
	due, err := e.catalog.DueSchedules(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	resp := &models.RunDueResponse{Now: now, Count: len(due)}
	resp.Results = e.runBatch(ctx, due, models.TriggerScheduled)
	return resp, nil
}

// RunEnabledNow executes every enabled schedule immediately, regardless of
// next_run_at, up to max schedules. Like run-now it uses the manual trigger,
// so retention is not swept and next_run_at stays untouched.
func (e *Engine) RunEnabledNow(ctx context.Context, max int) (*models.RunDueResponse, error) {
	if max <= 0 {
		max = DefaultRunEnabledNowMax
	}
	all, err := e.catalog.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Schedule, 0, len(all))
	for _, sched := range all {
		if sched.Enabled {
			enabled = append(enabled, sched)
		}
		if len(enabled) == max {
			break
		}
	}

	resp := &models.RunDueResponse{Now: time.Now().UTC(), Count: len(enabled)}
	resp.Results = e.runBatch(ctx, enabled, models.TriggerManual)
	return resp, nil
}

// runBatch executes schedules in parallel and collects per-schedule results
// in the input order. The operation lock still serializes runs that share a
// database family; parallelism buys overlap between the SQL and graph
// families and between network uploads.
func (e *Engine) runBatch(ctx context.Context, schedules []*models.Schedule, trigger models.Trigger) []models.RunNowResponse {
	results := make([]models.RunNowResponse, len(schedules))

	var wg sync.WaitGroup
	for i, sched := range schedules {
		wg.Add(1)
		go func(i int, sched *models.Schedule) {
			defer wg.Done()
			results[i] = e.runOne(ctx, sched, trigger)
		}(i, sched)
	}
	wg.Wait()

	return results
}

func (e *Engine) runOne(ctx context.Context, sched *models.Schedule, trigger models.Trigger) models.RunNowResponse {
	out := models.RunNowResponse{ScheduleID: sched.ID}

	result, err := e.RunSchedule(ctx, sched.ID, trigger)
	if err != nil {
		out.Status = models.StatusFailed
		out.Error = err.Error()
		return out
	}
	out.RunID = result.RunID
	out.Status = result.Status
	out.BackupFilename = result.BackupFilename
	out.Uploads = result.Uploads
	return out
}

// Runner is the supervised scheduler loop for RUNNER_MODE=direct.
type Runner struct {
	engine *Engine

	interval        time.Duration
	maxSchedules    int
	drainMode       bool
	drainMaxBatches int
}

// RunnerOptions configures the loop. Zero values take the defaults.
type RunnerOptions struct {
	Interval        time.Duration
	MaxSchedules    int
	DrainMode       bool
	DrainMaxBatches int
}

// NewRunner creates the scheduler loop around an engine.
func NewRunner(engine *Engine, opts RunnerOptions) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRunnerInterval
	}
	if opts.MaxSchedules <= 0 {
		opts.MaxSchedules = DefaultMaxSchedules
	}
	if opts.DrainMaxBatches <= 0 {
		opts.DrainMaxBatches = DefaultDrainMaxBatches
	}
	return &Runner{
		engine:          engine,
		interval:        opts.Interval,
		maxSchedules:    opts.MaxSchedules,
		drainMode:       opts.DrainMode,
		drainMaxBatches: opts.DrainMaxBatches,
	}
}

// Serve implements suture.Service. It ticks until the context is canceled.
// The first tick fires after one full interval so a crash-looping dependency
// does not hammer the catalog during startup backoff.
func (r *Runner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", r.interval).
		Int("max_schedules", r.maxSchedules).
		Bool("drain_mode", r.drainMode).
		Msg("Backup runner started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Backup runner stopping")
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one scheduling cycle: one batch of due schedules, plus drain
// batches while full batches keep coming back.
func (r *Runner) Tick(ctx context.Context) {
	executed := 0
	batches := 0

	for {
		batches++
		resp, err := r.engine.RunDue(ctx, time.Now().UTC(), r.maxSchedules)
		if err != nil {
			logging.Error().Err(err).Msg("Runner failed to query due schedules")
			return
		}
		executed += resp.Count

		if !r.drainMode || resp.Count < r.maxSchedules {
			break
		}
		if batches >= r.drainMaxBatches {
			logging.Warn().
				Int("batches", batches).
				Int("executed", executed).
				Msg("Runner drain cap reached with schedules still due")
			break
		}
	}

	if executed > 0 {
		logging.Info().
			Int("executed", executed).
			Int("batches", batches).
			Msg("Runner tick completed")
	}
}

// String implements fmt.Stringer for suture logging.
func (r *Runner) String() string { return "backup-runner" }
