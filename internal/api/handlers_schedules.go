// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/custodia/internal/models"
)

// CreateSchedule registers a recurring backup schedule.
func (rt *Router) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.ScheduleCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sched, err := rt.admin.CreateSchedule(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, sched)
}

// ListSchedules returns all schedules.
func (rt *Router) ListSchedules(w http.ResponseWriter, r *http.Request) {
	scheds, err := rt.catalog.ListSchedules(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"schedules": scheds,
		"count":     len(scheds),
	})
}

// GetSchedule returns one schedule by id.
func (rt *Router) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := rt.catalog.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, sched)
}

// UpdateSchedule applies a partial update.
func (rt *Router) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.ScheduleUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sched, err := rt.admin.UpdateSchedule(r.Context(), chi.URLParam(r, "id"), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, sched)
}

// DeleteSchedule removes a schedule. Its run history stays.
func (rt *Router) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.admin.DeleteSchedule(r.Context(), id, actorFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// RunScheduleNow executes one schedule immediately, outside its interval.
func (rt *Router) RunScheduleNow(w http.ResponseWriter, r *http.Request) {
	result, err := rt.engine.RunSchedule(r.Context(), chi.URLParam(r, "id"), models.TriggerManual)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// RunEnabledNow executes every enabled schedule regardless of due time,
// bounded by max_schedules (default 50).
func (rt *Router) RunEnabledNow(w http.ResponseWriter, r *http.Request) {
	var req models.RunDueRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	max := req.MaxSchedules
	if max <= 0 {
		max = defaultRunEnabledBatch
	}
	result, err := rt.engine.RunEnabledNow(r.Context(), max)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// RunDue executes schedules whose next fire time has passed. The
// standalone runner binary drives this endpoint on its poll interval.
func (rt *Router) RunDue(w http.ResponseWriter, r *http.Request) {
	var req models.RunDueRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	max := req.MaxSchedules
	if max <= 0 {
		max = rt.cfg.Runner.MaxSchedules
	}
	if max <= 0 {
		max = defaultRunDueBatch
	}
	result, err := rt.engine.RunDue(r.Context(), time.Now().UTC(), max)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}
