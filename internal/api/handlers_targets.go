// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/custodia/internal/models"
)

// CreateTarget registers a backup target.
func (rt *Router) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req models.TargetCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := rt.admin.CreateTarget(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, target)
}

// ListTargets returns all configured targets. Secrets never appear here;
// the store keeps them in a separate encrypted column.
func (rt *Router) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := rt.catalog.ListTargets(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"targets": targets,
		"count":   len(targets),
	})
}

// GetTarget returns one target by id.
func (rt *Router) GetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := rt.catalog.GetTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, target)
}

// UpdateTarget applies a partial update.
func (rt *Router) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req models.TargetUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := rt.admin.UpdateTarget(r.Context(), chi.URLParam(r, "id"), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, target)
}

// DeleteTarget removes a target and cascades its schedules and runs.
func (rt *Router) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.admin.DeleteTarget(r.Context(), id, actorFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// TestTargetConnection probes database connectivity without persisting
// anything. The probe result is a 200 either way; Success carries the
// verdict.
func (rt *Router) TestTargetConnection(w http.ResponseWriter, r *http.Request) {
	var req models.TargetTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result := rt.engine.TestTarget(r.Context(), req.DBType, req.Config, req.Secrets)
	respond(w, http.StatusOK, result)
}

// TestSavedTargetConnection probes a persisted target with its stored
// secrets.
func (rt *Router) TestSavedTargetConnection(w http.ResponseWriter, r *http.Request) {
	result, err := rt.engine.TestSavedTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// TargetStats returns table or graph statistics straight from the target
// database adapter.
func (rt *Router) TargetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.engine.TargetStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}
