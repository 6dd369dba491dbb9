// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/store"
)

// ListRuns returns run history, newest first. Totals cost an extra count
// query, so they only happen on include_total=true.
func (rt *Router) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := rt.clampPageSize(queryInt(r, "limit", rt.defaultPageSize()))
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	includeTotal := queryBool(r, "include_total")

	runs, total, err := rt.catalog.ListRuns(r.Context(), store.RunFilter{
		Limit:        limit,
		Offset:       offset,
		IncludeTotal: includeTotal,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	pagination := models.PaginationInfo{
		Limit:   limit,
		Offset:  offset,
		HasMore: len(runs) == limit,
	}
	if includeTotal {
		pagination.TotalCount = &total
		pagination.HasMore = offset+len(runs) < total
	}
	respond(w, http.StatusOK, map[string]any{
		"runs":       runs,
		"pagination": pagination,
	})
}

// GetRun returns one run with its full details payload.
func (rt *Router) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := rt.catalog.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, run)
}

// DeleteRun removes a run record. The backup artifact it produced is not
// touched; use the destination browse endpoints for that.
func (rt *Router) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.catalog.DeleteRun(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
