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

// ListAuditEvents returns the audit trail, filterable by target, operation,
// and trigger. The trigger value "non_scheduled" matches everything except
// scheduled runs.
func (rt *Router) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit := rt.clampPageSize(queryInt(r, "limit", rt.defaultPageSize()))
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	includeTotal := queryBool(r, "include_total")

	events, total, err := rt.catalog.ListAuditEvents(r.Context(), store.AuditFilter{
		TargetID:     r.URL.Query().Get("target_id"),
		Operation:    r.URL.Query().Get("operation"),
		Trigger:      r.URL.Query().Get("trigger"),
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
		HasMore: len(events) == limit,
	}
	if includeTotal {
		pagination.TotalCount = &total
		pagination.HasMore = offset+len(events) < total
	}
	respond(w, http.StatusOK, map[string]any{
		"events":     events,
		"pagination": pagination,
	})
}

// GetAuditEvent returns one audit event by id.
func (rt *Router) GetAuditEvent(w http.ResponseWriter, r *http.Request) {
	event, err := rt.catalog.GetAuditEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, event)
}
