// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// CreateDestination registers a storage destination.
func (rt *Router) CreateDestination(w http.ResponseWriter, r *http.Request) {
	var req models.DestinationCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dest, err := rt.admin.CreateDestination(r.Context(), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, dest)
}

// ListDestinations returns all destinations, the implicit local one
// included.
func (rt *Router) ListDestinations(w http.ResponseWriter, r *http.Request) {
	dests, err := rt.catalog.ListDestinations(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"destinations": dests,
		"count":        len(dests),
	})
}

// GetDestination returns one destination by id.
func (rt *Router) GetDestination(w http.ResponseWriter, r *http.Request) {
	dest, err := rt.catalog.GetDestination(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, dest)
}

// UpdateDestination applies a partial update.
func (rt *Router) UpdateDestination(w http.ResponseWriter, r *http.Request) {
	var req models.DestinationUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dest, err := rt.admin.UpdateDestination(r.Context(), chi.URLParam(r, "id"), req, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, dest)
}

// DeleteDestination removes a destination. The built-in local destination
// is protected; the admin layer rejects it with a conflict.
func (rt *Router) DeleteDestination(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.admin.DeleteDestination(r.Context(), id, actorFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// TestDestinationConnection probes a destination without persisting it.
func (rt *Router) TestDestinationConnection(w http.ResponseWriter, r *http.Request) {
	var req models.DestinationTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result := rt.engine.TestDestination(r.Context(), req.Type, req.Config, req.Secrets)
	respond(w, http.StatusOK, result)
}

// ListDestinationBackups lists stored artifacts on a destination,
// optionally narrowed to one target's prefix. Providers return the full
// listing; paging happens here.
func (rt *Router) ListDestinationBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := rt.engine.ListDestinationBackups(
		r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("target_id"))
	if err != nil {
		respondError(w, err)
		return
	}

	limit := queryInt(r, "limit", rt.defaultPageSize())
	offset := queryInt(r, "offset", 0)
	limit = rt.clampPageSize(limit)
	if offset < 0 {
		offset = 0
	}

	total := len(backups)
	page := backups
	if offset >= total {
		page = nil
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		page = backups[offset:end]
	}

	respond(w, http.StatusOK, map[string]any{
		"backups": page,
		"pagination": models.PaginationInfo{
			Limit:      limit,
			Offset:     offset,
			HasMore:    offset+len(page) < total,
			TotalCount: &total,
		},
	})
}

// DownloadStoredBackup stages a stored artifact locally and streams it to
// the caller. The staged copy is deleted once the response is written.
func (rt *Router) DownloadStoredBackup(w http.ResponseWriter, r *http.Request) {
	backupID := r.URL.Query().Get("backup_id")
	if backupID == "" {
		respondCode(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"backup_id query parameter is required", nil)
		return
	}

	staged, err := rt.engine.StageBackupDownload(r.Context(), chi.URLParam(r, "id"), backupID)
	if err != nil {
		respondError(w, err)
		return
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			logging.Warn().Err(err).Str("path", staged).Msg("Failed to delete staged download")
		}
	}()

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = filepath.Base(staged)
	}
	// The filename came from a query parameter; never let it smuggle
	// header syntax.
	filename = strings.Map(func(c rune) rune {
		if c == '"' || c == '\r' || c == '\n' || c == '/' || c == '\\' {
			return '_'
		}
		return c
	}, filename)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, staged)
}

// DeleteStoredBackup removes one artifact from a destination. This is an
// audited, destructive operation distinct from retention sweeps.
func (rt *Router) DeleteStoredBackup(w http.ResponseWriter, r *http.Request) {
	backupID := r.URL.Query().Get("backup_id")
	if backupID == "" {
		respondCode(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"backup_id query parameter is required", nil)
		return
	}
	actor := actorFrom(r.Context())
	err := rt.engine.DeleteStoredBackup(
		r.Context(), chi.URLParam(r, "id"), backupID,
		r.URL.Query().Get("name"), actor.UserID, actor.UserName)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"backup_id": backupID, "deleted": true})
}
