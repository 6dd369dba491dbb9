// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"

	"github.com/tomtom215/custodia/internal/backup"
	"github.com/tomtom215/custodia/internal/models"
)

// BackupNow runs an immediate backup of one target. The pipeline executes
// synchronously on the request; dumps of large databases can take a while,
// so callers should set generous client timeouts.
func (rt *Router) BackupNow(w http.ResponseWriter, r *http.Request) {
	var req models.BackupNowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFrom(r.Context())
	result, err := rt.engine.BackupNow(r.Context(), backup.ManualBackupRequest{
		TargetID:           req.TargetID,
		DestinationIDs:     req.DestinationIDs,
		UseLocalStorage:    req.UseLocalStorage,
		EncryptionPassword: req.EncryptionPassword,
		UserID:             actor.UserID,
		UserName:           actor.UserName,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// RestoreNow restores a target from a stored artifact. The engine demands
// the confirmation literal and takes the restore lock; while it holds the
// lock the restore guard turns away every other mutating request.
func (rt *Router) RestoreNow(w http.ResponseWriter, r *http.Request) {
	var req models.RestoreNowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFrom(r.Context())
	result, err := rt.engine.RestoreNow(r.Context(), backup.RestoreRequest{
		TargetID:           req.TargetID,
		DestinationID:      req.DestinationID,
		BackupID:           req.BackupID,
		EncryptionPassword: req.EncryptionPassword,
		Confirmation:       req.Confirmation,
		UseLocalStorage:    req.UseLocalStorage,
		UserID:             actor.UserID,
		UserName:           actor.UserName,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// RestoreStatus reports the progress of the current or most recent
// restore. It stays readable while a restore runs.
func (rt *Router) RestoreStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, rt.engine.RestoreStatus())
}
