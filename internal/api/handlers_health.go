// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"net/http"
	"runtime"
)

// Health is the liveness probe. It answers as long as the process serves
// HTTP; readiness is the stricter check.
func (rt *Router) Health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": rt.version,
	})
}

// HealthReady is the readiness probe. It fails when the catalog store is
// unreachable, which takes the instance out of rotation without killing it.
func (rt *Router) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := rt.catalog.Ping(r.Context()); err != nil {
		respondCode(w, http.StatusServiceUnavailable, "PROVIDER_ERROR",
			"catalog store unreachable", nil)
		return
	}
	respond(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Version reports build information.
func (rt *Router) Version(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"version":    rt.version,
		"go_version": runtime.Version(),
	})
}
