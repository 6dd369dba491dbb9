// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/oplock"
)

// restoreGuardExemptPrefixes are always served while a restore runs: reads,
// the restore endpoints themselves (status polling must work mid-restore)
// and operational probes.
var restoreGuardExemptPrefixes = []string{
	"/api/v1/automation/restore-",
	"/health",
	"/version",
	"/metrics",
}

// RestoreGuard rejects mutating requests with 503 while a restore holds an
// operation lock. A restore rewrites live databases; concurrent
// configuration changes or new backups against a half-restored target are
// never worth it. Lock probing is fail-open, so an unreadable lock
// directory never takes the API down.
func RestoreGuard(locks *oplock.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) || exemptPath(r.URL.Path) || !locks.RestoreInProgress() {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(models.APIResponse{ //nolint:errcheck // Client gone
				Status: "error",
				Error: &models.APIError{
					Code:    "CONFLICT",
					Message: "a restore is in progress; mutating operations are unavailable until it finishes",
				},
				Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			})
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func exemptPath(path string) bool {
	for _, prefix := range restoreGuardExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
