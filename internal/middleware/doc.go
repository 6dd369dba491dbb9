// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package middleware provides HTTP middleware components for the API.

All components follow the chi convention of func(http.Handler) http.Handler
and are registered on the router with Use.

Key Components:

  - RequestID: UUID-based request tracking threaded into the logging context
  - PrometheusMetrics: per-request instrumentation, labeled by route pattern
  - RestoreGuard: 503 for mutating requests while a restore holds a lock
  - SecurityHeaders: standard hardening headers for the JSON API

Middleware Stack:

The router applies the stack in this order:

	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.RestoreGuard(locks))

RestoreGuard:

A restore rewrites live databases, so while one holds an operation lock all
mutating requests outside the restore endpoints are rejected with 503 and a
Retry-After header. Reads, /health, /version and /metrics always pass, and
lock probing fails open so an unreadable lock directory cannot take the API
down. Backup locks never block the API; only restores are exclusive.

Usage Example - Request ID:

	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := middleware.GetRequestID(r.Context())
	    ...
	}

See Also:

  - internal/auth: authentication middleware
  - internal/api: HTTP handlers wrapped by this stack
  - internal/metrics: Prometheus metric definitions
  - internal/oplock: the lock state RestoreGuard consults
*/
package middleware
