// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package api provides the HTTP surface of the automation service using the
Chi router.

Everything lives under /api/v1/automation except the operational probes
(/health, /health/ready, /version, /metrics). Each response uses the
models.APIResponse envelope, and engine errors map to HTTP status by their
errs class: NotFound 404, Conflict 409, Validation and Crypto 400,
CompatibilityReject 422, AdapterFailure and ProviderFailure 502.

Middleware order is fixed in Handler: request id, real ip, panic recovery,
security headers, Prometheus instrumentation, CORS, then per-route rate
limiting, the restore guard, and authentication. Handlers declare the casbin
permission they need with auth.Require; read endpoints need automation:read,
backup execution needs backup:run, and configuration mutations need
config:write.

The Router depends on three narrow interfaces (Engine, Admin, Catalog)
rather than the concrete engine and store types, which keeps handler tests
free of real databases and dump tooling.
*/
package api
