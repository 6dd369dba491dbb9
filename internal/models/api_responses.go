// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import (
	"time"
)

// APIResponse is the standardized wrapper used by every HTTP endpoint.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"id": "…", "name": "pg-main"},
//	  "metadata": {"timestamp": "2026-01-10T12:00:00Z"}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "VALIDATION_ERROR",
//	    "message": "interval_seconds must be at least 1",
//	    "details": {"field": "interval_seconds"}
//	  },
//	  "metadata": {"timestamp": "2026-01-10T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata for observability.
//
// Fields:
//   - Timestamp: server time when the response was generated (RFC3339)
//   - QueryTimeMS: store query execution time in milliseconds, when measured
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries structured error details.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - NOT_FOUND: resource doesn't exist
//   - CONFLICT: unique name collision or operation lock contention
//   - COMPATIBILITY_REJECT: restore artifact incompatible with the target
//   - CRYPTO_ERROR: wrong password or corrupted envelope
//   - ADAPTER_ERROR: dump/restore tooling failure
//   - PROVIDER_ERROR: storage network/IO failure
//   - ENCRYPTION_NOT_CONFIGURED: secrets supplied without a master key
//   - AUTHENTICATION_ERROR: invalid or missing credentials
//   - AUTHORIZATION_ERROR: insufficient role
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PaginationInfo is offset-based pagination metadata for list endpoints.
// TotalCount is only populated when the caller asks for it
// (include_total=true); counting is an extra query.
type PaginationInfo struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	TotalCount *int `json:"total_count,omitempty"`
}
