// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package models defines the shared vocabulary of the Custodia application.

It contains the domain records persisted by the configuration store, the
request/response DTOs of the REST API, the API response envelope, and the
error-class taxonomy consumed by every layer. It has no behavior beyond
parsing and normalization; the store, engine, providers, and handlers all
depend on it and it depends on nothing above the JSON codec.

Key Components:

  - Target / Destination / Schedule: persisted configuration records
  - Run / AuditEvent: execution history records
  - RetentionPolicy: embedded per-schedule sweep, encryption, and
    notification document
  - StoredBackup: one artifact enumerated from a storage provider
  - APIResponse / APIError / Metadata: response envelope
  - errs.Class taxonomy: NotFound, Conflict, Validation,
    CompatibilityReject, CompatibilityWarn, Crypto, AdapterFailure,
    ProviderFailure, EncryptionNotConfigured

Legacy rows carry dual-name config keys (db_host/host, db_user/user,
db_name/database, neo4j_url/host, base_path/path); ParseTargetConfig and
ParseDestinationConfig fold those into the canonical structs at load time.
New writes only ever produce canonical keys.

Usage Example - API Response:

	response := models.APIResponse{
	    Status: "success",
	    Data:   target,
	    Metadata: models.Metadata{
	        Timestamp: time.Now().UTC(),
	    },
	}
	json.NewEncoder(w).Encode(response)

Thread Safety:

All models are plain data structures, immutable after creation and safe
for concurrent reads.
*/
package models
