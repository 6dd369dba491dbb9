// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import "github.com/zeebo/errs"

// Error taxonomy shared by the store, the engine, the providers, and the
// API layer. Handlers map each class to an HTTP status; everything else
// wraps with the class that best names the failure.
var (
	// ErrNotFound marks a missing target/destination/schedule/run/backup id.
	ErrNotFound = errs.Class("not found")

	// ErrConflict marks unique-name collisions and lock contention.
	ErrConflict = errs.Class("conflict")

	// ErrValidation marks rejected input: unknown db_type, malformed
	// backup_id, missing RESTORE confirmation, suffix mismatch.
	ErrValidation = errs.Class("validation")

	// ErrCompatibilityReject marks a restore artifact whose detected shape
	// cannot apply to the target. No partial restore occurs.
	ErrCompatibilityReject = errs.Class("compatibility reject")

	// ErrCompatibilityWarn marks a tolerated mismatch (MariaDB dump into a
	// MySQL target). Carried in warnings, never fails the restore.
	ErrCompatibilityWarn = errs.Class("compatibility warn")

	// ErrCrypto marks envelope failures: wrong password, truncation,
	// corrupted ciphertext.
	ErrCrypto = errs.Class("crypto")

	// ErrAdapterFailure marks dump/restore tooling failures, with a stderr
	// snippet where available.
	ErrAdapterFailure = errs.Class("adapter failure")

	// ErrProviderFailure marks storage network/IO failures.
	ErrProviderFailure = errs.Class("provider failure")

	// ErrEncryptionNotConfigured marks secrets arriving while the master
	// encryption key is absent.
	ErrEncryptionNotConfigured = errs.Class("encryption not configured")
)
