// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
	"github.com/tomtom215/custodia/internal/validation"
)

// maxBodyBytes bounds request bodies. Configuration payloads are small;
// anything near a megabyte is a client bug.
const maxBodyBytes = 1 << 20

// respond writes a success envelope.
func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
	if err != nil {
		logging.Debug().Err(err).Msg("Failed to write response body")
	}
}

// respondCode writes an error envelope with an explicit status and code.
func respondCode(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
	if err != nil {
		logging.Debug().Err(err).Msg("Failed to write error body")
	}
}

// respondError classifies an engine or store error into an HTTP status and
// API error code. Unclassified errors become opaque 500s; the real cause
// goes to the log, not the client.
func respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logging.Warn().Err(err).Msg("Unclassified handler error")
		respondCode(w, status, code, "internal error", nil)
		return
	}
	respondCode(w, status, code, err.Error(), nil)
}

// classify maps errs classes to status and code.
func classify(err error) (int, string) {
	switch {
	case models.ErrNotFound.Has(err):
		return http.StatusNotFound, "NOT_FOUND"
	case models.ErrConflict.Has(err):
		return http.StatusConflict, "CONFLICT"
	case models.ErrValidation.Has(err):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case models.ErrCompatibilityReject.Has(err):
		return http.StatusUnprocessableEntity, "COMPATIBILITY_REJECT"
	case models.ErrCrypto.Has(err):
		return http.StatusBadRequest, "CRYPTO_ERROR"
	case models.ErrEncryptionNotConfigured.Has(err):
		return http.StatusBadRequest, "ENCRYPTION_NOT_CONFIGURED"
	case models.ErrAdapterFailure.Has(err):
		return http.StatusBadGateway, "ADAPTER_ERROR"
	case models.ErrProviderFailure.Has(err):
		return http.StatusBadGateway, "PROVIDER_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// decodeJSON reads a bounded JSON body into dst and validates it. A false
// return means the error envelope has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		respondCode(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"invalid JSON body: "+err.Error(), nil)
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		respondCode(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
// An empty body leaves dst zero-valued.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondCode(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"invalid JSON body: "+err.Error(), nil)
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		respondCode(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryBool reports whether a query parameter is an explicit true.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
