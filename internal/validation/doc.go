// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. It integrates with the application's API error format for consistent
// error responses.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - Built-in validator support (email, url, oneof, dive, etc.)
//   - Custom runattime validator for "HH:MM" schedule anchors
//   - Future v11 compatibility with WithRequiredStructEnabled
//
// # Quick Start
//
//	type TargetCreateRequest struct {
//	    Name   string `validate:"required,min=1,max=255"`
//	    DBType string `validate:"required,oneof=postgresql postgres mysql sqlite neo4j"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req TargetCreateRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - min=n: Minimum length n characters
//   - max=n: Maximum length n characters
//   - email: Valid email format
//   - url: Valid URL format
//   - runattime: Valid "HH:MM" 24-hour time of day
//
// Numeric validations:
//   - gte=n: Greater than or equal to n
//   - lte=n: Less than or equal to n
//   - gt=n: Greater than n
//   - lt=n: Less than n
//   - min=n: Minimum value n
//   - max=n: Maximum value n
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// Collection validations:
//   - dive: Apply subsequent rules to each slice element
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()   string      // Struct field name
//	    Tag()     string      // Validation tag that failed
//	    Param()   string      // Tag parameter (e.g., "100" for max=100)
//	    Value()   interface{} // Actual value that failed
//	    Error()   string      // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string           // Combined message
//	    ToAPIError() *APIError    // Convert to API error format
//	}
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the application format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "DBType must be one of: postgresql postgres mysql sqlite neo4j",
//	    "details": {"field": "DBType", "tag": "oneof", "value": "oracle"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "Name: Name is required; TargetID: TargetID is required",
//	    "details": {
//	        "fields": [
//	            {"field": "Name", "tag": "required", "message": "..."},
//	            {"field": "TargetID", "tag": "required", "message": "..."}
//	        ]
//	    }
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for common validation tags:
//
//	required   -> "Name is required"
//	email      -> "To must be a valid email address"
//	min=3      -> "Name must be at least 3 characters"
//	max=255    -> "Name must be at most 255 characters"
//	gte=1      -> "Limit must be greater than or equal to 1"
//	lte=1000   -> "Limit must be less than or equal to 1000"
//	oneof=a b  -> "Mode must be one of: a b"
//	runattime  -> "RunAtTime must be a valid time of day in HH:MM format"
//
// # Struct Tag Examples
//
// API request validation:
//
//	type ScheduleCreateRequest struct {
//	    Name            string   `validate:"required,min=1,max=255"`
//	    TargetID        string   `validate:"required"`
//	    DestinationIDs  []string `validate:"required,min=1,dive,required"`
//	    IntervalSeconds int      `validate:"required,min=1"`
//	}
//
// Retention policy bounds:
//
//	type RetentionPolicy struct {
//	    Mode      string `validate:"omitempty,oneof=last_n max_age_days max_size smart"`
//	    KeepLast  int    `validate:"min=0"`
//	    RunAtTime string `validate:"omitempty,runattime"`
//	}
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # Performance
//
// The validator caches struct reflection information:
//   - First validation of a struct type: ~1ms (reflection + caching)
//   - Subsequent validations: ~10us (cached)
//   - Memory: ~500 bytes per cached struct type
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - github.com/go-playground/validator/v10: Underlying library
package validation
