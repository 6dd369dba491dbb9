// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package logging

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent represents a security-relevant event for audit logging.
type SecurityEvent struct {
	// Event is the type of event (e.g., "auth_success", "auth_failed", "access_denied").
	Event string
	// Subject is the authenticated principal (if known).
	Subject string
	// Role is the principal's role (viewer, operator, admin).
	Role string
	// Provider is the authentication mechanism (jwt, admin_key, none).
	Provider string
	// IPAddress is the client's IP address.
	IPAddress string
	// UserAgent is the client's user agent (truncated).
	UserAgent string
	// Success indicates if the operation was successful.
	Success bool
	// Error is the error message if the operation failed.
	Error string
	// Details contains additional sanitized details.
	Details map[string]string
}

// SecurityLogger provides secure logging for authentication and
// authorization events. It automatically sanitizes sensitive data
// before logging.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a new security logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", "auth").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// LogEvent logs a security event with automatic sanitization.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info().
		Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}

	if event.Subject != "" {
		e = e.Str("subject", SanitizeUsername(event.Subject))
	}

	if event.Role != "" {
		e = e.Str("role", event.Role)
	}

	if event.Provider != "" {
		e = e.Str("provider", event.Provider)
	}

	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}

	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}

	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}

	// Add sanitized details
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// Debug logs a debug-level message.
func (l *SecurityLogger) Debug(msg string, fields ...interface{}) {
	e := l.logger.Debug()
	e = addFieldPairs(e, fields)
	e.Msg(msg)
}

// Info logs an info-level message.
func (l *SecurityLogger) Info(msg string, fields ...interface{}) {
	e := l.logger.Info()
	e = addFieldPairs(e, fields)
	e.Msg(msg)
}

// Warn logs a warning-level message.
func (l *SecurityLogger) Warn(msg string, fields ...interface{}) {
	e := l.logger.Warn()
	e = addFieldPairs(e, fields)
	e.Msg(msg)
}

// Error logs an error-level message.
func (l *SecurityLogger) Error(msg string, fields ...interface{}) {
	e := l.logger.Error()
	e = addFieldPairs(e, fields)
	e.Msg(msg)
}

// addFieldPairs adds key-value pairs to a zerolog event.
func addFieldPairs(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			e = e.Interface(key, fields[i+1])
		}
	}
	return e
}

// ============================================================
// Pre-defined Security Events
// ============================================================

// LogAuthSuccess logs a successful authentication.
func (l *SecurityLogger) LogAuthSuccess(subject, role, provider, ip, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:     "auth_success",
		Subject:   subject,
		Role:      role,
		Provider:  provider,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

// LogAuthFailure logs a failed authentication attempt.
func (l *SecurityLogger) LogAuthFailure(provider, ip, userAgent, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "auth_failed",
		Provider:  provider,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   false,
		Error:     reason,
	})
}

// LogAccessDenied logs an authorization denial for an authenticated subject.
func (l *SecurityLogger) LogAccessDenied(subject, role, permission, ip string) {
	l.LogEvent(&SecurityEvent{
		Event:     "access_denied",
		Subject:   subject,
		Role:      role,
		IPAddress: ip,
		Success:   false,
		Details: map[string]string{
			"permission": permission,
		},
	})
}

// LogRateLimited logs a rate-limit rejection.
func (l *SecurityLogger) LogRateLimited(ip, path string) {
	l.LogEvent(&SecurityEvent{
		Event:     "rate_limited",
		IPAddress: ip,
		Success:   false,
		Details: map[string]string{
			"path": path,
		},
	})
}

// LogRestoreBlocked logs a write request rejected while a restore holds
// the operation lock.
func (l *SecurityLogger) LogRestoreBlocked(ip, method, path string) {
	l.LogEvent(&SecurityEvent{
		Event:     "restore_lock_rejected",
		IPAddress: ip,
		Success:   false,
		Details: map[string]string{
			"method": method,
			"path":   path,
		},
	})
}

// LogAdminKeyRotationNeeded logs repeated admin-key failures from one source.
func (l *SecurityLogger) LogAdminKeyRotationNeeded(ip string, failures int) {
	l.LogEvent(&SecurityEvent{
		Event:     "admin_key_failures",
		IPAddress: ip,
		Success:   false,
		Details: map[string]string{
			"failures": strconv.Itoa(failures),
		},
	})
}

// ============================================================
// Sanitization Functions
// ============================================================

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9..." -> "eyJh...kpXV"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// MaskSecret is an alias for SanitizeToken used when logging connection
// credentials and encryption passphrases.
func MaskSecret(secret string) string {
	return SanitizeToken(secret)
}

// SanitizeUsername masks a username, keeping first 2 characters.
// Example: "johndoe" -> "jo***"
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// SanitizeEmail masks an email address.
// Example: "john.doe@example.com" -> "jo***@example.com"
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}

	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return "***"
	}

	localPart := email[:atIndex]
	domain := email[atIndex:]

	if len(localPart) <= 2 {
		return "***" + domain
	}
	return localPart[:2] + "***" + domain
}

// SanitizeError removes potentially sensitive information from
// authentication error messages.
func SanitizeError(err string) string {
	// Remove potential secrets from error messages
	sensitivePatterns := []string{
		"password",
		"secret",
		"token",
		"key",
		"bearer",
		"authorization",
		"cookie",
	}

	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerErr, pattern) {
			// Generic error message
			return "authentication error"
		}
	}

	// Truncate long errors
	return truncateString(err, 200)
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	lowerKey := strings.ToLower(key)

	// Check for sensitive key names
	sensitiveKeys := map[string]bool{
		"token":               true,
		"bot_token":           true,
		"password":            true,
		"passphrase":          true,
		"encrypt_password":    true,
		"encryption_password": true,
		"master_key":          true,
		"secret":              true,
		"api_key":             true,
		"apikey":              true,
		"admin_key":           true,
		"x-admin-key":         true,
		"authorization":       true,
		"bearer":              true,
		"cookie":              true,
		"private_key":         true,
	}

	if sensitiveKeys[lowerKey] {
		return SanitizeToken(value)
	}

	// Check for email-like values
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return SanitizeEmail(value)
	}

	return value
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
