// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validatePaths(); err != nil {
		return err
	}

	if err := c.validateRunner(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateSMTP(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates HTTP server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	return nil
}

// validatePaths validates filesystem locations for state and artifacts
func (c *Config) validatePaths() error {
	if c.Database.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("BACKUP_DIR must not be empty")
	}
	return nil
}

// Runner limit constants
const (
	minRunnerInterval     = 1
	maxRunnerInterval     = 86400 // one day
	maxRunnerSchedules    = 1000
	maxRunnerDrainBatches = 1000
)

// validRunnerModes defines the allowed runner modes
var validRunnerModes = map[string]bool{
	"direct": true,
	"api":    true,
}

// validateRunner validates scheduler loop configuration
func (c *Config) validateRunner() error {
	if !validRunnerModes[c.Runner.Mode] {
		return fmt.Errorf("RUNNER_MODE must be one of: direct, api")
	}

	if err := c.validateRunnerInterval(); err != nil {
		return err
	}
	if err := c.validateRunnerBatch(); err != nil {
		return err
	}
	return c.validateRunnerAPIURL()
}

// validateRunnerInterval validates the poll interval
func (c *Config) validateRunnerInterval() error {
	if c.Runner.IntervalSeconds < minRunnerInterval || c.Runner.IntervalSeconds > maxRunnerInterval {
		return fmt.Errorf("RUNNER_INTERVAL must be between %d and %d seconds", minRunnerInterval, maxRunnerInterval)
	}
	return nil
}

// validateRunnerBatch validates batch and drain bounds
func (c *Config) validateRunnerBatch() error {
	if c.Runner.MaxSchedules < 1 || c.Runner.MaxSchedules > maxRunnerSchedules {
		return fmt.Errorf("RUNNER_MAX_SCHEDULES must be between 1 and %d", maxRunnerSchedules)
	}
	if c.Runner.DrainMaxBatches < 1 || c.Runner.DrainMaxBatches > maxRunnerDrainBatches {
		return fmt.Errorf("RUNNER_DRAIN_MAX_BATCHES must be between 1 and %d", maxRunnerDrainBatches)
	}
	return nil
}

// validateRunnerAPIURL validates the API base URL used in "api" mode
func (c *Config) validateRunnerAPIURL() error {
	if c.Runner.Mode != "api" {
		return nil
	}
	if c.Runner.APIURL == "" {
		return fmt.Errorf("BACKUP_API_URL is required when RUNNER_MODE is api")
	}
	if err := validateHTTPURL(c.Runner.APIURL, "BACKUP_API_URL"); err != nil {
		return fmt.Errorf("BACKUP_API_URL is invalid: %w", err)
	}
	return nil
}

// validateAPI validates pagination bounds
func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be at least 1")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE")
	}
	return nil
}

// validateSecurity validates security configuration
func (c *Config) validateSecurity() error {
	if err := c.validateAuthMode(); err != nil {
		return err
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}

	if err := c.validateMasterKey(); err != nil {
		return err
	}

	return c.validateAuthModeConfig()
}

// validAuthModes defines the allowed authentication modes
var validAuthModes = map[string]bool{
	"none": true,
	"jwt":  true,
}

// validateAuthMode checks if auth mode is valid
func (c *Config) validateAuthMode() error {
	if !validAuthModes[c.Security.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of: none, jwt")
	}
	return nil
}

// validateAuthModeConfig validates configuration for the selected auth mode
func (c *Config) validateAuthModeConfig() error {
	if c.Security.AuthMode != "jwt" {
		return nil // "none" mode has no additional validation
	}
	return c.validateJWTSecret()
}

// validateJWTSecret validates the JWT secret configuration
func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// validateMasterKey validates the stored-secret encryption key when present.
// The key is optional: without it Custodia stores credentials in plaintext
// and refuses schedules that enable backup encryption.
func (c *Config) validateMasterKey() error {
	key := c.Security.MasterEncryptionKey
	if key == "" {
		return nil
	}
	if len(key) < minMasterKeyLength {
		return fmt.Errorf("MASTER_ENCRYPTION_KEY must be at least %d characters", minMasterKeyLength)
	}
	if containsPlaceholder(key) {
		return fmt.Errorf("MASTER_ENCRYPTION_KEY contains a placeholder value - generate a secure key with: openssl rand -base64 32")
	}
	return nil
}

// minMasterKeyLength is the minimum length for MASTER_ENCRYPTION_KEY.
// The key feeds HKDF so any length is cryptographically workable, but short
// keys are trivially brute-forced.
const minMasterKeyLength = 16

// validateCORS validates CORS configuration for security best practices.
// In production mode with authentication enabled, wildcard CORS is rejected
// as it creates a security vulnerability where any origin can access
// protected resources using stolen credentials.
func (c *Config) validateCORS() error {
	if c.Security.AuthMode != "none" && c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production with authentication enabled. " +
			"Either set specific origins: CORS_ORIGINS=https://yourdomain.com,https://app.yourdomain.com " +
			"or use ENVIRONMENT=development for testing purposes")
	}
	return nil
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS returns true if CORS configuration has security concerns
// that should be logged at startup
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.Security.AuthMode != "none" && c.hasWildcardCORS()
}

// Rate limit constants
const (
	minRateLimitRequests = 1           // Minimum 1 request allowed
	maxRateLimitRequests = 100000      // Maximum 100K requests per window
	minRateLimitWindow   = time.Second // Minimum 1 second window
	maxRateLimitWindow   = time.Hour   // Maximum 1 hour window
)

// validateRateLimits validates rate limiting configuration bounds.
// Ensures rate limit values are within sensible ranges to prevent
// misconfiguration that could lead to DoS or ineffective protection.
func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}

	if err := c.validateRateLimitRequests(); err != nil {
		return err
	}
	return c.validateRateLimitWindow()
}

// validateRateLimitRequests validates the rate limit requests value
func (c *Config) validateRateLimitRequests() error {
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	return nil
}

// validateRateLimitWindow validates the rate limit window value
func (c *Config) validateRateLimitWindow() error {
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateSMTP validates email notification configuration.
// All checks are conditional on SMTP_HOST; email is optional.
func (c *Config) validateSMTP() error {
	if !c.SMTP.Enabled() {
		return nil
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
	}
	if c.SMTP.FromAddress() == "" {
		return fmt.Errorf("SMTP_FROM or SMTP_USER is required when SMTP_HOST is set")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
// Production mode is determined by the ENVIRONMENT environment variable.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "" || env == "development" || env == "dev"
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if err := c.validateLogLevel(); err != nil {
		return err
	}
	return c.validateLogFormat()
}

// validateLogLevel validates the log level configuration
func (c *Config) validateLogLevel() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	return nil
}

// validateLogFormat validates the log format configuration
func (c *Config) validateLogFormat() error {
	if c.Logging.Format == "" {
		return nil
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value. This prevents accidental deployment
// with insecure default credentials.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
	"TODO",
	"FIXME",
	"XXX",
	"EXAMPLE",
}

// containsPlaceholder checks if a value contains common placeholder patterns
// that indicate the user forgot to set a real value. This prevents accidental
// deployment with insecure default credentials.
func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	return containsAnyPattern(upperValue, placeholderPatterns)
}

// containsAnyPattern checks if a string contains any of the provided patterns
func containsAnyPattern(s string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
