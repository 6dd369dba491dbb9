// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Test helpers to reduce cyclomatic complexity

// setupTestEnv sets up test environment variables and returns cleanup function
func setupTestEnv(t *testing.T, envVars map[string]string) func() {
	t.Helper()
	os.Clearenv()
	for k, v := range envVars {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("failed to set env var %s: %v", k, err)
		}
	}
	return func() {
		os.Clearenv()
	}
}

// assertNoError checks that error is nil
func assertNoError(t *testing.T, err error, testName string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", testName, err)
	}
}

// assertError checks that error occurred and optionally matches message
func assertError(t *testing.T, err error, expectedMsg, testName string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error containing %q, got nil", testName, expectedMsg)
	}
	if expectedMsg != "" && err.Error() != expectedMsg {
		t.Errorf("%s: error = %v, want error containing %q", testName, err, expectedMsg)
	}
}

// assertConfigNotNil checks that config is not nil
func assertConfigNotNil(t *testing.T, cfg *Config, testName string) {
	t.Helper()
	if cfg == nil {
		t.Fatalf("%s: config is nil", testName)
	}
}

// assertIntEqual checks integer equality
func assertIntEqual(t *testing.T, got, want int, field, testName string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: %s = %v, want %v", testName, field, got, want)
	}
}

// assertStringEqual checks string equality
func assertStringEqual(t *testing.T, got, want, field string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}

// assertBoolEqual checks boolean equality
func assertBoolEqual(t *testing.T, got, want bool, field string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}

// assertDurationEqual checks time.Duration equality
func assertDurationEqual(t *testing.T, got, want time.Duration, field string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}

// assertSliceLength checks slice length
func assertSliceLength(t *testing.T, got, want int, field string) {
	t.Helper()
	if got != want {
		t.Errorf("%s length = %v, want %v", field, got, want)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default configuration",
			envVars: map[string]string{},
			wantErr: false,
		},
		{
			name: "valid JWT configuration",
			envVars: map[string]string{
				"AUTH_MODE":    "jwt",
				"JWT_SECRET":   "this_is_a_very_long_secret_key_with_more_than_32_characters",
				"CORS_ORIGINS": "https://custodia.example.com",
			},
			wantErr: false,
		},
		{
			name: "JWT mode requires JWT_SECRET",
			envVars: map[string]string{
				"AUTH_MODE": "jwt",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: JWT_SECRET is required when AUTH_MODE is jwt",
		},
		{
			name: "JWT_SECRET too short",
			envVars: map[string]string{
				"AUTH_MODE":  "jwt",
				"JWT_SECRET": "short",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: JWT_SECRET must be at least 32 characters for security",
		},
		{
			name: "invalid AUTH_MODE",
			envVars: map[string]string{
				"AUTH_MODE": "invalid_mode",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: AUTH_MODE must be one of: none, jwt",
		},
		{
			name: "invalid port",
			envVars: map[string]string{
				"PORT": "99999",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: PORT must be between 1 and 65535",
		},
		{
			name: "invalid port (zero)",
			envVars: map[string]string{
				"PORT": "0",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: PORT must be between 1 and 65535",
		},
		{
			name: "invalid log level",
			envVars: map[string]string{
				"LOG_LEVEL": "invalid_level",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: LOG_LEVEL must be one of: trace, debug, info, warn, error",
		},
		{
			name: "invalid log format",
			envVars: map[string]string{
				"LOG_FORMAT": "xml",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: LOG_FORMAT must be one of: json, console",
		},
		{
			name: "invalid runner mode",
			envVars: map[string]string{
				"RUNNER_MODE": "cron",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: RUNNER_MODE must be one of: direct, api",
		},
		{
			name: "runner interval too small",
			envVars: map[string]string{
				"RUNNER_INTERVAL": "0",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: RUNNER_INTERVAL must be between 1 and 86400 seconds",
		},
		{
			name: "runner interval too large",
			envVars: map[string]string{
				"RUNNER_INTERVAL": "90000",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: RUNNER_INTERVAL must be between 1 and 86400 seconds",
		},
		{
			name: "runner max schedules out of range",
			envVars: map[string]string{
				"RUNNER_MAX_SCHEDULES": "5000",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: RUNNER_MAX_SCHEDULES must be between 1 and 1000",
		},
		{
			name: "runner drain batches out of range",
			envVars: map[string]string{
				"RUNNER_DRAIN_MAX_BATCHES": "0",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: RUNNER_DRAIN_MAX_BATCHES must be between 1 and 1000",
		},
		{
			name: "api mode rejects API URL with path",
			envVars: map[string]string{
				"RUNNER_MODE":    "api",
				"BACKUP_API_URL": "http://localhost:8080/api/v1",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: BACKUP_API_URL is invalid: BACKUP_API_URL should be base URL only, remove path: /api/v1",
		},
		{
			name: "api mode with valid base URL",
			envVars: map[string]string{
				"RUNNER_MODE":    "api",
				"BACKUP_API_URL": "http://backup-api:8080",
			},
			wantErr: false,
		},
		{
			name: "JWT_SECRET placeholder detection - REPLACE",
			envVars: map[string]string{
				"AUTH_MODE":    "jwt",
				"JWT_SECRET":   "REPLACE_WITH_RANDOM_STRING_MIN_32_CHARS",
				"CORS_ORIGINS": "https://custodia.example.com",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32",
		},
		{
			name: "JWT_SECRET placeholder detection - CHANGEME",
			envVars: map[string]string{
				"AUTH_MODE":    "jwt",
				"JWT_SECRET":   "changeme_this_is_a_very_long_secret_key_placeholder",
				"CORS_ORIGINS": "https://custodia.example.com",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32",
		},
		{
			name: "MASTER_ENCRYPTION_KEY too short",
			envVars: map[string]string{
				"MASTER_ENCRYPTION_KEY": "short-key",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: MASTER_ENCRYPTION_KEY must be at least 16 characters",
		},
		{
			name: "MASTER_ENCRYPTION_KEY placeholder detection",
			envVars: map[string]string{
				"MASTER_ENCRYPTION_KEY": "CHANGEME_CHANGEME_CHANGEME",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: MASTER_ENCRYPTION_KEY contains a placeholder value - generate a secure key with: openssl rand -base64 32",
		},
		{
			name: "valid MASTER_ENCRYPTION_KEY",
			envVars: map[string]string{
				"MASTER_ENCRYPTION_KEY": "k8Jx2mPq9vLcR4tYw7zB3nF6hD1sG5aE",
			},
			wantErr: false,
		},
		{
			name: "invalid API page sizes",
			envVars: map[string]string{
				"API_DEFAULT_PAGE_SIZE": "600",
				"API_MAX_PAGE_SIZE":     "500",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE",
		},
		{
			name: "SMTP requires a from address",
			envVars: map[string]string{
				"SMTP_HOST": "mail.example.com",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: SMTP_FROM or SMTP_USER is required when SMTP_HOST is set",
		},
		{
			name: "SMTP port out of range",
			envVars: map[string]string{
				"SMTP_HOST": "mail.example.com",
				"SMTP_PORT": "70000",
				"SMTP_FROM": "custodia@example.com",
			},
			wantErr: true,
			errMsg:  "configuration validation failed: SMTP_PORT must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestEnv(t, tt.envVars)
			defer cleanup()

			cfg, err := Load()

			if tt.wantErr {
				assertError(t, err, tt.errMsg, tt.name)
			} else {
				assertNoError(t, err, tt.name)
				assertConfigNotNil(t, cfg, tt.name)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue string
		want         string
	}{
		{
			name:         "value set",
			key:          "TEST_STRING",
			value:        "custom",
			defaultValue: "default",
			want:         "custom",
		},
		{
			name:         "empty value uses default",
			key:          "TEST_STRING",
			value:        "",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVars := map[string]string{}
			if tt.value != "" {
				envVars[tt.key] = tt.value
			}
			cleanup := setupTestEnv(t, envVars)
			defer cleanup()

			got := getEnv(tt.key, tt.defaultValue)
			assertStringEqual(t, got, tt.want, "getEnv")
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		want         int
	}{
		{
			name:         "valid integer",
			key:          "TEST_INT",
			value:        "42",
			defaultValue: 10,
			want:         42,
		},
		{
			name:         "empty value uses default",
			key:          "TEST_INT",
			value:        "",
			defaultValue: 10,
			want:         10,
		},
		{
			name:         "invalid value uses default",
			key:          "TEST_INT",
			value:        "not_a_number",
			defaultValue: 10,
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envVars := map[string]string{}
			if tt.value != "" {
				envVars[tt.key] = tt.value
			}
			cleanup := setupTestEnv(t, envVars)
			defer cleanup()

			got := getIntEnv(tt.key, tt.defaultValue)
			assertIntEqual(t, got, tt.want, "getIntEnv", tt.name)
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{
			name:         "valid duration",
			key:          "TEST_DURATION",
			value:        "5m",
			defaultValue: 1 * time.Minute,
			want:         5 * time.Minute,
		},
		{
			name:         "empty value uses default",
			key:          "TEST_DURATION",
			value:        "",
			defaultValue: 1 * time.Minute,
			want:         1 * time.Minute,
		},
		{
			name:         "invalid value uses default",
			key:          "TEST_DURATION",
			value:        "invalid",
			defaultValue: 1 * time.Minute,
			want:         1 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				_ = os.Setenv(tt.key, tt.value)
			}

			got := getDurationEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getDurationEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue bool
		want         bool
	}{
		{
			name:         "true value",
			key:          "TEST_BOOL",
			value:        "true",
			defaultValue: false,
			want:         true,
		},
		{
			name:         "false value",
			key:          "TEST_BOOL",
			value:        "false",
			defaultValue: true,
			want:         false,
		},
		{
			name:         "numeric true",
			key:          "TEST_BOOL",
			value:        "1",
			defaultValue: false,
			want:         true,
		},
		{
			name:         "empty value uses default",
			key:          "TEST_BOOL",
			value:        "",
			defaultValue: true,
			want:         true,
		},
		{
			name:         "invalid value uses default",
			key:          "TEST_BOOL",
			value:        "not_a_bool",
			defaultValue: true,
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				_ = os.Setenv(tt.key, tt.value)
			}

			got := getBoolEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getBoolEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSliceEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue []string
		want         []string
	}{
		{
			name:         "single value",
			key:          "TEST_SLICE",
			value:        "https://example.com",
			defaultValue: []string{"*"},
			want:         []string{"https://example.com"},
		},
		{
			name:         "multiple values with spaces",
			key:          "TEST_SLICE",
			value:        "https://a.example.com, https://b.example.com",
			defaultValue: []string{"*"},
			want:         []string{"https://a.example.com", "https://b.example.com"},
		},
		{
			name:         "empty value uses default",
			key:          "TEST_SLICE",
			value:        "",
			defaultValue: []string{"*"},
			want:         []string{"*"},
		},
		{
			name:         "only commas uses default",
			key:          "TEST_SLICE",
			value:        ",,,",
			defaultValue: []string{"*"},
			want:         []string{"*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				_ = os.Setenv(tt.key, tt.value)
			}

			got := getSliceEnv(tt.key, tt.defaultValue)
			if len(got) != len(tt.want) {
				t.Fatalf("getSliceEnv() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("getSliceEnv()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetSecretEnv(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "secret_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	secretFile := filepath.Join(tmpDir, "secret")
	if err := os.WriteFile(secretFile, []byte("  file-secret-value\n"), 0600); err != nil {
		t.Fatalf("Failed to write secret file: %v", err)
	}

	tests := []struct {
		name    string
		envVars map[string]string
		want    string
	}{
		{
			name: "plain env var set",
			envVars: map[string]string{
				"TEST_SECRET": "plain-value",
			},
			want: "plain-value",
		},
		{
			name: "plain env var wins over file",
			envVars: map[string]string{
				"TEST_SECRET":      "plain-value",
				"TEST_SECRET_FILE": secretFile,
			},
			want: "plain-value",
		},
		{
			name: "file fallback trims whitespace",
			envVars: map[string]string{
				"TEST_SECRET_FILE": secretFile,
			},
			want: "file-secret-value",
		},
		{
			name: "missing file returns empty",
			envVars: map[string]string{
				"TEST_SECRET_FILE": filepath.Join(tmpDir, "does-not-exist"),
			},
			want: "",
		},
		{
			name:    "nothing set returns empty",
			envVars: map[string]string{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestEnv(t, tt.envVars)
			defer cleanup()

			got := getSecretEnv("TEST_SECRET")
			assertStringEqual(t, got, tt.want, "getSecretEnv")
		})
	}
}

func TestValidateHTTPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid HTTP with hostname and port",
			url:     "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP with IP address and port",
			url:     "http://192.168.1.100:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTPS with hostname (no port)",
			url:     "https://backup.example.com",
			wantErr: false,
		},
		{
			name:    "valid HTTP with trailing slash",
			url:     "http://localhost:8080/",
			wantErr: false,
		},
		{
			name:    "invalid scheme",
			url:     "ftp://localhost:8080",
			wantErr: true,
			errMsg:  "BACKUP_API_URL scheme must be http or https, got: ftp",
		},
		{
			name:    "missing host",
			url:     "http://",
			wantErr: true,
			errMsg:  "BACKUP_API_URL host is required",
		},
		{
			name:    "path not allowed",
			url:     "http://localhost:8080/api/v1",
			wantErr: true,
			errMsg:  "BACKUP_API_URL should be base URL only, remove path: /api/v1",
		},
		{
			name:    "query parameters not allowed",
			url:     "http://localhost:8080?key=value",
			wantErr: true,
			errMsg:  "BACKUP_API_URL should not contain query parameters, remove: ?key=value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPURL(tt.url, "BACKUP_API_URL")

			if tt.wantErr {
				assertError(t, err, tt.errMsg, tt.name)
			} else {
				assertNoError(t, err, tt.name)
			}
		})
	}
}

func TestLoad_ConfigValues(t *testing.T) {
	cleanup := setupTestEnv(t, map[string]string{
		"HOST":             "10.0.0.5",
		"PORT":             "9090",
		"HTTP_TIMEOUT":     "45s",
		"DATA_DIR":         "/opt/custodia/data",
		"BACKUP_DIR":       "/opt/custodia/backups",
		"RUNNER_INTERVAL":  "90",
		"AUTH_MODE":        "none",
		"RATE_LIMIT_REQS":  "250",
		"SESSION_TIMEOUT":  "12h",
		"CORS_ORIGINS":     "https://a.example.com,https://b.example.com",
		"TRUSTED_PROXIES":  "10.0.0.0/8",
		"LOG_LEVEL":        "warn",
		"LOG_FORMAT":       "console",
	})
	defer cleanup()

	cfg, err := Load()
	assertNoError(t, err, "TestLoad_ConfigValues")
	assertConfigNotNil(t, cfg, "TestLoad_ConfigValues")

	assertStringEqual(t, cfg.Server.Host, "10.0.0.5", "Server.Host")
	assertIntEqual(t, cfg.Server.Port, 9090, "Server.Port", "")
	assertDurationEqual(t, cfg.Server.Timeout, 45*time.Second, "Server.Timeout")
	assertStringEqual(t, cfg.Database.DataDir, "/opt/custodia/data", "Database.DataDir")
	assertStringEqual(t, cfg.Backup.Dir, "/opt/custodia/backups", "Backup.Dir")
	assertIntEqual(t, cfg.Runner.IntervalSeconds, 90, "Runner.IntervalSeconds", "")
	assertIntEqual(t, cfg.Security.RateLimitReqs, 250, "Security.RateLimitReqs", "")
	assertDurationEqual(t, cfg.Security.SessionTimeout, 12*time.Hour, "Security.SessionTimeout")
	assertSliceLength(t, len(cfg.Security.CORSOrigins), 2, "Security.CORSOrigins")
	assertSliceLength(t, len(cfg.Security.TrustedProxies), 1, "Security.TrustedProxies")
	assertStringEqual(t, cfg.Logging.Level, "warn", "Logging.Level")
	assertStringEqual(t, cfg.Logging.Format, "console", "Logging.Format")
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := setupTestEnv(t, map[string]string{})
	defer cleanup()

	cfg, err := Load()
	assertNoError(t, err, "TestLoad_DefaultValues")
	assertConfigNotNil(t, cfg, "TestLoad_DefaultValues")

	assertStringEqual(t, cfg.Server.Host, "0.0.0.0", "Server.Host")
	assertIntEqual(t, cfg.Server.Port, 8080, "Server.Port", "")
	assertDurationEqual(t, cfg.Server.Timeout, 30*time.Second, "Server.Timeout")
	assertStringEqual(t, cfg.Database.DataDir, "/app/data", "Database.DataDir")
	assertStringEqual(t, cfg.Backup.Dir, "/app/backups", "Backup.Dir")
	assertStringEqual(t, cfg.Runner.Mode, "direct", "Runner.Mode")
	assertIntEqual(t, cfg.Runner.IntervalSeconds, 60, "Runner.IntervalSeconds", "")
	assertIntEqual(t, cfg.Runner.MaxSchedules, 10, "Runner.MaxSchedules", "")
	assertBoolEqual(t, cfg.Runner.DrainMode, false, "Runner.DrainMode")
	assertIntEqual(t, cfg.Runner.DrainMaxBatches, 20, "Runner.DrainMaxBatches", "")
	assertIntEqual(t, cfg.API.DefaultPageSize, 50, "API.DefaultPageSize", "")
	assertIntEqual(t, cfg.API.MaxPageSize, 500, "API.MaxPageSize", "")
	assertStringEqual(t, cfg.Security.AuthMode, "none", "Security.AuthMode")
	assertIntEqual(t, cfg.Security.RateLimitReqs, 100, "Security.RateLimitReqs", "")
	assertDurationEqual(t, cfg.Security.RateLimitWindow, time.Minute, "Security.RateLimitWindow")
	assertDurationEqual(t, cfg.Security.SessionTimeout, 24*time.Hour, "Security.SessionTimeout")
	assertSliceLength(t, len(cfg.Security.CORSOrigins), 1, "Security.CORSOrigins")
	assertIntEqual(t, cfg.SMTP.Port, 587, "SMTP.Port", "")
	assertBoolEqual(t, cfg.SMTP.UseTLS, true, "SMTP.UseTLS")
	assertStringEqual(t, cfg.Logging.Level, "info", "Logging.Level")
	assertStringEqual(t, cfg.Logging.Format, "json", "Logging.Format")
	assertStringEqual(t, cfg.Logging.Filename, "custodia.log", "Logging.Filename")
}

func TestValidate_AllLogLevels(t *testing.T) {
	levels := []string{"trace", "debug", "info", "warn", "error"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			cleanup := setupTestEnv(t, map[string]string{
				"LOG_LEVEL": level,
			})
			defer cleanup()

			cfg, err := Load()
			assertNoError(t, err, "TestValidate_AllLogLevels")
			assertStringEqual(t, cfg.Logging.Level, level, "Logging.Level")
		})
	}
}

func TestServerListenAddr(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9000,
		},
	}
	assertStringEqual(t, cfg.Server.ListenAddr(), "127.0.0.1:9000", "ListenAddr")
}

func TestDatabaseResolvedPath(t *testing.T) {
	tests := []struct {
		name    string
		dataDir string
		path    string
		want    string
	}{
		{
			name:    "derived from data dir",
			dataDir: "/app/data",
			path:    "",
			want:    "/app/data/custodia.db",
		},
		{
			name:    "explicit path wins",
			dataDir: "/app/data",
			path:    "/custom/location.db",
			want:    "/custom/location.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := DatabaseConfig{DataDir: tt.dataDir, Path: tt.path}
			assertStringEqual(t, db.ResolvedPath(), tt.want, "ResolvedPath")
		})
	}
}

func TestRunnerInterval(t *testing.T) {
	r := RunnerConfig{IntervalSeconds: 90}
	assertDurationEqual(t, r.Interval(), 90*time.Second, "Interval")
}

func TestSMTPFromAddress(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		username string
		want     string
	}{
		{
			name:     "explicit from",
			from:     "backups@example.com",
			username: "user@example.com",
			want:     "backups@example.com",
		},
		{
			name:     "falls back to username",
			from:     "",
			username: "user@example.com",
			want:     "user@example.com",
		},
		{
			name:     "both empty",
			from:     "",
			username: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SMTPConfig{From: tt.from, Username: tt.username}
			assertStringEqual(t, s.FromAddress(), tt.want, "FromAddress")
		})
	}
}

func TestNotificationEnabled(t *testing.T) {
	t.Run("telegram disabled without token", func(t *testing.T) {
		tg := TelegramConfig{}
		assertBoolEqual(t, tg.Enabled(), false, "Telegram.Enabled")
	})

	t.Run("telegram enabled with token", func(t *testing.T) {
		tg := TelegramConfig{BotToken: "123456:ABC"}
		assertBoolEqual(t, tg.Enabled(), true, "Telegram.Enabled")
	})

	t.Run("smtp disabled without host", func(t *testing.T) {
		s := SMTPConfig{}
		assertBoolEqual(t, s.Enabled(), false, "SMTP.Enabled")
	})

	t.Run("smtp enabled with host", func(t *testing.T) {
		s := SMTPConfig{Host: "mail.example.com"}
		assertBoolEqual(t, s.Enabled(), true, "SMTP.Enabled")
	})
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"production", true},
		{"prod", true},
		{"PRODUCTION", true},
		{"development", false},
		{"dev", false},
		{"", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run("env_"+tt.environment, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Environment: tt.environment}}
			assertBoolEqual(t, cfg.IsProduction(), tt.want, "IsProduction")
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"development", true},
		{"dev", true},
		{"", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run("env_"+tt.environment, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Environment: tt.environment}}
			assertBoolEqual(t, cfg.IsDevelopment(), tt.want, "IsDevelopment")
		})
	}
}

func TestValidateCORS_ProductionWildcard(t *testing.T) {
	tests := []struct {
		name        string
		authMode    string
		environment string
		origins     []string
		wantErr     bool
	}{
		{
			name:        "wildcard rejected in production with auth",
			authMode:    "jwt",
			environment: "production",
			origins:     []string{"*"},
			wantErr:     true,
		},
		{
			name:        "wildcard allowed in development with auth",
			authMode:    "jwt",
			environment: "development",
			origins:     []string{"*"},
			wantErr:     false,
		},
		{
			name:        "wildcard allowed in production without auth",
			authMode:    "none",
			environment: "production",
			origins:     []string{"*"},
			wantErr:     false,
		},
		{
			name:        "specific origins allowed in production with auth",
			authMode:    "jwt",
			environment: "production",
			origins:     []string{"https://custodia.example.com"},
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{Environment: tt.environment},
				Security: SecurityConfig{
					AuthMode:    tt.authMode,
					CORSOrigins: tt.origins,
				},
			}

			err := cfg.validateCORS()

			if tt.wantErr && err == nil {
				t.Errorf("validateCORS() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateCORS() unexpected error = %v", err)
			}
		})
	}
}

func TestShouldWarnAboutCORS(t *testing.T) {
	tests := []struct {
		name     string
		authMode string
		origins  []string
		want     bool
	}{
		{
			name:     "wildcard with auth warns",
			authMode: "jwt",
			origins:  []string{"*"},
			want:     true,
		},
		{
			name:     "wildcard without auth does not warn",
			authMode: "none",
			origins:  []string{"*"},
			want:     false,
		},
		{
			name:     "specific origins do not warn",
			authMode: "jwt",
			origins:  []string{"https://custodia.example.com"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Security: SecurityConfig{
					AuthMode:    tt.authMode,
					CORSOrigins: tt.origins,
				},
			}
			assertBoolEqual(t, cfg.ShouldWarnAboutCORS(), tt.want, "ShouldWarnAboutCORS")
		})
	}
}

func TestValidateRateLimits(t *testing.T) {
	tests := []struct {
		name        string
		requests    int
		window      time.Duration
		disabled    bool
		wantErr     bool
		errContains string
	}{
		{
			name:     "valid defaults",
			requests: 100,
			window:   time.Minute,
			disabled: false,
			wantErr:  false,
		},
		{
			name:     "valid minimum requests",
			requests: 1,
			window:   time.Minute,
			disabled: false,
			wantErr:  false,
		},
		{
			name:     "valid maximum requests",
			requests: 100000,
			window:   time.Minute,
			disabled: false,
			wantErr:  false,
		},
		{
			name:     "valid minimum window",
			requests: 100,
			window:   time.Second,
			disabled: false,
			wantErr:  false,
		},
		{
			name:     "valid maximum window",
			requests: 100,
			window:   time.Hour,
			disabled: false,
			wantErr:  false,
		},
		{
			name:        "invalid zero requests",
			requests:    0,
			window:      time.Minute,
			disabled:    false,
			wantErr:     true,
			errContains: "RATE_LIMIT_REQS",
		},
		{
			name:        "invalid too many requests",
			requests:    100001,
			window:      time.Minute,
			disabled:    false,
			wantErr:     true,
			errContains: "RATE_LIMIT_REQS",
		},
		{
			name:        "invalid window too small",
			requests:    100,
			window:      500 * time.Millisecond,
			disabled:    false,
			wantErr:     true,
			errContains: "RATE_LIMIT_WINDOW",
		},
		{
			name:        "invalid window too large",
			requests:    100,
			window:      2 * time.Hour,
			disabled:    false,
			wantErr:     true,
			errContains: "RATE_LIMIT_WINDOW",
		},
		{
			name:     "disabled skips validation",
			requests: 0, // Would be invalid if enabled
			window:   0, // Would be invalid if enabled
			disabled: true,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Security: SecurityConfig{
					RateLimitReqs:     tt.requests,
					RateLimitWindow:   tt.window,
					RateLimitDisabled: tt.disabled,
				},
			}

			err := cfg.validateRateLimits()

			if tt.wantErr {
				if err == nil {
					t.Errorf("validateRateLimits() expected error containing %q, got nil", tt.errContains)
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("validateRateLimits() error = %v, want error containing %q", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("validateRateLimits() unexpected error = %v", err)
				}
			}
		})
	}
}

func TestContainsPlaceholder(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"REPLACE_WITH_SECRET", true},
		{"changeme123", true},
		{"my_CHANGE_ME_value", true},
		{"your_password_here", true},
		{"todo_set_this", true},
		{"k8Jx2mPq9vLcR4tYw7zB", false},
		{"legitimate-secret-value", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := containsPlaceholder(tt.value)
			if got != tt.want {
				t.Errorf("containsPlaceholder(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
