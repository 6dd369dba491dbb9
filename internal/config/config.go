// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package config loads and validates Custodia configuration from environment
// variables and an optional YAML config file.
//
// Configuration is layered with Koanf v2 (later sources win):
//  1. Built-in defaults
//  2. Config file (CONFIG_PATH env var, or the first match in DefaultConfigPaths)
//  3. Environment variables
//
// Secrets additionally support *_FILE indirection: when MASTER_ENCRYPTION_KEY
// is unset but MASTER_ENCRYPTION_KEY_FILE points at a readable file, the key
// is read from that file (trailing whitespace trimmed). The plain variable
// always wins over the _FILE variant. This matches how Docker and Kubernetes
// mount secrets.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the root configuration for the Custodia server and runner.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Backup   BackupConfig   `koanf:"backup"`
	Runner   RunnerConfig   `koanf:"runner"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Telegram TelegramConfig `koanf:"telegram"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HOST: Listen address (default: 0.0.0.0)
//   - PORT: Listen port (default: 8080)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - ENVIRONMENT: "development", "staging", "production" (default: development)
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds settings for the SQLite catalog database that stores
// targets, destinations, schedules, run history, and audit events.
//
// Environment Variables:
//   - DATA_DIR: Directory for application state (default: /app/data)
//   - DATABASE_PATH: Explicit catalog path (default: <DATA_DIR>/custodia.db)
//   - DATABASE_BUSY_TIMEOUT: SQLite busy timeout (default: 5s)
type DatabaseConfig struct {
	DataDir     string        `koanf:"data_dir"`
	Path        string        `koanf:"path"`
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// ResolvedPath returns the catalog database path, deriving it from DataDir
// when DATABASE_PATH is not set explicitly.
func (d DatabaseConfig) ResolvedPath() string {
	if d.Path != "" {
		return d.Path
	}
	return filepath.Join(d.DataDir, "custodia.db")
}

// BackupConfig holds settings for backup artifact staging.
//
// Environment Variables:
//   - BACKUP_DIR: Working directory where artifacts are produced before
//     upload, and the root of the "local" storage destination
//     (default: /app/backups)
type BackupConfig struct {
	Dir string `koanf:"dir"`
}

// RunnerConfig holds scheduler loop settings. The same section drives both
// the in-process runner (mode "direct") and the standalone custodia-runner
// binary that triggers due schedules over the REST API (mode "api").
//
// Environment Variables:
//   - RUNNER_MODE: "direct" or "api" (default: direct)
//   - RUNNER_INTERVAL: Seconds between due-schedule polls (default: 60)
//   - RUNNER_MAX_SCHEDULES: Max due schedules claimed per tick (default: 10)
//   - RUNNER_DRAIN_MODE: Keep ticking immediately while full batches remain
//     (default: false)
//   - RUNNER_DRAIN_MAX_BATCHES: Upper bound on consecutive drain batches
//     (default: 20)
//   - BACKUP_API_URL: Base URL of the Custodia API, used in "api" mode
//     (default: http://localhost:8080)
type RunnerConfig struct {
	Mode            string `koanf:"mode"`
	IntervalSeconds int    `koanf:"interval_seconds"`
	MaxSchedules    int    `koanf:"max_schedules"`
	DrainMode       bool   `koanf:"drain_mode"`
	DrainMaxBatches int    `koanf:"drain_max_batches"`
	APIURL          string `koanf:"api_url"`
}

// Interval returns the poll interval as a duration.
func (r RunnerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// APIConfig holds API pagination and response settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds authentication, authorization, and secret-at-rest
// settings.
//
// Environment Variables:
//   - AUTH_MODE: "none" or "jwt" (default: none)
//   - JWT_SECRET: HS256 signing secret, 32+ chars (required for jwt mode)
//   - SESSION_TIMEOUT: JWT token lifetime (default: 24h)
//   - ADMIN_API_KEY: Shared key for the X-Admin-Key automation header
//   - MASTER_ENCRYPTION_KEY: Key protecting stored target/destination
//     credentials and schedule encryption passwords. Optional; without it
//     mutations carrying secrets and encrypted backups are refused.
//   - RATE_LIMIT_REQS: Requests allowed per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: Disable rate limiting entirely (default: false)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - TRUSTED_PROXIES: Comma-separated proxy CIDRs for client IP resolution
//
// Each secret also honors a *_FILE variant (e.g. ADMIN_API_KEY_FILE); see
// the package documentation.
type SecurityConfig struct {
	AuthMode            string        `koanf:"auth_mode"`
	JWTSecret           string        `koanf:"jwt_secret"`
	SessionTimeout      time.Duration `koanf:"session_timeout"`
	AdminAPIKey         string        `koanf:"admin_api_key"`
	MasterEncryptionKey string        `koanf:"master_encryption_key"`
	RateLimitReqs       int           `koanf:"rate_limit_reqs"`
	RateLimitWindow     time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled   bool          `koanf:"rate_limit_disabled"`
	CORSOrigins         []string      `koanf:"cors_origins"`
	TrustedProxies      []string      `koanf:"trusted_proxies"`
}

// HasMasterKey reports whether secret-at-rest encryption is configured.
func (s SecurityConfig) HasMasterKey() bool {
	return s.MasterEncryptionKey != ""
}

// TelegramConfig holds Telegram notification settings.
//
// Environment Variables:
//   - TELEGRAM_BOT_TOKEN: Bot API token (or TELEGRAM_BOT_TOKEN_FILE)
type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
}

// Enabled reports whether Telegram notifications can be delivered.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != ""
}

// SMTPConfig holds email notification settings.
//
// Environment Variables:
//   - SMTP_HOST: SMTP server hostname (email disabled when empty)
//   - SMTP_PORT: SMTP server port (default: 587)
//   - SMTP_USER: Authentication username (optional)
//   - SMTP_PASSWORD: Authentication password (or SMTP_PASSWORD_FILE)
//   - SMTP_FROM: From address (falls back to SMTP_USER)
//   - SMTP_USE_TLS: Issue STARTTLS after connecting (default: true)
//   - SMTP_USE_SSL: Implicit TLS from the first byte (default: true when
//     SMTP_PORT is 465)
//   - SMTP_ALLOW_INSECURE_CERTS: Skip certificate verification (default: false)
//   - SMTP_CA_CERT_FILE: Additional PEM CA bundle for private servers
type SMTPConfig struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	Username           string `koanf:"username"`
	Password           string `koanf:"password"`
	From               string `koanf:"from"`
	UseTLS             bool   `koanf:"use_tls"`
	UseSSL             bool   `koanf:"use_ssl"`
	AllowInsecureCerts bool   `koanf:"allow_insecure_certs"`
	CACertFile         string `koanf:"ca_cert_file"`
}

// Enabled reports whether email notifications can be delivered.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// FromAddress returns the From header value, falling back to the
// authentication username when SMTP_FROM is not set.
func (s SMTPConfig) FromAddress() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
//   - LOG_DIR: Directory for the append-only log file (file logging
//     disabled when empty)
//   - LOG_FILENAME: Log file name inside LOG_DIR (default: custodia.log)
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// JSON is recommended for production (structured, machine-parseable).
	// Console is human-readable for development.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Adds slight performance overhead.
	// Default: false
	Caller bool `koanf:"caller"`

	// Dir enables an append-only log file under this directory. The file
	// always receives JSON lines regardless of Format.
	Dir string `koanf:"dir"`

	// Filename is the log file name inside Dir.
	// Default: custodia.log
	Filename string `koanf:"filename"`
}

// Load reads configuration from environment variables and optional config file.
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Built-in defaults
//  2. Config file (config.yaml if exists, or path specified in CONFIG_PATH env var)
//  3. Environment variables
//
// This function uses Koanf v2 for flexible, layered configuration management.
//
// See LoadWithKoanf() for the underlying implementation.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// LoadLegacy reads configuration directly from environment variables only.
// This is the legacy loading method preserved for testing and backward compatibility.
// For production use, prefer Load() which supports config files and layered loading.
//
// Deprecated: Use Load() instead for new code.
func LoadLegacy() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("HOST", "0.0.0.0"),
			Port:        getIntEnv("PORT", 8080),
			Timeout:     getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
			Environment: getEnv("ENVIRONMENT", ""),
		},
		Database: DatabaseConfig{
			DataDir:     getEnv("DATA_DIR", "/app/data"),
			Path:        getEnv("DATABASE_PATH", ""),
			BusyTimeout: getDurationEnv("DATABASE_BUSY_TIMEOUT", 5*time.Second),
		},
		Backup: BackupConfig{
			Dir: getEnv("BACKUP_DIR", "/app/backups"),
		},
		Runner: RunnerConfig{
			Mode:            getEnv("RUNNER_MODE", "direct"),
			IntervalSeconds: getIntEnv("RUNNER_INTERVAL", 60),
			MaxSchedules:    getIntEnv("RUNNER_MAX_SCHEDULES", 10),
			DrainMode:       getBoolEnv("RUNNER_DRAIN_MODE", false),
			DrainMaxBatches: getIntEnv("RUNNER_DRAIN_MAX_BATCHES", 20),
			APIURL:          getEnv("BACKUP_API_URL", "http://localhost:8080"),
		},
		API: APIConfig{
			DefaultPageSize: getIntEnv("API_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:     getIntEnv("API_MAX_PAGE_SIZE", 500),
		},
		Security: SecurityConfig{
			AuthMode:            getEnv("AUTH_MODE", "none"),
			JWTSecret:           getSecretEnv("JWT_SECRET"),
			SessionTimeout:      getDurationEnv("SESSION_TIMEOUT", 24*time.Hour),
			AdminAPIKey:         getSecretEnv("ADMIN_API_KEY"),
			MasterEncryptionKey: getSecretEnv("MASTER_ENCRYPTION_KEY"),
			RateLimitReqs:       getIntEnv("RATE_LIMIT_REQS", 100),
			RateLimitWindow:     getDurationEnv("RATE_LIMIT_WINDOW", 1*time.Minute),
			RateLimitDisabled:   getBoolEnv("DISABLE_RATE_LIMIT", false),
			CORSOrigins:         getSliceEnv("CORS_ORIGINS", []string{"*"}),
			TrustedProxies:      getSliceEnv("TRUSTED_PROXIES", []string{}),
		},
		Telegram: TelegramConfig{
			BotToken: getSecretEnv("TELEGRAM_BOT_TOKEN"),
		},
		SMTP: SMTPConfig{
			Host:               getEnv("SMTP_HOST", ""),
			Port:               getIntEnv("SMTP_PORT", 587),
			Username:           getEnv("SMTP_USER", ""),
			Password:           getSecretEnv("SMTP_PASSWORD"),
			From:               getEnv("SMTP_FROM", ""),
			UseTLS:             getBoolEnv("SMTP_USE_TLS", true),
			UseSSL:             getBoolEnv("SMTP_USE_SSL", getIntEnv("SMTP_PORT", 587) == 465),
			AllowInsecureCerts: getBoolEnv("SMTP_ALLOW_INSECURE_CERTS", false),
			CACertFile:         getEnv("SMTP_CA_CERT_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "json"),
			Caller:   getBoolEnv("LOG_CALLER", false),
			Dir:      getEnv("LOG_DIR", ""),
			Filename: getEnv("LOG_FILENAME", "custodia.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// NOTE: Validate() method lives in config_validate.go
// NOTE: URL validation functions live in config_url.go
// NOTE: Environment variable helpers live in config_env.go
