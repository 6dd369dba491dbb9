// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package config provides centralized configuration management for Custodia.

This package handles loading, validation, and parsing of environment variables
for the API server, the in-process scheduler, and the standalone runner binary.
It ensures consistent configuration across components and provides sensible
defaults for optional settings.

# Configuration Sources

The package reads configuration from, in order of increasing precedence:
  - Built-in defaults
  - YAML config file (CONFIG_PATH, or the first match in DefaultConfigPaths)
  - Environment variables
  - *_FILE secret indirection (fills secrets still empty after all layers)

# Configuration Structure

The package organizes configuration into logical groups:

  - ServerConfig: HTTP server settings (host, port, timeout)
  - DatabaseConfig: SQLite catalog location and tuning
  - BackupConfig: Artifact staging directory
  - RunnerConfig: Scheduler loop mode, interval, and batch bounds
  - SecurityConfig: Auth mode, JWT, admin key, master key, rate limits, CORS
  - TelegramConfig / SMTPConfig: Notification channels
  - LoggingConfig: zerolog level, format, and optional log file

# Environment Variables

HTTP Server (ServerConfig):
  - HOST: Bind address (default: 0.0.0.0)
  - PORT: Listen port (default: 8080)
  - HTTP_TIMEOUT: Read/write timeout (default: 30s)
  - ENVIRONMENT: development, staging, production (default: development)

State and Artifacts:
  - DATA_DIR: Application state directory (default: /app/data)
  - DATABASE_PATH: Catalog database path (default: <DATA_DIR>/custodia.db)
  - BACKUP_DIR: Artifact staging directory and local destination root
    (default: /app/backups)

Scheduler (RunnerConfig):
  - RUNNER_MODE: direct (in-process) or api (default: direct)
  - RUNNER_INTERVAL: Seconds between polls (default: 60)
  - RUNNER_MAX_SCHEDULES: Due schedules claimed per tick (default: 10)
  - RUNNER_DRAIN_MODE: Tick again immediately while batches stay full
    (default: false)
  - RUNNER_DRAIN_MAX_BATCHES: Bound on consecutive drain batches (default: 20)
  - BACKUP_API_URL: API base URL for api mode (default: http://localhost:8080)

Security (SecurityConfig):
  - AUTH_MODE: none or jwt (default: none)
  - JWT_SECRET: HS256 signing secret, 32+ chars (required for jwt mode)
  - SESSION_TIMEOUT: JWT lifetime (default: 24h)
  - ADMIN_API_KEY: Key for the X-Admin-Key automation header
  - MASTER_ENCRYPTION_KEY: Key protecting stored credentials; without it
    mutations carrying secrets and encrypted backups are refused
  - RATE_LIMIT_REQS / RATE_LIMIT_WINDOW / DISABLE_RATE_LIMIT
  - CORS_ORIGINS / TRUSTED_PROXIES: Comma-separated lists

Notifications:
  - TELEGRAM_BOT_TOKEN: Telegram Bot API token
  - SMTP_HOST / SMTP_PORT / SMTP_USER / SMTP_PASSWORD / SMTP_FROM
  - SMTP_USE_TLS (STARTTLS, default true), SMTP_USE_SSL (implicit TLS,
    default true when port is 465)
  - SMTP_ALLOW_INSECURE_CERTS / SMTP_CA_CERT_FILE

Logging (LoggingConfig):
  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json, console (default: json)
  - LOG_CALLER: Include caller file:line (default: false)
  - LOG_DIR / LOG_FILENAME: Optional append-only log file

# Secret Files

Every secret honors a *_FILE variant for Docker and Kubernetes secret
mounts: MASTER_ENCRYPTION_KEY_FILE, ADMIN_API_KEY_FILE, JWT_SECRET_FILE,
TELEGRAM_BOT_TOKEN_FILE, SMTP_PASSWORD_FILE. The plain variable always wins;
the file is read only when the value is still empty after all config layers,
with surrounding whitespace trimmed.

# Usage Example

Basic configuration loading:

	import "github.com/tomtom215/custodia/internal/config"

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
	    log.Fatalf("Failed to load config: %v", err)
	}

	// Access configuration values
	fmt.Printf("Starting server on %s\n", cfg.Server.ListenAddr())
	fmt.Printf("Catalog: %s\n", cfg.Database.ResolvedPath())
	fmt.Printf("Artifacts: %s\n", cfg.Backup.Dir)

Testing with custom configuration:

	// Override environment variables for testing
	os.Setenv("PORT", "8080")
	os.Setenv("BACKUP_DIR", t.TempDir())
	os.Setenv("MASTER_ENCRYPTION_KEY", "test-master-key-32-bytes-minimum!")

	cfg, err := config.Load()
	// Use cfg for testing

# Validation

The package performs comprehensive validation:

  - Numeric ranges: PORT (1-65535), RUNNER_INTERVAL (1-86400s),
    RUNNER_MAX_SCHEDULES (1-1000)
  - String length: JWT_SECRET >=32 chars, MASTER_ENCRYPTION_KEY >=16 chars
  - Placeholder detection: secrets containing CHANGEME, TODO, etc. are rejected
  - URL formats: BACKUP_API_URL must be a base HTTP(S) URL in api mode
  - Wildcard CORS with authentication is rejected in production

# Secret-at-Rest Encryption

CredentialEncryptor (encryption.go) derives an AES-256-GCM key from
MASTER_ENCRYPTION_KEY via HKDF-SHA256 and encrypts the secrets blob stored
with each target and destination. See EncryptSecrets and DecryptSecrets.

# Docker Deployment

For Docker deployments, use environment variables or docker-compose.yml:

	services:
	  custodia:
	    image: ghcr.io/tomtom215/custodia:latest
	    environment:
	      MASTER_ENCRYPTION_KEY: ${MASTER_ENCRYPTION_KEY}
	      ADMIN_API_KEY: ${ADMIN_API_KEY}
	      RUNNER_MODE: direct
	    volumes:
	      - ./data:/app/data
	      - ./backups:/app/backups
	    ports:
	      - "8080:8080"

# Thread Safety

The Config struct is immutable after Load() returns, making it safe for concurrent
access from multiple goroutines without synchronization.

# See Also

  - internal/store: Uses CredentialEncryptor for the secrets blob
  - internal/backup: Consumes RunnerConfig for the scheduler loop
  - cmd/custodia-runner: Consumes RunnerConfig in api mode
*/
package config
