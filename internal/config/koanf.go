// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the locations searched for a YAML config file,
// in order. The CONFIG_PATH environment variable takes precedence.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/custodia/config.yaml",
	"/etc/custodia/config.yml",
	"/config/config.yaml",
}

// ConfigPathEnvVar is the environment variable that overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. These are the values a bare
// `docker run custodia` starts with: API on :8080, catalog and artifacts
// under /app, in-process runner polling every minute, no auth, no
// notification channels.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			Environment: "",
		},
		Database: DatabaseConfig{
			DataDir:     "/app/data",
			Path:        "",
			BusyTimeout: 5 * time.Second,
		},
		Backup: BackupConfig{
			Dir: "/app/backups",
		},
		Runner: RunnerConfig{
			Mode:            "direct",
			IntervalSeconds: 60,
			MaxSchedules:    10,
			DrainMode:       false,
			DrainMaxBatches: 20,
			APIURL:          "http://localhost:8080",
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Security: SecurityConfig{
			AuthMode:          "none",
			SessionTimeout:    24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			TrustedProxies:    []string{},
		},
		Telegram: TelegramConfig{},
		SMTP: SMTPConfig{
			Port:   587,
			UseTLS: true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Caller:   false,
			Filename: "custodia.log",
		},
	}
}

// LoadWithKoanf loads configuration using the Koanf v2 library with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
//   - *_FILE secret indirection applied after all layers
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// BACKUP_DIR -> backup.dir
	// RUNNER_MAX_SCHEDULES -> runner.max_schedules
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Secrets mounted as files (Docker/Kubernetes secrets) fill any value
	// still empty after the three layers.
	applyFileSecrets(cfg)

	// Port 465 is the implicit-TLS submission port. Only applied when no
	// layer set use_ssl explicitly, so SMTP_USE_SSL=false stays honored.
	if !k.Exists("smtp.use_ssl") && cfg.SMTP.Port == 465 {
		cfg.SMTP.UseSSL = true
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFileSecrets fills empty secret fields from their *_FILE environment
// variables. Runs after all koanf layers; a secret set through any layer
// wins over the file.
func applyFileSecrets(cfg *Config) {
	fileSecrets := []struct {
		envVar string
		dst    *string
	}{
		{"MASTER_ENCRYPTION_KEY", &cfg.Security.MasterEncryptionKey},
		{"ADMIN_API_KEY", &cfg.Security.AdminAPIKey},
		{"JWT_SECRET", &cfg.Security.JWTSecret},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"SMTP_PASSWORD", &cfg.SMTP.Password},
	}

	for _, s := range fileSecrets {
		if *s.dst != "" {
			continue
		}
		if v := readSecretFile(os.Getenv(s.envVar + "_FILE")); v != "" {
			*s.dst = v
		}
	}
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Only variables in the mapping table are honored; everything else is
// dropped so random environment variables cannot pollute the config.
//
// Examples:
//   - PORT -> server.port
//   - BACKUP_DIR -> backup.dir
//   - RUNNER_MAX_SCHEDULES -> runner.max_schedules
//   - SMTP_USE_TLS -> smtp.use_tls
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"host":         "server.host",
		"port":         "server.port",
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Catalog database mappings
		"data_dir":              "database.data_dir",
		"database_path":         "database.path",
		"database_busy_timeout": "database.busy_timeout",

		// Backup staging mappings
		"backup_dir": "backup.dir",

		// Runner mappings
		"runner_mode":              "runner.mode",
		"runner_interval":          "runner.interval_seconds",
		"runner_max_schedules":     "runner.max_schedules",
		"runner_drain_mode":        "runner.drain_mode",
		"runner_drain_max_batches": "runner.drain_max_batches",
		"backup_api_url":           "runner.api_url",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Security mappings
		"auth_mode":             "security.auth_mode",
		"jwt_secret":            "security.jwt_secret",
		"session_timeout":       "security.session_timeout",
		"admin_api_key":         "security.admin_api_key",
		"master_encryption_key": "security.master_encryption_key",
		"rate_limit_reqs":       "security.rate_limit_reqs",
		"rate_limit_requests":   "security.rate_limit_reqs",
		"rate_limit_window":     "security.rate_limit_window",
		"disable_rate_limit":    "security.rate_limit_disabled",
		"cors_origins":          "security.cors_origins",
		"trusted_proxies":       "security.trusted_proxies",

		// Telegram mappings
		"telegram_bot_token": "telegram.bot_token",

		// SMTP mappings
		"smtp_host":                 "smtp.host",
		"smtp_port":                 "smtp.port",
		"smtp_user":                 "smtp.username",
		"smtp_password":             "smtp.password",
		"smtp_from":                 "smtp.from",
		"smtp_use_tls":              "smtp.use_tls",
		"smtp_use_ssl":              "smtp.use_ssl",
		"smtp_allow_insecure_certs": "smtp.allow_insecure_certs",
		"smtp_ca_cert_file":         "smtp.ca_cert_file",

		// Logging mappings
		"log_level":    "logging.level",
		"log_format":   "logging.format",
		"log_caller":   "logging.caller",
		"log_dir":      "logging.dir",
		"log_filename": "logging.filename",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage.
// This is useful for:
//   - Hot-reload scenarios (with proper mutex protection)
//   - Custom configuration sources
//   - Testing with mock configurations
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// Note: The caller is responsible for mutex protection when accessing
// configuration during reloads.
//
// Example usage:
//
//	var cfgMu sync.RWMutex
//	var cfg *Config
//
//	err := WatchConfigFile(configPath, func() {
//	    cfgMu.Lock()
//	    defer cfgMu.Unlock()
//	    newCfg, err := LoadWithKoanf()
//	    if err != nil {
//	        log.Printf("Config reload failed: %v", err)
//	        return
//	    }
//	    cfg = newCfg
//	    log.Println("Configuration reloaded successfully")
//	})
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	// Start watching the file for changes
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
