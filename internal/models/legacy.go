// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Rows written by earlier schema generations carry dual-name config keys
// (db_host/host, db_user/user, db_name/database, neo4j_url/host,
// base_path/path). These parsers fold the legacy names into the canonical
// structs when rows are loaded; new writes only produce canonical keys.

// ParseTargetConfig decodes a stored target config JSON document,
// migrating legacy key names. An empty document yields a zero config.
func ParseTargetConfig(raw []byte) (TargetConfig, error) {
	var cfg TargetConfig
	if len(raw) == 0 {
		return cfg, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return cfg, err
	}

	cfg.Host = firstString(m, "host", "db_host", "neo4j_url")
	cfg.Port = firstInt(m, "port", "db_port")
	cfg.Database = firstString(m, "database", "db_name")
	cfg.User = firstString(m, "user", "db_user")
	cfg.Path = firstString(m, "path")

	return cfg, nil
}

// ParseDestinationConfig decodes a stored destination config JSON
// document, migrating legacy key names.
func ParseDestinationConfig(raw []byte) (DestinationConfig, error) {
	var cfg DestinationConfig
	if len(raw) == 0 {
		return cfg, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return cfg, err
	}

	cfg.Path = firstString(m, "path", "base_path")
	cfg.Host = firstString(m, "host")
	cfg.Port = firstInt(m, "port")
	cfg.Username = firstString(m, "username", "user")
	cfg.FolderID = firstString(m, "folder_id")

	return cfg, nil
}

// firstString returns the first non-empty string value among the keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// firstInt returns the first usable integer among the keys. JSON numbers
// decode as float64; legacy rows occasionally stored ports as strings.
func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n != 0 {
				return int(n)
			}
		case int:
			if n != 0 {
				return n
			}
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && parsed != 0 {
				return parsed
			}
		}
	}
	return 0
}
