// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"regexp"
	"strings"
)

var (
	unsafeNameChars     = regexp.MustCompile(`[^\w-]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// SanitizeName folds a target name into a token safe for directory names,
// upload prefixes and filename fragments: every run of characters outside
// [A-Za-z0-9_-] becomes a single underscore, edge underscores are trimmed,
// and the result is lowercased.
func SanitizeName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	return strings.ToLower(strings.Trim(s, "_"))
}
