// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import (
	"strings"

	"github.com/goccy/go-json"
)

// Retention modes. Exactly one mode is active per policy; an empty mode
// means "no sweep".
const (
	RetentionLastN      = "last_n"
	RetentionMaxAgeDays = "max_age_days"
	RetentionMaxSize    = "max_size"
	RetentionSmart      = "smart"
)

// Smart-mode profile names.
const (
	ProfileLow    = "low"
	ProfileMedium = "medium"
	ProfileHigh   = "high"
)

// DefaultRunAtTime is the anchor used by daily schedules when
// retention.run_at_time is unset.
const DefaultRunAtTime = "03:30"

// RetentionPolicy is the embedded policy document on a schedule. Besides
// the sweep rules it carries the schedule-level encryption switch and the
// notification routing, because all three travel together in the original
// schema.
//
// Tier fields are pointers so the smart planner can distinguish "unset,
// apply profile default" from an explicit zero.
type RetentionPolicy struct {
	Mode         string `json:"mode,omitempty"`
	KeepLast     int    `json:"keep_last,omitempty"`
	MaxAgeDays   int    `json:"max_age_days,omitempty"`
	MaxSizeBytes int64  `json:"max_size_bytes,omitempty"`

	// Smart-mode tiers. A nil tier takes its value from Profile.
	Profile string `json:"profile,omitempty"`
	Daily   *int   `json:"daily,omitempty"`
	Weekly  *int   `json:"weekly,omitempty"`
	Monthly *int   `json:"monthly,omitempty"`
	Yearly  *int   `json:"yearly,omitempty"`

	// Bounds applied after the mode-specific partition.
	MaxBackups int `json:"max_backups,omitempty"`
	MinBackups int `json:"min_backups,omitempty"`

	// RunAtTime anchors daily and hourly schedules ("HH:MM", UTC).
	RunAtTime string `json:"run_at_time,omitempty" validate:"omitempty,runattime"`

	// Encrypt turns on envelope encryption for artifacts produced by the
	// schedule. The password is stored encrypted with the master key; the
	// inbound plaintext encrypt_password never persists.
	Encrypt                  bool   `json:"encrypt,omitempty"`
	EncryptPassword          string `json:"encrypt_password,omitempty"`
	EncryptPasswordEncrypted string `json:"encrypt_password_encrypted,omitempty"`

	Notifications *NotificationSettings `json:"notifications,omitempty"`
}

// HasTiers reports whether any smart tier was set explicitly.
func (p RetentionPolicy) HasTiers() bool {
	return p.Daily != nil || p.Weekly != nil || p.Monthly != nil || p.Yearly != nil
}

// Sanitized returns a copy with the encryption password material removed.
// API responses carry the sanitized form; the stored document keeps the
// encrypted token so the engine can decrypt artifacts.
func (p RetentionPolicy) Sanitized() RetentionPolicy {
	out := p
	out.EncryptPassword = ""
	out.EncryptPasswordEncrypted = ""
	return out
}

// DefaultRetentionPolicy is applied when a schedule carries no retention
// document: keep the newest ten artifacts.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{Mode: RetentionLastN, KeepLast: 10}
}

// legacySmartTiers is the nested smart shape older schedule documents used.
type legacySmartTiers struct {
	Daily   *int `json:"daily"`
	Weekly  *int `json:"weekly"`
	Monthly *int `json:"monthly"`
	Yearly  *int `json:"yearly"`
}

// UnmarshalJSON folds legacy retention shapes into the canonical policy.
// Older schedule documents stored `{"smart": {...}}`, `{"max_count": N}`,
// `{"max_days": N}` or `{"max_size_mb": N}`; the canonical shape uses mode
// plus mode-specific fields, with keep_last defaulting to 10 when absent.
// Schedule-level settings that ride in the same document (run_at_time,
// encrypt, notifications) survive every shape.
func (p *RetentionPolicy) UnmarshalJSON(data []byte) error {
	type Plain RetentionPolicy
	aux := struct {
		*Plain
		Mode      *string           `json:"mode"`
		KeepLast  *int              `json:"keep_last"`
		Smart     *legacySmartTiers `json:"smart"`
		MaxCount  *int              `json:"max_count"`
		MaxDays   *int              `json:"max_days"`
		MaxSizeMB *int64            `json:"max_size_mb"`
	}{Plain: (*Plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.Smart != nil:
		p.resetSweepFields()
		p.Mode = RetentionSmart
		p.KeepLast = 1
		p.Daily = aux.Smart.Daily
		p.Weekly = aux.Smart.Weekly
		p.Monthly = aux.Smart.Monthly
		p.Yearly = aux.Smart.Yearly
	case aux.MaxCount != nil:
		p.resetSweepFields()
		p.Mode = RetentionLastN
		p.KeepLast = *aux.MaxCount
	case aux.MaxDays != nil:
		p.resetSweepFields()
		p.Mode = RetentionMaxAgeDays
		p.KeepLast = 1
		p.MaxAgeDays = *aux.MaxDays
	case aux.MaxSizeMB != nil:
		p.resetSweepFields()
		p.Mode = RetentionMaxSize
		p.KeepLast = 1
		p.MaxSizeBytes = *aux.MaxSizeMB * 1024 * 1024
	default:
		p.Mode = RetentionLastN
		if aux.Mode != nil {
			p.Mode = *aux.Mode
		}
		p.KeepLast = 10
		if aux.KeepLast != nil {
			p.KeepLast = *aux.KeepLast
		}
	}
	return nil
}

// resetSweepFields clears the mode-specific sweep fields before a legacy
// shape overrides them. A legacy document replaces the whole sweep policy.
func (p *RetentionPolicy) resetSweepFields() {
	p.Profile = ""
	p.Daily, p.Weekly, p.Monthly, p.Yearly = nil, nil, nil, nil
	p.MaxAgeDays, p.MaxSizeBytes = 0, 0
	p.MinBackups, p.MaxBackups = 0, 0
}

// NotificationSettings routes run outcomes to channels.
type NotificationSettings struct {
	Telegram *ChannelConfig `json:"telegram,omitempty"`
	Email    *ChannelConfig `json:"email,omitempty"`
}

// ChannelConfig configures one notification channel. It supports the
// multi-recipient shape and the legacy single-recipient shape with
// per-status flags; ExtractRecipients folds both into one list.
type ChannelConfig struct {
	Enabled      bool        `json:"enabled"`
	AttachBackup bool        `json:"attach_backup,omitempty"`
	Recipients   []Recipient `json:"recipients,omitempty"`

	// Legacy single-recipient fields.
	ChatID    string `json:"chat_id,omitempty"`
	To        string `json:"to,omitempty"`
	OnSuccess bool   `json:"on_success,omitempty"`
	OnWarning bool   `json:"on_warning,omitempty"`
	OnFailure bool   `json:"on_failure,omitempty"`
}

// Recipient is one notification recipient with its severity floor.
type Recipient struct {
	ChatID      string `json:"chat_id,omitempty"`
	To          string `json:"to,omitempty"`
	MinSeverity string `json:"min_severity,omitempty"`
}

// Severity labels ordered info < warning < error.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

var severityRank = map[string]int{
	SeverityInfo:    0,
	SeverityWarning: 1,
	SeverityError:   2,
}

// NormalizeMinSeverity folds an arbitrary severity value to a known label.
// Unknown or empty values default to "error" so misconfigured recipients
// only hear about failures.
func NormalizeMinSeverity(value string) string {
	label := strings.ToLower(strings.TrimSpace(value))
	if _, ok := severityRank[label]; ok {
		return label
	}
	return SeverityError
}

// StatusSeverity maps a run status to a severity label.
func StatusSeverity(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return SeverityInfo
	case "warning":
		return SeverityWarning
	default:
		return SeverityError
	}
}

// ShouldNotify reports whether a run status clears a recipient's
// minimum-severity floor.
func ShouldNotify(status, minSeverity string) bool {
	return severityRank[StatusSeverity(status)] >= severityRank[NormalizeMinSeverity(minSeverity)]
}

// legacyMinSeverity derives a severity floor from the legacy per-status
// flags. The most verbose enabled flag wins.
func legacyMinSeverity(c ChannelConfig) string {
	switch {
	case c.OnSuccess:
		return SeverityInfo
	case c.OnWarning:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// ExtractRecipients normalizes a channel configuration into a flat
// recipient list. The addr field is "chat_id" for Telegram and "to" for
// email. Legacy single-recipient configs yield at most one entry.
func (c *ChannelConfig) ExtractRecipients(telegram bool) []Recipient {
	if c == nil || !c.Enabled {
		return nil
	}

	if len(c.Recipients) > 0 {
		out := make([]Recipient, 0, len(c.Recipients))
		for _, r := range c.Recipients {
			addr := strings.TrimSpace(r.To)
			if telegram {
				addr = strings.TrimSpace(r.ChatID)
			}
			if addr == "" {
				continue
			}
			normalized := Recipient{MinSeverity: NormalizeMinSeverity(r.MinSeverity)}
			if telegram {
				normalized.ChatID = addr
			} else {
				normalized.To = addr
			}
			out = append(out, normalized)
		}
		return out
	}

	addr := strings.TrimSpace(c.To)
	if telegram {
		addr = strings.TrimSpace(c.ChatID)
	}
	if addr == "" {
		return nil
	}

	legacy := Recipient{MinSeverity: legacyMinSeverity(*c)}
	if telegram {
		legacy.ChatID = addr
	} else {
		legacy.To = addr
	}
	return []Recipient{legacy}
}
