// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func unmarshalPolicy(t *testing.T, doc string) RetentionPolicy {
	t.Helper()
	var p RetentionPolicy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("unmarshal %q: %v", doc, err)
	}
	return p
}

func TestDefaultRetentionPolicy(t *testing.T) {
	p := DefaultRetentionPolicy()
	if p.Mode != RetentionLastN || p.KeepLast != 10 {
		t.Errorf("DefaultRetentionPolicy() = %+v, want last_n keep 10", p)
	}
}

func TestRetentionPolicyUnmarshalCanonical(t *testing.T) {
	t.Run("empty document gets defaults", func(t *testing.T) {
		p := unmarshalPolicy(t, `{}`)
		if p.Mode != RetentionLastN {
			t.Errorf("Mode = %q, want last_n", p.Mode)
		}
		if p.KeepLast != 10 {
			t.Errorf("KeepLast = %d, want 10", p.KeepLast)
		}
	})

	t.Run("keep_last defaults to ten for any mode", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"mode":"max_age_days","max_age_days":14}`)
		if p.Mode != RetentionMaxAgeDays || p.MaxAgeDays != 14 {
			t.Errorf("policy = %+v, want max_age_days 14", p)
		}
		if p.KeepLast != 10 {
			t.Errorf("KeepLast = %d, want default 10", p.KeepLast)
		}
	})

	t.Run("explicit zero keep_last is preserved", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"mode":"last_n","keep_last":0}`)
		if p.KeepLast != 0 {
			t.Errorf("KeepLast = %d, want explicit 0", p.KeepLast)
		}
	})

	t.Run("smart with profile and bounds", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"mode":"smart","keep_last":2,"profile":"high","min_backups":3,"max_backups":40}`)
		if p.Mode != RetentionSmart || p.KeepLast != 2 || p.Profile != ProfileHigh {
			t.Errorf("policy = %+v, want smart keep 2 profile high", p)
		}
		if p.MinBackups != 3 || p.MaxBackups != 40 {
			t.Errorf("bounds = (%d, %d), want (3, 40)", p.MinBackups, p.MaxBackups)
		}
	})

	t.Run("explicit tiers", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"mode":"smart","daily":5,"weekly":2}`)
		if p.Daily == nil || *p.Daily != 5 {
			t.Errorf("Daily = %v, want 5", p.Daily)
		}
		if p.Weekly == nil || *p.Weekly != 2 {
			t.Errorf("Weekly = %v, want 2", p.Weekly)
		}
		if p.Monthly != nil || p.Yearly != nil {
			t.Errorf("unset tiers = (%v, %v), want nil", p.Monthly, p.Yearly)
		}
	})
}

func TestRetentionPolicyUnmarshalLegacyShapes(t *testing.T) {
	t.Run("nested smart document", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"smart":{"daily":7,"weekly":4,"monthly":12,"yearly":3}}`)
		if p.Mode != RetentionSmart {
			t.Errorf("Mode = %q, want smart", p.Mode)
		}
		if p.KeepLast != 1 {
			t.Errorf("KeepLast = %d, want 1", p.KeepLast)
		}
		for name, tier := range map[string]*int{"daily": p.Daily, "weekly": p.Weekly, "monthly": p.Monthly, "yearly": p.Yearly} {
			if tier == nil {
				t.Errorf("%s tier is nil", name)
			}
		}
		if p.Daily != nil && *p.Daily != 7 {
			t.Errorf("Daily = %d, want 7", *p.Daily)
		}
		if p.Yearly != nil && *p.Yearly != 3 {
			t.Errorf("Yearly = %d, want 3", *p.Yearly)
		}
	})

	t.Run("nested smart with partial tiers", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"smart":{"daily":3}}`)
		if p.Mode != RetentionSmart || p.Daily == nil || *p.Daily != 3 {
			t.Errorf("policy = %+v, want smart with daily 3", p)
		}
		if p.Weekly != nil || p.Monthly != nil || p.Yearly != nil {
			t.Error("unset nested tiers should stay nil")
		}
	})

	t.Run("max_count becomes last_n", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"max_count":5}`)
		if p.Mode != RetentionLastN || p.KeepLast != 5 {
			t.Errorf("policy = %+v, want last_n keep 5", p)
		}
	})

	t.Run("max_count zero keeps nothing", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"max_count":0}`)
		if p.Mode != RetentionLastN || p.KeepLast != 0 {
			t.Errorf("policy = %+v, want last_n keep 0", p)
		}
	})

	t.Run("max_days becomes max_age_days", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"max_days":30}`)
		if p.Mode != RetentionMaxAgeDays || p.MaxAgeDays != 30 {
			t.Errorf("policy = %+v, want max_age_days 30", p)
		}
		if p.KeepLast != 1 {
			t.Errorf("KeepLast = %d, want 1", p.KeepLast)
		}
	})

	t.Run("max_size_mb becomes max_size in bytes", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"max_size_mb":512}`)
		if p.Mode != RetentionMaxSize {
			t.Errorf("Mode = %q, want max_size", p.Mode)
		}
		if want := int64(512) * 1024 * 1024; p.MaxSizeBytes != want {
			t.Errorf("MaxSizeBytes = %d, want %d", p.MaxSizeBytes, want)
		}
		if p.KeepLast != 1 {
			t.Errorf("KeepLast = %d, want 1", p.KeepLast)
		}
	})

	t.Run("legacy shape replaces canonical sweep fields", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"max_count":3,"profile":"high","daily":9,"max_age_days":99,"min_backups":2,"max_backups":50}`)
		if p.Mode != RetentionLastN || p.KeepLast != 3 {
			t.Errorf("policy = %+v, want last_n keep 3", p)
		}
		if p.Profile != "" || p.Daily != nil || p.MaxAgeDays != 0 {
			t.Errorf("sweep fields survived legacy fold: %+v", p)
		}
		if p.MinBackups != 0 || p.MaxBackups != 0 {
			t.Errorf("bounds survived legacy fold: (%d, %d)", p.MinBackups, p.MaxBackups)
		}
	})

	t.Run("nested smart wins over other legacy keys", func(t *testing.T) {
		p := unmarshalPolicy(t, `{"smart":{"daily":1},"max_count":9}`)
		if p.Mode != RetentionSmart {
			t.Errorf("Mode = %q, want smart", p.Mode)
		}
	})
}

func TestRetentionPolicyUnmarshalKeepsScheduleFields(t *testing.T) {
	doc := `{
		"max_days": 7,
		"run_at_time": "22:15",
		"encrypt": true,
		"encrypt_password_encrypted": "enc:v1:abc",
		"notifications": {"telegram": {"enabled": true, "chat_id": "42"}}
	}`
	p := unmarshalPolicy(t, doc)

	if p.Mode != RetentionMaxAgeDays || p.MaxAgeDays != 7 {
		t.Errorf("policy = %+v, want max_age_days 7", p)
	}
	if p.RunAtTime != "22:15" {
		t.Errorf("RunAtTime = %q, want 22:15", p.RunAtTime)
	}
	if !p.Encrypt || p.EncryptPasswordEncrypted != "enc:v1:abc" {
		t.Errorf("encryption fields = (%v, %q), want (true, enc:v1:abc)", p.Encrypt, p.EncryptPasswordEncrypted)
	}
	if p.Notifications == nil || p.Notifications.Telegram == nil || !p.Notifications.Telegram.Enabled {
		t.Errorf("Notifications = %+v, want enabled telegram channel", p.Notifications)
	}
	if p.Notifications != nil && p.Notifications.Telegram != nil && p.Notifications.Telegram.ChatID != "42" {
		t.Errorf("ChatID = %q, want 42", p.Notifications.Telegram.ChatID)
	}
}

func TestRetentionPolicyRoundTrip(t *testing.T) {
	in := RetentionPolicy{
		Mode:      RetentionSmart,
		KeepLast:  2,
		Profile:   ProfileMedium,
		RunAtTime: "03:30",
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out RetentionPolicy
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Mode != in.Mode || out.KeepLast != in.KeepLast || out.Profile != in.Profile || out.RunAtTime != in.RunAtTime {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
