// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/custodia/internal/models"
)

// secondsPerDay marks a schedule as daily; daily schedules anchor to a
// time-of-day instead of drifting.
const secondsPerDay = 86400

// ParseTimeOfDay parses an "HH:MM" string into its hour and minute.
func ParseTimeOfDay(value string) (hour, minute int, err error) {
	raw := strings.TrimSpace(value)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, models.ErrValidation.New("invalid time-of-day (expected HH:MM): %q", value)
	}

	hour, errH := strconv.Atoi(parts[0])
	minute, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil {
		return 0, 0, models.ErrValidation.New("invalid time-of-day (expected HH:MM): %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, models.ErrValidation.New("invalid time-of-day (out of range): %q", value)
	}
	return hour, minute, nil
}

// NextAnchoredRunAt computes the next fire time for an interval schedule
// anchored to a UTC time-of-day. The anchor fixes the phase: a 12-hour
// schedule anchored at 03:30 fires at 03:30 and 15:30, a 6-hour one at
// 03:30, 09:30, 15:30 and 21:30. The result is strictly after reference.
func NextAnchoredRunAt(reference time.Time, intervalSeconds int, runAtTime string) (time.Time, error) {
	if intervalSeconds <= 0 {
		return time.Time{}, models.ErrValidation.New("invalid interval_seconds: %d", intervalSeconds)
	}
	hour, minute, err := ParseTimeOfDay(runAtTime)
	if err != nil {
		return time.Time{}, err
	}

	ref := reference.UTC()
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC)
	if !candidate.After(ref) {
		interval := time.Duration(intervalSeconds) * time.Second
		steps := int64(ref.Sub(candidate)/interval) + 1
		candidate = candidate.Add(time.Duration(steps) * interval)
	}
	return candidate, nil
}

// NextRunAt computes the next fire time for a schedule after the reference
// instant, normally the finish time of the run that just completed.
//
// Daily schedules anchor to retention.run_at_time (default 03:30 UTC).
// Hourly-or-longer schedules with an explicit run_at_time anchor to it.
// Everything else drifts: reference plus the interval.
func NextRunAt(reference time.Time, intervalSeconds int, policy models.RetentionPolicy) (time.Time, error) {
	if intervalSeconds <= 0 {
		return time.Time{}, models.ErrValidation.New("invalid interval_seconds: %d", intervalSeconds)
	}

	if intervalSeconds == secondsPerDay {
		return NextAnchoredRunAt(reference, intervalSeconds, runAtTimeOrDefault(policy, models.DefaultRunAtTime))
	}

	if runAt := runAtTimeOrDefault(policy, ""); runAt != "" && intervalSeconds >= 3600 {
		return NextAnchoredRunAt(reference, intervalSeconds, runAt)
	}

	return reference.UTC().Add(time.Duration(intervalSeconds) * time.Second), nil
}

// InitialNextRunAt computes next_run_at for a newly created or re-enabled
// schedule. Anchored schedules wait for their next slot; everything else
// fires promptly. Disabled schedules have no next run.
func InitialNextRunAt(now time.Time, enabled bool, intervalSeconds int, policy models.RetentionPolicy) (*time.Time, error) {
	if !enabled {
		return nil, nil
	}
	if intervalSeconds <= 0 {
		return nil, models.ErrValidation.New("invalid interval_seconds: %d", intervalSeconds)
	}

	anchored := intervalSeconds == secondsPerDay ||
		(runAtTimeOrDefault(policy, "") != "" && intervalSeconds >= 3600)
	if anchored {
		next, err := NextRunAt(now, intervalSeconds, policy)
		if err != nil {
			return nil, err
		}
		return &next, nil
	}

	prompt := now.UTC()
	return &prompt, nil
}

func runAtTimeOrDefault(policy models.RetentionPolicy, def string) string {
	if v := strings.TrimSpace(policy.RunAtTime); v != "" {
		return v
	}
	return def
}
