// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package backup

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/tomtom215/custodia/internal/models"
)

// smartProfile holds the tier defaults supplied by a named smart profile.
type smartProfile struct {
	daily   int
	weekly  int
	monthly int
	yearly  int
}

var smartProfiles = map[string]smartProfile{
	models.ProfileLow:    {daily: 1, weekly: 1, monthly: 3, yearly: 1},
	models.ProfileMedium: {daily: 7, weekly: 4, monthly: 12, yearly: 3},
	models.ProfileHigh:   {daily: 14, weekly: 8, monthly: 24, yearly: 5},
}

// PlanRetention partitions stored backups into disjoint (keep, delete) lists
// according to the retention policy. It is pure: no provider calls, no clock
// reads beyond the supplied now. Both returned lists are ordered oldest
// first; ties on created_at break on id ascending.
func PlanRetention(backups []models.StoredBackup, policy models.RetentionPolicy, now time.Time) (keep, del []models.StoredBackup) {
	if len(backups) == 0 {
		return nil, nil
	}

	sorted := make([]models.StoredBackup, len(backups))
	copy(sorted, backups)
	sortBackupsByAge(sorted)

	switch policy.Mode {
	case models.RetentionLastN:
		keep, del = planLastN(sorted, policy)
	case models.RetentionMaxAgeDays:
		keep, del = planMaxAge(sorted, policy, now)
	case models.RetentionMaxSize:
		keep, del = planMaxSize(sorted, policy)
	default:
		// Smart mode, which is also the fallback for unknown modes: with
		// no tiers configured only the keep_last protection survives.
		keep, del = planSmart(sorted, policy, now)
	}

	return applyBounds(keep, del, policy)
}

// planLastN keeps the newest keep_last artifacts.
func planLastN(oldestFirst []models.StoredBackup, policy models.RetentionPolicy) (keep, del []models.StoredBackup) {
	keepLast := clampNonNegative(policy.KeepLast)
	if keepLast >= len(oldestFirst) {
		return oldestFirst, nil
	}
	cut := len(oldestFirst) - keepLast
	return oldestFirst[cut:], oldestFirst[:cut]
}

// planMaxAge deletes artifacts older than max_age_days while always
// preserving the newest keep_last.
func planMaxAge(oldestFirst []models.StoredBackup, policy models.RetentionPolicy, now time.Time) (keep, del []models.StoredBackup) {
	if policy.MaxAgeDays <= 0 {
		return oldestFirst, nil
	}

	keepSet := make(map[string]bool)
	addNewestToKeepSet(keepSet, oldestFirst, policy.KeepLast)

	cutoff := now.Add(-time.Duration(policy.MaxAgeDays) * 24 * time.Hour)
	for _, b := range oldestFirst {
		if !b.CreatedAt.Before(cutoff) {
			keepSet[b.ID] = true
		}
	}

	return partitionByKeepSet(oldestFirst, keepSet)
}

// planMaxSize keeps the newest keep_last unconditionally, then admits
// further artifacts newest first while the running total stays within the
// byte budget. The protected set counts against the budget.
func planMaxSize(oldestFirst []models.StoredBackup, policy models.RetentionPolicy) (keep, del []models.StoredBackup) {
	if policy.MaxSizeBytes <= 0 {
		return oldestFirst, nil
	}

	newest := newestFirst(oldestFirst)
	keepLast := clampNonNegative(policy.KeepLast)
	if keepLast > len(newest) {
		keepLast = len(newest)
	}

	keepSet := make(map[string]bool, keepLast)
	var total int64
	for _, b := range newest[:keepLast] {
		keepSet[b.ID] = true
		total += b.Size
	}
	for _, b := range newest[keepLast:] {
		if total+b.Size <= policy.MaxSizeBytes {
			keepSet[b.ID] = true
			total += b.Size
		}
	}

	return partitionByKeepSet(oldestFirst, keepSet)
}

// planSmart applies tiered calendar-bucket retention. Within each tier the
// newest artifact per bucket survives, up to the tier's window. An artifact
// inside the daily window competes only for its daily bucket; losing the
// bucket means deletion, not demotion to the weekly tier.
func planSmart(oldestFirst []models.StoredBackup, policy models.RetentionPolicy, now time.Time) (keep, del []models.StoredBackup) {
	eff := applyProfile(policy)
	newest := newestFirst(oldestFirst)

	keepLast := clampNonNegative(eff.KeepLast)
	keepIdx := make(map[int]bool)
	for i := 0; i < keepLast && i < len(newest); i++ {
		keepIdx[i] = true
	}

	now = now.UTC()
	nowISOYear, nowISOWeek := now.ISOWeek()

	dailySeen := make(map[string]bool)
	weeklySeen := make(map[string]bool)
	monthlySeen := make(map[string]bool)
	yearlySeen := make(map[string]bool)

	for idx, b := range newest {
		if keepIdx[idx] {
			continue
		}

		created := b.CreatedAt.UTC()
		ageDays := calendarDaysBetween(created, now)

		if eff.Daily != nil && ageDays < *eff.Daily {
			key := dailyKey(created)
			if !dailySeen[key] {
				dailySeen[key] = true
				keepIdx[idx] = true
			}
			continue
		}

		if eff.Weekly != nil {
			isoYear, isoWeek := created.ISOWeek()
			weekDelta := (nowISOYear-isoYear)*52 + (nowISOWeek - isoWeek)
			if weekDelta >= 0 && weekDelta < *eff.Weekly {
				key := weeklyKey(created)
				if !weeklySeen[key] {
					weeklySeen[key] = true
					keepIdx[idx] = true
				}
				continue
			}
		}

		if eff.Monthly != nil {
			monthDelta := (now.Year()-created.Year())*12 + int(now.Month()) - int(created.Month())
			if monthDelta >= 0 && monthDelta < *eff.Monthly {
				key := monthlyKey(created)
				if !monthlySeen[key] {
					monthlySeen[key] = true
					keepIdx[idx] = true
				}
				continue
			}
		}

		if eff.Yearly != nil {
			yearDelta := now.Year() - created.Year()
			if yearDelta >= 0 && yearDelta < *eff.Yearly {
				key := yearlyKey(created)
				if !yearlySeen[key] {
					yearlySeen[key] = true
					keepIdx[idx] = true
				}
			}
		}
	}

	for idx, b := range newest {
		if keepIdx[idx] {
			keep = append(keep, b)
		} else {
			del = append(del, b)
		}
	}
	sortBackupsByAge(keep)
	sortBackupsByAge(del)
	return keep, del
}

// applyProfile resolves a smart policy's effective tiers. A named profile
// fills unset tiers; a smart policy with neither profile nor tiers gets the
// medium profile.
func applyProfile(policy models.RetentionPolicy) models.RetentionPolicy {
	if policy.Mode != models.RetentionSmart {
		return policy
	}

	profile := policy.Profile
	if profile == "" && !policy.HasTiers() {
		profile = models.ProfileMedium
	}
	defaults, ok := smartProfiles[profile]
	if !ok {
		return policy
	}

	eff := policy
	if eff.Daily == nil {
		eff.Daily = &defaults.daily
	}
	if eff.Weekly == nil {
		eff.Weekly = &defaults.weekly
	}
	if eff.Monthly == nil {
		eff.Monthly = &defaults.monthly
	}
	if eff.Yearly == nil {
		eff.Yearly = &defaults.yearly
	}
	return eff
}

// applyBounds clamps the keep list to max_backups by demoting the oldest
// keeps, then pads it to min_backups by promoting the newest deletes.
func applyBounds(keep, del []models.StoredBackup, policy models.RetentionPolicy) ([]models.StoredBackup, []models.StoredBackup) {
	if policy.MaxBackups > 0 && len(keep) > policy.MaxBackups {
		sortBackupsByAge(keep)
		overflow := len(keep) - policy.MaxBackups
		del = append(del, keep[:overflow]...)
		keep = keep[overflow:]
		sortBackupsByAge(del)
	}

	if policy.MinBackups > 0 && len(keep) < policy.MinBackups && len(del) > 0 {
		sortBackupsByAge(del)
		missing := policy.MinBackups - len(keep)
		if missing > len(del) {
			missing = len(del)
		}
		keep = append(keep, del[len(del)-missing:]...)
		del = del[:len(del)-missing]
		sortBackupsByAge(keep)
	}

	return keep, del
}

// addNewestToKeepSet protects the newest count artifacts.
func addNewestToKeepSet(keepSet map[string]bool, oldestFirst []models.StoredBackup, count int) {
	count = clampNonNegative(count)
	if count > len(oldestFirst) {
		count = len(oldestFirst)
	}
	for _, b := range oldestFirst[len(oldestFirst)-count:] {
		keepSet[b.ID] = true
	}
}

// partitionByKeepSet splits a sorted backup list into (keep, delete)
// preserving the input order.
func partitionByKeepSet(oldestFirst []models.StoredBackup, keepSet map[string]bool) (keep, del []models.StoredBackup) {
	for _, b := range oldestFirst {
		if keepSet[b.ID] {
			keep = append(keep, b)
		} else {
			del = append(del, b)
		}
	}
	return keep, del
}

// sortBackupsByAge sorts backups oldest first, ties on id ascending.
func sortBackupsByAge(backups []models.StoredBackup) {
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID < backups[j].ID
		}
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})
}

// newestFirst returns a copy in the exact reverse of sortBackupsByAge
// order, so "newest" means the same artifact in every mode when
// timestamps collide.
func newestFirst(oldestFirst []models.StoredBackup) []models.StoredBackup {
	out := make([]models.StoredBackup, len(oldestFirst))
	copy(out, oldestFirst)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// calendarDaysBetween counts whole calendar days from the created date to
// the reference date in UTC. Future dates yield negative counts.
func calendarDaysBetween(created, now time.Time) int {
	createdDate := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(nowDate.Sub(createdDate).Hours() / 24)
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func dailyKey(t time.Time) string   { return t.Format("2006-01-02") }
func monthlyKey(t time.Time) string { return t.Format("2006-01") }
func yearlyKey(t time.Time) string  { return strconv.Itoa(t.Year()) }

func weeklyKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}
