// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package metrics

import (
	"context"
	"time"

	"github.com/tomtom215/custodia/internal/events"
)

// RunEventHandler is the event-bus consumer that folds terminal runs into
// the run metrics. Attach it with bus.Subscribe("metrics", RunEventHandler).
func RunEventHandler(_ context.Context, ev events.RunCompletedEvent) error {
	RecordRun(ev.Type, ev.Status, time.Duration(ev.DurationSeconds*float64(time.Second)), ev.BytesUploaded, ev.Encrypted)
	return nil
}
