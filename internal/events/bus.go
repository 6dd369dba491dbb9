// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package events carries terminal-run events from the backup engine to
// out-of-band consumers over an in-process Watermill pub/sub. The engine
// publishes fire-and-forget; consumers (metrics, future webhooks) attach as
// router handlers with panic recovery and retry, so a broken consumer never
// touches a backup run.
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// TopicRunCompleted carries one event per terminal backup or restore run.
const TopicRunCompleted = "runs.completed"

// RunCompletedEvent is the wire shape published on TopicRunCompleted.
type RunCompletedEvent struct {
	RunID           string    `json:"run_id"`
	ScheduleID      string    `json:"schedule_id,omitempty"`
	Type            string    `json:"type"` // scheduled | immediate | restore
	Status          string    `json:"status"`
	TargetName      string    `json:"target_name,omitempty"`
	Encrypted       bool      `json:"encrypted,omitempty"`
	Destinations    int       `json:"destinations"`
	BytesUploaded   int64     `json:"bytes_uploaded"`
	DurationSeconds float64   `json:"duration_seconds"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Bus is the in-process event fabric. It implements the engine's EventSink.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger watermill.LoggerAdapter
}

// NewBus builds the pub/sub and its consumer router. Handlers attach via
// Subscribe before Serve starts the router.
func NewBus() (*Bus, error) {
	logger := newWatermillLogger()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

// RunCompleted publishes a terminal run. It never blocks the caller and
// never returns delivery problems to the pipeline; failures are logged.
func (b *Bus) RunCompleted(run *models.Run) {
	ev := RunCompletedEvent{
		RunID:      run.ID,
		Type:       run.Details.Type,
		Status:     string(run.Status),
		TargetName: run.Details.TargetName,
		Encrypted:  run.Details.Encrypted,
	}
	if run.ScheduleID != nil {
		ev.ScheduleID = *run.ScheduleID
	}
	ev.Destinations = len(run.Details.Uploads)
	for _, up := range run.Details.Uploads {
		ev.BytesUploaded += up.Size
	}
	if run.FinishedAt != nil {
		ev.FinishedAt = *run.FinishedAt
		ev.DurationSeconds = run.FinishedAt.Sub(run.StartedAt).Seconds()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to marshal run event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("run_id", run.ID)
	msg.Metadata.Set("status", string(run.Status))

	if err := b.pubsub.Publish(TopicRunCompleted, msg); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to publish run event")
	}
}

// Subscribe attaches a named consumer to the run-completed topic. It must be
// called before Serve.
func (b *Bus) Subscribe(name string, handler func(context.Context, RunCompletedEvent) error) {
	b.router.AddConsumerHandler(name, TopicRunCompleted, b.pubsub, func(msg *message.Message) error {
		var ev RunCompletedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			// Undecodable payloads are dropped, not retried.
			logging.Warn().Err(err).Str("handler", name).Msg("Dropping undecodable run event")
			return nil
		}
		return handler(msg.Context(), ev)
	})
}

// Serve implements suture.Service: it runs the consumer router until the
// context is canceled.
func (b *Bus) Serve(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running returns a channel that closes once the router is consuming.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bus) String() string { return "events-bus" }
