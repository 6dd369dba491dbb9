// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLogger provides specialized logging for the run-event bus.
// Watermill handlers reacting to completed backup and restore runs use
// these domain-specific methods instead of assembling fields by hand.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a logger configured for event processing.
func NewEventLogger() *EventLogger {
	return &EventLogger{
		logger: With().Str("component", "events").Logger(),
	}
}

// NewEventLoggerWithLogger creates an EventLogger with a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewEventLoggerWithLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// WithFields returns a new EventLogger with additional default fields.
func (e *EventLogger) WithFields(fields map[string]interface{}) *EventLogger {
	ctx := e.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &EventLogger{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (e *EventLogger) Debug(msg string, fields ...interface{}) {
	event := e.logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Info logs an info message.
func (e *EventLogger) Info(msg string, fields ...interface{}) {
	event := e.logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Warn logs a warning message.
func (e *EventLogger) Warn(msg string, fields ...interface{}) {
	event := e.logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Error logs an error message.
func (e *EventLogger) Error(msg string, fields ...interface{}) {
	event := e.logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// InfoContext logs an info message with context (for correlation ID).
func (e *EventLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// WarnContext logs a warning message with context.
func (e *EventLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// ErrorContext logs an error message with context.
func (e *EventLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// loggerWithContext returns a logger with context fields added.
func (e *EventLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := e.logger.With()

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}

	return logCtx.Logger()
}

// ============================================================
// Domain-Specific Event Logging Methods
// ============================================================

// LogRunPublished logs when a completed run is published to the bus.
func (e *EventLogger) LogRunPublished(ctx context.Context, runID, status, topic string) {
	e.InfoContext(ctx, "run event published",
		"run_id", runID,
		"status", status,
		"topic", topic,
	)
}

// LogRunHandled logs when a handler finishes processing a run event.
func (e *EventLogger) LogRunHandled(ctx context.Context, runID, handler string, durationMs int64) {
	e.InfoContext(ctx, "run event handled",
		"run_id", runID,
		"handler", handler,
		"duration_ms", durationMs,
	)
}

// LogHandlerFailed logs when a handler fails on a run event.
func (e *EventLogger) LogHandlerFailed(ctx context.Context, runID, handler string, err error) {
	logger := e.loggerWithContext(ctx)
	logger.Error().
		Str("run_id", runID).
		Str("handler", handler).
		Err(err).
		Msg("run event handler failed")
}

// LogNotificationSent logs a delivered notification.
func (e *EventLogger) LogNotificationSent(ctx context.Context, runID, channel, recipient string) {
	e.InfoContext(ctx, "notification sent",
		"run_id", runID,
		"channel", channel,
		"recipient", SanitizeValue("recipient", recipient),
	)
}

// LogNotificationFailed logs a failed notification attempt.
func (e *EventLogger) LogNotificationFailed(ctx context.Context, runID, channel string, err error) {
	logger := e.loggerWithContext(ctx)
	logger.Warn().
		Str("run_id", runID).
		Str("channel", channel).
		Err(err).
		Msg("notification failed")
}

// LogSubscriptionStarted logs when a subscription is started.
func (e *EventLogger) LogSubscriptionStarted(topic, handler string) {
	e.Info("subscription started",
		"topic", topic,
		"handler", handler,
	)
}

// LogSubscriptionStopped logs when a subscription is stopped.
func (e *EventLogger) LogSubscriptionStopped(topic string) {
	e.Info("subscription stopped",
		"topic", topic,
	)
}
