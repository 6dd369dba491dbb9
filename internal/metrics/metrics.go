// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Backup and restore run outcomes and durations
// - Upload volume per destination type
// - Retention sweep deletions
// - Operation lock contention
// - Notification delivery
// - API endpoint latency and throughput

var (
	// Run Metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_runs_total",
			Help: "Total number of terminal backup and restore runs",
		},
		[]string{"type", "status"}, // type: scheduled|immediate|restore
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodia_run_duration_seconds",
			Help:    "Duration of backup and restore runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"type"},
	)

	RunBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_run_bytes_uploaded_total",
			Help: "Total bytes uploaded to destinations by backup runs",
		},
	)

	RunsEncrypted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_runs_encrypted_total",
			Help: "Total number of runs that produced an encrypted artifact",
		},
	)

	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custodia_last_successful_run_timestamp",
			Help: "Unix timestamp of the last successful backup run",
		},
	)

	// Upload Metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_uploads_total",
			Help: "Total number of destination uploads",
		},
		[]string{"destination_type", "result"}, // local|sftp|google_drive, success|failure
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodia_upload_duration_seconds",
			Help:    "Duration of destination uploads in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"destination_type"},
	)

	// Retention Metrics
	RetentionDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_retention_deletions_total",
			Help: "Total number of backups deleted by retention sweeps",
		},
		[]string{"destination_type"},
	)

	RetentionSweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_retention_sweep_errors_total",
			Help: "Total number of retention sweep failures",
		},
	)

	// Operation Lock Metrics
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodia_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a family operation lock",
			Buckets: []float64{0.001, 0.25, 1, 5, 30, 60, 300, 900, 1800},
		},
		[]string{"family"}, // sql|graph
	)

	LockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_lock_conflicts_total",
			Help: "Total number of operations rejected by a held family lock",
		},
		[]string{"family", "holder"}, // holder: backup|restore
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_notifications_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "result"}, // telegram|email, success|failure
	)

	// Scheduler Metrics
	SchedulerBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custodia_scheduler_batch_size",
			Help:    "Number of due schedules executed per scheduler tick",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	SchedulesEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custodia_schedules_enabled",
			Help: "Current number of enabled schedules",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordRun records a terminal run outcome.
func RecordRun(runType, status string, duration time.Duration, bytesUploaded int64, encrypted bool) {
	RunsTotal.WithLabelValues(runType, status).Inc()
	RunDuration.WithLabelValues(runType).Observe(duration.Seconds())
	if bytesUploaded > 0 {
		RunBytesUploaded.Add(float64(bytesUploaded))
	}
	if encrypted {
		RunsEncrypted.Inc()
	}
	if status == "success" && runType != "restore" {
		LastSuccessfulRun.Set(float64(time.Now().Unix()))
	}
}

// RecordUpload records one destination upload attempt.
func RecordUpload(destinationType string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	UploadsTotal.WithLabelValues(destinationType, result).Inc()
	UploadDuration.WithLabelValues(destinationType).Observe(duration.Seconds())
}

// RecordRetentionSweep records the outcome of one per-destination sweep.
func RecordRetentionSweep(destinationType string, deleted int, err error) {
	if deleted > 0 {
		RetentionDeletions.WithLabelValues(destinationType).Add(float64(deleted))
	}
	if err != nil {
		RetentionSweepErrors.Inc()
	}
}

// RecordLockWait records how long an operation waited for its family lock.
func RecordLockWait(family string, wait time.Duration) {
	LockWaitDuration.WithLabelValues(family).Observe(wait.Seconds())
}

// RecordLockConflict records an operation rejected by a held lock.
func RecordLockConflict(family, holder string) {
	LockConflicts.WithLabelValues(family, holder).Inc()
}

// RecordNotification records one per-recipient delivery attempt.
func RecordNotification(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	NotificationsSent.WithLabelValues(channel, result).Inc()
}

// RecordSchedulerBatch records the size of one scheduler tick's batch.
func RecordSchedulerBatch(size int) {
	SchedulerBatchSize.Observe(float64(size))
}

// SetSchedulesEnabled updates the enabled-schedule gauge.
func SetSchedulesEnabled(count int) {
	SchedulesEnabled.Set(float64(count))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetAppInfo publishes the build info gauge once at startup.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// UpdateUptime refreshes the uptime gauge from the process start time.
func UpdateUptime(startedAt time.Time) {
	AppUptime.Set(time.Since(startedAt).Seconds())
}
