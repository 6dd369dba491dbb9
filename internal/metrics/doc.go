// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the backup engine, scheduler, destinations and HTTP API
using the Prometheus client library. All collectors are registered on the default
registry via promauto and exposed at the /metrics endpoint in text format:

	curl http://localhost:8080/metrics

# Available Metrics

Run Metrics:
  - custodia_runs_total: Terminal backup and restore runs (counter)
    Labels: type (scheduled, immediate, restore), status (success, warning, failed)
  - custodia_run_duration_seconds: Run duration (histogram)
    Labels: type
    Buckets: 1s to 1h
  - custodia_run_bytes_uploaded_total: Bytes shipped to destinations (counter)
  - custodia_runs_encrypted_total: Runs producing encrypted artifacts (counter)
  - custodia_last_successful_run_timestamp: Unix time of last successful backup (gauge)

Upload Metrics:
  - custodia_uploads_total: Destination uploads (counter)
    Labels: destination_type (local, sftp, google_drive), result
  - custodia_upload_duration_seconds: Upload duration (histogram)
    Labels: destination_type

Retention Metrics:
  - custodia_retention_deletions_total: Backups removed by sweeps (counter)
    Labels: destination_type
  - custodia_retention_sweep_errors_total: Failed sweeps (counter)

Operation Lock Metrics:
  - custodia_lock_wait_duration_seconds: Wait to acquire a family lock (histogram)
    Labels: family (sql, graph)
  - custodia_lock_conflicts_total: Operations rejected by a held lock (counter)
    Labels: family, holder (backup, restore)

Notification Metrics:
  - custodia_notifications_total: Per-recipient delivery attempts (counter)
    Labels: channel (telegram, email), result

Scheduler Metrics:
  - custodia_scheduler_batch_size: Due schedules per tick (histogram)
  - custodia_schedules_enabled: Enabled schedules (gauge)

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

System Metrics:
  - app_info: Version and Go runtime labels (gauge, always 1)
  - app_uptime_seconds: Process uptime (gauge)

# Event Consumer

RunEventHandler subscribes to the in-process run event bus and folds terminal
runs into the run metrics, keeping the engine free of metrics calls:

	bus.Subscribe("metrics", metrics.RunEventHandler)

# Grafana Integration

The metrics endpoint is directly scrapeable by Prometheus:

	scrape_configs:
	  - job_name: custodia
	    static_configs:
	      - targets: ['custodia:8080']
*/
package metrics
