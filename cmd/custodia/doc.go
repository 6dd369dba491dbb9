// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package main is the entry point for the Custodia server.

Custodia automates backups for PostgreSQL, MySQL, SQLite, and Neo4j
databases, shipping compressed (and optionally encrypted) artifacts to
local disk, SFTP hosts, and Google Drive, with retention enforcement,
restore, and a full audit trail behind a REST API.

# Application Architecture

The server runs under a Suture v4 supervision tree:

	custodia
	├── engine-layer
	│   ├── backup runner (due-schedule poller, mode "direct")
	│   └── run event bus (Watermill, feeds metrics)
	└── api-layer
	    └── HTTP server (Chi router)

Component initialization order:

 1. Configuration: Koanf v2 over environment variables
 2. Logging: zerolog with JSON/console output modes
 3. Catalog store: SQLite (targets, destinations, schedules, runs, audit)
 4. Secrets codec: AES-256-GCM at-rest credential encryption
 5. Operation locks: file locks serializing runs per target family
 6. Backup engine, admin surface, notification dispatcher, event bus
 7. Authentication: JWT or no-auth mode, plus Casbin RBAC
 8. Supervisor tree and HTTP server

# Configuration

Core environment variables:

	# Server
	PORT=8080                    # HTTP listen port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Storage paths
	DATA_DIR=/app/data           # Catalog database and lock files
	BACKUP_DIR=/app/backups      # Artifact staging and "local" destination

	# Authentication (choose one mode)
	AUTH_MODE=jwt                # jwt or none
	JWT_SECRET=<32+ chars>       # Required for JWT mode
	ADMIN_API_KEY=<key>          # X-Admin-Key header, full access

	# Credential encryption
	MASTER_ENCRYPTION_KEY=<key>  # Enables at-rest secret encryption

	# Scheduler
	RUNNER_MODE=direct           # direct (in-process) or api (external runner)
	RUNNER_INTERVAL=60           # Seconds between due-schedule polls

Every secret honors a *_FILE variant for Docker and Kubernetes secret
mounts; see internal/config.

# Runner Modes

In "direct" mode (the default) the due-schedule runner lives in this
process under the engine layer. In "api" mode the runner is left out of
the tree and the standalone custodia-runner binary drives schedules over
the REST API, which lets the scheduler restart and scale independently
of the API.

# Signal Handling

The server shuts down gracefully on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Waits for in-flight requests (10s timeout)
 3. Lets an in-progress backup run finish its current step
 4. Flushes the event bus and closes the catalog store
 5. Reports any services that failed to stop

# Usage Examples

Development (no auth):

	export AUTH_MODE=none DATA_DIR=./data BACKUP_DIR=./backups
	go run ./cmd/custodia

Production (JWT + encrypted secrets):

	export AUTH_MODE=jwt
	export JWT_SECRET=$(openssl rand -base64 32)
	export ADMIN_API_KEY=$(openssl rand -hex 32)
	export MASTER_ENCRYPTION_KEY=$(openssl rand -base64 32)
	./custodia

# See Also

  - internal/config: Configuration management
  - internal/supervisor: Process supervision
  - internal/api: HTTP handlers and routing
  - internal/backup: Engine, pipeline, runner, retention, restore
*/
package main
