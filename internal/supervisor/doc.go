// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

/*
Package supervisor builds the suture v4 supervision tree for the service.

The tree has a root and two child supervisors:

	custodia
	├── engine-layer   backup runner, run event bus
	└── api-layer      HTTP server

Services are restarted where they fail. When a layer exceeds the failure
threshold it backs off alone; the sibling layer keeps serving, so a
crash-looping runner never takes the API offline.

The services subpackage holds adapters from blocking lifecycles (like
http.Server's ListenAndServe) to suture's context-aware Serve contract.
Suture lifecycle events are logged through sutureslog with the slog bridge
from internal/logging.
*/
package supervisor
