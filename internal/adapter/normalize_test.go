// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"testing"

	"github.com/tomtom215/custodia/internal/models"
)

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dbType   models.DatabaseType
		host     string
		port     int
		wantHost string
		wantPort int
	}{
		{
			name:   "postgres loopback with published port",
			dbType: models.DatabasePostgreSQL,
			host:   "localhost", port: 5433,
			wantHost: "postgres", wantPort: 5432,
		},
		{
			name:   "postgres loopback with internal port",
			dbType: models.DatabasePostgreSQL,
			host:   "127.0.0.1", port: 5432,
			wantHost: "postgres", wantPort: 5432,
		},
		{
			name:   "loopback with unknown port keeps the port",
			dbType: models.DatabasePostgreSQL,
			host:   "localhost", port: 15432,
			wantHost: "postgres", wantPort: 15432,
		},
		{
			name:   "mysql ipv6 loopback",
			dbType: models.DatabaseMySQL,
			host:   "::1", port: 3307,
			wantHost: "mysql", wantPort: 3306,
		},
		{
			name:   "neo4j loopback with published bolt port",
			dbType: models.DatabaseNeo4j,
			host:   "localhost", port: 7688,
			wantHost: "neo4j", wantPort: 7687,
		},
		{
			name:   "remote host untouched",
			dbType: models.DatabasePostgreSQL,
			host:   "db.internal", port: 5433,
			wantHost: "db.internal", wantPort: 5433,
		},
		{
			name:   "engine without compose mapping untouched",
			dbType: models.DatabaseSQLite,
			host:   "localhost", port: 0,
			wantHost: "localhost", wantPort: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotHost, gotPort := normalizeAddress(tt.dbType, tt.host, tt.port)
			if gotHost != tt.wantHost || gotPort != tt.wantPort {
				t.Errorf("normalizeAddress(%s, %s, %d) = (%s, %d), want (%s, %d)",
					tt.dbType, tt.host, tt.port, gotHost, gotPort, tt.wantHost, tt.wantPort)
			}
		})
	}
}
