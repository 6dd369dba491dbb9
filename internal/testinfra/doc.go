// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to manage Docker containers for integration tests,
// providing real database engines to back up and restore against instead of mocks.
//
// # Database Containers
//
// NewPostgresContainer, NewMySQLContainer, and NewNeo4jContainer start a
// database, wait for readiness, and hand back connection material:
//
//	func TestPostgresDumpCycle(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg.Container)
//
//	    target := &models.Target{
//	        DBType: models.DBTypePostgres,
//	        Host:   pg.Host,
//	        Port:   pg.Port,
//	        // ...
//	    }
//	    // Dump against a real server, restore, compare.
//	}
//
// # Benefits Over Mocks
//
// Using real containers provides several advantages:
//   - Tests validate actual dump and restore tool behavior
//   - No mock drift (mocks getting out of sync with real engines)
//   - Tests run against production-equivalent services
//   - Reduces maintenance burden (one container vs many mock functions)
//
// # CI Considerations
//
// These tests require Docker, network access, and the client tools
// (pg_dump, mysqldump, neo4j-admin) on PATH. In CI:
//   - Self-hosted runners have Docker pre-installed
//   - Container images are cached between runs
//   - Tests are skipped gracefully if Docker is unavailable
//
// # Network Requirements
//
// First run may need to download container images. Subsequent runs use cached images.
package testinfra
