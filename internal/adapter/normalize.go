// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// composeService describes where an engine lives on the compose network:
// the service DNS name, the port inside the network, and the host ports the
// stack publishes for it.
type composeService struct {
	name           string
	internalPort   int
	publishedPorts []int
}

// composeServices maps each engine to its compose-network address. Targets
// are often configured from the operator's desktop view ("localhost:5433"),
// but the service runs inside the compose network where localhost is the
// service's own container; those addresses are rewritten to the sibling
// container's DNS name before connecting.
var composeServices = map[models.DatabaseType]composeService{
	models.DatabasePostgreSQL: {name: "postgres", internalPort: 5432, publishedPorts: []int{5432, 5433}},
	models.DatabaseMySQL:      {name: "mysql", internalPort: 3306, publishedPorts: []int{3306, 3307}},
	models.DatabaseNeo4j:      {name: "neo4j", internalPort: 7687, publishedPorts: []int{7687, 7688}},
}

// normalizeAddress rewrites a loopback host to the engine's compose service
// name. When the configured port is one the stack publishes on the host, it
// is mapped back to the internal port; any other port is kept as configured.
func normalizeAddress(dbType models.DatabaseType, host string, port int) (string, int) {
	if !isLoopback(host) {
		return host, port
	}
	svc, ok := composeServices[dbType]
	if !ok {
		return host, port
	}

	newPort := port
	for _, published := range svc.publishedPorts {
		if port == published {
			newPort = svc.internalPort
			break
		}
	}

	logging.Debug().
		Str("db_type", string(dbType)).
		Str("configured", host).
		Str("resolved", svc.name).
		Int("port", newPort).
		Msg("Normalized loopback database address to compose service")

	return svc.name, newPort
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
