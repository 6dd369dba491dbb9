// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPostgresImage is the PostgreSQL image used by integration tests.
	DefaultPostgresImage = "postgres:16-alpine"

	// DefaultMySQLImage is the MySQL image used by integration tests.
	DefaultMySQLImage = "mysql:8"

	// DefaultNeo4jImage is the Neo4j image used by integration tests.
	DefaultNeo4jImage = "neo4j:5-community"

	// DefaultDatabaseName is the database created inside test containers.
	DefaultDatabaseName = "custodia_test"

	// DefaultDatabaseUser is the application user inside test containers.
	DefaultDatabaseUser = "custodia"

	// DefaultDatabasePassword is the test-only password for containers.
	DefaultDatabasePassword = "custodia-test-pw"
)

// DatabaseContainer is a running database container plus the connection
// material integration tests need to reach it from the host.
type DatabaseContainer struct {
	testcontainers.Container
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DatabaseOption configures a database test container.
type DatabaseOption func(*databaseConfig)

type databaseConfig struct {
	image        string
	database     string
	user         string
	password     string
	startTimeout time.Duration
}

// WithImage overrides the container image.
func WithImage(image string) DatabaseOption {
	return func(c *databaseConfig) {
		c.image = image
	}
}

// WithDatabase overrides the database name created at startup.
func WithDatabase(name string) DatabaseOption {
	return func(c *databaseConfig) {
		c.database = name
	}
}

// WithCredentials overrides the application user and password.
func WithCredentials(user, password string) DatabaseOption {
	return func(c *databaseConfig) {
		c.user = user
		c.password = password
	}
}

// WithStartTimeout sets how long to wait for the database to come up.
func WithStartTimeout(timeout time.Duration) DatabaseOption {
	return func(c *databaseConfig) {
		c.startTimeout = timeout
	}
}

func newDatabaseConfig(image string, opts []DatabaseOption) *databaseConfig {
	cfg := &databaseConfig{
		image:        image,
		database:     DefaultDatabaseName,
		user:         DefaultDatabaseUser,
		password:     DefaultDatabasePassword,
		startTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewPostgresContainer starts a PostgreSQL container and waits until it
// accepts connections.
//
// Example:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Skipf("could not start postgres: %v", err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, pg.Container)
func NewPostgresContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultPostgresImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       cfg.database,
			"POSTGRES_USER":     cfg.user,
			"POSTGRES_PASSWORD": cfg.password,
		},
		// initdb restarts the server once, so the ready line shows up twice.
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabaseContainer(ctx, req, "5432", cfg)
}

// NewMySQLContainer starts a MySQL container and waits until it accepts
// connections.
func NewMySQLContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultMySQLImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      cfg.database,
			"MYSQL_USER":          cfg.user,
			"MYSQL_PASSWORD":      cfg.password,
			"MYSQL_ROOT_PASSWORD": cfg.password,
		},
		// The bootstrap server logs ready once before the real one does.
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("ready for connections").WithOccurrence(2),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabaseContainer(ctx, req, "3306", cfg)
}

// NewNeo4jContainer starts a Neo4j container and waits until Bolt is up.
func NewNeo4jContainer(ctx context.Context, opts ...DatabaseOption) (*DatabaseContainer, error) {
	cfg := newDatabaseConfig(DefaultNeo4jImage, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": fmt.Sprintf("%s/%s", cfg.user, cfg.password),
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithStartupTimeout(cfg.startTimeout),
	}

	return startDatabaseContainer(ctx, req, "7687", cfg)
}

func startDatabaseContainer(ctx context.Context, req testcontainers.ContainerRequest, containerPort string, cfg *databaseConfig) (*DatabaseContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, nat.Port(containerPort+"/tcp"))
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &DatabaseContainer{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		Database:  cfg.database,
		User:      cfg.user,
		Password:  cfg.password,
	}, nil
}
