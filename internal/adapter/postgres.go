// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	// PostgreSQL driver for connection tests and statistics.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// pgDropAllSQL removes every table in the public schema so a plain-format
// dump applies onto a clean database. quote_ident guards table names that
// need quoting.
const pgDropAllSQL = `DO $$ DECLARE
    r RECORD;
BEGIN
    FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
        EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
    END LOOP;
END $$;`

// pgStatsQuery reads per-table row estimates and on-disk sizes. n_live_tup
// is an estimate, which is the right price for not scanning every table.
const pgStatsQuery = `SELECT
    relname,
    COALESCE(n_live_tup, 0)::bigint AS row_estimate,
    pg_total_relation_size(relid) AS total_bytes
FROM pg_stat_user_tables
ORDER BY relname`

// Postgres backs up PostgreSQL databases with pg_dump and restores them with
// psql. Dumps use --no-owner --no-acl so the artifact applies under any role.
type Postgres struct {
	params ConnParams
}

// NewPostgres creates the adapter, normalizing loopback addresses to the
// compose network.
func NewPostgres(p ConnParams) *Postgres {
	p.Host, p.Port = normalizeAddress(models.DatabasePostgreSQL, p.Host, p.Port)
	return &Postgres{params: p}
}

// CreateBackupToTemp runs pg_dump in plain format, streaming stdout into the
// temp artifact (through gzip when compress is set).
func (a *Postgres) CreateBackupToTemp(ctx context.Context, compress bool) (string, string, error) {
	ts := backupTimestamp()
	filename := "backup_postgresql_" + ts + ".sql"
	suffix := ".sql"
	if compress {
		filename += ".gz"
		suffix = ".sql.gz"
	}

	tmp, err := newTempArtifact(suffix)
	if err != nil {
		return "", "", err
	}
	tempPath := tmp.Name()

	var out io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		out = gz
	}

	//nolint:gosec // G204: arguments come from the validated target record
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", a.params.Host,
		"-p", strconv.Itoa(a.params.Port),
		"-U", a.params.User,
		"-d", a.params.Database,
		"--no-owner",
		"--no-acl",
		"-F", "p",
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+a.params.Password)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if gz != nil {
		if err := gz.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := tmp.Close(); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil {
		os.Remove(tempPath) //nolint:errcheck // Best effort cleanup on error
		return "", "", models.ErrAdapterFailure.New("postgresql backup failed: %s", subprocessFailure(runErr, &stderr))
	}

	logging.Info().Str("filename", filename).Msg("PostgreSQL dump completed")
	return filename, tempPath, nil
}

// Restore drops all public tables and pipes the dump through psql.
func (a *Postgres) Restore(ctx context.Context, backupPath string, progress Progress) ([]string, error) {
	progress.report(0, 0, "Dropping existing database data...")
	if err := a.runPSQL(ctx, strings.NewReader(pgDropAllSQL), "failed to drop postgresql tables"); err != nil {
		return nil, err
	}

	progress.report(0, 0, "Restoring postgresql database from backup...")
	in, err := openArtifact(backupPath)
	if err != nil {
		return nil, err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	if err := a.runPSQL(ctx, in, "postgresql restore failed"); err != nil {
		return nil, err
	}
	return nil, nil
}

// runPSQL feeds stdin to psql against the configured database.
func (a *Postgres) runPSQL(ctx context.Context, stdin io.Reader, action string) error {
	//nolint:gosec // G204: arguments come from the validated target record
	cmd := exec.CommandContext(ctx, "psql",
		"-h", a.params.Host,
		"-p", strconv.Itoa(a.params.Port),
		"-U", a.params.User,
		"-d", a.params.Database,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+a.params.Password)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return models.ErrAdapterFailure.New("%s: %s", action, subprocessFailure(err, &stderr))
	}
	return nil
}

// TestConnection pings the database through the pgx driver.
func (a *Postgres) TestConnection(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, testConnectionTimeout)
	defer cancel()

	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	if err := db.PingContext(ctx); err != nil {
		return nil, models.ErrAdapterFailure.New("connection test failed: %v", err)
	}

	return map[string]interface{}{
		"db_type":  string(models.DatabasePostgreSQL),
		"host":     a.params.Host,
		"port":     a.params.Port,
		"database": a.params.Database,
	}, nil
}

// GetStats reads per-table estimates and the database size.
func (a *Postgres) GetStats(ctx context.Context) (*models.DatabaseStats, error) {
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	return pgCollectStats(ctx, db, a.params.Database)
}

// pgCollectStats runs the statistics queries on an open connection. Split
// out so tests can drive it with a mock.
func pgCollectStats(ctx context.Context, db *sql.DB, database string) (*models.DatabaseStats, error) {
	rows, err := db.QueryContext(ctx, pgStatsQuery)
	if err != nil {
		return nil, models.ErrAdapterFailure.New("postgresql stats query failed: %v", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	stats := &models.DatabaseStats{}
	for rows.Next() {
		var name string
		var rowEstimate, totalBytes int64
		if err := rows.Scan(&name, &rowEstimate, &totalBytes); err != nil {
			return nil, models.ErrAdapterFailure.New("postgresql stats scan failed: %v", err)
		}
		stats.Tables = append(stats.Tables, models.TableStats{
			Name:     name,
			RowCount: rowEstimate,
			SizeMB:   roundMB(totalBytes),
		})
		stats.TotalRows += rowEstimate
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrAdapterFailure.New("postgresql stats query failed: %v", err)
	}

	var dbSize int64
	if err := db.QueryRowContext(ctx, "SELECT pg_database_size($1)", database).Scan(&dbSize); err != nil {
		return nil, models.ErrAdapterFailure.New("postgresql database size query failed: %v", err)
	}

	stats.TableCount = len(stats.Tables)
	stats.DatabaseSizeMB = roundMB(dbSize)
	return stats, nil
}

func (a *Postgres) open() (*sql.DB, error) {
	db, err := sql.Open("pgx", a.dsn())
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to initialize postgresql client: %v", err)
	}
	return db, nil
}

// dsn builds the pgx connection URL. Credentials are URL-escaped so
// passwords with reserved characters survive.
func (a *Postgres) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(a.params.User, a.params.Password),
		Host:   net.JoinHostPort(a.params.Host, strconv.Itoa(a.params.Port)),
		Path:   "/" + a.params.Database,
	}
	q := u.Query()
	q.Set("sslmode", "prefer")
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()
	return u.String()
}
