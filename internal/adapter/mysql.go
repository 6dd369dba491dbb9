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
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// mysqlDropAllSQL collects every base table into one DROP statement with
// foreign-key checks suspended, so tables can go in any order. %s is the
// quote-escaped schema name.
const mysqlDropAllSQL = "SET FOREIGN_KEY_CHECKS = 0;\n" +
	"SET @tables = NULL;\n" +
	"SELECT GROUP_CONCAT(CONCAT('`', REPLACE(table_name, '`', '``'), '`')) INTO @tables\n" +
	"FROM information_schema.tables\n" +
	"WHERE table_schema = '%s'\n" +
	"  AND table_type = 'BASE TABLE';\n" +
	"SET @tables = IF(\n" +
	"    @tables IS NULL OR @tables = '',\n" +
	"    'SELECT 1',\n" +
	"    CONCAT('DROP TABLE IF EXISTS ', @tables)\n" +
	");\n" +
	"PREPARE stmt FROM @tables;\n" +
	"EXECUTE stmt;\n" +
	"DEALLOCATE PREPARE stmt;\n" +
	"SET FOREIGN_KEY_CHECKS = 1;\n"

const mysqlStatsQuery = `SELECT
    table_name,
    IFNULL(table_rows, 0),
    IFNULL(data_length + index_length, 0)
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_name`

// MySQL backs up MySQL and MariaDB databases with mariadb-dump (or
// mysqldump when the MariaDB tooling is absent) and restores through the
// matching client. A dump or restore that fails with a TLS-flavored error is
// retried once with server TLS disabled, since the common deployment is a
// compose-internal network fronted by a self-signed certificate.
type MySQL struct {
	params ConnParams
}

// NewMySQL creates the adapter, normalizing loopback addresses to the
// compose network.
func NewMySQL(p ConnParams) *MySQL {
	p.Host, p.Port = normalizeAddress(models.DatabaseMySQL, p.Host, p.Port)
	return &MySQL{params: p}
}

// mysqlDumpCommand prefers the MariaDB tooling when installed.
func mysqlDumpCommand() string {
	if _, err := exec.LookPath("mariadb-dump"); err == nil {
		return "mariadb-dump"
	}
	return "mysqldump"
}

// mysqlClientCommand resolves the interactive client used for restores.
func mysqlClientCommand() (string, error) {
	for _, candidate := range []string{"mariadb", "mysql"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", models.ErrAdapterFailure.New("neither mariadb nor mysql client found on system")
}

// sslDisabledArgs returns the dialect-specific flag that turns TLS off.
func sslDisabledArgs(command string) []string {
	if strings.HasPrefix(command, "mariadb") {
		return []string{"--skip-ssl"}
	}
	return []string{"--ssl-mode=DISABLED"}
}

// looksLikeTLSError sniffs subprocess stderr for certificate trouble.
func looksLikeTLSError(stderr string) bool {
	low := strings.ToLower(stderr)
	return strings.Contains(low, "tls/ssl error") ||
		strings.Contains(low, "self-signed") ||
		strings.Contains(low, "self signed") ||
		strings.Contains(low, "certificate")
}

// CreateBackupToTemp dumps the schema with --single-transaction for a
// consistent snapshot without table locks.
func (a *MySQL) CreateBackupToTemp(ctx context.Context, compress bool) (string, string, error) {
	ts := backupTimestamp()
	filename := "backup_mysql_" + ts + ".sql"
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
	tmp.Close() //nolint:errcheck // Reopened per attempt

	dumpCmd := mysqlDumpCommand()
	args := []string{
		"-h", a.params.Host,
		"-P", strconv.Itoa(a.params.Port),
		"-u", a.params.User,
		a.params.Database,
		"--single-transaction",
		"--skip-lock-tables",
	}

	stderr, err := a.runDumpTo(ctx, tempPath, compress, dumpCmd, args)
	if err != nil {
		if looksLikeTLSError(stderr) {
			logging.Warn().Str("command", dumpCmd).Msg("MySQL dump hit a TLS error, retrying with TLS disabled")
			retryArgs := append(append([]string{}, args...), sslDisabledArgs(dumpCmd)...)
			if _, retryErr := a.runDumpTo(ctx, tempPath, compress, dumpCmd, retryArgs); retryErr == nil {
				logging.Info().Str("filename", filename).Str("command", dumpCmd).Msg("MySQL dump completed")
				return filename, tempPath, nil
			}
		}
		os.Remove(tempPath) //nolint:errcheck // Best effort cleanup on error
		if stderr == "" {
			return "", "", err
		}
		return "", "", models.ErrAdapterFailure.New("mysql backup failed: %s", stderr)
	}

	logging.Info().Str("filename", filename).Str("command", dumpCmd).Msg("MySQL dump completed")
	return filename, tempPath, nil
}

// runDumpTo executes the dump command with stdout streamed into path,
// truncating any previous attempt. Returns the stderr text alongside the
// error so the caller can classify the failure.
func (a *MySQL) runDumpTo(ctx context.Context, path string, compress bool, command string, args []string) (string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: pipeline-owned temp file
	if err != nil {
		return "", models.ErrAdapterFailure.New("failed to open temporary backup file: %v", err)
	}

	var out io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		out = gz
	}

	cmd := exec.CommandContext(ctx, command, args...) //nolint:gosec // G204: arguments come from the validated target record
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+a.params.Password)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if gz != nil {
		if err := gz.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := f.Close(); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil {
		return subprocessFailure(runErr, &stderr), runErr
	}
	return "", nil
}

// Restore drops all base tables and applies the dump through the client.
func (a *MySQL) Restore(ctx context.Context, backupPath string, progress Progress) ([]string, error) {
	client, err := mysqlClientCommand()
	if err != nil {
		return nil, err
	}

	progress.report(0, 0, "Dropping existing database data...")
	dropSQL := fmt.Sprintf(mysqlDropAllSQL, strings.ReplaceAll(a.params.Database, "'", "''"))
	if stderr, err := a.runClient(ctx, client, nil, strings.NewReader(dropSQL)); err != nil {
		return nil, models.ErrAdapterFailure.New("failed to drop mysql tables: %s", stderr)
	}

	progress.report(0, 0, "Restoring mysql database from backup...")
	stderr, err := a.applyDump(ctx, client, nil, backupPath)
	if err != nil {
		if looksLikeTLSError(stderr) {
			logging.Warn().Str("command", client).Msg("MySQL restore hit a TLS error, retrying with TLS disabled")
			if _, retryErr := a.applyDump(ctx, client, sslDisabledArgs(client), backupPath); retryErr == nil {
				return nil, nil
			}
		}
		if stderr == "" {
			// The artifact could not be opened; the error is already classified.
			return nil, err
		}
		return nil, models.ErrAdapterFailure.New("mysql restore failed: %s", stderr)
	}
	return nil, nil
}

// applyDump streams the (decompressed) artifact into the client's stdin.
// The artifact is reopened per attempt so a TLS retry reads from the start.
func (a *MySQL) applyDump(ctx context.Context, client string, extraArgs []string, backupPath string) (string, error) {
	in, err := openArtifact(backupPath)
	if err != nil {
		return "", err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	return a.runClient(ctx, client, extraArgs, in)
}

// runClient executes the mysql/mariadb client with a stdin script.
func (a *MySQL) runClient(ctx context.Context, client string, extraArgs []string, stdin io.Reader) (string, error) {
	args := []string{
		"-h", a.params.Host,
		"-P", strconv.Itoa(a.params.Port),
		"-u", a.params.User,
		a.params.Database,
	}
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, client, args...) //nolint:gosec // G204: arguments come from the validated target record
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+a.params.Password)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return subprocessFailure(err, &stderr), err
	}
	return "", nil
}

// TestConnection pings the database through the go-sql-driver.
func (a *MySQL) TestConnection(ctx context.Context) (map[string]interface{}, error) {
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
		"db_type":  string(models.DatabaseMySQL),
		"host":     a.params.Host,
		"port":     a.params.Port,
		"database": a.params.Database,
	}, nil
}

// GetStats reads per-table row counts and sizes from information_schema.
// database_size_mb is the sum of table data+index bytes.
func (a *MySQL) GetStats(ctx context.Context) (*models.DatabaseStats, error) {
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	return mysqlCollectStats(ctx, db, a.params.Database)
}

// mysqlCollectStats runs the statistics query on an open connection. Split
// out so tests can drive it with a mock.
func mysqlCollectStats(ctx context.Context, db *sql.DB, schema string) (*models.DatabaseStats, error) {
	rows, err := db.QueryContext(ctx, mysqlStatsQuery, schema)
	if err != nil {
		return nil, models.ErrAdapterFailure.New("mysql stats query failed: %v", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	stats := &models.DatabaseStats{}
	var totalBytes int64
	for rows.Next() {
		var name string
		var rowCount, tableBytes int64
		if err := rows.Scan(&name, &rowCount, &tableBytes); err != nil {
			return nil, models.ErrAdapterFailure.New("mysql stats scan failed: %v", err)
		}
		stats.Tables = append(stats.Tables, models.TableStats{
			Name:     name,
			RowCount: rowCount,
			SizeMB:   roundMB(tableBytes),
		})
		stats.TotalRows += rowCount
		totalBytes += tableBytes
	}
	if err := rows.Err(); err != nil {
		return nil, models.ErrAdapterFailure.New("mysql stats query failed: %v", err)
	}

	stats.TableCount = len(stats.Tables)
	stats.DatabaseSizeMB = roundMB(totalBytes)
	return stats, nil
}

func (a *MySQL) open() (*sql.DB, error) {
	cfg := mysqldriver.NewConfig()
	cfg.User = a.params.User
	cfg.Passwd = a.params.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(a.params.Host, strconv.Itoa(a.params.Port))
	cfg.DBName = a.params.Database
	cfg.Timeout = testConnectionTimeout

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to initialize mysql client: %v", err)
	}
	return db, nil
}
