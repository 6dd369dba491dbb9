// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tomtom215/custodia/internal/models"
)

func TestMySQLCollectStats(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	rows := sqlmock.NewRows([]string{"table_name", "table_rows", "bytes"}).
		AddRow("orders", 1200, 3*1048576).
		AddRow("users", 42, 1048576)
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("appdb").
		WillReturnRows(rows)

	stats, err := mysqlCollectStats(context.Background(), db, "appdb")
	if err != nil {
		t.Fatalf("mysqlCollectStats: %v", err)
	}

	if stats.TableCount != 2 {
		t.Errorf("TableCount = %d, want 2", stats.TableCount)
	}
	if stats.TotalRows != 1242 {
		t.Errorf("TotalRows = %d, want 1242", stats.TotalRows)
	}
	if stats.DatabaseSizeMB != 4 {
		t.Errorf("DatabaseSizeMB = %v, want 4", stats.DatabaseSizeMB)
	}
	if stats.Tables[0].Name != "orders" || stats.Tables[0].SizeMB != 3 {
		t.Errorf("first table = %+v", stats.Tables[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMySQLCollectStatsQueryError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("appdb").
		WillReturnError(fmt.Errorf("server has gone away"))

	if _, err := mysqlCollectStats(context.Background(), db, "appdb"); !models.ErrAdapterFailure.Has(err) {
		t.Errorf("expected adapter failure, got %v", err)
	}
}

func TestLooksLikeTLSError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stderr string
		want   bool
	}{
		{"ERROR 2026 (HY000): TLS/SSL error: self-signed certificate in certificate chain", true},
		{"SSL connection error: certificate verify failed", true},
		{"ERROR: self signed certificate", true},
		{"ERROR 1045 (28000): Access denied for user", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeTLSError(tt.stderr); got != tt.want {
			t.Errorf("looksLikeTLSError(%q) = %v, want %v", tt.stderr, got, tt.want)
		}
	}
}

func TestSSLDisabledArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command string
		want    string
	}{
		{"mariadb-dump", "--skip-ssl"},
		{"mariadb", "--skip-ssl"},
		{"mysqldump", "--ssl-mode=DISABLED"},
		{"mysql", "--ssl-mode=DISABLED"},
	}
	for _, tt := range tests {
		got := sslDisabledArgs(tt.command)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("sslDisabledArgs(%s) = %v, want [%s]", tt.command, got, tt.want)
		}
	}
}

func TestMySQLDropAllEscapesSchemaName(t *testing.T) {
	t.Parallel()

	script := fmt.Sprintf(mysqlDropAllSQL, strings.ReplaceAll("it's", "'", "''"))
	if !strings.Contains(script, "WHERE table_schema = 'it''s'") {
		t.Errorf("schema name not escaped:\n%s", script)
	}
	if !strings.Contains(script, "SET FOREIGN_KEY_CHECKS = 0") {
		t.Error("drop script must disable foreign key checks first")
	}
}

func TestNewMySQLNormalizesLoopback(t *testing.T) {
	t.Parallel()

	a := NewMySQL(ConnParams{Host: "localhost", Port: 3307, Database: "app", User: "svc"})
	if a.params.Host != "mysql" || a.params.Port != 3306 {
		t.Errorf("params = %s:%d, want mysql:3306", a.params.Host, a.params.Port)
	}
}
