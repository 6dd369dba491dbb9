// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package adapter

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

const neo4jRelExportQuery = `
MATCH (a)-[r]->(b)
RETURN
    labels(a) as start_labels,
    properties(a) as start_props,
    type(r) as rel_type,
    properties(r) as rel_props,
    labels(b) as end_labels,
    properties(b) as end_props`

// Cypher lines can grow large when nodes carry long text properties, so the
// restore scanner gets a generous ceiling.
const maxCypherLineBytes = 16 * 1024 * 1024

// Neo4j exports the graph as one Cypher statement per line: a CREATE per
// node, then a MATCH+CREATE per relationship that re-finds its endpoints by
// labels and properties. Restore clears the graph and replays the statements
// one by one, collecting per-statement failures as warnings instead of
// aborting.
type Neo4j struct {
	uri      string
	user     string
	password string
}

// NewNeo4j creates the adapter. host may be a bare hostname or a full
// bolt:// / neo4j:// URI; loopback addresses are normalized to the compose
// network either way.
func NewNeo4j(host string, port int, user, password string) *Neo4j {
	scheme := "bolt"
	if s, rest, ok := strings.Cut(host, "://"); ok {
		scheme = s
		host = rest
		if h, p, err := net.SplitHostPort(rest); err == nil {
			host = h
			if n, convErr := strconv.Atoi(p); convErr == nil {
				port = n
			}
		}
	}
	if port == 0 {
		port = 7687
	}
	host, port = normalizeAddress(models.DatabaseNeo4j, host, port)
	return &Neo4j{
		uri:      fmt.Sprintf("%s://%s:%d", scheme, host, port),
		user:     user,
		password: password,
	}
}

func (a *Neo4j) driver() (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(a.uri, neo4j.BasicAuth(a.user, a.password, ""))
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to initialize neo4j driver: %v", err)
	}
	return driver, nil
}

// CreateBackupToTemp streams the Cypher export into a temp artifact.
func (a *Neo4j) CreateBackupToTemp(ctx context.Context, compress bool) (string, string, error) {
	ts := backupTimestamp()
	filename := "backup_neo4j_" + ts + ".cypher"
	suffix := ".cypher"
	if compress {
		filename += ".gz"
		suffix = ".cypher.gz"
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
	w := bufio.NewWriter(out)

	count, exportErr := a.exportStatements(ctx, w)
	if err := w.Flush(); err != nil && exportErr == nil {
		exportErr = err
	}
	if gz != nil {
		if err := gz.Close(); err != nil && exportErr == nil {
			exportErr = err
		}
	}
	if err := tmp.Close(); err != nil && exportErr == nil {
		exportErr = err
	}
	if exportErr != nil {
		os.Remove(tempPath) //nolint:errcheck // Best effort cleanup on error
		return "", "", models.ErrAdapterFailure.New("neo4j backup failed: %v", exportErr)
	}

	logging.Info().Int("statements", count).Str("filename", filename).Msg("Neo4j export completed")
	return filename, tempPath, nil
}

func (a *Neo4j) exportStatements(ctx context.Context, w *bufio.Writer) (int, error) {
	driver, err := a.driver()
	if err != nil {
		return 0, err
	}
	defer driver.Close(ctx) //nolint:errcheck // Best effort cleanup

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx) //nolint:errcheck // Best effort cleanup

	count := 0

	logging.Info().Msg("Exporting nodes")
	result, err := session.Run(ctx, "MATCH (n) RETURN n", nil)
	if err != nil {
		return count, err
	}
	for result.Next(ctx) {
		node, ok := result.Record().Values[0].(neo4j.Node)
		if !ok {
			continue
		}
		stmt := fmt.Sprintf("CREATE (:%s {%s});",
			strings.Join(node.Labels, ":"), cypherPropsInner(node.Props))
		if _, err := w.WriteString(stmt + "\n"); err != nil {
			return count, err
		}
		count++
	}
	if err := result.Err(); err != nil {
		return count, err
	}

	logging.Info().Msg("Exporting relationships")
	result, err = session.Run(ctx, neo4jRelExportQuery, nil)
	if err != nil {
		return count, err
	}
	for result.Next(ctx) {
		rec := result.Record()
		startLabels, _ := rec.Get("start_labels")
		startProps, _ := rec.Get("start_props")
		relType, _ := rec.Get("rel_type")
		relProps, _ := rec.Get("rel_props")
		endLabels, _ := rec.Get("end_labels")
		endProps, _ := rec.Get("end_props")

		stmt := fmt.Sprintf("MATCH (a:%s %s), (b:%s %s) CREATE (a)-[:%s %s]->(b);",
			joinLabels(startLabels), cypherProps(asPropMap(startProps)),
			joinLabels(endLabels), cypherProps(asPropMap(endProps)),
			asString(relType), cypherProps(asPropMap(relProps)))
		if _, err := w.WriteString(stmt + "\n"); err != nil {
			return count, err
		}
		count++
	}
	return count, result.Err()
}

// Restore clears the graph and replays the backup statement by statement.
// Individual statement failures become warnings, capped at
// maxRestoreWarnings entries.
func (a *Neo4j) Restore(ctx context.Context, backupPath string, progress Progress) ([]string, error) {
	progress.report(0, 0, "Reading backup file...")
	statements, err := readCypherStatements(backupPath)
	if err != nil {
		return nil, err
	}

	driver, err := a.driver()
	if err != nil {
		return nil, err
	}
	defer driver.Close(ctx) //nolint:errcheck // Best effort cleanup

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx) //nolint:errcheck // Best effort cleanup

	logging.Info().Msg("Clearing existing data")
	progress.report(0, 0, "Clearing existing database data...")
	if err := runCypher(ctx, session, "MATCH (n) DETACH DELETE n"); err != nil {
		return nil, models.ErrAdapterFailure.New("failed to clear existing data: %v", err)
	}

	total := len(statements)
	progress.report(0, total, fmt.Sprintf("Restoring %d statements...", total))

	var warnings []string
	for i, stmt := range statements {
		if err := runCypher(ctx, session, stmt); err != nil {
			if ctx.Err() != nil {
				return nil, models.ErrAdapterFailure.New("neo4j restore interrupted: %v", ctx.Err())
			}
			warnMsg := fmt.Sprintf("Failed to execute statement %d/%d: %v", i+1, total, err)
			logging.Warn().Str("warning", warnMsg).Msg("Restore warning")
			if len(warnings) < maxRestoreWarnings {
				snippet := strings.ReplaceAll(stmt, "\n", " ")
				if len(snippet) > 200 {
					snippet = snippet[:200] + "..."
				}
				warnings = append(warnings, warnMsg+" | Cypher: "+snippet)
			}
			continue
		}
		if (i+1)%100 == 0 {
			logging.Debug().Int("current", i+1).Int("total", total).Msg("Executing restore statements")
			progress.report(i+1, total, fmt.Sprintf("Executing statement %d of %d...", i+1, total))
		}
	}

	logging.Info().Int("statements", total).Int("warnings", len(warnings)).Msg("Neo4j restore finished")
	return warnings, nil
}

// readCypherStatements loads the backup line by line. Statements never span
// lines, so splitting on newlines keeps semicolons inside string literals
// intact; only the trailing terminator is stripped.
func readCypherStatements(backupPath string) ([]string, error) {
	in, err := openArtifact(backupPath)
	if err != nil {
		return nil, err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxCypherLineBytes)

	var statements []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimSuffix(line, ";"))
		if line != "" {
			statements = append(statements, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, models.ErrAdapterFailure.New("failed to read backup file: %v", err)
	}
	return statements, nil
}

func runCypher(ctx context.Context, session neo4j.SessionWithContext, query string) error {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// TestConnection verifies reachability and credentials via the driver's own
// connectivity check.
func (a *Neo4j) TestConnection(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, testConnectionTimeout)
	defer cancel()

	driver, err := a.driver()
	if err != nil {
		return nil, err
	}
	defer driver.Close(ctx) //nolint:errcheck // Best effort cleanup

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, models.ErrAdapterFailure.New("connection test failed: %v", err)
	}

	return map[string]interface{}{
		"db_type": string(models.DatabaseNeo4j),
		"uri":     a.uri,
	}, nil
}

// GetStats counts nodes and relationships and lists the labels and
// relationship types in use.
func (a *Neo4j) GetStats(ctx context.Context) (*models.DatabaseStats, error) {
	driver, err := a.driver()
	if err != nil {
		return nil, err
	}
	defer driver.Close(ctx) //nolint:errcheck // Best effort cleanup

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx) //nolint:errcheck // Best effort cleanup

	nodeCount, err := singleCount(ctx, session, "MATCH (n) RETURN count(n) as count")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to get database stats: %v", err)
	}
	relCount, err := singleCount(ctx, session, "MATCH ()-[r]->() RETURN count(r) as count")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to get database stats: %v", err)
	}
	labels, err := stringColumn(ctx, session, "CALL db.labels()", "label")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to get database stats: %v", err)
	}
	relTypes, err := stringColumn(ctx, session, "CALL db.relationshipTypes()", "relationshipType")
	if err != nil {
		return nil, models.ErrAdapterFailure.New("failed to get database stats: %v", err)
	}

	return &models.DatabaseStats{
		NodeCount:         nodeCount,
		RelationshipCount: relCount,
		Labels:            labels,
		RelationshipTypes: relTypes,
	}, nil
}

func singleCount(ctx context.Context, session neo4j.SessionWithContext, query string) (int64, error) {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	value, _ := record.Get("count")
	count, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("count is not an integer: %T", value)
	}
	return count, nil
}

func stringColumn(ctx context.Context, session neo4j.SessionWithContext, query, key string) ([]string, error) {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	var values []string
	for result.Next(ctx) {
		if v, found := result.Record().Get(key); found {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
	}
	return values, result.Err()
}

// formatCypherValue renders a property value as a Cypher literal. Strings
// are escaped in a fixed order with the backslash first so later escapes are
// not double-processed.
func formatCypherValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return quoteCypherString(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatCypherValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return "null"
	default:
		return quoteCypherString(fmt.Sprint(val))
	}
}

func quoteCypherString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

// cypherPropsInner renders properties as "k: v, ..." with keys sorted for
// deterministic output.
func cypherPropsInner(props map[string]interface{}) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+formatCypherValue(props[k]))
	}
	return strings.Join(parts, ", ")
}

// cypherProps is cypherPropsInner wrapped in braces, or empty when there are
// no properties so the match clause stays bare.
func cypherProps(props map[string]interface{}) string {
	if len(props) == 0 {
		return ""
	}
	return "{" + cypherPropsInner(props) + "}"
}

func joinLabels(v interface{}) string {
	items, _ := v.([]interface{})
	labels := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			labels = append(labels, s)
		}
	}
	return strings.Join(labels, ":")
}

func asPropMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
