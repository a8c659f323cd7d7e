// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/lumenquery/fusion/connectors/base"
)

// DefaultSearchTable is the document table the keyword lane searches
// when the deployment doesn't override it.
const DefaultSearchTable = "documents"

// SearchOperation is the named read the keyword lane issues. The
// connector renders it into the backend's own full-text dialect, so
// swapping Postgres for MySQL under the keyword lane changes nothing
// above this layer.
const SearchOperation = "search_documents"

// PostgresConnector backs the keyword-index lane with a tsvector
// full-text index, and accepts generic SQL with named ":placeholder"
// parameters for everything else.
type PostgresConnector struct {
	config *base.ConnectorConfig
	db     *sql.DB
	logger *log.Logger
	table  string
}

// NewPostgresConnector creates a keyword-index connector over Postgres.
func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{
		logger: log.New(os.Stdout, "[keyword_pg] ", log.LstdFlags),
	}
}

// Connect opens the connection pool and verifies reachability.
func (c *PostgresConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	c.table = DefaultSearchTable
	if t, ok := config.Options["search_table"].(string); ok && t != "" {
		c.table = t
	}
	if err := base.ValidateSQLIdentifier(c.table); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid search_table", err)
	}

	db, err := sql.Open("postgres", config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to open connection", err)
	}

	maxOpenConns := 25
	maxIdleConns := 5
	connMaxLifetime := 5 * time.Minute
	if val, ok := config.Options["max_open_conns"].(int); ok {
		maxOpenConns = val
	}
	if val, ok := config.Options["max_idle_conns"].(int); ok {
		maxIdleConns = val
	}
	if val, ok := config.Options["conn_max_lifetime"].(string); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			connMaxLifetime = duration
		}
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return base.NewConnectorError(config.Name, "Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("connected keyword index %s (table=%s, max_conns=%d)", config.Name, c.table, maxOpenConns)
	return nil
}

// Disconnect closes the pool.
func (c *PostgresConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to close connection", err)
	}
	return nil
}

// HealthCheck pings the database.
func (c *PostgresConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.db == nil {
		return &base.HealthStatus{Healthy: false, Error: "database not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"table": c.table},
		Timestamp: time.Now(),
	}, nil
}

// searchSQL renders the full-text search the keyword lane runs:
// websearch_to_tsquery tolerates raw user query syntax and ts_rank
// orders by relevance.
func (c *PostgresConnector) searchSQL() string {
	return fmt.Sprintf(`SELECT doc_id, url, title, body, ts_rank(search_vector, websearch_to_tsquery('english', :term)) AS rank FROM %s WHERE search_vector @@ websearch_to_tsquery('english', :term) ORDER BY rank DESC LIMIT :max_results`, c.table)
}

// Query runs the named search operation or generic SQL with named
// parameters, returning rows as flat maps.
func (c *PostgresConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "database not connected", nil)
	}

	statement := query.Statement
	if statement == SearchOperation {
		statement = c.searchSQL()
	}

	bound, args, err := base.BindNamed(statement, query.Parameters, base.PostgresPlaceholder)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "parameter binding failed", err)
	}

	if query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, query.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, bound, args...)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	resultRows, err := scanRows(rows)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "row scan failed", err)
	}
	duration := time.Since(start)

	c.logger.Printf("query returned %d rows in %v", len(resultRows), duration)

	return &base.QueryResult{
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute runs a write. Recognized actions: "ensure_schema" creates the
// document table and its GIN index, "index_document" upserts one
// document; anything else is generic SQL with named parameters.
func (c *PostgresConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "database not connected", nil)
	}

	start := time.Now()
	var result sql.Result
	var err error

	switch cmd.Action {
	case "ensure_schema":
		if err = c.ensureSchema(ctx); err == nil {
			return &base.CommandResult{
				Success:   true,
				Duration:  time.Since(start),
				Message:   "schema ready",
				Connector: c.Name(),
			}, nil
		}
	case "index_document":
		result, err = c.indexDocument(ctx, cmd.Parameters)
	default:
		var bound string
		var args []interface{}
		bound, args, err = base.BindNamed(cmd.Statement, cmd.Parameters, base.PostgresPlaceholder)
		if err == nil {
			result, err = c.db.ExecContext(ctx, bound, args...)
		}
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command failed", err)
	}

	affected := int64(0)
	if result != nil {
		affected, _ = result.RowsAffected()
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(affected),
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%d rows affected", affected),
		Connector:    c.Name(),
	}, nil
}

func (c *PostgresConnector) ensureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			search_vector TSVECTOR GENERATED ALWAYS AS (
				setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
				setweight(to_tsvector('english', coalesce(body, '')), 'B')
			) STORED
		)`, c.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_search_idx ON %s USING GIN (search_vector)`, c.table, c.table),
	}
	for _, stmt := range ddl {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *PostgresConnector) indexDocument(ctx context.Context, params map[string]interface{}) (sql.Result, error) {
	if params["doc_id"] == nil || params["url"] == nil {
		return nil, fmt.Errorf("index_document requires doc_id and url")
	}

	upsert := fmt.Sprintf(`INSERT INTO %s (doc_id, url, title, body, published_at)
		VALUES (:doc_id, :url, :title, :body, :published_at)
		ON CONFLICT (doc_id) DO UPDATE
		SET url = EXCLUDED.url, title = EXCLUDED.title, body = EXCLUDED.body,
		    published_at = EXCLUDED.published_at`, c.table)

	bound, args, err := base.BindNamed(upsert, map[string]interface{}{
		"doc_id": params["doc_id"], "url": params["url"],
		"title": params["title"], "body": params["body"],
		"published_at": params["published_at"],
	}, base.PostgresPlaceholder)
	if err != nil {
		return nil, err
	}
	return c.db.ExecContext(ctx, bound, args...)
}

// Name returns the connector instance name.
func (c *PostgresConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "postgres-keyword-index"
}

// Type returns the connector type.
func (c *PostgresConnector) Type() string { return "postgres" }

// Version returns the connector version.
func (c *PostgresConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *PostgresConnector) Capabilities() []string {
	return []string{"query", "execute", "full-text-search"}
}

// scanRows converts sql.Rows into flat maps, decoding []byte values to
// strings so RowMappers see text, not driver blobs.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[strings.ToLower(col)] = string(b)
			} else {
				row[strings.ToLower(col)] = val
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
