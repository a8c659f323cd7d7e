// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package mysql backs the keyword-index lane with MySQL natural-language
// full-text search. It is the drop-in alternative to the postgres
// connector for deployments whose document corpus already lives in
// MySQL (KEYWORD_BACKEND=mysql): same named "search_documents"
// operation, same named-parameter convention, MATCH...AGAINST instead
// of tsquery.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/lumenquery/fusion/connectors/base"
)

// DefaultSearchTable is the document table searched when the deployment
// doesn't override it.
const DefaultSearchTable = "documents"

// SearchOperation is the named read the keyword lane issues.
const SearchOperation = "search_documents"

// MySQLConnector implements the keyword index over MySQL FULLTEXT.
type MySQLConnector struct {
	config *base.ConnectorConfig
	db     *sql.DB
	logger *log.Logger
	table  string
}

// NewMySQLConnector creates a keyword-index connector over MySQL.
func NewMySQLConnector() *MySQLConnector {
	return &MySQLConnector{
		logger: log.New(os.Stdout, "[keyword_mysql] ", log.LstdFlags),
	}
}

// Connect opens the connection pool and verifies reachability.
func (c *MySQLConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	c.table = DefaultSearchTable
	if t, ok := config.Options["search_table"].(string); ok && t != "" {
		c.table = t
	}
	if err := base.ValidateSQLIdentifier(c.table); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid search_table", err)
	}

	db, err := sql.Open("mysql", config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to open connection", err)
	}

	maxOpenConns := 25
	maxIdleConns := 5
	if val, ok := config.Options["max_open_conns"].(int); ok {
		maxOpenConns = val
	}
	if val, ok := config.Options["max_idle_conns"].(int); ok {
		maxIdleConns = val
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return base.NewConnectorError(config.Name, "Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("connected keyword index %s (table=%s)", config.Name, c.table)
	return nil
}

// Disconnect closes the pool.
func (c *MySQLConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to close connection", err)
	}
	return nil
}

// HealthCheck pings the database.
func (c *MySQLConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
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

// searchSQL renders the natural-language full-text search. The score
// column is aliased "rank" to match the keyword lane's row shape across
// both SQL backends.
func (c *MySQLConnector) searchSQL() string {
	return fmt.Sprintf("SELECT doc_id, url, title, body, MATCH(title, body) AGAINST(:term IN NATURAL LANGUAGE MODE) AS `rank` FROM %s WHERE MATCH(title, body) AGAINST(:term IN NATURAL LANGUAGE MODE) ORDER BY `rank` DESC LIMIT :max_results", c.table)
}

// Query runs the named search operation or generic SQL with named
// parameters.
func (c *MySQLConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.db == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "database not connected", nil)
	}

	statement := query.Statement
	if statement == SearchOperation {
		statement = c.searchSQL()
	}

	bound, args, err := base.BindNamed(statement, query.Parameters, base.QuestionPlaceholder)
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

	return &base.QueryResult{
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute supports "ensure_schema", "index_document", and generic SQL
// with named parameters.
func (c *MySQLConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
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
		bound, args, err = base.BindNamed(cmd.Statement, cmd.Parameters, base.QuestionPlaceholder)
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

func (c *MySQLConnector) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		doc_id VARCHAR(64) PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		body MEDIUMTEXT NOT NULL,
		published_at DATETIME NULL,
		FULLTEXT KEY search_idx (title, body)
	) ENGINE=InnoDB`, c.table)
	_, err := c.db.ExecContext(ctx, ddl)
	return err
}

func (c *MySQLConnector) indexDocument(ctx context.Context, params map[string]interface{}) (sql.Result, error) {
	if params["doc_id"] == nil || params["url"] == nil {
		return nil, fmt.Errorf("index_document requires doc_id and url")
	}

	upsert := fmt.Sprintf(`INSERT INTO %s (doc_id, url, title, body, published_at)
		VALUES (:doc_id, :url, :title, :body, :published_at)
		ON DUPLICATE KEY UPDATE
		url = VALUES(url), title = VALUES(title), body = VALUES(body),
		published_at = VALUES(published_at)`, c.table)

	bound, args, err := base.BindNamed(upsert, map[string]interface{}{
		"doc_id": params["doc_id"], "url": params["url"],
		"title": params["title"], "body": params["body"],
		"published_at": params["published_at"],
	}, base.QuestionPlaceholder)
	if err != nil {
		return nil, err
	}
	return c.db.ExecContext(ctx, bound, args...)
}

// Name returns the connector instance name.
func (c *MySQLConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "mysql-keyword-index"
}

// Type returns the connector type.
func (c *MySQLConnector) Type() string { return "mysql" }

// Version returns the connector version.
func (c *MySQLConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *MySQLConnector) Capabilities() []string {
	return []string{"query", "execute", "full-text-search"}
}

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
