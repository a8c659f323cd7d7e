// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package cassandra backs the knowledge-graph lane. Facts are stored as
// (entity, relation, target, source_url) rows in a Cassandra keyspace;
// the lane's "expand_entity" operation matches facts whose search
// column equals a query token and the connector renders it into CQL.
// Generic CQL with named ":placeholder" parameters is accepted for
// everything else.
package cassandra

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/lumenquery/fusion/connectors/base"
)

// DefaultFactsTable holds graph facts unless overridden by the
// "facts_table" option.
const DefaultFactsTable = "facts"

// ExpandOperation is the named read the knowledge-graph lane issues.
const ExpandOperation = "expand_entity"

// CassandraConnector implements the knowledge-graph store over
// Cassandra via gocql.
type CassandraConnector struct {
	config  *base.ConnectorConfig
	session *gocql.Session
	logger  *log.Logger
	table   string
}

// NewCassandraConnector creates a knowledge-graph connector.
func NewCassandraConnector() *CassandraConnector {
	return &CassandraConnector{
		logger: log.New(os.Stdout, "[kg_cassandra] ", log.LstdFlags),
	}
}

// Connect builds the cluster session. ConnectionURL is
// "host1,host2/keyspace"; hosts without a keyspace default to "fusion".
func (c *CassandraConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	c.table = DefaultFactsTable
	if t, ok := config.Options["facts_table"].(string); ok && t != "" {
		c.table = t
	}
	if err := base.ValidateSQLIdentifier(c.table); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid facts_table", err)
	}

	hosts, keyspace, err := parseConnectionURL(config.ConnectionURL)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "invalid connection URL", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	if level, ok := config.Options["consistency"].(string); ok {
		cluster.Consistency = parseConsistency(level)
	}

	cluster.Timeout = 5 * time.Second
	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	}
	cluster.ConnectTimeout = cluster.Timeout

	if username, ok := config.Credentials["username"]; ok && username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: config.Credentials["password"],
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to create session", err)
	}

	c.session = session
	c.logger.Printf("connected knowledge graph %s (keyspace=%s, table=%s)", config.Name, keyspace, c.table)
	return nil
}

// Disconnect closes the session.
func (c *CassandraConnector) Disconnect(ctx context.Context) error {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	return nil
}

// HealthCheck runs a trivial query against the system keyspace.
func (c *CassandraConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.session == nil {
		return &base.HealthStatus{Healthy: false, Error: "session not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	err := c.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Exec()
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

// expandCQL renders the fact expansion for one query token.
func (c *CassandraConnector) expandCQL() string {
	return fmt.Sprintf("SELECT entity, relation, target, source_url FROM %s WHERE entity_search = :term LIMIT :max_results", c.table)
}

// Query runs the named expand operation or generic CQL with named
// parameters, bound in placeholder order.
func (c *CassandraConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.session == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "session not connected", nil)
	}

	statement := query.Statement
	if statement == ExpandOperation {
		statement = c.expandCQL()
	}

	bound, args, err := base.BindNamed(statement, query.Parameters, base.QuestionPlaceholder)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "parameter binding failed", err)
	}

	start := time.Now()
	iter := c.session.Query(bound, args...).WithContext(ctx).Iter()

	var rows []map[string]interface{}
	for {
		row := make(map[string]interface{})
		if !iter.MapScan(row) {
			break
		}
		rows = append(rows, normalizeRow(row))
	}
	if err := iter.Close(); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query execution failed", err)
	}
	duration := time.Since(start)

	c.logger.Printf("query returned %d rows in %v", len(rows), duration)

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute supports "insert_fact" (idempotent by primary key, as all
// Cassandra inserts are) and generic CQL with named parameters.
func (c *CassandraConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.session == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "session not connected", nil)
	}

	statement := cmd.Statement
	params := cmd.Parameters
	if cmd.Action == "insert_fact" {
		statement = fmt.Sprintf(
			"INSERT INTO %s (entity, entity_search, relation, target, source_url) VALUES (:entity, :entity_search, :relation, :target, :source_url)",
			c.table)
	}

	bound, args, err := base.BindNamed(statement, params, base.QuestionPlaceholder)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "parameter binding failed", err)
	}

	start := time.Now()
	if err := c.session.Query(bound, args...).WithContext(ctx).Exec(); err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command failed", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      "applied",
		Connector:    c.Name(),
	}, nil
}

// Name returns the connector instance name.
func (c *CassandraConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "cassandra-kg"
}

// Type returns the connector type.
func (c *CassandraConnector) Type() string { return "cassandra" }

// Version returns the connector version.
func (c *CassandraConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *CassandraConnector) Capabilities() []string {
	return []string{"query", "execute", "graph-expansion"}
}

// normalizeRow flattens gocql values to types RowMappers understand.
func normalizeRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			out[k] = string(val)
		case gocql.UUID:
			out[k] = val.String()
		default:
			out[k] = v
		}
	}
	return out
}

// parseConnectionURL splits "host1,host2/keyspace" into its parts.
func parseConnectionURL(url string) ([]string, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("connection URL is empty")
	}

	keyspace := "fusion"
	hostsPart := url
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		hostsPart = url[:idx]
		if ks := url[idx+1:]; ks != "" {
			keyspace = ks
		}
	}

	hosts := strings.Split(hostsPart, ",")
	for i, h := range hosts {
		hosts[i] = strings.TrimSpace(h)
		if hosts[i] == "" {
			return nil, "", fmt.Errorf("empty host in %q", url)
		}
	}
	return hosts, keyspace, nil
}

func parseConsistency(level string) gocql.Consistency {
	switch strings.ToLower(level) {
	case "one":
		return gocql.One
	case "quorum":
		return gocql.Quorum
	case "all":
		return gocql.All
	case "local_one":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
