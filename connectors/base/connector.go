// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"time"
)

// Connector is the capability every retrieval and storage backend
// exposes to the rest of the pipeline: search providers, the keyword
// index, the vector store, the knowledge graph, the archive object
// stores, and the cache probe all speak this surface. Lanes and the
// audit archive drive a Connector without knowing which engine backs
// it, which is what lets a deployment swap backends with environment
// variables alone.
type Connector interface {
	// Lifecycle
	Connect(ctx context.Context, config *ConnectorConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Query runs a read against the backend: a provider search, a
	// full-text lookup, a similarity search, a graph expansion.
	Query(ctx context.Context, query *Query) (*QueryResult, error)

	// Execute runs a write: indexing a document, upserting an
	// embedding, putting an archive object.
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	// Metadata
	Name() string           // instance name, e.g. "web-search"
	Type() string           // backend type, e.g. "postgres", "search_api"
	Version() string        // connector version
	Capabilities() []string // supported operations
}

// ConnectorConfig holds the wiring for one backend instance. One config
// is bound per instance at startup; connectors never re-read the
// environment after Connect.
type ConnectorConfig struct {
	Name          string                 `json:"name"`           // unique instance name
	Type          string                 `json:"type"`           // backend type
	ConnectionURL string                 `json:"connection_url"` // DSN / base URL / host list
	Credentials   map[string]string      `json:"credentials"`    // API keys, passwords (resolved via secrets manager)
	Options       map[string]interface{} `json:"options"`        // backend-specific options
	Timeout       time.Duration          `json:"timeout"`        // per-operation timeout
	MaxRetries    int                    `json:"max_retries"`    // transient-failure retry cap
}

// Query is one read operation. Statement is backend specific: a path
// for HTTP search providers, SQL/CQL with named ":placeholder"
// parameters for stores, or a named operation for the vector store.
type Query struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    time.Duration          `json:"timeout"`
	Limit      int                    `json:"limit"`
}

// QueryResult carries result rows back as flat key-value maps so a
// lane's RowMapper can turn them into Documents without importing any
// driver type.
type QueryResult struct {
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Duration  time.Duration            `json:"duration"`
	Cached    bool                     `json:"cached"`
	Connector string                   `json:"connector"`
	Metadata  map[string]interface{}   `json:"metadata,omitempty"`
}

// Command is one write operation, selected by Action.
type Command struct {
	Action     string                 `json:"action"`
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    time.Duration          `json:"timeout"`
}

// CommandResult reports the outcome of a Command.
type CommandResult struct {
	Success      bool                   `json:"success"`
	RowsAffected int                    `json:"rows_affected"`
	Duration     time.Duration          `json:"duration"`
	Message      string                 `json:"message"`
	Connector    string                 `json:"connector"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus is what GET /health reports per backend.
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ConnectorError wraps a backend failure with the instance and
// operation it came from. Lanes map it into the pipeline error
// taxonomy; nothing above a lane sees a raw driver error.
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError.
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
