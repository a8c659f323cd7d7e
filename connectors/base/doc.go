// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

/*
Package base defines the capability surface every retrieval and storage
backend exposes to the fusion pipeline.

# Overview

A lane never talks to a driver directly; it drives a Connector. The same
interface covers the web/news/markets search providers (HTTP), the
keyword index (Postgres or MySQL), the vector store (MongoDB), the
knowledge graph (Cassandra), the cache probe (Redis), and the audit
archive object stores (S3, Azure Blob, GCS). Swapping a backend is a
wiring change in cmd/fusiond, not a code change in any lane.

# Connector Interface

	type Connector interface {
	    // Lifecycle
	    Connect(ctx context.Context, config *ConnectorConfig) error
	    Disconnect(ctx context.Context) error
	    HealthCheck(ctx context.Context) (*HealthStatus, error)

	    // Reads: searches, lookups, expansions
	    Query(ctx context.Context, query *Query) (*QueryResult, error)

	    // Writes: indexing, upserts, archive puts
	    Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	    // Metadata
	    Name() string
	    Type() string
	    Version() string
	    Capabilities() []string
	}

Every operation takes a context and must honor its deadline and
cancellation: lane budgets are enforced above this layer by cancelling
the context, and a connector that ignores cancellation can hold a lane
past its budget.

# Parameter Binding

Store-backed statements use named ":placeholder" parameters. BindNamed
rewrites them into the driver's positional style with arguments ordered
by placeholder position in the statement text, so a statement binds
identically on every run regardless of how the parameter map iterates.
"::" is passed through untouched for Postgres casts.

	stmt, args, err := base.BindNamed(
	    "SELECT url, title FROM search_documents(:term, :max_results)",
	    map[string]interface{}{"term": "b-tree", "max_results": 20},
	    base.PostgresPlaceholder,
	)

# Retries

RetryPolicy bounds transient-failure retries at the backend edge: at
most two retries with jittered exponential backoff, inside the lane
budget. Nothing above a connector retries; the orchestrator moves on
with partial results.

# Security

ValidateURL rejects outbound URLs that resolve to private or reserved
address space before an HTTP connector dials them, and supports host
allow/block lists per provider. SanitizeLogString escapes line
breaks, strips ANSI escape sequences and truncates untrusted text
before logging. ValidateSQLIdentifier
vets configured table names before they are interpolated into DDL.

# Errors

Connectors return *ConnectorError carrying the instance name, the
operation, and the wrapped cause. Lanes map these into the pipeline
error taxonomy; raw driver errors never cross a lane boundary.
*/
package base
