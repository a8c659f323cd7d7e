// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for the fusion pipeline.

# Overview

The logger package provides structured logging that writes JSON through the
standard library log package (stderr unless the process redirects it),
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (classifier, orchestrator, lanes, fusion, citation, ...)
  - Instance ID and container name (for distributed tracing)
  - Trace ID (joins log lines to the query's audit record and stream events)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("orchestrator")

Log messages with trace context:

	log.Info(query.TraceID, requestID, "lane completed", map[string]interface{}{
	    "lane":    "vector",
	    "status":  "success",
	})

Log errors tagged with a taxonomy kind (see internal/ferrors):

	log.ErrorWithCode(query.TraceID, requestID, "lane failed", "lane_error", err, map[string]interface{}{
	    "lane": "news",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration(query.TraceID, requestID, "request completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON, preceded by the log package's
date and time prefix unless its flags are cleared:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"orchestrator","instance_id":"i-abc123","container":"fusiond-xyz",
	 "trace_id":"9f1c...","request_id":"req-456",
	 "message":"lane completed","fields":{"lane":"vector"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
