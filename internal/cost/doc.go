// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

/*
Package cost records the dollar cost and latency of processing a query,
so what synthesis cost can be reported by trace id. The cost_ceiling
constraint is applied through the budget multiplier in internal/config,
not by this package.

# Overview

The cost package records two kinds of events to PostgreSQL:

  - Query events: HTTP-level outcome of a processed query (mode, status,
    latency), for error-rate and latency accounting.
  - Synthesis events: one LLM synthesis call, with token counts and a
    derived dollar cost, including whether the call degraded to the
    rule-based fallback path.

# Usage

Create a recorder with a database connection:

	recorder := cost.NewRecorder(db)

Record a completed query:

	err := recorder.RecordQuery(cost.QueryCostEvent{
	    TraceID:        query.TraceID,
	    Mode:           string(query.Mode),
	    HTTPMethod:     "POST",
	    HTTPPath:       "/v1/search",
	    HTTPStatusCode: 200,
	    LatencyMs:      1820,
	})

Record an LLM synthesis call with automatic cost calculation:

	err := recorder.RecordSynthesis(cost.SynthesisCostEvent{
	    TraceID:          query.TraceID,
	    Provider:         "bedrock",
	    Model:            "anthropic.claude-3-sonnet",
	    PromptTokens:     1200,
	    CompletionTokens: 340,
	    TotalTokens:      1540,
	    LatencyMs:        940,
	})

# Cost Calculation

Synthesis costs are calculated from the pricing table in pricing.go:

	costCents := cost.CalculateCost("bedrock", "anthropic.claude-3-sonnet", promptTokens, completionTokens)

# Thread Safety

Recorder is safe for concurrent use; recording methods are typically called
from a goroutine so they never block the response path.
*/
package cost
