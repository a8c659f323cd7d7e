// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package lanes implements the retrieval backends the orchestrator fans
// a query out to. Every lane satisfies the same Lane interface regardless
// of what sits behind it (an HTTP search API, a document store, a
// keyword index) so the orchestrator's fan-out/fan-in loop never special
// cases a backend. This mirrors the connectors/base.Connector pattern:
// one capability surface, many concrete implementations selected by
// config.
package lanes

import (
	"context"
	"time"

	"github.com/lumenquery/fusion/internal/domain"
)

// Lane is the uniform capability every retrieval backend exposes. Run
// must respect ctx cancellation and must never block past the deadline
// derived from budgetMS; a lane that cannot finish in time should return
// whatever partial documents it already has with a Timeout status rather
// than blocking the caller.
type Lane interface {
	ID() domain.LaneID
	Run(ctx context.Context, query domain.Query, constraints domain.Constraints, budgetMS int64) domain.LaneResult
}

// runWithDeadline wraps a lane body with the standard timing and
// timeout/cancellation bookkeeping so each concrete lane only has to
// implement its actual fetch-and-convert logic.
func runWithDeadline(ctx context.Context, laneID domain.LaneID, budgetMS int64, body func(ctx context.Context) ([]domain.Document, error)) domain.LaneResult {
	start := time.Now()
	deadline := time.Duration(budgetMS) * time.Millisecond
	laneCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	docs, err := body(laneCtx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		status := domain.LaneStatusError
		if laneCtx.Err() == context.DeadlineExceeded || ctx.Err() == context.DeadlineExceeded {
			status = domain.LaneStatusTimeout
		}
		return domain.LaneResult{
			LaneID:    laneID,
			Status:    status,
			Documents: docs,
			LatencyMS: elapsed,
			Error:     err.Error(),
		}
	}

	return domain.LaneResult{
		LaneID:    laneID,
		Status:    domain.LaneStatusSuccess,
		Documents: docs,
		LatencyMS: elapsed,
	}
}
