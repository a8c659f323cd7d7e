// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package domain

// LaneID names a retrieval lane.
type LaneID string

const (
	LaneWeb       LaneID = "web"
	LaneVector    LaneID = "vector"
	LaneKG        LaneID = "kg"
	LaneKeyword   LaneID = "keyword"
	LaneNews      LaneID = "news"
	LaneMarkets   LaneID = "markets"
	LanePreflight LaneID = "preflight"
)

// Budget is computed once at query admission from mode x cost multiplier.
// Invariant: sum(PerLane) + ReserveMS <= GlobalDeadlineMS.
type Budget struct {
	GlobalDeadlineMS int64
	PerLane          map[LaneID]int64
	ReserveMS        int64
	SynthBudgetMS    int64
}

// MinReserveMS is the floor the orchestrator always keeps back for
// synthesis and citation alignment once retrieval lanes are cut off.
const MinReserveMS int64 = 500

// PreflightBudgetMS is fixed regardless of mode or cost ceiling.
const PreflightBudgetMS int64 = 500

// PreflightMinRetentionRatio: the pre-flight lane is skipped if running it
// would project any other lane to retain less than this fraction of its
// allocation.
const PreflightMinRetentionRatio = 0.25
