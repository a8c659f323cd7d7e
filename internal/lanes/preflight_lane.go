// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"context"
	"strings"
	"time"

	"github.com/lumenquery/fusion/internal/domain"
)

var recencyHints = []string{"latest", "recent", "today", "this week", "breaking", "right now", "currently"}
var academicHints = []string{"paper", "study", "research", "peer-reviewed", "journal", "dataset"}
var newsHints = []string{"news", "headline", "reported", "announced"}

// PreflightLane runs a fast, fixed-budget heuristic pass over the raw
// query to bind constraints the caller left unset, before the real
// lanes fan out. It never rewrites the query text itself, only the
// constraint binding is "refined", so a caller that already supplied
// explicit constraints is left untouched; this lane only fills gaps.
type PreflightLane struct{}

// NewPreflightLane builds the heuristic pre-flight lane. It has no
// external dependencies: it is a pure function of the query text,
// deliberately kept inside its fixed 500ms budget rather than calling
// out to the synthesis model.
func NewPreflightLane() *PreflightLane {
	return &PreflightLane{}
}

func (l *PreflightLane) ID() domain.LaneID { return domain.LanePreflight }

func (l *PreflightLane) Run(ctx context.Context, query domain.Query, constraints domain.Constraints, budgetMS int64) domain.LaneResult {
	start := time.Now()
	_ = ctx

	refined := constraints
	lower := strings.ToLower(query.Text)

	if refined.TimeRange == "" && containsAny(lower, recencyHints) {
		refined.TimeRange = domain.TimeRangeRecent
	}
	if refined.Sources == "" {
		switch {
		case containsAny(lower, academicHints):
			refined.Sources = domain.SourcesAcademic
		case containsAny(lower, newsHints):
			refined.Sources = domain.SourcesNews
		}
	}

	return domain.LaneResult{
		LaneID:             domain.LanePreflight,
		Status:             domain.LaneStatusSuccess,
		LatencyMS:          time.Since(start).Milliseconds(),
		RefinedConstraints: &refined,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
