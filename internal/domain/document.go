// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package domain

import "time"

// Document is a value object; it is never mutated after a lane produces
// it. Identity is ContentHash; Domain is extracted from URL.
type Document struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Domain      string            `json:"domain"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Snippet     string            `json:"snippet"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Author      string            `json:"author,omitempty"`
	Score       float64           `json:"score"` // lane-local rank score
	LaneID      LaneID            `json:"lane_id"`
	ContentHash string            `json:"content_hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LaneStatus is the terminal state of a lane run.
type LaneStatus string

const (
	LaneStatusSuccess  LaneStatus = "success"
	LaneStatusTimeout  LaneStatus = "timeout"
	LaneStatusError    LaneStatus = "error"
	LaneStatusDisabled LaneStatus = "disabled"
)

// LaneResult is produced exactly once per lane per query, even on
// timeout or error; any documents retrieved before cancellation are
// retained in Documents.
type LaneResult struct {
	LaneID    LaneID     `json:"lane_id"`
	Status    LaneStatus `json:"status"`
	Documents []Document `json:"documents"`
	LatencyMS int64      `json:"latency_ms"`
	Error     string     `json:"error,omitempty"`

	// RefinedQuery and RefinedConstraints are populated only by the
	// pre-flight lane, whose output is a refined query and constraint
	// binding rather than documents.
	RefinedQuery       string       `json:"refined_query,omitempty"`
	RefinedConstraints *Constraints `json:"refined_constraints,omitempty"`
}

// ComponentScores records the individual contributions that sum (with
// ranking weights) into a FusedDocument's final score.
type ComponentScores struct {
	RRF            float64 `json:"rrf"`
	DomainDiversity float64 `json:"domain_diversity"`
	Recency        float64 `json:"recency"`
	Authority      float64 `json:"authority"`
	Quality        float64 `json:"quality"`
}

// FusedDocument is a Document merged across lanes, scored, and ordered
// by its final weighted score.
type FusedDocument struct {
	Document        Document
	RRFScore        float64
	ComponentScores ComponentScores
	FinalScore      float64
	ContributingLanes map[LaneID]bool
}
