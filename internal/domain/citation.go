// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package domain

import "time"

// Citation attaches a document passage to a marker number, assigned on
// first occurrence in reading order.
type Citation struct {
	MarkerID    int     `json:"marker_id"`
	DocumentRef string  `json:"document_ref"` // Document.ID
	Passage     string  `json:"passage"`
	Similarity  float64 `json:"similarity"`
	Confidence  float64 `json:"confidence"`
}

// AnswerSentence is one sentence of the synthesized answer with its
// ordered citation markers.
type AnswerSentence struct {
	Text       string `json:"text"`
	Citations  []int  `json:"citations"`
	Confidence float64 `json:"confidence"`
	NoSource   bool   `json:"no_source,omitempty"`
}

// DisagreementSeverity grades how strongly two cited passages conflict.
type DisagreementSeverity string

const (
	SeverityLow    DisagreementSeverity = "low"
	SeverityMedium DisagreementSeverity = "medium"
	SeverityHigh   DisagreementSeverity = "high"
)

// Disagreement records two or more cited passages whose claims contradict
// on a shared topic.
type Disagreement struct {
	Topic               string               `json:"topic"`
	ConflictingCitations []int               `json:"conflicting_citations"`
	Severity            DisagreementSeverity `json:"severity"`
	SentenceIndex       int                  `json:"sentence_index"`
}

// BibliographyEntry is one entry in the ordered bibliography, in
// first-appearance order.
type BibliographyEntry struct {
	MarkerID    int        `json:"marker_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Author      string     `json:"author,omitempty"`
	Excerpt     string     `json:"excerpt"`
}

// LaneOutcome is the per-lane summary recorded in the audit trail.
type LaneOutcome struct {
	LaneID    LaneID     `json:"lane_id"`
	Status    LaneStatus `json:"status"`
	LatencyMS int64      `json:"latency_ms"`
	DocCount  int        `json:"doc_count"`
}

// AuditRecord is written exactly once per query, after stream completion
// or abort, and is retrievable by trace id.
type AuditRecord struct {
	TraceID         string              `json:"trace_id"`
	Query           Query               `json:"query"`
	Mode            Mode                `json:"mode"`
	Budget          Budget              `json:"budget"`
	PerLaneResults  []LaneOutcome       `json:"per_lane_results"`
	FusedDocIDs     []string            `json:"fused_doc_ids"`
	AnswerSentences []AnswerSentence    `json:"answer_sentences"`
	Citations       []Citation          `json:"citations"`
	Bibliography    []BibliographyEntry `json:"bibliography"`
	Disagreements   []Disagreement      `json:"disagreements"`
	TotalLatencyMS  int64               `json:"total_latency_ms"`
	AnsweredUnderSLA bool               `json:"answered_under_sla"`
	TTFTMs          int64               `json:"ttft_ms"`
	Partial         bool                `json:"partial"`
	Cancelled       bool                `json:"cancelled"`
	WrittenAt       time.Time           `json:"written_at"`
}
