// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"database/sql"
	"log"
)

// Recorder persists per-query cost and latency events to Postgres so the
// audit trail can report what a query cost, independent of whether the
// synthesis path degraded to the rule-based fallback.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a cost recorder backed by the given database handle.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates the cost_events table if it does not already
// exist. Call once at startup before recording any events.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS cost_events (
		id BIGSERIAL PRIMARY KEY,
		trace_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(16) NOT NULL,
		mode VARCHAR(32),
		http_method VARCHAR(8),
		http_path VARCHAR(255),
		http_status_code INT,
		provider VARCHAR(32),
		model VARCHAR(128),
		prompt_tokens INT,
		completion_tokens INT,
		total_tokens INT,
		estimated_cost_cents INT,
		latency_ms BIGINT,
		degraded BOOLEAN,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cost_events_trace_id ON cost_events(trace_id);
	`)
	return err
}

// RecordQuery records a completed query's HTTP-level outcome.
// Call asynchronously; a failure here must never block the response.
func (r *Recorder) RecordQuery(event QueryCostEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO cost_events (
			trace_id, event_type, mode,
			http_method, http_path, http_status_code, latency_ms
		) VALUES ($1, 'query', $2, $3, $4, $5, $6)
	`, event.TraceID, event.Mode, event.HTTPMethod, event.HTTPPath,
		event.HTTPStatusCode, event.LatencyMs)

	if err != nil {
		log.Printf("[cost] failed to record query event: %v", err)
	}

	return err
}

// RecordSynthesis records one LLM synthesis call with its derived cost.
func (r *Recorder) RecordSynthesis(event SynthesisCostEvent) error {
	costCents := CalculateCost(event.Provider, event.Model,
		event.PromptTokens, event.CompletionTokens)

	_, err := r.db.Exec(`
		INSERT INTO cost_events (
			trace_id, event_type, provider, model, prompt_tokens,
			completion_tokens, total_tokens, estimated_cost_cents,
			latency_ms, degraded
		) VALUES ($1, 'synthesis', $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.TraceID, event.Provider, event.Model, event.PromptTokens,
		event.CompletionTokens, event.TotalTokens, costCents,
		event.LatencyMs, event.Degraded)

	if err != nil {
		log.Printf("[cost] failed to record synthesis event: %v", err)
	}

	return err
}
