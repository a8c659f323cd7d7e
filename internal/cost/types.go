// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package cost

// QueryCostEvent represents a single processed query, recorded for latency
// and error-rate accounting against the HTTP surface.
type QueryCostEvent struct {
	TraceID        string
	Mode           string // classifier mode: simple, technical, research, multimedia
	HTTPMethod     string
	HTTPPath       string
	HTTPStatusCode int
	LatencyMs      int64
}

// SynthesisCostEvent represents one call to the LLM synthesizer made while
// answering a query, recorded with token usage and derived dollar cost.
type SynthesisCostEvent struct {
	TraceID          string
	Provider         string // "bedrock"
	Model            string // "anthropic.claude-3-sonnet", ...
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Degraded         bool // true if synthesis fell back to the rule-based path
}
