// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package llm generates the synthesized answer from the fused,
// citation-ready document set. A Synthesizer is a small, streaming-first
// interface so the orchestrator can swap the AWS Bedrock-backed
// implementation for the deterministic rule-based fallback the moment
// synthesis starts failing, without either caller or handler code
// changing shape.
package llm

import "context"

// SynthesisRequest carries everything a Synthesizer needs to produce an
// answer: the assembled prompt (already containing the fused document
// context) and a soft token ceiling (MaxTokens).
type SynthesisRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Model        string
}

// StreamChunk is one piece of a streaming synthesis response.
type StreamChunk struct {
	Content string
	Done    bool
	Error   string
}

// StreamHandler receives each chunk as it's produced; returning an
// error aborts the stream.
type StreamHandler func(chunk StreamChunk) error

// SynthesisResult is the aggregated response once streaming completes.
type SynthesisResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Degraded         bool
}

// Synthesizer generates a streamed answer from a prompt, invoking
// handler for every chunk and returning the aggregated result once
// done. Implementations must respect ctx cancellation so the
// orchestrator's global deadline can cut synthesis off mid-stream.
type Synthesizer interface {
	Generate(ctx context.Context, req SynthesisRequest, handler StreamHandler) (*SynthesisResult, error)
}
