// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"strings"
)

// RuleBasedSynthesizer produces an answer by concatenating the leading
// snippet of each supplied passage with no model call at all. It is the
// synthesis_failed fallback: deterministic, instant, and always
// available, at the cost of not actually composing a coherent answer.
type RuleBasedSynthesizer struct{}

// NewRuleBasedSynthesizer builds the fallback synthesizer.
func NewRuleBasedSynthesizer() *RuleBasedSynthesizer {
	return &RuleBasedSynthesizer{}
}

// Generate ignores req.Prompt's free-form instructions and instead
// expects the passages to summarize to be newline-separated within it,
// since the fallback path runs after the real prompt template has
// already failed to produce a usable completion.
func (f *RuleBasedSynthesizer) Generate(ctx context.Context, req SynthesisRequest, handler StreamHandler) (*SynthesisResult, error) {
	passages := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	var b strings.Builder
	for i, p := range passages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := handler(StreamChunk{Content: p}); err != nil {
			return nil, err
		}
	}

	content := b.String()
	if err := handler(StreamChunk{Done: true}); err != nil {
		return nil, err
	}

	return &SynthesisResult{Content: content, Model: "rule-based-fallback", Degraded: true}, nil
}
