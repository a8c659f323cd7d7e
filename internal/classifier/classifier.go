// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package classifier assigns a query to one of four modes using cheap
// heuristics. It is a pure function with no I/O: the same text and
// attachment list always produce the same mode.
package classifier

import (
	"strings"

	"github.com/lumenquery/fusion/internal/domain"
)

// technicalKeywords signal engineering/technical queries.
var technicalKeywords = []string{
	"algorithm", "api", "architecture", "b-tree", "benchmark", "code",
	"compiler", "database", "debug", "deploy", "docker", "error",
	"function", "implementation", "kubernetes", "latency", "library",
	"lsm", "network", "optimize", "performance", "protocol", "query",
	"schema", "sdk", "server", "syntax", "throughput", "tradeoff",
}

// researchKeywords signal a deep, multi-source research query.
var researchKeywords = []string{
	"analyze", "comprehensive", "compare", "evaluate", "history of",
	"implications", "in-depth", "literature", "research", "review of",
	"state of the art", "survey", "synthesize", "thorough",
}

// multimediaKeywords signal a query about or involving non-text media.
var multimediaKeywords = []string{
	"chart", "diagram", "image", "photo", "picture", "video", "visualize",
	"watch", "listen", "audio", "podcast",
}

// Attachment describes a file or media reference bound to the query.
type Attachment struct {
	ContentType string
}

// Classify maps text and an optional attachment list to a Mode.
// Deterministic; returns ModeSimple by default.
func Classify(text string, attachments []Attachment) domain.Mode {
	if hasMediaAttachment(attachments) {
		return domain.ModeMultimedia
	}

	lower := strings.ToLower(text)

	if containsAny(lower, multimediaKeywords) {
		return domain.ModeMultimedia
	}
	if containsAny(lower, researchKeywords) || len(strings.Fields(text)) > 25 {
		return domain.ModeResearch
	}
	if containsAny(lower, technicalKeywords) {
		return domain.ModeTechnical
	}

	return domain.ModeSimple
}

func hasMediaAttachment(attachments []Attachment) bool {
	for _, a := range attachments {
		if strings.HasPrefix(a.ContentType, "image/") ||
			strings.HasPrefix(a.ContentType, "video/") ||
			strings.HasPrefix(a.ContentType, "audio/") {
			return true
		}
	}
	return false
}

// containsAny reports whether a needle occurs in haystack at the start of
// a word, so "api" does not match inside "capital".
func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		for from := 0; from < len(haystack); {
			i := strings.Index(haystack[from:], n)
			if i < 0 {
				break
			}
			pos := from + i
			if pos == 0 || !isWordByte(haystack[pos-1]) {
				return true
			}
			from = pos + 1
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// ModeLaneBudgetMS is the per-mode, per-lane budget table in milliseconds,
// before the cost_ceiling multiplier is applied.
var ModeLaneBudgetMS = map[domain.Mode]map[domain.LaneID]int64{
	domain.ModeSimple: {
		domain.LaneWeb: 1000, domain.LaneVector: 1000, domain.LaneKG: 1000,
		domain.LaneKeyword: 500, domain.LaneNews: 300, domain.LaneMarkets: 300,
	},
	domain.ModeTechnical: {
		domain.LaneWeb: 1500, domain.LaneVector: 1500, domain.LaneKG: 1500,
		domain.LaneKeyword: 750, domain.LaneNews: 500, domain.LaneMarkets: 500,
	},
	domain.ModeResearch: {
		domain.LaneWeb: 2000, domain.LaneVector: 2000, domain.LaneKG: 2000,
		domain.LaneKeyword: 1000, domain.LaneNews: 800, domain.LaneMarkets: 800,
	},
	domain.ModeMultimedia: {
		domain.LaneWeb: 2000, domain.LaneVector: 2000, domain.LaneKG: 2000,
		domain.LaneKeyword: 1000, domain.LaneNews: 800, domain.LaneMarkets: 800,
	},
}

// ModeGlobalDeadlineMS is the per-mode global deadline in milliseconds.
var ModeGlobalDeadlineMS = map[domain.Mode]int64{
	domain.ModeSimple:     5000,
	domain.ModeTechnical:  7000,
	domain.ModeResearch:   10000,
	domain.ModeMultimedia: 10000,
}

// ModeSynthBudgetMS is the per-mode LLM synthesis budget in milliseconds.
var ModeSynthBudgetMS = map[domain.Mode]int64{
	domain.ModeSimple:     1000,
	domain.ModeTechnical:  1500,
	domain.ModeResearch:   2000,
	domain.ModeMultimedia: 2000,
}
