// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package citation aligns synthesized answer sentences to the source
// passages that support them: it segments the answer into sentences,
// scores each sentence against every candidate document passage, picks
// the best-matching passages above a similarity floor, assigns citation
// markers in first-occurrence order, builds the bibliography, and flags
// sentences whose cited sources make conflicting factual claims.
package citation

import (
	"regexp"
	"strings"
)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "vs": true, "etc": true, "inc": true,
	"ltd": true, "co": true, "e.g": true, "i.e": true, "u.s": true,
	"fig": true, "no": true, "vol": true, "st": true,
}

var sentenceBoundary = regexp.MustCompile(`([.!?])(\s+)`)

// SegmentSentences splits answer text into sentences, treating a
// trailing period after a known abbreviation as not sentence-final.
func SegmentSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	indices := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	if len(indices) == 0 {
		return []string{text}
	}

	var sentences []string
	start := 0
	for _, idx := range indices {
		puncEnd := idx[3] // end of punctuation group

		if endsWithAbbreviation(text[start:puncEnd]) {
			continue
		}

		sentences = append(sentences, strings.TrimSpace(text[start:puncEnd]))
		start = idx[1]
	}
	if start < len(text) {
		rest := strings.TrimSpace(text[start:])
		if rest != "" {
			sentences = append(sentences, rest)
		}
	}
	return sentences
}

func endsWithAbbreviation(sentenceSoFar string) bool {
	words := strings.Fields(sentenceSoFar)
	if len(words) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimRight(words[len(words)-1], "."))
	return abbreviations[last]
}
