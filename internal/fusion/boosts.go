// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package fusion

import (
	"fmt"
	"time"

	"github.com/lumenquery/fusion/internal/domain"
)

// domainDiversityBoost returns the incremental score for the occ-th
// (1-based) document seen from a given domain, in RRF-descending
// processing order: the first document from a domain gets the full
// +0.10, the second +0.05, and every subsequent one a shrinking
// +0.10/(occ+1) so a domain that dominates the result doesn't crowd out
// variety without ever zeroing it out entirely.
func domainDiversityBoost(occ int) float64 {
	switch {
	case occ <= 1:
		return 0.10
	case occ == 2:
		return 0.05
	default:
		return 0.10 / float64(occ+1)
	}
}

// recencyBoost rewards freshly published documents; a missing
// publication date contributes no boost rather than being penalized,
// since many authoritative sources (reference docs, standards) simply
// don't carry one.
func recencyBoost(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return 0
	}
	age := now.Sub(*publishedAt)
	switch {
	case age <= 24*time.Hour:
		return 0.05
	case age <= 7*24*time.Hour:
		return 0.025
	case age <= 30*24*time.Hour:
		return 0.01
	default:
		return 0
	}
}

// authorityTable is a bounded [0,1] lookup keyed by domain. Domains not
// present default to a neutral midpoint rather than zero, so an unknown
// but otherwise well-formed source isn't penalized as if untrustworthy.
var authorityTable = map[string]float64{
	"wikipedia.org":    0.80,
	"nature.com":       0.95,
	"arxiv.org":        0.90,
	"reuters.com":      0.90,
	"apnews.com":       0.90,
	"bloomberg.com":    0.85,
	"github.com":       0.70,
	"stackoverflow.com": 0.75,
}

const defaultAuthority = 0.5

// AuthorityScore looks up the bounded authority score for a document's
// domain.
func AuthorityScore(d domain.Document) float64 {
	if score, ok := authorityTable[d.Domain]; ok {
		return score
	}
	if score, ok := d.Metadata["authority_score"]; ok {
		if v, err := parseBoundedFloat(score); err == nil {
			return v
		}
	}
	return defaultAuthority
}

// QualityScore is a cheap readability + completeness heuristic: longer,
// non-trivial content with both a title and a snippet scores higher,
// capped at 1.0. It deliberately avoids any external call so fusion
// never blocks on it.
func QualityScore(d domain.Document) float64 {
	var score float64
	if len(d.Content) >= 200 {
		score += 0.5
	} else if len(d.Content) >= 50 {
		score += 0.25
	}
	if d.Title != "" {
		score += 0.25
	}
	if d.Snippet != "" {
		score += 0.25
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func parseBoundedFloat(s string) (float64, error) {
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}
