// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package fusion merges the documents retrieved by each lane into one
// ranked list: Reciprocal Rank Fusion combines each lane's internal
// ordering, domain-diversity and recency boosts adjust for a single
// lane dominating the result, two-pass deduplication collapses
// near-identical documents across lanes, and a final weighted score
// orders the merged set.
package fusion

import (
	"sort"

	"github.com/lumenquery/fusion/internal/domain"
)

const defaultRRFK = 60

// RRFScore computes the Reciprocal Rank Fusion score for a document
// across every lane result it appears in, 1/(k+rank) summed per lane,
// rank being the document's 1-based position within that lane's
// returned list.
func RRFScore(laneRanks []int, k int) float64 {
	if k <= 0 {
		k = defaultRRFK
	}
	var score float64
	for _, rank := range laneRanks {
		score += 1.0 / float64(k+rank)
	}
	return score
}

// rankWithinLane returns dedupKey(doc) -> 1-based rank for a single lane's
// documents, in the order the lane returned them.
func rankWithinLane(docs []domain.Document) map[string]int {
	ranks := make(map[string]int, len(docs))
	for i, d := range docs {
		key := dedupKey(d)
		if _, exists := ranks[key]; !exists {
			ranks[key] = i + 1
		}
	}
	return ranks
}

func dedupKey(d domain.Document) string {
	if d.ContentHash != "" {
		return d.ContentHash
	}
	return d.URL
}

// sortByFinalScore orders fused documents by FinalScore descending,
// with deterministic tie-breaks: more contributing lanes, then higher
// authority, then content hash, so equal-scoring documents order the
// same way on every run.
func sortByFinalScore(docs []domain.FusedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if len(a.ContributingLanes) != len(b.ContributingLanes) {
			return len(a.ContributingLanes) > len(b.ContributingLanes)
		}
		if a.ComponentScores.Authority != b.ComponentScores.Authority {
			return a.ComponentScores.Authority > b.ComponentScores.Authority
		}
		return a.Document.ContentHash < b.Document.ContentHash
	})
}
