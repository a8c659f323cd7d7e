// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package fusion

import (
	"strings"

	"github.com/lumenquery/fusion/internal/domain"
)

const fuzzyTitleJaccardThreshold = 0.8

// mergedDoc tracks one deduplicated document across however many lanes
// it was independently retrieved by.
type mergedDoc struct {
	doc      domain.Document
	lanes    map[domain.LaneID]bool
	laneRank map[domain.LaneID]int // this document's 1-based rank within each contributing lane's list
}

// Deduplicate runs the two-pass merge described in the fusion spec:
// first collapse exact content_hash matches, then collapse same-domain
// documents whose titles are near-duplicates (Jaccard >= 0.8) across
// whatever survived the first pass. Lane contribution sets are unioned
// on every merge so RRF and the contributing-lane tie-break see the
// full picture.
func Deduplicate(results []domain.LaneResult) []*mergedDoc {
	byHash := make(map[string]*mergedDoc)
	order := make([]*mergedDoc, 0)

	for _, result := range results {
		if result.LaneID == domain.LanePreflight {
			continue
		}
		ranks := rankWithinLane(result.Documents)
		for _, d := range result.Documents {
			hash := dedupKey(d)
			rank := ranks[hash]
			if existing, ok := byHash[hash]; ok {
				existing.lanes[result.LaneID] = true
				if _, seen := existing.laneRank[result.LaneID]; !seen {
					existing.laneRank[result.LaneID] = rank
				}
				continue
			}
			m := &mergedDoc{
				doc:      d,
				lanes:    map[domain.LaneID]bool{result.LaneID: true},
				laneRank: map[domain.LaneID]int{result.LaneID: rank},
			}
			byHash[hash] = m
			order = append(order, m)
		}
	}

	return fuzzyMerge(order)
}

// fuzzyMerge runs the second dedup pass: same-domain documents with a
// near-duplicate title are folded into whichever survivor was seen
// first, preserving processing order otherwise.
func fuzzyMerge(docs []*mergedDoc) []*mergedDoc {
	merged := make([]*mergedDoc, 0, len(docs))
	for _, candidate := range docs {
		foundMatch := false
		for _, survivor := range merged {
			if survivor.doc.Domain == "" || candidate.doc.Domain != survivor.doc.Domain {
				continue
			}
			if titleJaccard(survivor.doc.Title, candidate.doc.Title) >= fuzzyTitleJaccardThreshold {
				for lane := range candidate.lanes {
					survivor.lanes[lane] = true
					if rank, ok := candidate.laneRank[lane]; ok {
						if existing, seen := survivor.laneRank[lane]; !seen || rank < existing {
							survivor.laneRank[lane] = rank
						}
					}
				}
				foundMatch = true
				break
			}
		}
		if !foundMatch {
			merged = append(merged, candidate)
		}
	}
	return merged
}

// titleJaccard computes token-set Jaccard similarity over lowercased
// whitespace-split titles.
func titleJaccard(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
