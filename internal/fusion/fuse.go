// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package fusion

import (
	"sort"
	"time"

	"github.com/lumenquery/fusion/internal/domain"
)

// Weighting is the final composite-score weight split. It is fixed per
// the product decision recorded for this pipeline (see DESIGN.md) and
// is not currently operator-tunable.
type Weighting struct {
	RRF       float64
	Authority float64
	Quality   float64
	Length    float64
}

// DefaultWeighting is 0.70 RRF / 0.15 authority / 0.10 quality / 0.05
// length-presence.
var DefaultWeighting = Weighting{RRF: 0.70, Authority: 0.15, Quality: 0.10, Length: 0.05}

// Fuse merges every lane's LaneResult into one ranked, deduplicated
// list of FusedDocuments. k is the RRF constant (spec default 60); now
// is injected so recency scoring is deterministic in tests.
func Fuse(results []domain.LaneResult, k int, now time.Time) []domain.FusedDocument {
	merged := Deduplicate(results)

	// Pass 1: raw RRF score per merged document, summed across every
	// lane it was seen in.
	prelim := make([]domain.FusedDocument, 0, len(merged))
	for _, m := range merged {
		if m.doc.ID == "" {
			m.doc.ID = m.doc.ContentHash
		}
		ranks := make([]int, 0, len(m.laneRank))
		for _, r := range m.laneRank {
			ranks = append(ranks, r)
		}
		rrf := RRFScore(ranks, k)
		lanes := make(map[domain.LaneID]bool, len(m.lanes))
		for lane := range m.lanes {
			lanes[lane] = true
		}
		prelim = append(prelim, domain.FusedDocument{
			Document:          m.doc,
			RRFScore:          rrf,
			ContributingLanes: lanes,
			ComponentScores:   domain.ComponentScores{RRF: rrf},
		})
	}

	// Process in RRF-descending order so domain-diversity boosts apply
	// to the strongest match from a domain first.
	sort.SliceStable(prelim, func(i, j int) bool { return prelim[i].RRFScore > prelim[j].RRFScore })

	domainOccurrences := make(map[string]int)
	for i := range prelim {
		d := prelim[i].Document
		domainOccurrences[d.Domain]++

		diversity := domainDiversityBoost(domainOccurrences[d.Domain])
		recency := recencyBoost(d.PublishedAt, now)
		authority := AuthorityScore(d)
		quality := QualityScore(d)

		prelim[i].ComponentScores.DomainDiversity = diversity
		prelim[i].ComponentScores.Recency = recency
		prelim[i].ComponentScores.Authority = authority
		prelim[i].ComponentScores.Quality = quality

		boostedRRF := prelim[i].RRFScore + diversity + recency
		lengthPresence := 0.0
		if d.Content != "" {
			lengthPresence = 1.0
		}

		prelim[i].FinalScore = DefaultWeighting.RRF*boostedRRF +
			DefaultWeighting.Authority*authority +
			DefaultWeighting.Quality*quality +
			DefaultWeighting.Length*lengthPresence
	}

	sortByFinalScore(prelim)
	return prelim
}
