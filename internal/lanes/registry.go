// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"github.com/lumenquery/fusion/internal/cache"
	"github.com/lumenquery/fusion/internal/domain"
)

// Registry is the sum-type collection of concrete lanes, keyed by
// LaneID, that the orchestrator fans a query out to. A disabled lane is
// simply absent from the map; the orchestrator skips an absent lane
// without invoking Run and records no LaneResult for it, so no result
// with domain.LaneStatusDisabled is produced.
type Registry struct {
	lanes map[domain.LaneID]Lane
}

// NewRegistry builds an empty registry; call Register for each enabled
// lane during wiring.
func NewRegistry() *Registry {
	return &Registry{lanes: make(map[domain.LaneID]Lane)}
}

// Register adds a lane, keyed by its own ID.
func (r *Registry) Register(lane Lane) {
	r.lanes[lane.ID()] = lane
}

// Get returns the lane for id, or nil, false if it isn't registered
// (disabled or unsupported deployment).
func (r *Registry) Get(id domain.LaneID) (Lane, bool) {
	l, ok := r.lanes[id]
	return l, ok
}

// Enabled returns the IDs of every registered lane.
func (r *Registry) Enabled() []domain.LaneID {
	ids := make([]domain.LaneID, 0, len(r.lanes))
	for id := range r.lanes {
		ids = append(ids, id)
	}
	return ids
}

// Deps bundles the wiring inputs shared across lane constructors so
// cmd/fusiond's main can build a Registry in one call instead of
// threading each connector through by hand.
type Deps struct {
	WebClient     httpQuerier
	NewsClient    httpQuerier
	MarketsClient httpQuerier
	VectorClient  storeQuerier
	KGClient      storeQuerier
	KeywordClient storeQuerier
	Limiter       cache.ProviderRateLimiter
}

// BuildDefault registers every lane for which Deps supplies a client,
// with each provider's rate limit and row mapper.
func BuildDefault(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(NewPreflightLane())

	if deps.WebClient != nil {
		r.Register(NewHTTPLane(domain.LaneWeb, "web-search", deps.WebClient, deps.Limiter, 60, "/search", webRowMapper))
	}
	if deps.NewsClient != nil {
		r.Register(NewHTTPLane(domain.LaneNews, "news-api", deps.NewsClient, deps.Limiter, 60, "/news", newsRowMapper))
	}
	if deps.MarketsClient != nil {
		r.Register(NewHTTPLane(domain.LaneMarkets, "markets-api", deps.MarketsClient, deps.Limiter, 120, "/quotes", marketsRowMapper))
	}
	if deps.VectorClient != nil {
		r.Register(NewStoreLane(domain.LaneVector, deps.VectorClient, vectorStatementBuilder, vectorRowMapper))
	}
	if deps.KGClient != nil {
		r.Register(NewStoreLane(domain.LaneKG, deps.KGClient, kgStatementBuilder, kgRowMapper))
	}
	if deps.KeywordClient != nil {
		r.Register(NewStoreLane(domain.LaneKeyword, deps.KeywordClient, keywordStatementBuilder, keywordRowMapper))
	}

	return r
}
