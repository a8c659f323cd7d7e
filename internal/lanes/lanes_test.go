// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/internal/cache"
	"github.com/lumenquery/fusion/internal/domain"
)

type fakeQuerier struct {
	result *base.QueryResult
	err    error
}

func (f *fakeQuerier) Query(_ context.Context, _ *base.Query) (*base.QueryResult, error) {
	return f.result, f.err
}

func baseQuery() domain.Query {
	return domain.Query{ID: "q1", Text: "renewable energy adoption", Mode: domain.ModeResearch, Constraints: domain.Constraints{Depth: domain.DepthTechnical}}
}

func TestHTTPLane_Success(t *testing.T) {
	client := &fakeQuerier{result: &base.QueryResult{Rows: []map[string]interface{}{
		{"url": "https://example.com/a", "title": "A", "snippet": "about renewables"},
	}}}
	lane := NewHTTPLane(domain.LaneWeb, "web-search", client, cache.NewMemoryRateLimiter(), 60, "/search", webRowMapper)

	result := lane.Run(context.Background(), baseQuery(), domain.Constraints{Depth: domain.DepthTechnical}, 1000)

	require.Equal(t, domain.LaneStatusSuccess, result.Status)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, domain.LaneWeb, result.Documents[0].LaneID)
	assert.NotEmpty(t, result.Documents[0].ContentHash)
}

func TestHTTPLane_UpstreamError(t *testing.T) {
	client := &fakeQuerier{err: errors.New("boom")}
	lane := NewHTTPLane(domain.LaneWeb, "web-search", client, cache.NewMemoryRateLimiter(), 60, "/search", webRowMapper)

	result := lane.Run(context.Background(), baseQuery(), domain.Constraints{Depth: domain.DepthTechnical}, 1000)

	assert.Equal(t, domain.LaneStatusError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestHTTPLane_RateLimited(t *testing.T) {
	limiter := cache.NewMemoryRateLimiter()
	ctx := context.Background()
	require.NoError(t, limiter.Allow(ctx, "markets-api", 1))

	client := &fakeQuerier{result: &base.QueryResult{}}
	lane := NewHTTPLane(domain.LaneMarkets, "markets-api", client, limiter, 1, "/quotes", marketsRowMapper)

	result := lane.Run(ctx, baseQuery(), domain.Constraints{Depth: domain.DepthTechnical}, 1000)
	assert.Equal(t, domain.LaneStatusError, result.Status)
}

func TestStoreLane_Success(t *testing.T) {
	client := &fakeQuerier{result: &base.QueryResult{Rows: []map[string]interface{}{
		{"doc_id": "1", "url": "https://kb.example.com/1", "title": "T", "body": "full text body"},
	}}}
	lane := NewStoreLane(domain.LaneKeyword, client, keywordStatementBuilder, keywordRowMapper)

	result := lane.Run(context.Background(), baseQuery(), domain.Constraints{Depth: domain.DepthTechnical}, 1000)

	require.Equal(t, domain.LaneStatusSuccess, result.Status)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, domain.LaneKeyword, result.Documents[0].LaneID)
}

func TestStoreLane_EmptyResultIsError(t *testing.T) {
	client := &fakeQuerier{result: &base.QueryResult{Rows: nil}}
	lane := NewStoreLane(domain.LaneVector, client, vectorStatementBuilder, vectorRowMapper)

	result := lane.Run(context.Background(), baseQuery(), domain.Constraints{Depth: domain.DepthTechnical}, 1000)
	assert.Equal(t, domain.LaneStatusError, result.Status)
	assert.Empty(t, result.Documents)
}

func TestPreflightLane_BindsRecencyConstraint(t *testing.T) {
	lane := NewPreflightLane()
	q := domain.Query{Text: "what is the latest news on inflation"}

	result := lane.Run(context.Background(), q, domain.Constraints{}, 500)

	require.Equal(t, domain.LaneStatusSuccess, result.Status)
	require.NotNil(t, result.RefinedConstraints)
	assert.Equal(t, domain.TimeRangeRecent, result.RefinedConstraints.TimeRange)
}

func TestPreflightLane_DoesNotOverrideExplicitConstraints(t *testing.T) {
	lane := NewPreflightLane()
	q := domain.Query{Text: "latest research papers"}

	result := lane.Run(context.Background(), q, domain.Constraints{TimeRange: domain.TimeRangeAllTime}, 500)

	require.NotNil(t, result.RefinedConstraints)
	assert.Equal(t, domain.TimeRangeAllTime, result.RefinedConstraints.TimeRange)
}

func TestRegistry_BuildDefault(t *testing.T) {
	r := BuildDefault(Deps{
		WebClient: &fakeQuerier{result: &base.QueryResult{}},
		Limiter:   cache.NewMemoryRateLimiter(),
	})

	_, hasWeb := r.Get(domain.LaneWeb)
	_, hasVector := r.Get(domain.LaneVector)
	_, hasPreflight := r.Get(domain.LanePreflight)

	assert.True(t, hasWeb)
	assert.False(t, hasVector)
	assert.True(t, hasPreflight)
}
