// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/internal/domain"
)

func doc(url, domainName, title, contentHash string, published *time.Time) domain.Document {
	return domain.Document{
		URL:         url,
		Domain:      domainName,
		Title:       title,
		Content:     "some body text describing " + title,
		ContentHash: contentHash,
		PublishedAt: published,
	}
}

func TestRRFScore_SumsAcrossLanes(t *testing.T) {
	score := RRFScore([]int{1, 3}, 60)
	assert.InDelta(t, 1.0/61.0+1.0/63.0, score, 1e-9)
}

func TestDeduplicate_ExactContentHashMerge(t *testing.T) {
	now := time.Now()
	results := []domain.LaneResult{
		{LaneID: domain.LaneWeb, Documents: []domain.Document{doc("https://a.com/x", "a.com", "Title", "hash1", &now)}},
		{LaneID: domain.LaneVector, Documents: []domain.Document{doc("https://a.com/x", "a.com", "Title", "hash1", &now)}},
	}

	merged := Deduplicate(results)
	require.Len(t, merged, 1)
	assert.Len(t, merged[0].lanes, 2)
	assert.True(t, merged[0].lanes[domain.LaneWeb])
	assert.True(t, merged[0].lanes[domain.LaneVector])
}

func TestDeduplicate_FuzzyTitleMerge(t *testing.T) {
	results := []domain.LaneResult{
		{LaneID: domain.LaneWeb, Documents: []domain.Document{doc("https://a.com/1", "a.com", "Renewable Energy Adoption Trends 2026", "h1", nil)}},
		{LaneID: domain.LaneKeyword, Documents: []domain.Document{doc("https://a.com/2", "a.com", "Renewable Energy Adoption Trends", "h2", nil)}},
	}

	merged := Deduplicate(results)
	require.Len(t, merged, 1)
	assert.Len(t, merged[0].lanes, 2)
}

func TestDeduplicate_DifferentDomainsNotMerged(t *testing.T) {
	results := []domain.LaneResult{
		{LaneID: domain.LaneWeb, Documents: []domain.Document{doc("https://a.com/1", "a.com", "Same Title", "h1", nil)}},
		{LaneID: domain.LaneNews, Documents: []domain.Document{doc("https://b.com/1", "b.com", "Same Title", "h2", nil)}},
	}

	merged := Deduplicate(results)
	assert.Len(t, merged, 2)
}

func TestDomainDiversityBoost_Decreasing(t *testing.T) {
	assert.Equal(t, 0.10, domainDiversityBoost(1))
	assert.Equal(t, 0.05, domainDiversityBoost(2))
	assert.InDelta(t, 0.10/4.0, domainDiversityBoost(3), 1e-9)
}

func TestRecencyBoost_Tiers(t *testing.T) {
	now := time.Now()
	oneHourAgo := now.Add(-time.Hour)
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)
	twentyDaysAgo := now.Add(-20 * 24 * time.Hour)
	ninetyDaysAgo := now.Add(-90 * 24 * time.Hour)

	assert.Equal(t, 0.05, recencyBoost(&oneHourAgo, now))
	assert.Equal(t, 0.025, recencyBoost(&threeDaysAgo, now))
	assert.Equal(t, 0.01, recencyBoost(&twentyDaysAgo, now))
	assert.Equal(t, 0.0, recencyBoost(&ninetyDaysAgo, now))
	assert.Equal(t, 0.0, recencyBoost(nil, now))
}

func TestFuse_MultiLaneDuplicateGetsHigherRank(t *testing.T) {
	now := time.Now()
	results := []domain.LaneResult{
		{LaneID: domain.LaneWeb, Documents: []domain.Document{
			doc("https://a.com/dup", "a.com", "Shared Article", "dup-hash", &now),
			doc("https://c.com/solo", "c.com", "Solo Web Result", "solo-web", &now),
		}},
		{LaneID: domain.LaneVector, Documents: []domain.Document{
			doc("https://a.com/dup", "a.com", "Shared Article", "dup-hash", &now),
		}},
	}

	fused := Fuse(results, 60, now)
	require.NotEmpty(t, fused)
	assert.Equal(t, "dup-hash", fused[0].Document.ContentHash)
	assert.Len(t, fused[0].ContributingLanes, 2)
}

func TestFuse_IgnoresPreflightLane(t *testing.T) {
	now := time.Now()
	refined := domain.Constraints{}
	results := []domain.LaneResult{
		{LaneID: domain.LanePreflight, RefinedConstraints: &refined},
		{LaneID: domain.LaneWeb, Documents: []domain.Document{doc("https://a.com/1", "a.com", "T", "h1", &now)}},
	}

	fused := Fuse(results, 60, now)
	require.Len(t, fused, 1)
}

func TestAuthorityScore_KnownAndUnknownDomains(t *testing.T) {
	assert.Equal(t, 0.95, AuthorityScore(domain.Document{Domain: "nature.com"}))
	assert.Equal(t, defaultAuthority, AuthorityScore(domain.Document{Domain: "unknown-blog.example"}))
}

func TestQualityScore_RewardsCompleteness(t *testing.T) {
	rich := domain.Document{Title: "T", Snippet: "S", Content: string(make([]byte, 250))}
	thin := domain.Document{}
	assert.Greater(t, QualityScore(rich), QualityScore(thin))
}
