// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.RRFK)
	assert.Equal(t, 0.7, cfg.CitationSimThreshold)
	assert.Equal(t, 3, cfg.CitationTopK)
	assert.Equal(t, int64(1500), cfg.TTFTTargetMS)
	assert.Equal(t, int64(10000), cfg.HeartbeatIntervalMS)
	assert.Equal(t, 90, cfg.AuditRetentionDays)
	assert.Equal(t, "memory", cfg.EmbeddingCacheBackend)
	assert.Equal(t, "postgres", cfg.KeywordBackend)
	assert.True(t, cfg.LaneEnabled[domain.LaneWeb])
}

func TestLoad_LaneOverridesFromEnv(t *testing.T) {
	t.Setenv("LANE_ENABLED_markets", "false")
	t.Setenv("LANE_BUDGET_MS_web", "1234")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.LaneEnabled[domain.LaneMarkets])
	assert.Equal(t, int64(1234), cfg.LaneBudgetOverrideMS[domain.LaneWeb])
}

func TestLoad_SLADeadlinesFromEnv(t *testing.T) {
	t.Setenv("SLA_MODE_DEADLINES_MS", "simple=4000, research=12000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(4000), cfg.SLAModeDeadlinesMS[domain.ModeSimple])
	assert.Equal(t, int64(12000), cfg.SLAModeDeadlinesMS[domain.ModeResearch])
}

func TestLoad_RejectsMalformedSLADeadlines(t *testing.T) {
	t.Setenv("SLA_MODE_DEADLINES_MS", "simple:4000")
	_, err := Load()
	require.Error(t, err)
}

func TestParseModeDeadlines(t *testing.T) {
	out, err := parseModeDeadlines("simple=5000,technical=7000")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), out[domain.ModeSimple])
	assert.Equal(t, int64(7000), out[domain.Mode("technical")])

	_, err = parseModeDeadlines("simple=-1")
	assert.Error(t, err)

	_, err = parseModeDeadlines("simple=abc")
	assert.Error(t, err)

	out, err = parseModeDeadlines("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
