// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/internal/domain"
)

func TestComputeBudget_SimpleMode(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	budget := cfg.ComputeBudget(domain.ModeSimple, domain.Constraints{})

	assert.Equal(t, int64(5000), budget.GlobalDeadlineMS)
	assert.Equal(t, int64(1000), budget.PerLane[domain.LaneWeb])
	assert.Equal(t, int64(500), budget.PerLane[domain.LaneKeyword])

	var sum int64
	for _, ms := range budget.PerLane {
		sum += ms
	}
	assert.LessOrEqual(t, sum+budget.ReserveMS, budget.GlobalDeadlineMS)
}

func TestComputeBudget_CostCeilingMultiplier(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	low := cfg.ComputeBudget(domain.ModeResearch, domain.Constraints{CostCeiling: domain.CostLow})
	high := cfg.ComputeBudget(domain.ModeResearch, domain.Constraints{CostCeiling: domain.CostHigh})

	assert.Less(t, low.PerLane[domain.LaneWeb], high.PerLane[domain.LaneWeb])
}

func TestComputeBudget_NeverExceedsGlobalDeadline(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	budget := cfg.ComputeBudget(domain.ModeResearch, domain.Constraints{CostCeiling: domain.CostHigh})

	var sum int64
	for _, ms := range budget.PerLane {
		sum += ms
	}
	assert.LessOrEqual(t, sum+budget.ReserveMS, budget.GlobalDeadlineMS)
}

func TestShouldRunPreflight(t *testing.T) {
	generous := domain.Budget{PerLane: map[domain.LaneID]int64{domain.LaneWeb: 2000}}
	assert.True(t, ShouldRunPreflight(generous))

	tight := domain.Budget{PerLane: map[domain.LaneID]int64{domain.LaneWeb: 600}}
	assert.False(t, ShouldRunPreflight(tight))
}
