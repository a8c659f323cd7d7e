// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"github.com/lumenquery/fusion/internal/classifier"
	"github.com/lumenquery/fusion/internal/domain"
)

// ComputeBudget derives a query's Budget from its mode and constraints.
// Budgets are multiplied by the cost_ceiling multiplier, then floored to
// leave a >= MinReserveMS orchestrator reserve.
func (c *Config) ComputeBudget(mode domain.Mode, constraints domain.Constraints) domain.Budget {
	globalDeadline := classifier.ModeGlobalDeadlineMS[mode]
	if override, ok := c.SLAModeDeadlinesMS[mode]; ok {
		globalDeadline = override
	}

	multiplier := constraints.CostCeiling.Multiplier()

	perLane := make(map[domain.LaneID]int64)
	var sum int64
	for lane, base := range classifier.ModeLaneBudgetMS[mode] {
		if enabled, ok := c.LaneEnabled[lane]; ok && !enabled {
			continue
		}
		ms := int64(float64(base) * multiplier)
		if override, ok := c.LaneBudgetOverrideMS[lane]; ok {
			ms = override
		}
		perLane[lane] = ms
		sum += ms
	}

	reserve := domain.MinReserveMS
	if sum+reserve > globalDeadline {
		// Scale lane budgets down proportionally to preserve the reserve.
		available := globalDeadline - reserve
		if available < 0 {
			available = 0
		}
		if sum > 0 {
			scale := float64(available) / float64(sum)
			scaledSum := int64(0)
			for lane, ms := range perLane {
				scaled := int64(float64(ms) * scale)
				perLane[lane] = scaled
				scaledSum += scaled
			}
			sum = scaledSum
		}
	}

	synthBudget := int64(float64(classifier.ModeSynthBudgetMS[mode]) * multiplier)

	return domain.Budget{
		GlobalDeadlineMS: globalDeadline,
		PerLane:          perLane,
		ReserveMS:        reserve,
		SynthBudgetMS:    synthBudget,
	}
}

// ShouldRunPreflight projects whether running the fixed-budget pre-flight
// lane in parallel with lane setup would push any other lane below the
// minimum retention ratio of its allocation.
func ShouldRunPreflight(budget domain.Budget) bool {
	for _, ms := range budget.PerLane {
		if ms <= 0 {
			continue
		}
		retained := ms - domain.PreflightBudgetMS
		if float64(retained)/float64(ms) < domain.PreflightMinRetentionRatio {
			return false
		}
	}
	return true
}
