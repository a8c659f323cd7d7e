// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package cost tracks the dollar cost and token spend of the LLM
// synthesis step, so what a query cost can be reported by trace id.
// The cost_ceiling constraint is applied through the budget multiplier
// in internal/config, not by this package.
package cost

import "fmt"

// Bedrock model pricing as of October 2025.
// Prices stored in cents per 1K tokens to avoid floating point issues.
// All prices are USD.

// ProviderPricing contains pricing for a specific model
type ProviderPricing struct {
	PromptCostPer1K     int // cents per 1K prompt tokens
	CompletionCostPer1K int // cents per 1K completion tokens
}

// providerPricing maps provider-model combinations to pricing
var providerPricing = map[string]ProviderPricing{
	// Bedrock-hosted Anthropic models
	"bedrock-anthropic.claude-3-opus":      {1500, 7500}, // $0.015/$0.075 per 1K tokens
	"bedrock-anthropic.claude-3-sonnet":    {300, 1500},  // $0.003/$0.015 per 1K tokens
	"bedrock-anthropic.claude-3-haiku":     {25, 125},    // $0.00025/$0.00125 per 1K tokens
	"bedrock-anthropic.claude-3.5-sonnet":  {300, 1500},  // $0.003/$0.015 per 1K tokens

	// Bedrock-hosted Titan text models
	"bedrock-amazon.titan-text-express": {20, 60}, // $0.0002/$0.0006 per 1K tokens

	// Default fallback pricing (conservative estimate)
	"default": {1000, 3000}, // $0.01/$0.03 per 1K tokens
}

// CalculateCost calculates the cost in cents for an LLM request
// Returns cost in cents (integer) to avoid floating point precision issues
func CalculateCost(provider, model string, promptTokens, completionTokens int) int {
	// Build lookup key
	key := provider + "-" + model

	// Get pricing, fallback to default if not found
	pricing, ok := providerPricing[key]
	if !ok {
		pricing = providerPricing["default"]
	}

	// Calculate cost in cents
	promptCost := (promptTokens * pricing.PromptCostPer1K) / 1000
	completionCost := (completionTokens * pricing.CompletionCostPer1K) / 1000

	return promptCost + completionCost
}

// GetProviderPricing returns the pricing for a specific provider-model combination
// This is useful for displaying pricing information to users
func GetProviderPricing(provider, model string) (ProviderPricing, bool) {
	key := provider + "-" + model
	pricing, ok := providerPricing[key]
	return pricing, ok
}

// FormatCostToDollars converts cents to dollar string (e.g., 135 cents -> "$1.35")
func FormatCostToDollars(cents int) string {
	dollars := float64(cents) / 100.0
	return fmt.Sprintf("$%.2f", dollars)
}
