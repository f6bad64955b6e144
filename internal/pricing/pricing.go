// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// PRICING: Per-model rates and the cost contract
package pricing

import (
	"fmt"
	"strings"
)

// FreeSuffix marks model IDs that OpenRouter serves at no charge.
const FreeSuffix = ":free"

// Info holds resolved pricing for a single model.
// Derived once per model selection; immutable until the model changes.
type Info struct {
	// IsFree is true only for models explicitly marked free by ID.
	IsFree bool `json:"is_free"`
	// PromptPricePer1K is the dollar cost per 1000 prompt tokens.
	PromptPricePer1K float64 `json:"prompt_price_per_1k"`
	// CompletionPricePer1K is the dollar cost per 1000 completion tokens.
	CompletionPricePer1K float64 `json:"completion_price_per_1k"`
	// Provider is the upstream provider name, "Unknown" when unresolved.
	Provider string `json:"provider"`
}

// Cost returns the dollar cost of a turn. Free models cost zero
// unconditionally; otherwise token counts are scaled to the per-1K rates.
func Cost(promptTokens, completionTokens int, info Info) float64 {
	if info.IsFree {
		return 0
	}
	promptCost := float64(promptTokens) / 1000 * info.PromptPricePer1K
	completionCost := float64(completionTokens) / 1000 * info.CompletionPricePer1K
	return promptCost + completionCost
}

// IsExplicitlyFree reports whether a model ID carries the free marker.
// The suffix check covers the common case; the Contains check covers
// variant-tagged IDs such as "model:free:extended".
func IsExplicitlyFree(modelID string) bool {
	return strings.HasSuffix(modelID, FreeSuffix) ||
		strings.Contains(modelID, FreeSuffix+":")
}

// Display returns a short human-readable description of the pricing.
// Sub-tenth-of-a-cent rates get an extra decimal place so tiny prices
// do not render as $0.000.
func (i Info) Display() string {
	if i.IsFree {
		return "FREE"
	}
	if i.PromptPricePer1K == 0 && i.CompletionPricePer1K == 0 {
		return "Pricing unknown - may require credits"
	}
	return fmt.Sprintf("%s/1K prompt, %s/1K completion",
		formatPrice(i.PromptPricePer1K), formatPrice(i.CompletionPricePer1K))
}

func formatPrice(perK float64) string {
	if perK < 0.001 {
		return fmt.Sprintf("$%.4f", perK)
	}
	return fmt.Sprintf("$%.3f", perK)
}
