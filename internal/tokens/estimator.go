// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import "strings"

// =============================================================================
// HEURISTIC ESTIMATOR
// =============================================================================

// Estimator approximates token counts without a vocabulary.
// GPT-style: ~4 chars per token on average.
// Uses a blend of word and character estimates for better accuracy.
type Estimator struct{}

// EstimateTokens returns a heuristic token count; the model ID is ignored.
func (Estimator) EstimateTokens(text, _ string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)

	estimate := (words + chars/4) / 2
	if estimate < 1 {
		return 1
	}
	return estimate
}
