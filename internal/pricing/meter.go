// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// PRICING: Cumulative session accounting
package pricing

import (
	"fmt"
	"sync"
)

// Meter tracks cumulative token usage and cost across a session.
// All methods are safe for concurrent access.
type Meter struct {
	mu sync.RWMutex

	// Turns is the number of completed assistant turns.
	Turns int `json:"turns"`
	// PromptTokens is the cumulative prompt token count.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens is the cumulative completion token count.
	CompletionTokens int `json:"completion_tokens"`
	// TotalCost is the cumulative dollar cost.
	TotalCost float64 `json:"total_cost"`
}

// NewMeter creates a zeroed meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Record adds one turn's usage, costed against the given pricing.
func (m *Meter) Record(promptTokens, completionTokens int, info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Turns++
	m.PromptTokens += promptTokens
	m.CompletionTokens += completionTokens
	m.TotalCost += Cost(promptTokens, completionTokens, info)
}

// Snapshot returns a copy of the current totals.
func (m *Meter) Snapshot() (turns, promptTokens, completionTokens int, totalCost float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Turns, m.PromptTokens, m.CompletionTokens, m.TotalCost
}

// Summary returns a human-readable line for the stats display.
func (m *Meter) Summary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Turns == 0 {
		return "No turns completed yet"
	}

	// Sub-cent totals get extra precision so they do not read as zero.
	costFormat := "$%.4f"
	if m.TotalCost > 0 && m.TotalCost < 0.01 {
		costFormat = "$%.6f"
	}

	return fmt.Sprintf(
		"Session: %d turns | %d prompt + %d completion tokens | Cost: "+costFormat,
		m.Turns, m.PromptTokens, m.CompletionTokens, m.TotalCost,
	)
}

// Reset clears all totals.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Turns = 0
	m.PromptTokens = 0
	m.CompletionTokens = 0
	m.TotalCost = 0
}
