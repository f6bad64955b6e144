// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// PRICING: Catalog resolution from live model listings
package pricing

import (
	"strconv"
	"sync"
)

// Entry is one raw catalog record as reported by the models endpoint.
// Prices arrive as per-token decimal strings.
type Entry struct {
	ID                 string
	Provider           string
	PromptPerToken     string
	CompletionPerToken string
	MarkedFree         bool
}

// Catalog resolves model IDs to pricing Info.
// Safe for concurrent access; entries are replaced wholesale by Update.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog creates an empty catalog. Until Update is called every
// lookup falls through to the conservative defaults.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Update replaces the catalog contents with a fresh model listing.
func (c *Catalog) Update(entries []Entry) {
	fresh := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		fresh[e.ID] = e
	}

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve returns pricing Info for a model ID.
//
// The upstream free flag is only trusted when the ID itself says ":free";
// the API has marked paid models free before, and the reverse mistake
// (billing a free model as paid) is the safe direction. Zero-priced
// entries without the suffix resolve non-free because they may still
// require credits. A model absent from the catalog resolves non-free
// with unknown rates for the same reason.
func (c *Catalog) Resolve(modelID string) Info {
	c.mu.RLock()
	entry, ok := c.entries[modelID]
	c.mu.RUnlock()

	explicitlyFree := IsExplicitlyFree(modelID)

	if !ok {
		if explicitlyFree {
			return Info{IsFree: true, Provider: "OpenRouter"}
		}
		return Info{Provider: "Unknown"}
	}

	provider := entry.Provider
	if provider == "" {
		provider = "Unknown"
	}

	if explicitlyFree && entry.MarkedFree {
		return Info{IsFree: true, Provider: provider}
	}

	// Per-token prices scale to per-1K. Unparseable strings read as 0.
	promptPerK := parsePerToken(entry.PromptPerToken) * 1000
	completionPerK := parsePerToken(entry.CompletionPerToken) * 1000

	if promptPerK == 0 && completionPerK == 0 && explicitlyFree {
		return Info{IsFree: true, Provider: provider}
	}

	return Info{
		PromptPricePer1K:     promptPerK,
		CompletionPricePer1K: completionPerK,
		Provider:             provider,
	}
}

func parsePerToken(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
