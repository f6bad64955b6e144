// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing converts token counts into monetary cost.
//
// Prices are expressed per 1K tokens in dollars. Catalog data comes from
// the OpenRouter models listing, which reports per-token prices as strings;
// Resolve scales those to per-1K and applies the free-model rules.
//
// # Key Types
//
//   - Info: resolved pricing for one model (free flag, per-1K prices)
//   - Catalog: model ID -> Info resolution with conservative defaults
//   - Meter: cumulative session token and cost accounting
//
// # Free Models
//
// A model is treated as free only when its ID explicitly carries the
// ":free" suffix. Zero-priced entries without that suffix may still
// require credits, so they resolve as non-free. Unknown models resolve
// non-free as well; assuming zero cost is the one mistake this package
// must never make.
package pricing
