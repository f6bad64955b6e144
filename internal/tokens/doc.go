// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens provides token counting for conversation budgeting.
//
// The primary implementation wraps tiktoken encodings for accurate counts
// on OpenAI-family models; a heuristic estimator covers everything else.
// Counts are deterministic for a given (text, model) pair within a session.
package tokens
