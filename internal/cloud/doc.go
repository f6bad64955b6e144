// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements the OpenRouter API client and SSE stream decoding.
//
// OpenRouter fronts many LLM providers behind one OpenAI-compatible API.
// This package covers the two endpoints the chat loop needs: streaming
// chat completions and the models listing that feeds the pricing catalog.
//
// # Key Types
//
//   - Client: OpenRouter API client with retry and backoff
//   - Decoder: incremental SSE decoder producing ordered content deltas
//   - StreamError: mid-stream failure that preserves partial content
//   - Usage: prompt/completion token counts reported by the API
//
// # Streaming
//
// Streaming requests use a shared pooled HTTP client with no client
// timeout; lifetime is controlled by the caller's context plus a stall
// watchdog that aborts the read when no bytes arrive for too long. A
// slow stream that keeps delivering is never killed by the watchdog
// because every decoded line resets it.
package cloud
