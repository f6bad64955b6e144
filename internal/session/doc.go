// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates one chat conversation: turn lifecycle,
// context trimming, reasoning extraction, usage accounting, and autosave.
//
// A session owns exactly one Conversation at a time. Each Send call runs
// one complete turn: the user message is appended, the context window is
// trimmed to budget, the reply is streamed and split into visible and
// reasoning channels, and the finished assistant message is appended with
// its token count. If the stream fails or is cancelled before a reply is
// produced, the user message is rolled back so the conversation never
// carries an unanswered turn.
//
// # Key Types
//
//   - Session: Conversation owner and turn orchestrator
//   - Options: Per-session behavior (model, temperature, thinking mode, budget)
//   - Turn: Result of one completed turn
//   - Stats: Session-cumulative token, cost, and timing counters
//
// # Usage
//
// Run one turn:
//
//	turn, err := sess.Send(ctx, "hello", func(delta string) {
//	    fmt.Print(delta)
//	})
//
// Sessions are not safe for concurrent use; one goroutine drives all
// turns, matching the single-stream ordering requirement.
package session
