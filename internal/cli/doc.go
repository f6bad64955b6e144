// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive orchat terminal client.
//
// The package wraps a session.Session in a readline-style REPL: input
// history and line editing via liner, slash commands for controlling the
// session, live token streaming to stdout, and markdown re-rendering of
// finished replies via glamour when stdout is a terminal.
//
// # Key Types
//
//   - ChatCLI: liner wrapper providing history-backed input
//   - ChatSession: REPL state tying the engine session to storage and config
//
// # Usage
//
//	chat := cli.NewChatSession(sess, store, cfg)
//	defer chat.Close()
//	err := chat.Run()
//
// Slash commands (see printHelp for the authoritative list) cover model
// and temperature switching, system prompt edits, reasoning display,
// conversation persistence, and usage statistics.
package cli
