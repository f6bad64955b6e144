// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contextwin enforces a token budget over a conversation by
// trimming whole messages, oldest first, while pinning the leading system
// message.
package contextwin
