// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thinking separates the reasoning sub-channel embedded in a
// streamed reply from the visible answer text.
//
// Some models interleave <thinking>...</thinking> sections with their
// output. The markers arrive inside ordinary content deltas and can be
// split at any byte boundary between network chunks, so extraction runs as
// an incremental state machine rather than a regex over the full reply.
package thinking
