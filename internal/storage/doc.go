// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for orchat.
//
// Conversations are stored in a local SQLite database, one row per
// conversation with the full document as JSON alongside the metadata
// columns used for listing and retention.
//
// # Key Types
//
//   - Store: SQLite-backed conversation store
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
// Open a store and save a conversation:
//
//	store, err := storage.Open(path)
//	id, err := store.Save(ctx, conversation)
//
// List and load conversations:
//
//	metas, err := store.List(ctx)
//	conv, err := store.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// The default database lives at ~/.orchat/conversations.db.
package storage
