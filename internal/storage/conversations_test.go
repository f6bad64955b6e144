// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/orchat/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// CONVERSATION STORE TESTS
// =============================================================================

func TestStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := model.NewConversationWithSystem("anthropic/claude-sonnet-4", "be helpful")
	conv.AddUserMessage("What is the capital of France?")
	conv.AddMessage(model.NewAssistantMessage())
	conv.Messages[2].AppendToken("Paris.")
	conv.Messages[2].FinalizeStream()

	id, err := store.Save(ctx, conv)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id != conv.ID {
		t.Errorf("id = %q, want %q", id, conv.ID)
	}

	loaded, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != conv.ID || loaded.Model != conv.Model {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("message count = %d", len(loaded.Messages))
	}
	if loaded.Messages[2].GetDisplayContent() != "Paris." {
		t.Errorf("assistant content = %q", loaded.Messages[2].GetDisplayContent())
	}
	if loaded.SystemPrompt() != "be helpful" {
		t.Errorf("system prompt = %q", loaded.SystemPrompt())
	}
}

func TestStore_SaveIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation("openrouter/auto")
	conv.AddUserMessage("first")
	if _, err := store.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	conv.AddUserMessage("second")
	if _, err := store.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 after re-save", n)
	}

	loaded, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("message count = %d, want 2", len(loaded.Messages))
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background(), "conv_missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation("openrouter/auto")
	conv.AddUserMessage("hello")
	id, err := store.Save(ctx, conv)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Load(ctx, id); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Load after delete: err = %v", err)
	}
}

func TestStore_DeleteNotFound(t *testing.T) {
	store := openTestStore(t)

	err := store.Delete(context.Background(), "conv_missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		conv := model.NewConversation("openrouter/auto")
		conv.AddUserMessage(fmt.Sprintf("topic %d", i))
		id, err := store.Save(ctx, conv)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("len = %d", len(metas))
	}
	if metas[0].ID != ids[2] || metas[2].ID != ids[0] {
		t.Errorf("order = [%s %s %s], want most recent first", metas[0].ID, metas[1].ID, metas[2].ID)
	}
	if metas[0].MessageCount != 1 {
		t.Errorf("MessageCount = %d", metas[0].MessageCount)
	}
}

func TestStore_LoadByIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := model.NewConversation("openrouter/auto")
	first.AddUserMessage("older")
	if _, err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)

	second := model.NewConversation("openrouter/auto")
	second.AddUserMessage("newer")
	if _, err := store.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	conv, err := store.LoadByIndex(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != second.ID {
		t.Errorf("index 0 = %s, want most recent %s", conv.ID, second.ID)
	}

	if _, err := store.LoadByIndex(ctx, 5); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("out of range err = %v", err)
	}
	if _, err := store.LoadByIndex(ctx, -1); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("negative index err = %v", err)
	}
}

func TestStore_Search(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	kubernetes := model.NewConversation("openrouter/auto")
	kubernetes.AddUserMessage("how do I debug a kubernetes pod")
	if _, err := store.Save(ctx, kubernetes); err != nil {
		t.Fatal(err)
	}

	cooking := model.NewConversation("openrouter/auto")
	cooking.AddUserMessage("best pasta recipe")
	if _, err := store.Save(ctx, cooking); err != nil {
		t.Fatal(err)
	}

	metas, err := store.Search(ctx, "kubernetes")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].ID != kubernetes.ID {
		t.Errorf("search results = %+v", metas)
	}

	metas, err = store.Search(ctx, "no such topic anywhere")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Errorf("expected no results, got %d", len(metas))
	}
}

func TestStore_RetentionLimit(t *testing.T) {
	store := openTestStore(t)
	store.MaxConversations = 2
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		conv := model.NewConversation("openrouter/auto")
		conv.AddUserMessage(fmt.Sprintf("conversation %d", i))
		if _, err := store.Save(ctx, conv); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2 after retention pruning", n)
	}
}

func TestStore_Clear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation("openrouter/auto")
	conv.AddUserMessage("hello")
	if _, err := store.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d after clear", n)
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Errorf("list not empty after clear")
	}
}
