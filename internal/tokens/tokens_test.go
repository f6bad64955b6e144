// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"testing"

	"github.com/jeranaias/orchat/internal/model"
)

func TestEstimator_Empty(t *testing.T) {
	e := Estimator{}
	if got := e.EstimateTokens("", "any-model"); got != 0 {
		t.Errorf("empty text: expected 0 tokens, got %d", got)
	}
}

func TestEstimator_Range(t *testing.T) {
	e := Estimator{}

	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{"short greeting", "Hello, how are you?", 3, 10},
		{"single word", "x", 1, 1},
		{"paragraph", "The quick brown fox jumps over the lazy dog. The quick brown fox jumps over the lazy dog.", 15, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EstimateTokens(tt.text, "unknown")
			if got < tt.min || got > tt.max {
				t.Errorf("estimate %d outside [%d, %d]", got, tt.min, tt.max)
			}
		})
	}
}

func TestEstimator_Deterministic(t *testing.T) {
	e := Estimator{}
	text := "Determinism matters for budget checks."
	first := e.EstimateTokens(text, "m")
	for i := 0; i < 10; i++ {
		if got := e.EstimateTokens(text, "m"); got != first {
			t.Fatalf("estimate changed between calls: %d vs %d", first, got)
		}
	}
}

func TestTiktokenCounter_CountsAndCaches(t *testing.T) {
	c := NewCounter()

	got := c.EstimateTokens("Hello, world!", "openai/gpt-4o")
	if got <= 0 {
		t.Fatalf("expected positive token count, got %d", got)
	}

	// Second call hits the codec cache and must agree.
	again := c.EstimateTokens("Hello, world!", "openai/gpt-4o")
	if again != got {
		t.Errorf("cached count differs: %d vs %d", again, got)
	}

	if c.EstimateTokens("", "openai/gpt-4o") != 0 {
		t.Error("empty text should cost 0 tokens")
	}
}

func TestTiktokenCounter_UnknownModelStillCounts(t *testing.T) {
	c := NewCounter()
	got := c.EstimateTokens("some text for an exotic model", "acme/quantum-7b:free")
	if got <= 0 {
		t.Errorf("expected positive count for unknown model, got %d", got)
	}
}

func TestMessageCost_IncludesOpaqueWeight(t *testing.T) {
	c := NewCounter()

	plain := model.NewUserMessage("describe this image")
	mm := model.NewUserMultimodalMessage([]model.Part{
		{Type: model.PartText, Text: "describe this image"},
		{Type: model.PartImage, ImageURL: "data:image/png;base64,AAAA", TokenWeight: 850},
	})

	plainCost := MessageCost(c, plain, "openai/gpt-4o")
	mmCost := MessageCost(c, mm, "openai/gpt-4o")

	if mmCost != plainCost+850 {
		t.Errorf("expected multimodal cost %d, got %d", plainCost+850, mmCost)
	}
}

func TestConversationCost_Sums(t *testing.T) {
	c := NewCounter()
	conv := model.NewConversationWithSystem("openai/gpt-4o", "You are a helpful assistant.")
	conv.AddUserMessage("Hi")

	want := 0
	for _, msg := range conv.Messages {
		want += MessageCost(c, msg, conv.Model)
	}
	if got := ConversationCost(c, conv, conv.Model); got != want {
		t.Errorf("ConversationCost = %d, want %d", got, want)
	}
}
