// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/orchat/internal/cloud"
	"github.com/jeranaias/orchat/internal/contextwin"
	"github.com/jeranaias/orchat/internal/model"
	"github.com/jeranaias/orchat/internal/pricing"
	"github.com/jeranaias/orchat/internal/storage"
	"github.com/jeranaias/orchat/internal/tokens"
)

// fakeStreamer replays a scripted delta sequence.
type fakeStreamer struct {
	model  string
	deltas []string
	usage  *cloud.Usage

	// err, when set, is returned after errAfter deltas have been
	// delivered (0 = fail before any content).
	err      error
	errAfter int

	gotMessages []cloud.ChatMessage
	gotTemp     float64
	calls       int
}

func (f *fakeStreamer) ChatStreamWithOptions(ctx context.Context, messages []cloud.ChatMessage, temperature float64, maxTokens int, callback cloud.StreamCallback) (*cloud.StreamStats, error) {
	f.calls++
	f.gotMessages = messages
	f.gotTemp = temperature

	for i, d := range f.deltas {
		if f.err != nil && i >= f.errAfter {
			return nil, f.err
		}
		callback(d)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &cloud.StreamStats{ChunkCount: len(f.deltas), Usage: f.usage}, nil
}

func (f *fakeStreamer) SetModel(m string) { f.model = m }
func (f *fakeStreamer) GetModel() string  { return f.model }

func testCatalog() *pricing.Catalog {
	c := pricing.NewCatalog()
	c.Update([]pricing.Entry{
		{ID: "openai/gpt-4o-mini", Provider: "OpenAI", PromptPerToken: "0.00000015", CompletionPerToken: "0.0000006"},
		{ID: "meta-llama/llama-3.1-8b-instruct:free", Provider: "Meta", MarkedFree: true},
	})
	return c
}

func newTestSession(t *testing.T, client Streamer, opts Options) *Session {
	t.Helper()
	if opts.Model == "" {
		opts.Model = "openai/gpt-4o-mini"
	}
	return New(client, tokens.Estimator{}, testCatalog(), nil, opts)
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

func TestSend_Success(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"The answer ", "is 42."},
		usage:  &cloud.Usage{PromptTokens: 20, CompletionTokens: 6, TotalTokens: 26},
	}
	sess := newTestSession(t, fake, Options{Temperature: 0.4})

	var streamed strings.Builder
	turn, err := sess.Send(context.Background(), "What is the answer?", func(d string) {
		streamed.WriteString(d)
	})
	require.NoError(t, err)

	assert.Equal(t, "The answer is 42.", turn.Reply)
	assert.Equal(t, "The answer is 42.", streamed.String())
	assert.Equal(t, 20, turn.PromptTokens)
	assert.Equal(t, 6, turn.CompletionTokens)
	assert.False(t, turn.UsageEstimated)
	assert.InDelta(t, 20.0/1000*0.00015+6.0/1000*0.0006, turn.Cost, 1e-12)
	assert.Equal(t, 0.4, fake.gotTemp)

	conv := sess.Conversation()
	require.Equal(t, 2, conv.MessageCount())
	last := conv.GetLastMessage()
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, "The answer is 42.", last.GetDisplayContent())
	assert.Equal(t, 6, last.TokenCount)
}

func TestSend_RollsBackOnTransportError(t *testing.T) {
	fake := &fakeStreamer{
		deltas:   []string{"partial out"},
		err:      errors.New("connection reset"),
		errAfter: 1,
	}
	sess := newTestSession(t, fake, Options{})

	_, err := sess.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	// The unanswered user message must be gone.
	assert.Equal(t, 0, sess.Conversation().MessageCount())
}

func TestSend_EmptyReplyRollsBack(t *testing.T) {
	fake := &fakeStreamer{deltas: nil}
	sess := newTestSession(t, fake, Options{})

	_, err := sess.Send(context.Background(), "hello", nil)
	require.ErrorIs(t, err, ErrEmptyReply)
	assert.Equal(t, 0, sess.Conversation().MessageCount())
}

func TestSend_EstimatesUsageWhenAbsent(t *testing.T) {
	fake := &fakeStreamer{deltas: []string{"a reply with several words in it"}}
	sess := newTestSession(t, fake, Options{})

	turn, err := sess.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.True(t, turn.UsageEstimated)
	assert.Positive(t, turn.CompletionTokens)
	assert.Positive(t, turn.PromptTokens)
}

// =============================================================================
// REASONING EXTRACTION
// =============================================================================

func TestSend_ExtractsReasoning(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"Hello <thi", "nking>chain of thought</thinking> world"},
	}
	sess := newTestSession(t, fake, Options{ThinkingMode: true})

	var streamed strings.Builder
	turn, err := sess.Send(context.Background(), "hi", func(d string) {
		streamed.WriteString(d)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello  world", turn.Reply)
	assert.Equal(t, "chain of thought", turn.Reasoning)
	assert.Equal(t, "chain of thought", sess.LastReasoning())

	// Reasoning never reaches the delta callback.
	assert.Equal(t, "Hello  world", streamed.String())

	last := sess.Conversation().GetLastMessage()
	assert.Equal(t, "chain of thought", last.Reasoning)
}

func TestSend_ThinkingOffIsPassThrough(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"literal <thinking>kept</thinking> text"},
	}
	sess := newTestSession(t, fake, Options{ThinkingMode: false})

	turn, err := sess.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, "literal <thinking>kept</thinking> text", turn.Reply)
	assert.Empty(t, turn.Reasoning)
}

func TestSend_ReasoningOnlyGetsFallbackReply(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"<thinking>all reasoning, no answer</thinking>"},
	}
	sess := newTestSession(t, fake, Options{ThinkingMode: true})

	turn, err := sess.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, turn.Reply)
	assert.Equal(t, "all reasoning, no answer", turn.Reasoning)
	assert.Equal(t, 2, sess.Conversation().MessageCount())
}

// =============================================================================
// CONTEXT TRIMMING
// =============================================================================

func TestSend_TrimsToBudget(t *testing.T) {
	fake := &fakeStreamer{deltas: []string{"ok"}}
	sess := newTestSession(t, fake, Options{
		SystemPrompt: "You are terse.",
		Budget:       contextwin.Budget{MaxTokens: 200, Reserve: 50},
	})

	// Pre-load history far beyond the budget.
	conv := sess.Conversation()
	for i := 0; i < 6; i++ {
		conv.AddUserMessage(strings.Repeat("lorem ipsum dolor sit amet ", 20))
		reply := conv.AddAssistantMessage()
		reply.AppendToken(strings.Repeat("consectetur adipiscing elit ", 20))
		reply.FinalizeStream()
	}

	turn, err := sess.Send(context.Background(), "latest question", nil)
	require.NoError(t, err)

	assert.Positive(t, turn.Dropped)
	// The system prompt survives trimming.
	assert.Equal(t, "You are terse.", sess.Conversation().SystemPrompt())
	// The request actually sent upstream was the trimmed set.
	assert.Less(t, len(fake.gotMessages), 6)
}

// =============================================================================
// SETTINGS AND STATS
// =============================================================================

func TestSetModel_PropagatesToClient(t *testing.T) {
	fake := &fakeStreamer{}
	sess := newTestSession(t, fake, Options{})

	sess.SetModel("anthropic/claude-3.5-sonnet")

	assert.Equal(t, "anthropic/claude-3.5-sonnet", fake.model)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", sess.Model())
	assert.Equal(t, "anthropic/claude-3.5-sonnet", sess.Conversation().Model)
}

func TestStats_Accumulates(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"reply"},
		usage:  &cloud.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
	sess := newTestSession(t, fake, Options{})

	_, err := sess.Send(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = sess.Send(context.Background(), "two", nil)
	require.NoError(t, err)

	st := sess.Stats()
	assert.Equal(t, 2, st.Turns)
	assert.Equal(t, 20, st.PromptTokens)
	assert.Equal(t, 10, st.CompletionTokens)
	assert.Equal(t, 30, st.TotalTokens())
	assert.Equal(t, 4, st.MessageCount)
	assert.Positive(t, st.AvgResponseTime)
}

func TestStats_FreeModelCostsNothing(t *testing.T) {
	fake := &fakeStreamer{
		deltas: []string{"reply"},
		usage:  &cloud.Usage{PromptTokens: 1000, CompletionTokens: 1000},
	}
	sess := newTestSession(t, fake, Options{Model: "meta-llama/llama-3.1-8b-instruct:free"})

	turn, err := sess.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.Zero(t, turn.Cost)
	_, _, _, cost := sess.meter.Snapshot()
	assert.Zero(t, cost)
}

func TestReset_KeepsSystemPrompt(t *testing.T) {
	fake := &fakeStreamer{deltas: []string{"reply"}}
	sess := newTestSession(t, fake, Options{SystemPrompt: "Be brief."})

	_, err := sess.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	sess.Reset()

	conv := sess.Conversation()
	assert.Equal(t, 1, len(conv.Messages))
	assert.Equal(t, "Be brief.", conv.SystemPrompt())
	assert.Empty(t, sess.LastReasoning())
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestSend_AutosavePersists(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "conv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fake := &fakeStreamer{deltas: []string{"saved reply"}}
	sess := New(fake, tokens.Estimator{}, testCatalog(), store, Options{
		Model:    "openai/gpt-4o-mini",
		Autosave: true,
	})

	turn, err := sess.Send(context.Background(), "persist me", nil)
	require.NoError(t, err)
	require.NoError(t, turn.SaveErr)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := store.Load(context.Background(), sess.Conversation().ID)
	require.NoError(t, err)
	assert.Equal(t, "saved reply", loaded.GetLastMessage().GetDisplayContent())
}

func TestSave_WithoutStoreErrors(t *testing.T) {
	sess := newTestSession(t, &fakeStreamer{}, Options{})
	_, err := sess.Save(context.Background())
	require.Error(t, err)
}

func TestAdopt_SwitchesConversationAndModel(t *testing.T) {
	fake := &fakeStreamer{}
	sess := newTestSession(t, fake, Options{})

	other := model.NewConversation("google/gemini-flash-1.5")
	other.AddUserMessage("earlier")
	sess.Adopt(other)

	assert.Same(t, other, sess.Conversation())
	assert.Equal(t, "google/gemini-flash-1.5", sess.Model())
	assert.Equal(t, "google/gemini-flash-1.5", fake.model)
}
