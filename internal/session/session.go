// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/orchat/internal/cloud"
	"github.com/jeranaias/orchat/internal/contextwin"
	"github.com/jeranaias/orchat/internal/model"
	"github.com/jeranaias/orchat/internal/pricing"
	"github.com/jeranaias/orchat/internal/storage"
	"github.com/jeranaias/orchat/internal/thinking"
	"github.com/jeranaias/orchat/internal/tokens"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrEmptyReply is returned when the stream completed but produced no
// content at all. The user message is rolled back.
var ErrEmptyReply = errors.New("received empty response from model")

// =============================================================================
// STREAMER INTERFACE
// =============================================================================

// Streamer is the transport surface a session needs. *cloud.Client
// satisfies it.
type Streamer interface {
	ChatStreamWithOptions(ctx context.Context, messages []cloud.ChatMessage, temperature float64, maxTokens int, callback cloud.StreamCallback) (*cloud.StreamStats, error)
	SetModel(model string)
	GetModel() string
}

// =============================================================================
// SESSION
// =============================================================================

// Options configures per-session behavior.
type Options struct {
	// Model is the model identifier sent upstream
	Model string
	// Temperature controls sampling randomness
	Temperature float64
	// SystemPrompt seeds every new conversation
	SystemPrompt string
	// ThinkingMode extracts reasoning sections from replies
	ThinkingMode bool
	// Budget bounds the context window (MaxTokens 0 disables trimming)
	Budget contextwin.Budget
	// Autosave persists the conversation after each completed turn
	Autosave bool
}

// Session owns one conversation and runs complete chat turns against it.
// Not safe for concurrent use.
type Session struct {
	conv    *model.Conversation
	client  Streamer
	counter tokens.Counter
	window  *contextwin.Manager
	catalog *pricing.Catalog
	meter   *pricing.Meter
	store   *storage.Store

	opts Options

	startTime     time.Time
	responseTimes []time.Duration
	lastReasoning string
}

// New creates a session with a fresh conversation. store may be nil to
// disable persistence.
func New(client Streamer, counter tokens.Counter, catalog *pricing.Catalog, store *storage.Store, opts Options) *Session {
	client.SetModel(opts.Model)
	return &Session{
		conv:      model.NewConversationWithSystem(opts.Model, opts.SystemPrompt),
		client:    client,
		counter:   counter,
		window:    contextwin.NewManager(counter),
		catalog:   catalog,
		meter:     pricing.NewMeter(),
		store:     store,
		opts:      opts,
		startTime: time.Now(),
	}
}

// Conversation returns the session's current conversation.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Adopt replaces the current conversation, for resuming a stored one.
// Cumulative meters keep counting; they are session-scoped, not
// conversation-scoped.
func (s *Session) Adopt(conv *model.Conversation) {
	s.conv = conv
	if conv.Model != "" {
		s.opts.Model = conv.Model
		s.client.SetModel(conv.Model)
	}
	s.lastReasoning = ""
}

// Reset discards the current conversation and starts a fresh one with the
// same system prompt.
func (s *Session) Reset() {
	s.conv = model.NewConversationWithSystem(s.opts.Model, s.opts.SystemPrompt)
	s.lastReasoning = ""
}

// ClearHistory drops all non-system messages from the current conversation.
func (s *Session) ClearHistory() {
	s.conv.ClearHistory()
	s.lastReasoning = ""
}

// =============================================================================
// SETTINGS
// =============================================================================

// Model returns the active model identifier.
func (s *Session) Model() string {
	return s.opts.Model
}

// SetModel switches the model for subsequent turns.
func (s *Session) SetModel(modelID string) {
	s.opts.Model = modelID
	s.conv.Model = modelID
	s.client.SetModel(modelID)
}

// Temperature returns the sampling temperature.
func (s *Session) Temperature() float64 {
	return s.opts.Temperature
}

// SetTemperature sets the sampling temperature for subsequent turns.
func (s *Session) SetTemperature(t float64) {
	s.opts.Temperature = t
}

// ThinkingMode reports whether reasoning extraction is on.
func (s *Session) ThinkingMode() bool {
	return s.opts.ThinkingMode
}

// SetThinkingMode toggles reasoning extraction for subsequent turns.
func (s *Session) SetThinkingMode(on bool) {
	s.opts.ThinkingMode = on
}

// SetSystemPrompt rewrites the conversation's system prompt in place and
// remembers it for future Reset calls.
func (s *Session) SetSystemPrompt(text string) {
	s.opts.SystemPrompt = text
	s.conv.RewriteSystemPrompt(text)
}

// LastReasoning returns the reasoning text captured by the most recent
// completed turn, or "" when the turn had none.
func (s *Session) LastReasoning() string {
	return s.lastReasoning
}

// PricingInfo resolves the pricing for the session's current model.
func (s *Session) PricingInfo() pricing.Info {
	return s.catalog.Resolve(s.Model())
}

// ResponseTimes returns a copy of the per-turn durations recorded so far.
func (s *Session) ResponseTimes() []time.Duration {
	out := make([]time.Duration, len(s.responseTimes))
	copy(out, s.responseTimes)
	return out
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

// Turn is the result of one completed chat turn.
type Turn struct {
	// Reply is the visible assistant text.
	Reply string
	// Reasoning is the extracted reasoning text, "" when none.
	Reasoning string

	// Token accounting for this turn. When the upstream response carried
	// no usage block these are local estimates and UsageEstimated is set.
	PromptTokens     int
	CompletionTokens int
	UsageEstimated   bool

	// Cost is the turn cost in dollars (0 for free models).
	Cost float64

	// Dropped is how many earlier messages trimming removed to fit the
	// context budget.
	Dropped int
	// Oversized is true when a single message alone exceeded the budget;
	// it was sent anyway since trimming never edits message content.
	Oversized bool
	// OverBudget is true when the request still exceeded the budget
	// ceiling after trimming, oversized single message or not.
	OverBudget bool

	// Elapsed is the full turn duration; FirstToken is time to the first
	// streamed chunk.
	Elapsed    time.Duration
	FirstToken time.Duration

	// SaveErr reports an autosave failure. The turn itself succeeded.
	SaveErr error
}

// Send runs one chat turn with a plain text user message. onDelta, if
// non-nil, receives visible text increments as they stream in; reasoning
// text is never passed to it.
func (s *Session) Send(ctx context.Context, text string, onDelta func(delta string)) (*Turn, error) {
	s.conv.AddUserMessage(text)
	return s.run(ctx, onDelta)
}

// SendParts runs one chat turn with a multimodal user message.
func (s *Session) SendParts(ctx context.Context, parts []model.Part, onDelta func(delta string)) (*Turn, error) {
	s.conv.AddUserMultimodalMessage(parts)
	return s.run(ctx, onDelta)
}

// run drives the shared turn pipeline. On any transport error or
// cancellation the just-added user message is rolled back and partial
// output is discarded, so a failed turn leaves no trace in the history.
func (s *Session) run(ctx context.Context, onDelta func(delta string)) (*Turn, error) {
	turn := &Turn{}

	// Trim before the network call so the request fits the budget.
	if s.opts.Budget.MaxTokens > 0 {
		res := s.window.Trim(s.conv, s.opts.Budget, s.opts.Model)
		turn.Dropped = res.Dropped
		turn.Oversized = res.OversizedMessage != nil
		turn.OverBudget = res.OverBudget
		turn.PromptTokens = res.TotalTokens
	} else {
		turn.PromptTokens = tokens.ConversationCost(s.counter, s.conv, s.opts.Model)
	}

	extractor := thinking.NewExtractor(s.opts.ThinkingMode)
	shown := 0

	start := time.Now()
	stats, err := s.client.ChatStreamWithOptions(ctx, cloud.WireMessages(s.conv.Messages), s.opts.Temperature, 0, func(delta string) {
		extractor.Feed(delta)
		if onDelta != nil {
			if v := extractor.Visible(); len(v) > shown {
				onDelta(v[shown:])
				shown = len(v)
			}
		}
	})
	turn.Elapsed = time.Since(start)

	if err != nil {
		s.conv.PopLastUser()
		return nil, fmt.Errorf("chat turn failed: %w", err)
	}

	visible, reasoning := extractor.Finalize()
	if onDelta != nil && len(visible) > shown {
		onDelta(visible[shown:])
	}

	if visible == "" && reasoning == "" {
		s.conv.PopLastUser()
		return nil, ErrEmptyReply
	}
	if visible == "" {
		// Reasoning-only response: show something rather than nothing.
		visible = thinking.FallbackReply
	}

	turn.Reply = visible
	turn.Reasoning = reasoning
	turn.FirstToken = stats.FirstTokenTime
	s.lastReasoning = reasoning
	s.responseTimes = append(s.responseTimes, turn.Elapsed)

	// Prefer upstream usage; fall back to local estimates.
	if stats.Usage != nil {
		turn.PromptTokens = stats.Usage.PromptTokens
		turn.CompletionTokens = stats.Usage.CompletionTokens
	} else {
		turn.CompletionTokens = s.counter.EstimateTokens(visible+reasoning, s.opts.Model)
		turn.UsageEstimated = true
	}

	info := s.catalog.Resolve(s.opts.Model)
	turn.Cost = pricing.Cost(turn.PromptTokens, turn.CompletionTokens, info)
	s.meter.Record(turn.PromptTokens, turn.CompletionTokens, info)

	reply := s.conv.AddAssistantMessage()
	reply.AppendToken(visible)
	reply.FinalizeStream()
	reply.Reasoning = reasoning
	reply.TokenCount = turn.CompletionTokens

	if s.store != nil && s.opts.Autosave {
		if _, saveErr := s.store.Save(ctx, s.conv); saveErr != nil {
			turn.SaveErr = saveErr
		}
	}

	return turn, nil
}

// Save persists the current conversation and returns its ID.
func (s *Session) Save(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", errors.New("no conversation store configured")
	}
	return s.store.Save(ctx, s.conv)
}

// =============================================================================
// SESSION STATS
// =============================================================================

// Stats is a snapshot of session-cumulative counters.
type Stats struct {
	StartTime time.Time
	Duration  time.Duration

	Turns            int
	PromptTokens     int
	CompletionTokens int
	TotalCost        float64

	MessageCount int

	AvgResponseTime  time.Duration
	LastResponseTime time.Duration
}

// TotalTokens is prompt plus completion tokens across the session.
func (st Stats) TotalTokens() int {
	return st.PromptTokens + st.CompletionTokens
}

// Stats returns a snapshot of cumulative session counters.
func (s *Session) Stats() Stats {
	turns, prompt, completion, cost := s.meter.Snapshot()
	st := Stats{
		StartTime:        s.startTime,
		Duration:         time.Since(s.startTime),
		Turns:            turns,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalCost:        cost,
		MessageCount:     s.conv.MessageCount(),
	}
	if n := len(s.responseTimes); n > 0 {
		var sum time.Duration
		for _, d := range s.responseTimes {
			sum += d
		}
		st.AvgResponseTime = sum / time.Duration(n)
		st.LastResponseTime = s.responseTimes[n-1]
	}
	return st
}

// UsageSummary returns the meter's formatted cumulative summary.
func (s *Session) UsageSummary() string {
	return s.meter.Summary()
}
