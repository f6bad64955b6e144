// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextwin

import (
	"fmt"

	"github.com/jeranaias/orchat/internal/model"
)

// =============================================================================
// BUDGET
// =============================================================================

// DefaultReserve is the number of tokens deliberately left unused so the
// next user message has room.
const DefaultReserve = 1000

// Budget is the token limit a request to the remote model may occupy.
type Budget struct {
	// MaxTokens is the hard ceiling for the whole conversation.
	MaxTokens int

	// Reserve is headroom left below MaxTokens when trimming.
	Reserve int
}

// NewBudget returns a budget with the default reserve.
func NewBudget(maxTokens int) Budget {
	return Budget{MaxTokens: maxTokens, Reserve: DefaultReserve}
}

// target is the threshold the keep-walk accumulates against.
func (b Budget) target() int {
	return b.MaxTokens - b.Reserve
}

// =============================================================================
// COUNTER INTERFACE
// =============================================================================

// Counter estimates token counts for message content. Satisfied by
// tokens.Counter implementations.
type Counter interface {
	EstimateTokens(text, modelID string) int
}

// messageOverhead mirrors tokens.MessageOverheadTokens without importing
// the package: role framing and separators per message.
const messageOverhead = 4

// =============================================================================
// MANAGER
// =============================================================================

// Manager trims conversations to fit a token budget.
type Manager struct {
	counter Counter
}

// NewManager creates a manager backed by the given token counter.
func NewManager(counter Counter) *Manager {
	return &Manager{counter: counter}
}

// Result reports what a Trim call did.
type Result struct {
	// Dropped is the number of original messages removed. The synthetic
	// trim note does not count.
	Dropped int

	// NoteAdded is true when a trim note was inserted after the system
	// message.
	NoteAdded bool

	// TotalTokens is the conversation's token cost after trimming.
	TotalTokens int

	// OversizedMessage is set when a single message alone exceeds the
	// budget. The message is kept regardless; trimming never edits
	// message content. Callers should surface this as a warning.
	OversizedMessage *model.Message

	// OverBudget is true when the post-trim total still exceeds
	// MaxTokens. Beyond the oversized single-message case, this also
	// covers the pinned system message and the force-kept newest message
	// together outgrowing the ceiling. The request is sent as-is; callers
	// must surface the breach.
	OverBudget bool
}

// Exceeded reports whether the post-trim total still exceeds the budget.
// Equivalent to OverBudget for the budget the trim ran against.
func (r Result) Exceeded(b Budget) bool {
	return r.TotalTokens > b.MaxTokens
}

// messageCost is the indivisible budget cost of one message.
func (m *Manager) messageCost(msg *model.Message, modelID string) int {
	return m.counter.EstimateTokens(msg.GetDisplayContent(), modelID) +
		msg.OpaqueWeight() + messageOverhead
}

// Trim reduces conv.Messages to fit within budget, preserving the leading
// system message and the most recent messages. The conversation is
// modified in place; messages are only ever included or excluded whole.
//
// When messages are dropped, a synthetic system note is inserted directly
// after the system message stating how many were removed. The note's own
// cost is counted inside the keep-walk (reserved at its worst-case size
// before walking) so the budget invariant holds for the note too.
func (m *Manager) Trim(conv *model.Conversation, budget Budget, modelID string) Result {
	if conv == nil || len(conv.Messages) == 0 {
		return Result{}
	}

	var res Result

	// The leading system message is pinned.
	var system *model.Message
	rest := conv.Messages
	if conv.HasSystemPrompt() {
		system = conv.Messages[0]
		rest = conv.Messages[1:]
	}

	total := 0
	systemCost := 0
	if system != nil {
		systemCost = m.messageCost(system, modelID)
		total += systemCost
	}
	for _, msg := range rest {
		total += m.messageCost(msg, modelID)
	}

	// Under budget: nothing to do.
	if total <= budget.MaxTokens {
		res.TotalTokens = total
		res.OversizedMessage = m.findOversized(conv, budget, modelID)
		return res
	}

	// A system-only conversation has nothing that may legally be dropped.
	if len(rest) == 0 {
		res.TotalTokens = total
		res.OversizedMessage = system
		res.OverBudget = true
		return res
	}

	// A note left behind by an earlier trim is replaced, not stacked.
	if rest[0].Synthetic && rest[0].Role == model.RoleSystem {
		rest = rest[1:]
		if len(rest) == 0 {
			conv.Messages = conv.Messages[:1]
			res.TotalTokens = systemCost
			res.OverBudget = systemCost > budget.MaxTokens
			return res
		}
	}

	// Reserve room for the trim note up front, sized for the largest
	// count it could report, so inserting it can never break the budget.
	noteReserve := m.messageCost(trimNote(len(rest)), modelID)

	running := systemCost + noteReserve
	kept := make([]*model.Message, 0, len(rest))

	// Walk newest to oldest; the first message that does not fit ends the
	// walk, dropping it and everything older.
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := m.messageCost(rest[i], modelID)
		if running+cost >= budget.target() {
			break
		}
		running += cost
		keepFrom = i
	}
	kept = append(kept, rest[keepFrom:]...)
	res.Dropped = keepFrom

	// If nothing fits, keep the most recent message anyway rather than
	// silently dropping the turn being asked about. The resulting budget
	// breach is reported, not corrected: OversizedMessage when this
	// message alone is too big, OverBudget in every case.
	if len(kept) == 0 {
		last := rest[len(rest)-1]
		kept = append(kept, last)
		running += m.messageCost(last, modelID)
		res.Dropped = len(rest) - 1
		if m.messageCost(last, modelID) > budget.MaxTokens {
			res.OversizedMessage = last
		}
	}

	// Reassemble: system message, trim note, kept tail in original order.
	rebuilt := make([]*model.Message, 0, len(kept)+2)
	if system != nil {
		rebuilt = append(rebuilt, system)
	}
	if res.Dropped > 0 {
		rebuilt = append(rebuilt, trimNote(res.Dropped))
		res.NoteAdded = true
	}
	rebuilt = append(rebuilt, kept...)
	conv.Messages = rebuilt

	// Recompute the true total with the actual note text, which is never
	// larger than the reserved worst case.
	res.TotalTokens = 0
	for _, msg := range conv.Messages {
		res.TotalTokens += m.messageCost(msg, modelID)
	}
	if res.OversizedMessage == nil {
		res.OversizedMessage = m.findOversized(conv, budget, modelID)
	}
	res.OverBudget = res.TotalTokens > budget.MaxTokens
	return res
}

// findOversized returns the first message whose cost alone exceeds the raw
// budget, or nil.
func (m *Manager) findOversized(conv *model.Conversation, budget Budget, modelID string) *model.Message {
	for _, msg := range conv.Messages {
		if m.messageCost(msg, modelID) > budget.MaxTokens {
			return msg
		}
	}
	return nil
}

// trimNote builds the synthetic system message recording removed history.
func trimNote(count int) *model.Message {
	msg := model.NewSystemMessage(fmt.Sprintf(
		"Note: %d earlier messages have been removed to stay within the context window.", count))
	msg.Synthetic = true
	return msg
}
