// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the three API roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// Messages are immutable once created, with one exception: the system
// message at index 0 of a conversation may be rewritten in place (see
// Conversation.RewriteSystemPrompt).
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content Content `json:"-"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`

	// Reasoning is the reasoning sub-channel text extracted from an
	// assistant reply. Owned by the message, never process-wide state.
	Reasoning string `json:"reasoning,omitempty"`

	// Token statistics
	TokenCount int `json:"token_count,omitempty"`

	// Synthetic marks messages manufactured by the client itself, such as
	// the trim-note inserted by the context window manager.
	Synthetic bool `json:"synthetic,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content Content) *Message {
	return &Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message with plain text content.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, Text(text))
}

// NewUserMultimodalMessage creates a new user message with mixed parts.
func NewUserMultimodalMessage(parts []Part) *Message {
	return NewMessage(RoleUser, Multimodal{Parts: parts})
}

// NewAssistantMessage creates a streaming assistant message. Content is
// accumulated with AppendToken and fixed by FinalizeStream.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          "msg_" + uuid.NewString(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		Content:     Text(""),
		IsStreaming: true,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, Text(text))
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends a delta to a streaming message.
func (m *Message) AppendToken(token string) {
	if m.IsStreaming {
		m.streamContent.WriteString(token)
	}
}

// FinalizeStream fixes the accumulated content as the message text.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = Text(m.streamContent.String())
	m.streamContent.Reset()
	m.IsStreaming = false
}

// GetDisplayContent returns the text to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	if m.Content == nil {
		return ""
	}
	return m.Content.PlainText()
}

// Clone returns an independent copy of the message. A message cloned
// mid-stream is materialized: the clone carries the text streamed so
// far as final content and shares no buffer with the original, which
// keeps streaming on its own.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:         m.ID,
		Role:       m.Role,
		Timestamp:  m.Timestamp,
		Content:    m.Content,
		Reasoning:  m.Reasoning,
		TokenCount: m.TokenCount,
		Synthetic:  m.Synthetic,
	}
	if m.IsStreaming {
		clone.Content = Text(m.streamContent.String())
	}
	return clone
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.GetDisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return m.GetDisplayContent() == "" && m.streamContent.Len() == 0
}

// OpaqueWeight returns the fixed token cost of non-text parts, zero for
// plain text messages.
func (m *Message) OpaqueWeight() int {
	switch c := m.Content.(type) {
	case Multimodal:
		return c.OpaqueWeight()
	default:
		return 0
	}
}

// =============================================================================
// JSON
// =============================================================================

// messageJSON is the persisted shape of Message. Content rides in a raw
// field so both bare-string and multimodal forms round-trip.
type messageJSON struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Timestamp  time.Time       `json:"timestamp"`
	Content    json.RawMessage `json:"content"`
	Reasoning  string          `json:"reasoning,omitempty"`
	TokenCount int             `json:"token_count,omitempty"`
	Synthetic  bool            `json:"synthetic,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	content := m.Content
	if m.IsStreaming {
		content = Text(m.streamContent.String())
	}
	raw, err := marshalContent(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		ID:         m.ID,
		Role:       m.Role,
		Timestamp:  m.Timestamp,
		Content:    raw,
		Reasoning:  m.Reasoning,
		TokenCount: m.TokenCount,
		Synthetic:  m.Synthetic,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	content, err := unmarshalContent(mj.Content)
	if err != nil {
		return err
	}
	m.ID = mj.ID
	m.Role = mj.Role
	m.Timestamp = mj.Timestamp
	m.Content = content
	m.Reasoning = mj.Reasoning
	m.TokenCount = mj.TokenCount
	m.Synthetic = mj.Synthetic
	return nil
}
