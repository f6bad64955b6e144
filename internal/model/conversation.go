// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
//
// Invariant: if the conversation has a system prompt, it is the message at
// index 0 and it is never evicted by trimming. The conversation is owned by
// exactly one session and is not safe for concurrent use.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Model configuration
	Model string `json:"model"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Model:     modelID,
	}
}

// NewConversationWithSystem creates a conversation whose first message is
// the given system prompt.
func NewConversationWithSystem(modelID, systemPrompt string) *Conversation {
	conv := NewConversation(modelID)
	if systemPrompt != "" {
		conv.Messages = append(conv.Messages, NewSystemMessage(systemPrompt))
	}
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(text string) *Message {
	msg := NewUserMessage(text)
	c.AddMessage(msg)
	return msg
}

// AddUserMultimodalMessage creates and appends a multimodal user message.
func (c *Conversation) AddUserMultimodalMessage(parts []Part) *Message {
	msg := NewUserMultimodalMessage(parts)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and appends a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// PopLastUser removes the trailing user message and returns it. Used to
// roll back a turn when no assistant reply was produced (cancellation,
// empty response, transport failure). Returns nil if the last message is
// not a user message.
func (c *Conversation) PopLastUser() *Message {
	last := c.GetLastMessage()
	if last == nil || last.Role != RoleUser {
		return nil
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	c.UpdatedAt = time.Now()
	return last
}

// DropLast removes the most recent message unconditionally.
func (c *Conversation) DropLast() {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	c.UpdatedAt = time.Now()
}

// =============================================================================
// SYSTEM PROMPT
// =============================================================================

// SystemPrompt returns the text of the leading system message, or "".
func (c *Conversation) SystemPrompt() string {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return c.Messages[0].GetDisplayContent()
	}
	return ""
}

// HasSystemPrompt reports whether the message at index 0 is a system
// message.
func (c *Conversation) HasSystemPrompt() bool {
	return len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem
}

// RewriteSystemPrompt rewrites the system message at index 0 in place, or
// inserts one if absent. This is the only permitted mutation of an existing
// message; it is used when the reasoning-mode instructions are toggled.
func (c *Conversation) RewriteSystemPrompt(text string) {
	if c.HasSystemPrompt() {
		c.Messages[0].Content = Text(text)
		c.UpdatedAt = time.Now()
		return
	}
	msgs := make([]*Message, 0, len(c.Messages)+1)
	msgs = append(msgs, NewSystemMessage(text))
	msgs = append(msgs, c.Messages...)
	c.Messages = msgs
	c.UpdatedAt = time.Now()
}

// ClearHistory removes all messages except the leading system message.
func (c *Conversation) ClearHistory() {
	if c.HasSystemPrompt() {
		c.Messages = c.Messages[:1]
	} else {
		c.Messages = make([]*Message, 0)
	}
	c.UpdatedAt = time.Now()
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Model:     c.Model,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Preview(100)
		}
	}
	return c.Messages[0].Preview(100)
}
