// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/jeranaias/orchat/internal/model"
)

// MessageOverheadTokens is the fixed per-message structural overhead
// (role framing, separators) added on top of the content tokens.
const MessageOverheadTokens = 4

// =============================================================================
// COUNTER INTERFACE
// =============================================================================

// Counter maps text to an estimated token count for a model.
type Counter interface {
	EstimateTokens(text, modelID string) int
}

// =============================================================================
// TIKTOKEN COUNTER
// =============================================================================

// TiktokenCounter counts tokens with tiktoken encodings where the model is
// recognized, falling back to the heuristic estimator otherwise.
type TiktokenCounter struct {
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex

	fallback Counter
}

// NewCounter creates the default counter.
func NewCounter() *TiktokenCounter {
	return &TiktokenCounter{
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
		fallback:   Estimator{},
	}
}

// EstimateTokens returns the token count of text for the given model.
func (c *TiktokenCounter) EstimateTokens(text, modelID string) int {
	if text == "" {
		return 0
	}
	codec, err := c.getCodec(modelID)
	if err != nil {
		return c.fallback.EstimateTokens(text, modelID)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.fallback.EstimateTokens(text, modelID)
	}
	return len(ids)
}

// getCodec returns a tokenizer codec for a model, cached per encoding.
func (c *TiktokenCounter) getCodec(modelID string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(modelID)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding maps OpenRouter model identifiers to tiktoken encodings.
// Identifiers are provider-prefixed ("openai/gpt-4o"); only the model part
// matters for encoding selection.
func modelToEncoding(modelID string) tokenizer.Encoding {
	m := strings.ToLower(modelID)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}

	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		// cl100k_base is a reasonable stand-in for non-OpenAI vocabularies
		return tokenizer.Cl100kBase
	}
}

// =============================================================================
// MESSAGE COSTING
// =============================================================================

// MessageCost returns the budget cost of a single message: content tokens,
// the fixed weight of any opaque multimodal parts, and the structural
// overhead. Trimming treats this as indivisible.
func MessageCost(c Counter, msg *model.Message, modelID string) int {
	cost := c.EstimateTokens(msg.GetDisplayContent(), modelID)
	cost += msg.OpaqueWeight()
	cost += MessageOverheadTokens
	return cost
}

// ConversationCost sums MessageCost over every message.
func ConversationCost(c Counter, conv *model.Conversation, modelID string) int {
	total := 0
	for _, msg := range conv.Messages {
		total += MessageCost(c, msg, modelID)
	}
	return total
}
