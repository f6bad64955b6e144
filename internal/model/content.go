// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// CONTENT TYPES
// =============================================================================

// Content is the payload of a message: either plain Text or Multimodal parts.
// Every site that costs or serializes a message switches exhaustively over
// these two cases.
type Content interface {
	// PlainText returns the textual portion of the content. For multimodal
	// content this is the concatenation of the text parts; opaque parts
	// contribute nothing here and are costed via OpaqueWeight.
	PlainText() string

	isContent()
}

// Text is ordinary string content.
type Text string

func (Text) isContent() {}

// PlainText returns the string itself.
func (t Text) PlainText() string {
	return string(t)
}

// PartType identifies the kind of a multimodal part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// Part is a single element of multimodal content.
type Part struct {
	Type PartType `json:"type"`

	// Text is set for PartText parts.
	Text string `json:"text,omitempty"`

	// ImageURL is set for PartImage parts (typically a data: URL with
	// base64-encoded bytes).
	ImageURL string `json:"image_url,omitempty"`

	// TokenWeight is the fixed token cost of an opaque (non-text) part.
	// Supplied when the part is attached; trimming treats it as
	// indivisible.
	TokenWeight int `json:"token_weight,omitempty"`
}

// Multimodal is ordered mixed content (text plus opaque binary references).
type Multimodal struct {
	Parts []Part `json:"parts"`
}

func (Multimodal) isContent() {}

// PlainText concatenates the text parts in order.
func (m Multimodal) PlainText() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// OpaqueWeight sums the fixed token cost of all non-text parts.
func (m Multimodal) OpaqueWeight() int {
	total := 0
	for _, p := range m.Parts {
		if p.Type != PartText {
			total += p.TokenWeight
		}
	}
	return total
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wirePart mirrors the OpenRouter multimodal content schema.
type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

// ToWire converts content to the value the chat-completions API expects:
// a bare string for Text, an array of typed parts for Multimodal.
func ToWire(c Content) any {
	switch v := c.(type) {
	case Text:
		return string(v)
	case Multimodal:
		parts := make([]wirePart, 0, len(v.Parts))
		for _, p := range v.Parts {
			switch p.Type {
			case PartText:
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			case PartImage:
				parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageURL}})
			}
		}
		return parts
	default:
		return ""
	}
}

// =============================================================================
// JSON PERSISTENCE
// =============================================================================

// contentEnvelope is the persisted form of Content. Plain text is stored as
// a JSON string, multimodal content as an object with a parts array, so old
// transcripts with bare string content load unchanged.
func marshalContent(c Content) ([]byte, error) {
	switch v := c.(type) {
	case Text:
		return json.Marshal(string(v))
	case Multimodal:
		return json.Marshal(v)
	default:
		return json.Marshal("")
	}
}

func unmarshalContent(data []byte) (Content, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return Text(s), nil
	}
	var m Multimodal
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
