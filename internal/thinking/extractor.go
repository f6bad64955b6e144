// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thinking

import "strings"

// =============================================================================
// MARKERS
// =============================================================================

const (
	// OpenMarker starts a reasoning section inside the content stream.
	OpenMarker = "<thinking>"

	// CloseMarker ends a reasoning section.
	CloseMarker = "</thinking>"
)

// FallbackReply is shown when a reply contains no visible text at all
// (for example a response that was nothing but a reasoning section).
const FallbackReply = "Hello! I'm here to help you."

// =============================================================================
// EXTRACTOR
// =============================================================================

// phase tracks which channel incoming text currently belongs to.
type phase int

const (
	phaseVisible phase = iota
	phaseReasoning
)

// Extractor consumes content deltas and routes each character to either
// the visible buffer or the reasoning buffer. One extractor serves exactly
// one response; create a fresh one per stream.
//
// When disabled it is a strict pass-through: no marker scanning happens,
// so literal marker-like text in ordinary output is left intact.
type Extractor struct {
	enabled bool
	phase   phase

	// pending holds a tail of consumed text that is a proper prefix of
	// the marker being scanned for. It is resolved by later deltas: as
	// marker text if the match completes, as literal text otherwise.
	pending string

	visible   strings.Builder
	reasoning strings.Builder
}

// NewExtractor creates an extractor. Pass enabled=false when reasoning
// mode is off for the session.
func NewExtractor(enabled bool) *Extractor {
	return &Extractor{enabled: enabled}
}

// Feed consumes one content delta. Empty deltas are no-ops.
func (e *Extractor) Feed(delta string) {
	if delta == "" {
		return
	}
	if !e.enabled {
		e.visible.WriteString(delta)
		return
	}

	s := e.pending + delta
	e.pending = ""

	for s != "" {
		marker := OpenMarker
		sink := &e.visible
		if e.phase == phaseReasoning {
			marker = CloseMarker
			sink = &e.reasoning
		}

		if idx := strings.Index(s, marker); idx >= 0 {
			sink.WriteString(s[:idx])
			s = s[idx+len(marker):]
			e.phase ^= 1
			continue
		}

		// No full marker. Hold back the longest tail that could still
		// become one; everything before it is settled text.
		hold := markerPrefixLen(s, marker)
		sink.WriteString(s[:len(s)-hold])
		e.pending = s[len(s)-hold:]
		return
	}
}

// Finalize flushes the holdback buffer and returns the two accumulated
// channels. A marker prefix that never completed is literal text and is
// surfaced as visible output.
func (e *Extractor) Finalize() (visible, reasoning string) {
	if e.pending != "" {
		e.visible.WriteString(e.pending)
		e.pending = ""
	}
	return e.visible.String(), e.reasoning.String()
}

// VisibleLen returns the number of visible bytes accumulated so far,
// excluding any unresolved holdback.
func (e *Extractor) VisibleLen() int {
	return e.visible.Len()
}

// Visible returns the settled visible text accumulated so far, excluding
// any unresolved holdback. Callers streaming output incrementally can
// diff against the previous length.
func (e *Extractor) Visible() string {
	return e.visible.String()
}

// markerPrefixLen returns the length of the longest suffix of s that is a
// proper prefix of marker.
func markerPrefixLen(s, marker string) int {
	max := len(marker) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if s[len(s)-k:] == marker[:k] {
			return k
		}
	}
	return 0
}
