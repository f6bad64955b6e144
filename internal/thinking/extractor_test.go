// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thinking

import (
	"regexp"
	"strings"
	"testing"
)

// =============================================================================
// OFFLINE CROSS-CHECK
// =============================================================================

// Regex extraction over the complete reply. Only valid offline (it needs
// the whole string buffered), but it is an independent oracle for the
// incremental state machine on well-formed inputs.
var thinkingPattern = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)

func regexExtract(full string) (visible, reasoning string) {
	matches := thinkingPattern.FindAllStringSubmatch(full, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}
	return thinkingPattern.ReplaceAllString(full, ""), strings.Join(parts, "")
}

func extractOneDelta(input string, enabled bool) (string, string) {
	e := NewExtractor(enabled)
	e.Feed(input)
	return e.Finalize()
}

// =============================================================================
// EXTRACTION TESTS
// =============================================================================

func TestExtractor_PlainText(t *testing.T) {
	visible, reasoning := extractOneDelta("Just a normal answer.", true)
	if visible != "Just a normal answer." {
		t.Errorf("visible = %q", visible)
	}
	if reasoning != "" {
		t.Errorf("reasoning = %q, want empty", reasoning)
	}
}

func TestExtractor_SingleSection(t *testing.T) {
	visible, reasoning := extractOneDelta("Hello <thinking>reasoning here</thinking> world", true)
	if visible != "Hello  world" {
		t.Errorf("visible = %q, want %q", visible, "Hello  world")
	}
	if reasoning != "reasoning here" {
		t.Errorf("reasoning = %q", reasoning)
	}
}

func TestExtractor_SplitAcrossDeltas(t *testing.T) {
	// The canonical split: the open marker broken mid-word across two
	// network chunks.
	e := NewExtractor(true)
	e.Feed("Hello <thi")
	e.Feed("nking>reasoning here</thinking> world")
	visible, reasoning := e.Finalize()

	if visible != "Hello  world" {
		t.Errorf("visible = %q, want %q", visible, "Hello  world")
	}
	if reasoning != "reasoning here" {
		t.Errorf("reasoning = %q, want %q", reasoning, "reasoning here")
	}
}

func TestExtractor_SplitInvariance(t *testing.T) {
	// TESTABLE PROPERTY: splitting the input at every possible byte
	// boundary must produce the same output as feeding it whole.
	inputs := []string{
		"Hello <thinking>reasoning here</thinking> world",
		"<thinking>only reasoning</thinking>",
		"no markers at all",
		"a<thinking>b</thinking>c<thinking>d</thinking>e",
		"ends with partial <thi",
		"<thinking>unterminated reasoning",
		"angle < bracket but <thin not a marker",
		"<<thinking>nested-ish</thinking>>",
	}

	for _, input := range inputs {
		wantVisible, wantReasoning := extractOneDelta(input, true)

		for cut := 0; cut <= len(input); cut++ {
			e := NewExtractor(true)
			e.Feed(input[:cut])
			e.Feed(input[cut:])
			visible, reasoning := e.Finalize()

			if visible != wantVisible || reasoning != wantReasoning {
				t.Fatalf("input %q split at %d: got (%q, %q), want (%q, %q)",
					input, cut, visible, reasoning, wantVisible, wantReasoning)
			}
		}
	}
}

func TestExtractor_BytewiseFeed(t *testing.T) {
	input := "x<thinking>abc</thinking>y<thinking>def</thinking>z"
	e := NewExtractor(true)
	for i := 0; i < len(input); i++ {
		e.Feed(input[i : i+1])
	}
	visible, reasoning := e.Finalize()

	if visible != "xyz" {
		t.Errorf("visible = %q, want %q", visible, "xyz")
	}
	if reasoning != "abcdef" {
		t.Errorf("reasoning = %q, want %q", reasoning, "abcdef")
	}
}

func TestExtractor_MultipleSectionsPreserveOrder(t *testing.T) {
	visible, reasoning := extractOneDelta(
		"first<thinking>A</thinking>second<thinking>B</thinking>third", true)
	if visible != "firstsecondthird" {
		t.Errorf("visible = %q", visible)
	}
	if reasoning != "AB" {
		t.Errorf("reasoning = %q", reasoning)
	}
}

func TestExtractor_UnfinishedMarkerIsLiteral(t *testing.T) {
	e := NewExtractor(true)
	e.Feed("trailing partial <thinki")
	visible, reasoning := e.Finalize()

	if visible != "trailing partial <thinki" {
		t.Errorf("visible = %q; unfinished marker must flush as literal text", visible)
	}
	if reasoning != "" {
		t.Errorf("reasoning = %q, want empty", reasoning)
	}
}

func TestExtractor_FalseStartFlushedPromptly(t *testing.T) {
	// "<th" looks like a marker start until "e " disproves it; the held
	// text must then reach the visible buffer, not vanish.
	e := NewExtractor(true)
	e.Feed("see <th")
	e.Feed("e difference")
	visible, _ := e.Finalize()
	if visible != "see <the difference" {
		t.Errorf("visible = %q", visible)
	}
}

func TestExtractor_UnterminatedReasoningStaysReasoning(t *testing.T) {
	e := NewExtractor(true)
	e.Feed("answer <thinking>never closed")
	visible, reasoning := e.Finalize()

	if visible != "answer " {
		t.Errorf("visible = %q", visible)
	}
	if reasoning != "never closed" {
		t.Errorf("reasoning = %q", reasoning)
	}
}

func TestExtractor_DisabledIsPassThrough(t *testing.T) {
	// TESTABLE PROPERTY: with reasoning mode off, literal marker text
	// flows through untouched.
	input := "literal <thinking>not extracted</thinking> text"

	e := NewExtractor(false)
	e.Feed("literal <thinking>not ")
	e.Feed("extracted</thinking> text")
	visible, reasoning := e.Finalize()

	if visible != input {
		t.Errorf("visible = %q, want %q", visible, input)
	}
	if reasoning != "" {
		t.Errorf("reasoning = %q, want empty", reasoning)
	}
}

func TestExtractor_EmptyDeltasAreNoOps(t *testing.T) {
	e := NewExtractor(true)
	e.Feed("")
	e.Feed("a<thinking>")
	e.Feed("")
	e.Feed("b</thinking>")
	e.Feed("")
	visible, reasoning := e.Finalize()

	if visible != "a" || reasoning != "b" {
		t.Errorf("got (%q, %q), want (%q, %q)", visible, reasoning, "a", "b")
	}
}

func TestExtractor_AgreesWithRegexOracle(t *testing.T) {
	// On well-formed inputs (fully paired markers) the incremental
	// machine and the buffered regex approach must agree.
	inputs := []string{
		"Hello <thinking>reasoning here</thinking> world",
		"<thinking>A</thinking><thinking>B</thinking>",
		"plain",
		"pre<thinking>mid</thinking>post",
	}

	for _, input := range inputs {
		gotV, gotR := extractOneDelta(input, true)
		wantV, wantR := regexExtract(input)
		if gotV != wantV || gotR != wantR {
			t.Errorf("input %q: incremental (%q, %q) != regex (%q, %q)",
				input, gotV, gotR, wantV, wantR)
		}
	}
}
