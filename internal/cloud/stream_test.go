// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chunkLine(content string) string {
	return fmt.Sprintf(`data: {"id":"gen-1","choices":[{"delta":{"content":%q}}]}`, content)
}

func decodeAll(t *testing.T, raw string) []string {
	t.Helper()
	d := NewDecoder(strings.NewReader(raw))
	var deltas []string
	for {
		delta, err := d.Next()
		if err == io.EOF {
			return deltas
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		deltas = append(deltas, delta)
	}
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_OrderedDeltas(t *testing.T) {
	raw := chunkLine("Hello") + "\n\n" +
		chunkLine(", ") + "\n\n" +
		chunkLine("world") + "\n\n" +
		"data: [DONE]\n"

	deltas := decodeAll(t, raw)
	if strings.Join(deltas, "") != "Hello, world" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_DoneSentinel(t *testing.T) {
	d := NewDecoder(strings.NewReader(chunkLine("x") + "\ndata: [DONE]\n" + chunkLine("after") + "\n"))

	delta, err := d.Next()
	if err != nil || delta != "x" {
		t.Fatalf("Next = (%q, %v)", delta, err)
	}

	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("err = %v, want EOF at [DONE]", err)
	}
	if !d.SawDone() {
		t.Error("SawDone = false")
	}

	// Nothing past the sentinel is surfaced.
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("err after done = %v", err)
	}
}

func TestDecoder_SkipsProcessingKeepAlives(t *testing.T) {
	raw := ": OPENROUTER PROCESSING\n" +
		chunkLine("a") + "\n" +
		": OPENROUTER PROCESSING\n" +
		chunkLine("b") + "\n" +
		"data: [DONE]\n"

	deltas := decodeAll(t, raw)
	if strings.Join(deltas, "") != "ab" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_SkipsMalformedJSON(t *testing.T) {
	raw := chunkLine("good") + "\n" +
		"data: {not json at all\n" +
		"random garbage line\n" +
		chunkLine("still good") + "\n" +
		"data: [DONE]\n"

	deltas := decodeAll(t, raw)
	if strings.Join(deltas, "") != "goodstill good" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_TextFieldFallback(t *testing.T) {
	// Some providers put the delta under "text" instead of "content".
	raw := `data: {"choices":[{"delta":{"text":"legacy"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":"modern","text":"ignored"}}]}` + "\n" +
		"data: [DONE]\n"

	deltas := decodeAll(t, raw)
	if len(deltas) != 2 || deltas[0] != "legacy" || deltas[1] != "modern" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_EmptyDeltasNotSurfaced(t *testing.T) {
	raw := `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
		chunkLine("only") + "\n" +
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n" +
		"data: [DONE]\n"

	deltas := decodeAll(t, raw)
	if len(deltas) != 1 || deltas[0] != "only" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_CapturesUsageAndModel(t *testing.T) {
	raw := `data: {"model":"anthropic/claude-sonnet-4","choices":[{"delta":{"content":"hi"}}]}` + "\n" +
		`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}` + "\n" +
		"data: [DONE]\n"

	d := NewDecoder(strings.NewReader(raw))
	for {
		if _, err := d.Next(); err == io.EOF {
			break
		}
	}

	usage, ok := d.Usage()
	if !ok {
		t.Fatal("usage not captured")
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
	if d.Model() != "anthropic/claude-sonnet-4" {
		t.Errorf("model = %q", d.Model())
	}
}

func TestDecoder_EOFWithoutDone(t *testing.T) {
	// Abrupt end of stream: deltas so far are kept, SawDone is false so
	// the caller can tell a clean finish from a cut connection.
	d := NewDecoder(strings.NewReader(chunkLine("partial") + "\n"))

	delta, err := d.Next()
	if err != nil || delta != "partial" {
		t.Fatalf("Next = (%q, %v)", delta, err)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("err = %v", err)
	}
	if d.SawDone() {
		t.Error("SawDone = true for truncated stream")
	}
}

func TestDecoder_CRLFLines(t *testing.T) {
	raw := chunkLine("a") + "\r\n\r\n" + "data: [DONE]\r\n"
	deltas := decodeAll(t, raw)
	if len(deltas) != 1 || deltas[0] != "a" {
		t.Errorf("deltas = %q", deltas)
	}
}

func TestDecoder_OversizedLine(t *testing.T) {
	big := strings.Repeat("x", MaxLineSize+1)
	d := NewDecoder(strings.NewReader("data: " + big + "\n"))

	_, err := d.Next()
	if err == nil || err == io.EOF {
		t.Fatalf("err = %v, want size error", err)
	}
}

// =============================================================================
// STREAMING CHAT TESTS
// =============================================================================

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
}

func TestChatStream_DeliversDeltasInOrder(t *testing.T) {
	server := sseServer(t, []string{
		chunkLine("The "),
		chunkLine("quick "),
		chunkLine("fox"),
		"data: [DONE]",
	})
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	var got strings.Builder
	stats, err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(delta string) {
		got.WriteString(delta)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "The quick fox" {
		t.Errorf("accumulated = %q", got.String())
	}
	if stats.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d", stats.ChunkCount)
	}
}

func TestChatStream_NotConfigured(t *testing.T) {
	c := NewClient("")
	_, err := c.ChatStream(context.Background(), nil, func(string) {})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestChatStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"add credits"}}`))
	}))
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	_, err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(string) {})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("err = %v, want ErrInsufficientCredits", err)
	}
}

func TestChatStream_UsageFromFinalChunk(t *testing.T) {
	server := sseServer(t, []string{
		chunkLine("answer"),
		`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":20,"completion_tokens":8,"total_tokens":28}}`,
		"data: [DONE]",
	})
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	stats, err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(string) {})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Usage == nil {
		t.Fatal("Usage not captured")
	}
	if stats.Usage.PromptTokens != 20 || stats.Usage.CompletionTokens != 8 {
		t.Errorf("usage = %+v", stats.Usage)
	}
}

func TestChatStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "%s\n\n", chunkLine("first"))
		flusher.Flush()
		<-release // hold the stream open, no further chunks
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient("sk-or-test").WithBaseURL(server.URL)

	_, err := c.ChatStream(ctx, []ChatMessage{{Role: "user", Content: "hi"}}, func(delta string) {
		cancel() // interrupt as soon as the first delta lands
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestChatStream_MidStreamFailurePreservesPartial(t *testing.T) {
	big := strings.Repeat("x", MaxLineSize+1)
	server := sseServer(t, []string{
		chunkLine("kept part"),
		"data: " + big,
	})
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	_, err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(string) {})

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *StreamError", err)
	}
	if streamErr.Partial != "kept part" {
		t.Errorf("Partial = %q", streamErr.Partial)
	}
}

func TestChatStream_TruncatedStreamReturnsError(t *testing.T) {
	// Server hangs up after one delta without sending [DONE]. The deltas
	// already streamed must come back as a partial, never as a clean reply.
	server := sseServer(t, []string{
		chunkLine("partial"),
	})
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	var got strings.Builder
	_, err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(delta string) {
		got.WriteString(delta)
	})

	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("err = %v, want ErrStreamTruncated", err)
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *StreamError", err)
	}
	if streamErr.Partial != "partial" {
		t.Errorf("Partial = %q", streamErr.Partial)
	}
	if got.String() != "partial" {
		t.Errorf("callback saw %q", got.String())
	}
}

func TestChatStreamAccumulate(t *testing.T) {
	server := sseServer(t, []string{
		chunkLine("full "),
		chunkLine("reply"),
		"data: [DONE]",
	})
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL)
	got, err := c.ChatStreamAccumulate(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "full reply" {
		t.Errorf("got = %q", got)
	}
}

func TestChatStreamWithRetry_RetriesOpenFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"bad gateway"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "%s\n\ndata: [DONE]\n\n", chunkLine("recovered"))
	}))
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL).WithMaxRetries(2)
	var got strings.Builder
	_, err := c.ChatStreamWithRetry(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(delta string) {
		got.WriteString(delta)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "recovered" {
		t.Errorf("got = %q", got.String())
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestChatStreamWithRetry_NoRetryAfterContent(t *testing.T) {
	big := strings.Repeat("x", MaxLineSize+1)
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "%s\n\ndata: %s\n\n", chunkLine("some text"), big)
	}))
	defer server.Close()

	c := NewClient("sk-or-test").WithBaseURL(server.URL).WithMaxRetries(3)
	_, err := c.ChatStreamWithRetry(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, func(string) {})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, mid-stream failure must not replay content", attempts)
	}
}
