// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// STREAMING: Line-oriented SSE decoding with error recovery

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxLineSize is the maximum allowed size for a single SSE line (64KB).
const MaxLineSize = 64 * 1024

// processingMarker appears in keep-alive comment lines OpenRouter emits
// while a request is queued. These lines carry no content.
const processingMarker = "OPENROUTER PROCESSING"

// doneSentinel terminates the event stream.
const doneSentinel = "[DONE]"

// =============================================================================
// STREAMING TYPES
// =============================================================================

// streamChunk is one decoded SSE payload from the completions stream.
// Some providers put the delta text under "text" instead of "content";
// both are accepted, content winning when present.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content"`
			Text    string `json:"text"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// content returns the delta text of the first choice.
func (c *streamChunk) content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	if c.Choices[0].Delta.Content != "" {
		return c.Choices[0].Delta.Content
	}
	return c.Choices[0].Delta.Text
}

// ErrStreamTruncated indicates the stream ended without the [DONE]
// sentinel. Whatever content arrived is a partial reply, not a
// complete answer.
var ErrStreamTruncated = errors.New("stream ended before [DONE] sentinel")

// StreamError represents a failure during streaming, preserving any
// partial content received before the error.
type StreamError struct {
	Partial string // Content received before the error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// StreamCallback is invoked for each content delta, in stream order.
type StreamCallback func(delta string)

// StreamStats holds statistics collected while streaming one reply.
type StreamStats struct {
	FirstTokenTime time.Duration
	TotalTime      time.Duration
	ChunkCount     int
	Model          string
	Usage          *Usage
}

// =============================================================================
// SSE DECODER
// =============================================================================

// Decoder reads an SSE completions stream and yields ordered content
// deltas. It is a pure transform over an io.Reader so it can be driven
// offline in tests without a network connection.
type Decoder struct {
	reader  *bufio.Reader
	usage   *Usage
	model   string
	sawDone bool
}

// NewDecoder creates a decoder over a raw SSE stream.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next non-empty content delta.
//
// Blank lines, processing keep-alives, malformed JSON payloads, and
// chunks without content are all skipped rather than surfaced; a broken
// chunk must not kill an otherwise healthy stream. Returns io.EOF after
// the [DONE] sentinel or when the underlying stream ends.
func (d *Decoder) Next() (string, error) {
	if d.sawDone {
		return "", io.EOF
	}

	for {
		line, err := d.readLine()
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}

		if bytes.Contains(line, []byte(processingMarker)) {
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			line = bytes.TrimSpace(line[5:])
		}

		if bytes.Equal(line, []byte(doneSentinel)) {
			d.sawDone = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Non-JSON line (comment, partial frame), quietly skip
			continue
		}

		if chunk.Model != "" {
			d.model = chunk.Model
		}
		if chunk.Usage != nil {
			d.usage = chunk.Usage
		}

		if content := chunk.content(); content != "" {
			return content, nil
		}
	}
}

// readLine reads one line with a size cap.
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.reader.ReadBytes('\n')
	if len(line) > MaxLineSize {
		return nil, fmt.Errorf("stream line too large: %d bytes", len(line))
	}
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
	return line, nil
}

// Usage returns the token usage if the stream reported any.
func (d *Decoder) Usage() (Usage, bool) {
	if d.usage == nil {
		return Usage{}, false
	}
	return *d.usage, true
}

// Model returns the model identifier reported by the stream.
func (d *Decoder) Model() string {
	return d.model
}

// SawDone reports whether the stream terminated with the [DONE] sentinel.
func (d *Decoder) SawDone() bool {
	return d.sawDone
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion request, invoking the
// callback for each content delta in order.
//
// The configured timeout bounds only the wait for response headers; once
// the stream is open, a stall watchdog aborts the read if no chunk
// arrives within the stall timeout. Context cancellation aborts the read
// at any chunk boundary.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, callback StreamCallback) (*StreamStats, error) {
	return c.chatStream(ctx, messages, 0, 0, callback)
}

// ChatStreamWithOptions is ChatStream with sampling overrides.
// Zero values leave the provider defaults in place.
func (c *Client) ChatStreamWithOptions(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int, callback StreamCallback) (*StreamStats, error) {
	return c.chatStream(ctx, messages, temperature, maxTokens, callback)
}

func (c *Client) chatStream(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int, callback StreamCallback) (*StreamStats, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	url := c.baseURL + "/chat/completions"

	reqBody := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Watchdog covers the connect plus header wait, then is re-armed per
	// chunk. Firing cancels streamCtx, which unblocks the pending read.
	watchdog := time.AfterFunc(c.timeout, cancel)
	defer watchdog.Stop()

	start := time.Now()
	// PERFORMANCE: Shared streaming client with connection pooling,
	// timeout handled via context.
	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && streamCtx.Err() != nil {
			return nil, fmt.Errorf("stream open timed out after %v: %w", c.timeout, err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	stats := &StreamStats{}
	var accumulated strings.Builder
	decoder := NewDecoder(resp.Body)

	stallTimeout := c.stallTimeout
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	watchdog.Reset(stallTimeout)

	for {
		delta, err := decoder.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if streamCtx.Err() != nil {
				err = fmt.Errorf("stream stalled for %v", stallTimeout)
			}
			return nil, &StreamError{Partial: accumulated.String(), Err: err}
		}

		watchdog.Reset(stallTimeout)

		if stats.ChunkCount == 0 {
			stats.FirstTokenTime = time.Since(start)
		}
		stats.ChunkCount++

		accumulated.WriteString(delta)
		callback(delta)
	}

	// An EOF without the sentinel means the provider hung up mid-reply.
	// Surface the partial text through the error so callers can roll
	// back instead of recording it as a finished answer.
	if !decoder.SawDone() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &StreamError{Partial: accumulated.String(), Err: ErrStreamTruncated}
	}

	stats.TotalTime = time.Since(start)
	stats.Model = decoder.Model()
	if usage, ok := decoder.Usage(); ok {
		stats.Usage = &usage
	}

	return stats, nil
}

// ChatStreamAccumulate performs a streaming chat but returns the full
// reply at the end. Useful when streaming is wanted for liveness but the
// caller only needs the complete text.
func (c *Client) ChatStreamAccumulate(ctx context.Context, messages []ChatMessage) (string, error) {
	var accumulated strings.Builder

	_, err := c.ChatStream(ctx, messages, func(delta string) {
		accumulated.WriteString(delta)
	})

	if err != nil {
		var streamErr *StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			return streamErr.Partial, err
		}
		return accumulated.String(), err
	}

	return accumulated.String(), nil
}

// =============================================================================
// STREAMING WITH RETRY
// =============================================================================

// ChatStreamWithRetry retries stream opening on transient failures.
// Once any content has been received, mid-stream failures are not
// retried; replaying partial output would duplicate text the caller has
// already rendered.
func (c *Client) ChatStreamWithRetry(ctx context.Context, messages []ChatMessage, callback StreamCallback) (*StreamStats, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		received := false
		stats, err := c.ChatStream(ctx, messages, func(delta string) {
			received = true
			callback(delta)
		})
		if err == nil {
			return stats, nil
		}

		if received || !c.isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}
