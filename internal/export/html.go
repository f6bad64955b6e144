// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/orchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to HTML with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(conv.GetTitle())))
	sb.WriteString("    <meta name=\"generator\" content=\"orchat\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(e.getCSS())
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", e.options.Theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(conv))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range conv.Messages {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>orchat</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

// renderHeader renders the header section with metadata.
func (e *HTMLExporter) renderHeader(conv *model.Conversation) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(conv.GetTitle())))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(conv.Messages)))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

// renderMessage renders a single message.
func (e *HTMLExporter) renderMessage(msg *model.Message) string {
	var sb strings.Builder

	roleClass := strings.ToLower(string(msg.Role))
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", roleClass))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Role.DisplayName())))
	if e.options.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp)))
	}
	sb.WriteString("                </div>\n")

	if e.options.IncludeReasoning && msg.Reasoning != "" {
		sb.WriteString("                <details class=\"reasoning\">\n")
		sb.WriteString("                    <summary>Reasoning</summary>\n")
		sb.WriteString(fmt.Sprintf("                    <div class=\"reasoning-content\">%s</div>\n",
			e.formatContent(msg.Reasoning)))
		sb.WriteString("                </details>\n")
	}

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(e.formatContent(msg.GetDisplayContent()))
	sb.WriteString("\n                </div>\n")

	if msg.Role == model.RoleAssistant && e.options.IncludeMetadata && msg.TokenCount > 0 {
		sb.WriteString("                <div class=\"message-stats\">\n")
		sb.WriteString(fmt.Sprintf("                    <span class=\"stat\">Tokens: %d</span>\n", msg.TokenCount))
		sb.WriteString("                </div>\n")
	}

	sb.WriteString("            </div>\n")

	return sb.String()
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`]+)`")
)

// formatContent converts message text to HTML: escaped, with markdown
// code fences mapped to pre/code blocks and newlines to <br>.
func (e *HTMLExporter) formatContent(content string) string {
	content = html.EscapeString(content)

	content = codeBlockRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		lang := parts[1]
		code := parts[2]

		langLabel := ""
		if lang != "" {
			langLabel = fmt.Sprintf("<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
		}

		return fmt.Sprintf("<div class=\"code-block\">%s<pre><code class=\"language-%s\">%s</code></pre></div>",
			langLabel, html.EscapeString(lang), strings.TrimSpace(code))
	})

	content = inlineCodeRegex.ReplaceAllString(content, "<code class=\"inline-code\">$1</code>")

	// Newlines become <br> outside of pre blocks.
	var formatted strings.Builder
	inPre := false
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "<pre>") {
			inPre = true
		}
		if i > 0 {
			if inPre {
				formatted.WriteString("\n")
			} else {
				formatted.WriteString("<br>\n")
			}
		}
		formatted.WriteString(line)
		if strings.Contains(line, "</pre>") {
			inPre = false
		}
	}

	return formatted.String()
}

// getCSS returns the embedded stylesheet with light and dark themes.
func (e *HTMLExporter) getCSS() string {
	return `    <style>
        :root {
            --bg: #ffffff;
            --fg: #1a1a1a;
            --muted: #6b7280;
            --border: #e5e7eb;
            --user-bg: #e1f5fe;
            --assistant-bg: #f1f8e9;
            --system-bg: #f0f0f0;
            --code-bg: #f6f8fa;
        }
        .dark-theme {
            --bg: #0f1117;
            --fg: #e6e6e6;
            --muted: #9ca3af;
            --border: #2a2e3a;
            --user-bg: #12304a;
            --assistant-bg: #16351c;
            --system-bg: #23262f;
            --code-bg: #1b1e27;
        }
        body {
            font-family: -apple-system, "Segoe UI", Arial, sans-serif;
            background: var(--bg);
            color: var(--fg);
            margin: 0;
            padding: 20px;
        }
        .container { max-width: 800px; margin: 0 auto; }
        .header { border-bottom: 1px solid var(--border); margin-bottom: 20px; padding-bottom: 12px; }
        .metadata { color: var(--muted); font-size: 0.9em; display: flex; gap: 16px; flex-wrap: wrap; }
        .message { padding: 12px 16px; border-radius: 8px; margin: 12px 0; }
        .user-message { background: var(--user-bg); }
        .assistant-message { background: var(--assistant-bg); }
        .system-message { background: var(--system-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; }
        .role-label { font-weight: 600; }
        .timestamp, .message-stats, .footer { color: var(--muted); font-size: 0.85em; }
        .reasoning { margin: 8px 0; color: var(--muted); }
        .reasoning summary { cursor: pointer; }
        .code-block { background: var(--code-bg); border: 1px solid var(--border); border-radius: 6px; margin: 8px 0; }
        .code-lang { color: var(--muted); font-size: 0.8em; padding: 4px 8px; border-bottom: 1px solid var(--border); }
        .code-block pre { margin: 0; padding: 10px; overflow-x: auto; }
        .inline-code { background: var(--code-bg); border-radius: 4px; padding: 1px 4px; }
        .footer { border-top: 1px solid var(--border); margin-top: 24px; padding-top: 12px; text-align: center; }
    </style>
`
}
