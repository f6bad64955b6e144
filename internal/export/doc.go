// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export provides conversation transcript export for orchat.
//
// This package supports exporting conversations to various formats with
// styling, metadata, reasoning sections, and optional opening in external
// applications.
//
// # Key Types
//
//   - Exporter: Common export interface
//   - Options: Export configuration options
//   - MarkdownExporter: Human-readable output with YAML frontmatter
//   - JSONExporter: Machine-readable output with full metadata
//   - HTMLExporter: Styled output for viewing in browsers
//
// # Usage
//
// Export a conversation to a file:
//
//	opts := export.DefaultOptions()
//	path, err := export.ExportConversation(conv, "markdown", opts)
//
// Or get the raw bytes:
//
//	data, err := export.NewHTMLExporter(opts).Export(conv)
package export
