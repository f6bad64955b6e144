// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - lipgloss styles for orchat CLI output.
//
// USABILITY: Consistent colored output built on the shared palette.

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/orchat/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// Command feedback style
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)

	// Section header style for panels and summaries
	summaryHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.Cyan).
				Bold(true)

	// Cost and token accounting style
	costStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// Reasoning block style
	reasoningStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Italic(true)
)
