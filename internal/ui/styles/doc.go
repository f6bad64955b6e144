// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles defines the orchat color palette.
//
// Every color is a lipgloss.AdaptiveColor pair so output reads well on
// both light and dark terminal backgrounds without configuration. The
// cli package builds its concrete lipgloss styles from these values.
//
// # Usage
//
//	label := lipgloss.NewStyle().Foreground(styles.TextSecondary)
//	fmt.Println(label.Render("Model:"))
package styles
