// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"regexp"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func TestPaletteHexValues(t *testing.T) {
	palette := map[string]lipgloss.AdaptiveColor{
		"Purple":        Purple,
		"Cyan":          Cyan,
		"Emerald":       Emerald,
		"Rose":          Rose,
		"Amber":         Amber,
		"TextSecondary": TextSecondary,
		"TextMuted":     TextMuted,
		"Overlay":       Overlay,
	}

	for name, color := range palette {
		if !hexColor.MatchString(color.Light) {
			t.Errorf("%s.Light = %q, not a hex color", name, color.Light)
		}
		if !hexColor.MatchString(color.Dark) {
			t.Errorf("%s.Dark = %q, not a hex color", name, color.Dark)
		}
		if color.Light == color.Dark {
			t.Errorf("%s uses the same value for light and dark", name)
		}
	}
}
