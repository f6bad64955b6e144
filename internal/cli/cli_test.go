// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input int
		want  string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.input); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "$0.00"},
		{-0.5, "$0.00"},
		{0.000042, "$0.000042"},
		{0.0099, "$0.009900"},
		{0.01, "$0.0100"},
		{1.5, "$1.5000"},
	}

	for _, tt := range tests {
		if got := formatCost(tt.input); got != tt.want {
			t.Errorf("formatCost(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSlashCommandsAreSlashPrefixed(t *testing.T) {
	seen := make(map[string]bool)
	for _, cmd := range slashCommands {
		if !strings.HasPrefix(cmd, "/") {
			t.Errorf("command %q missing slash prefix", cmd)
		}
		if seen[cmd] {
			t.Errorf("duplicate command %q", cmd)
		}
		seen[cmd] = true
	}
}

func TestRenderMarkdownFallsBackOnNilRenderer(t *testing.T) {
	saved := markdownRenderer
	markdownRenderer = nil
	defer func() { markdownRenderer = saved }()

	input := "# Heading\n\nplain **bold** text"
	if got := renderMarkdown(input); got != input {
		t.Errorf("renderMarkdown without renderer = %q, want input unchanged", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		check   func(t *testing.T, a Args)
	}{
		{
			name:    "no args defaults to chat",
			argv:    nil,
			wantCmd: CmdChat,
		},
		{
			name:    "explicit chat with model flag",
			argv:    []string{"chat", "--model", "openai/gpt-4o"},
			wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				if a.Model != "openai/gpt-4o" {
					t.Errorf("Model = %q", a.Model)
				}
			},
		},
		{
			name:    "ask with query",
			argv:    []string{"ask", "what", "is", "Go"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if a.Query != "what is Go" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "bare words become a question",
			argv:    []string{"what is Go"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if a.Query != "what is Go" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "equals-form flags",
			argv:    []string{"--model=meta-llama/llama-3.1-8b-instruct:free", "--temperature=0.3"},
			wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				if a.Model != "meta-llama/llama-3.1-8b-instruct:free" {
					t.Errorf("Model = %q", a.Model)
				}
				if !a.HasTemperature || a.Temperature != 0.3 {
					t.Errorf("Temperature = %v (has=%v)", a.Temperature, a.HasTemperature)
				}
			},
		},
		{
			name:    "thinking toggles",
			argv:    []string{"--no-thinking", "--no-stream", "-q"},
			wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				if !a.HasThinking || a.Thinking {
					t.Errorf("Thinking = %v (has=%v)", a.Thinking, a.HasThinking)
				}
				if !a.NoStream || !a.Quiet {
					t.Errorf("NoStream=%v Quiet=%v", a.NoStream, a.Quiet)
				}
			},
		},
		{
			name:    "version subcommand",
			argv:    []string{"version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "version flag",
			argv:    []string{"-v"},
			wantCmd: CmdVersion,
		},
		{
			name:    "help",
			argv:    []string{"help"},
			wantCmd: CmdHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			if err != nil {
				t.Fatalf("Parse(%v) error: %v", tt.argv, err)
			}
			if cmd != tt.wantCmd {
				t.Fatalf("Parse(%v) cmd = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := [][]string{
		{"--temperature", "3.5"},
		{"--temperature=banana"},
		{"--model"},
		{"--frobnicate"},
		{"ask"},
	}

	for _, argv := range cases {
		if _, _, err := Parse(argv); err == nil {
			t.Errorf("Parse(%v) expected error, got nil", argv)
		}
	}
}
