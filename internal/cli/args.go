// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Command-line argument parsing for orchat.
//
// Supported invocations:
//   orchat                      Interactive chat (default)
//   orchat ask "question"       One-shot question, reply to stdout
//   orchat version              Print version information
//   orchat help                 Print usage

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies the top-level operation to run.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	NoStream   bool
	ConfigPath string

	// Session overrides (applied on top of the config file)
	Model          string
	System         string
	Temperature    float64
	HasTemperature bool
	Thinking       bool
	HasThinking    bool

	// Query is the one-shot question for the ask command.
	Query string
}

const usageText = `orchat - terminal chat client for OpenRouter

Orchat streams model replies to your terminal, tracks token usage and
cost per turn, extracts reasoning sections from replies, and keeps your
conversations in a local SQLite database.

Usage:
  orchat                     Start interactive chat (default)
  orchat ask "question"      Ask a single question
  orchat version             Show version information
  orchat help                Show this help

Flags:
  -m, --model NAME      Model to use (overrides config)
  -s, --system TEXT     System prompt (overrides config)
  -t, --temperature T   Sampling temperature 0.0-2.0
  --thinking            Enable reasoning extraction
  --no-thinking         Disable reasoning extraction
  --no-stream           Disable incremental token display
  --config PATH         Load configuration from PATH
  -q, --quiet           Suppress banners and per-turn stats
  -v, --version         Show version information
  -h, --help            Show this help

Environment:
  OPENROUTER_API_KEY    API key (required unless set in config)
  ORCHAT_MODEL          Default model override

Interactive commands are listed with /help inside the chat.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("orchat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments and returns the command and args.
// argv excludes the program name.
func Parse(argv []string) (Command, Args, error) {
	var args Args
	var positional []string

	i := 0
	for i < len(argv) {
		arg := argv[i]

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "--no-stream":
			args.NoStream = true
		case "--thinking":
			args.Thinking = true
			args.HasThinking = true
		case "--no-thinking":
			args.Thinking = false
			args.HasThinking = true
		case "-m", "--model":
			val, next, err := flagValue(argv, i, "model")
			if err != nil {
				return CmdHelp, args, err
			}
			args.Model = val
			i = next
		case "-s", "--system":
			val, next, err := flagValue(argv, i, "system")
			if err != nil {
				return CmdHelp, args, err
			}
			args.System = val
			i = next
		case "-t", "--temperature":
			val, next, err := flagValue(argv, i, "temperature")
			if err != nil {
				return CmdHelp, args, err
			}
			t, err := strconv.ParseFloat(val, 64)
			if err != nil || t < 0 || t > 2 {
				return CmdHelp, args, fmt.Errorf("invalid temperature: %s (must be 0.0-2.0)", val)
			}
			args.Temperature = t
			args.HasTemperature = true
			i = next
		case "--config":
			val, next, err := flagValue(argv, i, "config")
			if err != nil {
				return CmdHelp, args, err
			}
			args.ConfigPath = val
			i = next
		case "-v", "--version":
			return CmdVersion, args, nil
		case "-h", "--help":
			return CmdHelp, args, nil
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--system="):
				args.System = strings.TrimPrefix(arg, "--system=")
			case strings.HasPrefix(arg, "--config="):
				args.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--temperature="):
				val := strings.TrimPrefix(arg, "--temperature=")
				t, err := strconv.ParseFloat(val, 64)
				if err != nil || t < 0 || t > 2 {
					return CmdHelp, args, fmt.Errorf("invalid temperature: %s (must be 0.0-2.0)", val)
				}
				args.Temperature = t
				args.HasTemperature = true
			case strings.HasPrefix(arg, "-"):
				return CmdHelp, args, fmt.Errorf("unknown flag: %s", arg)
			default:
				positional = append(positional, arg)
			}
		}
		i++
	}

	if len(positional) == 0 {
		return CmdChat, args, nil
	}

	switch strings.ToLower(positional[0]) {
	case "chat":
		return CmdChat, args, nil
	case "ask":
		args.Query = strings.TrimSpace(strings.Join(positional[1:], " "))
		if args.Query == "" {
			return CmdHelp, args, fmt.Errorf("ask requires a question")
		}
		return CmdAsk, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		// Bare words are treated as a one-shot question
		args.Query = strings.TrimSpace(strings.Join(positional, " "))
		return CmdAsk, args, nil
	}
}

// flagValue extracts the value following a flag at position i.
// Returns the value and the index of the consumed value.
func flagValue(argv []string, i int, name string) (string, int, error) {
	if i+1 >= len(argv) {
		return "", i, fmt.Errorf("flag --%s requires a value", name)
	}
	return argv[i+1], i + 1, nil
}
