// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for orchat.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// The REPL reads a line, dispatches slash commands, and otherwise runs a
// chat turn through the engine session. Replies stream to stdout; on a TTY
// the finished reply is re-rendered as markdown for proper formatting.
//
// Interactive commands (see printHelp):
//   /help               Show available commands
//   /model [name]       Show or switch model
//   /tokens             Token and cost breakdown
//   /thinking           Show last captured reasoning
//   /quit               Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/session"
	"github.com/jeranaias/orchat/internal/storage"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	// Session is the conversation engine driving each turn.
	Session *session.Session

	// Store persists conversations, nil when storage is unavailable.
	Store *storage.Store

	// Configuration
	Config *config.Config
	Quiet  bool

	// Cancel function for the in-flight stream
	CancelFunc context.CancelFunc

	// Input history handler
	InputCLI *ChatCLI
}

// NewChatSession creates a new interactive chat session around an engine
// session. store may be nil when persistence is unavailable.
func NewChatSession(sess *session.Session, store *storage.Store, cfg *config.Config) *ChatSession {
	return &ChatSession{
		Session:  sess,
		Store:    store,
		Config:   cfg,
		InputCLI: NewChatCLI(),
	}
}

// Close releases input resources and saves history.
func (cs *ChatSession) Close() {
	cs.InputCLI.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// Run starts the interactive REPL and blocks until the user exits.
func (cs *ChatSession) Run() error {
	if !cs.Quiet {
		printWelcome(cs)
	}

	// Set up signal handling for graceful Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for sig := range sigChan {
			if sig == os.Interrupt || sig == syscall.SIGTERM {
				// First Ctrl+C cancels the current generation
				if cs.CancelFunc != nil {
					cs.CancelFunc()
					cs.CancelFunc = nil
					fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
				}
			}
		}
	}()

	// Main REPL loop using liner for input history
	for {
		input, err := cs.InputCLI.ReadInput(promptStyle.Render("orchat> "))
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C at the prompt - exit gracefully
				fmt.Println()
				printExitSummary(cs)
				return nil
			}
			// EOF (Ctrl+D) or other error - exit gracefully
			fmt.Println()
			printExitSummary(cs)
			return nil
		}

		input = strings.TrimSpace(input)

		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, cs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n",
					errorStyle.Render("[Error]"),
					err)
			}
			if !shouldContinue {
				printExitSummary(cs)
				return nil
			}
			continue
		}

		// Handle exit/quit without slash
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(cs)
			return nil
		}

		// Process the message
		if err := cs.processMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n",
				errorStyle.Render("[Error]"),
				err)
		}
	}
}

// RunOnce runs a single turn for the ask command and returns.
func (cs *ChatSession) RunOnce(query string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if cs.CancelFunc != nil {
				cs.CancelFunc()
			}
		}
	}()

	return cs.processMessage(query)
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage runs one chat turn and streams the reply.
func (cs *ChatSession) processMessage(input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	cs.CancelFunc = cancel
	defer func() {
		cs.CancelFunc = nil
		cancel()
	}()

	// Render markdown on TTY for better formatting. When rendering, tokens
	// are collected and displayed at the end; raw streaming is only used
	// for plain (piped) output so consumers never see ANSI sequences.
	var onDelta func(delta string)
	if cs.Config.Chat.Streaming && !IsStdoutTTY() {
		onDelta = streamToStdout
	}

	fmt.Println() // Space before response

	turn, err := cs.Session.Send(ctx, input, onDelta)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Signal handler already reported the cancellation
			return nil
		}
		return err
	}

	if onDelta == nil {
		displayResponse(turn.Reply)
	}

	fmt.Println()
	fmt.Println() // Extra space after response

	// Reasoning display is opt-in; /thinking shows it on demand otherwise
	if turn.Reasoning != "" && cs.Config.UI.ShowReasoning {
		fmt.Println(reasoningStyle.Render(turn.Reasoning))
		fmt.Println()
	}

	if !cs.Quiet {
		cs.printTurnWarnings(turn)
		cs.showBriefStats(turn)
	}

	return nil
}

// printTurnWarnings surfaces trim and persistence notices for a turn.
func (cs *ChatSession) printTurnWarnings(turn *session.Turn) {
	if turn.Dropped > 0 {
		fmt.Fprintf(os.Stderr, "%s Dropped %d earlier message(s) to fit the context window\n",
			warningStyle.Render("[Context]"),
			turn.Dropped)
	}
	if turn.Oversized {
		fmt.Fprintf(os.Stderr, "%s Last message alone exceeds the context budget; sent anyway\n",
			warningStyle.Render("[Context]"))
	} else if turn.OverBudget {
		fmt.Fprintf(os.Stderr, "%s Request exceeds the context budget even after trimming; sent anyway\n",
			warningStyle.Render("[Context]"))
	}
	if turn.SaveErr != nil {
		fmt.Fprintf(os.Stderr, "%s Autosave failed: %v\n",
			warningStyle.Render("[Warning]"),
			turn.SaveErr)
	}
}

// showBriefStats shows a one-line summary after each response.
func (cs *ChatSession) showBriefStats(turn *session.Turn) {
	parts := []string{cs.Session.Model()}

	if cs.Config.UI.ShowTokens {
		tokens := turn.PromptTokens + turn.CompletionTokens
		label := fmt.Sprintf("%s tokens", formatNumber(tokens))
		if turn.UsageEstimated {
			label += " (est)"
		}
		parts = append(parts, label)
	}

	parts = append(parts, turn.Elapsed.Round(time.Millisecond).String())

	if cs.Config.UI.ShowCost && turn.Cost > 0 {
		parts = append(parts, formatCost(turn.Cost))
	}

	fmt.Fprintf(os.Stderr, "%s %s\n",
		infoStyle.Render("[Stats]"),
		strings.Join(parts, " | "))
}

// =============================================================================
// WELCOME AND EXIT
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(cs *ChatSession) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("orchat interactive chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(cs.Session.Model()))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Pricing:"),
		costStyle.Render(cs.Session.PricingInfo().Display()))

	if cs.Session.ThinkingMode() {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Thinking:"),
			commandStyle.Render("on"))
	}
	if cs.Store == nil {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Storage:"),
			warningStyle.Render("unavailable (conversations will not persist)"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(cs *ChatSession) {
	stats := cs.Session.Stats()

	// Skip if no turns completed
	if stats.Turns == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))

	fmt.Printf("  %s %d\n",
		infoStyle.Render("Turns:"),
		stats.Turns)
	fmt.Printf("  %s %s (%s prompt + %s completion)\n",
		infoStyle.Render("Tokens:"),
		formatNumber(stats.TotalTokens()),
		formatNumber(stats.PromptTokens),
		formatNumber(stats.CompletionTokens))

	if stats.TotalCost > 0 {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Cost:"),
			formatCost(stats.TotalCost))
	} else {
		fmt.Printf("  %s $0.00 (free model)\n",
			infoStyle.Render("Cost:"))
	}

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		stats.Duration.Round(time.Second).String())

	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
