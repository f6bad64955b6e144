// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Slash command handlers for the orchat REPL.
//
// Each handler returns (shouldContinue, error); shouldContinue=false
// means exit the REPL.

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/orchat/internal/export"
	"github.com/jeranaias/orchat/internal/model"
	"github.com/jeranaias/orchat/internal/util"
)

// storageTimeout bounds store operations issued from slash commands.
const storageTimeout = 10 * time.Second

// slashCommands lists every command for tab completion.
var slashCommands = []string{
	"/help", "/clear", "/cls", "/new", "/save", "/export", "/list",
	"/load", "/delete", "/tokens", "/speed", "/model", "/system",
	"/temperature", "/thinking", "/thinking-mode", "/status",
	"/history", "/quit", "/exit",
}

// =============================================================================
// DISPATCH
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, cs *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/clear", "/c":
		cs.Session.ClearHistory()
		fmt.Println(commandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/cls":
		// ANSI clear screen and home cursor
		fmt.Print("\033[2J\033[H")
		return true, nil

	case "/new":
		return handleNewCommand(cs)

	case "/save":
		return handleSaveCommand(cs)

	case "/export":
		return handleExportCommand(cs, args)

	case "/list", "/ls":
		return handleListCommand(cs)

	case "/load":
		return handleLoadCommand(cs, args)

	case "/delete", "/del":
		return handleDeleteCommand(cs, args)

	case "/tokens", "/t":
		printTokens(cs)
		return true, nil

	case "/speed":
		printSpeed(cs)
		return true, nil

	case "/model", "/m":
		return handleModelCommand(cs, args)

	case "/system":
		return handleSystemCommand(cs, args)

	case "/temperature", "/temp":
		return handleTemperatureCommand(cs, args)

	case "/thinking":
		printThinking(cs)
		return true, nil

	case "/thinking-mode":
		return handleThinkingModeCommand(cs, args)

	case "/status", "/s":
		printStatus(cs)
		return true, nil

	case "/history":
		printHistory(cs)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

// handleNewCommand starts a fresh conversation, persisting the old one first.
func handleNewCommand(cs *ChatSession) (bool, error) {
	conv := cs.Session.Conversation()
	if cs.Store != nil && conv.MessageCount() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
		defer cancel()

		if _, err := cs.Store.Save(ctx, conv); err != nil {
			fmt.Fprintf(os.Stderr, "%s Could not save previous conversation: %v\n",
				warningStyle.Render("[Warning]"),
				err)
		} else {
			fmt.Printf("%s Previous conversation saved\n", commandStyle.Render("[OK]"))
		}
	}

	cs.Session.Reset()
	fmt.Println(commandStyle.Render("[New conversation started]"))
	return true, nil
}

// handleSaveCommand persists the current conversation.
func handleSaveCommand(cs *ChatSession) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	id, err := cs.Session.Save(ctx)
	if err != nil {
		return true, fmt.Errorf("save failed: %w", err)
	}

	fmt.Printf("%s Saved conversation %s\n",
		commandStyle.Render("[OK]"),
		id)
	return true, nil
}

// handleExportCommand writes the conversation to a file.
// Usage: /export [markdown|json|html]
func handleExportCommand(cs *ChatSession, args []string) (bool, error) {
	format := "markdown"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}

	opts := export.DefaultOptions()
	opts.IncludeReasoning = cs.Config.UI.ShowReasoning

	path, err := export.ExportConversation(cs.Session.Conversation(), format, opts)
	if err != nil {
		return true, fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("%s Exported to %s\n",
		commandStyle.Render("[OK]"),
		path)
	return true, nil
}

// handleListCommand lists saved conversations, most recent first.
func handleListCommand(cs *ChatSession) (bool, error) {
	if cs.Store == nil {
		return true, fmt.Errorf("no conversation store configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	metas, err := cs.Store.List(ctx)
	if err != nil {
		return true, fmt.Errorf("list failed: %w", err)
	}

	if len(metas) == 0 {
		fmt.Println(infoStyle.Render("[No saved conversations]"))
		return true, nil
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Saved Conversations"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, meta := range metas {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %d. %s\n",
			i+1,
			commandStyle.Render(util.TruncateRunes(title, 60)))
		fmt.Printf("     %s\n",
			infoStyle.Render(fmt.Sprintf("%s | %d messages | %s",
				meta.Model,
				meta.MessageCount,
				meta.UpdatedAt.Format("2006-01-02 15:04"))))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Use /load <number> to resume a conversation"))
	fmt.Println()
	return true, nil
}

// handleLoadCommand resumes a saved conversation by list position.
// Usage: /load <number>
func handleLoadCommand(cs *ChatSession, args []string) (bool, error) {
	if cs.Store == nil {
		return true, fmt.Errorf("no conversation store configured")
	}
	if len(args) == 0 {
		return true, fmt.Errorf("usage: /load <number> (see /list)")
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return true, fmt.Errorf("invalid conversation number: %s", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	conv, err := cs.Store.LoadByIndex(ctx, n-1)
	if err != nil {
		return true, fmt.Errorf("load failed: %w", err)
	}

	cs.Session.Adopt(conv)
	fmt.Printf("%s Resumed %s (%d messages, model %s)\n",
		commandStyle.Render("[OK]"),
		util.TruncateRunes(conv.GetTitle(), 40),
		conv.MessageCount(),
		conv.Model)
	return true, nil
}

// handleDeleteCommand removes a saved conversation by list position.
// Usage: /delete <number>
func handleDeleteCommand(cs *ChatSession, args []string) (bool, error) {
	if cs.Store == nil {
		return true, fmt.Errorf("no conversation store configured")
	}
	if len(args) == 0 {
		return true, fmt.Errorf("usage: /delete <number> (see /list)")
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return true, fmt.Errorf("invalid conversation number: %s", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	metas, err := cs.Store.List(ctx)
	if err != nil {
		return true, fmt.Errorf("list failed: %w", err)
	}
	if n > len(metas) {
		return true, fmt.Errorf("no conversation at position %d", n)
	}

	if err := cs.Store.Delete(ctx, metas[n-1].ID); err != nil {
		return true, fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("%s Deleted %s\n",
		commandStyle.Render("[OK]"),
		util.TruncateRunes(metas[n-1].Title, 40))
	return true, nil
}

// =============================================================================
// SETTINGS COMMANDS
// =============================================================================

// handleModelCommand shows or switches the active model.
func handleModelCommand(cs *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s Current model: %s (%s)\n",
			infoStyle.Render("[Model]"),
			commandStyle.Render(cs.Session.Model()),
			costStyle.Render(cs.Session.PricingInfo().Display()))
		return true, nil
	}

	cs.Session.SetModel(args[0])
	fmt.Printf("%s Switched to model: %s (%s)\n",
		commandStyle.Render("[OK]"),
		args[0],
		costStyle.Render(cs.Session.PricingInfo().Display()))
	return true, nil
}

// handleSystemCommand shows or rewrites the system prompt.
func handleSystemCommand(cs *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		prompt := cs.Session.Conversation().SystemPrompt()
		if prompt == "" {
			fmt.Println(infoStyle.Render("[No system prompt set]"))
		} else {
			fmt.Printf("%s %s\n",
				infoStyle.Render("[System]"),
				prompt)
		}
		return true, nil
	}

	cs.Session.SetSystemPrompt(strings.Join(args, " "))
	fmt.Println(commandStyle.Render("[OK] System prompt updated"))
	return true, nil
}

// handleTemperatureCommand shows or sets the sampling temperature.
// Valid range: 0.0 - 2.0; values above 1.0 get a determinism warning.
func handleTemperatureCommand(cs *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s Temperature: %.2f\n",
			infoStyle.Render("[Settings]"),
			cs.Session.Temperature())
		return true, nil
	}

	t, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return true, fmt.Errorf("invalid temperature: %s", args[0])
	}
	if t < 0 || t > 2 {
		return true, fmt.Errorf("temperature must be between 0.0 and 2.0")
	}

	cs.Session.SetTemperature(t)
	fmt.Printf("%s Temperature set to %.2f\n",
		commandStyle.Render("[OK]"),
		t)
	if t > 1.0 {
		fmt.Fprintf(os.Stderr, "%s Temperatures above 1.0 can produce incoherent output\n",
			warningStyle.Render("[Warning]"))
	}
	return true, nil
}

// handleThinkingModeCommand toggles or sets reasoning extraction.
// Usage: /thinking-mode [on|off]
func handleThinkingModeCommand(cs *ChatSession, args []string) (bool, error) {
	var on bool
	if len(args) == 0 {
		on = !cs.Session.ThinkingMode()
	} else {
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			on = true
		case "off", "false", "0":
			on = false
		default:
			return true, fmt.Errorf("usage: /thinking-mode [on|off]")
		}
	}

	cs.Session.SetThinkingMode(on)
	state := "off"
	if on {
		state = "on"
	}
	fmt.Printf("%s Thinking mode %s\n",
		commandStyle.Render("[OK]"),
		state)
	return true, nil
}

// =============================================================================
// DISPLAY COMMANDS
// =============================================================================

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear conversation history"},
		{"/cls", "Clear the screen"},
		{"/new", "Start a new conversation (saves the current one)"},
		{"/save", "Save the conversation"},
		{"/export [format]", "Export to file (markdown, json, html)"},
		{"/list", "List saved conversations"},
		{"/load <n>", "Resume a saved conversation"},
		{"/delete <n>", "Delete a saved conversation"},
		{"/model [name]", "Show or switch model"},
		{"/system [text]", "Show or set the system prompt"},
		{"/temperature [t]", "Show or set sampling temperature (0-2)"},
		{"/thinking", "Show reasoning from the last reply"},
		{"/thinking-mode [on|off]", "Toggle reasoning extraction"},
		{"/tokens, /t", "Token usage and cost breakdown"},
		{"/speed", "Response time statistics"},
		{"/status, /s", "Show session status"},
		{"/history", "Show conversation history"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-24s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels current generation, Ctrl+D exits"))
	fmt.Println()
}

// printTokens prints the token usage and cost panel.
func printTokens(cs *ChatSession) {
	stats := cs.Session.Stats()
	info := cs.Session.PricingInfo()

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Token Usage"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Prompt tokens:"),
		formatNumber(stats.PromptTokens))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Completion tokens:"),
		formatNumber(stats.CompletionTokens))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Total:"),
		formatNumber(stats.TotalTokens()))

	fmt.Println()
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Pricing:"),
		costStyle.Render(info.Display()))
	if info.IsFree {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Session cost:"),
			commandStyle.Render("FREE"))
	} else {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Session cost:"),
			formatCost(stats.TotalCost))
	}
	fmt.Println()
}

// printSpeed prints response time statistics.
func printSpeed(cs *ChatSession) {
	times := cs.Session.ResponseTimes()
	if len(times) == 0 {
		fmt.Println(infoStyle.Render("[No responses yet]"))
		return
	}

	minTime, maxTime := times[0], times[0]
	var sum time.Duration
	for _, d := range times {
		if d < minTime {
			minTime = d
		}
		if d > maxTime {
			maxTime = d
		}
		sum += d
	}
	avg := sum / time.Duration(len(times))

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Response Times"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Responses:"),
		len(times))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Average:"),
		avg.Round(time.Millisecond).String())
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Fastest:"),
		minTime.Round(time.Millisecond).String())
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Slowest:"),
		maxTime.Round(time.Millisecond).String())
	fmt.Println()
}

// printThinking prints reasoning from the most recent reply.
func printThinking(cs *ChatSession) {
	reasoning := cs.Session.LastReasoning()
	if reasoning == "" {
		fmt.Println(infoStyle.Render("[No reasoning captured for the last reply]"))
		if !cs.Session.ThinkingMode() {
			fmt.Println(infoStyle.Render("Enable extraction with /thinking-mode on"))
		}
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Reasoning"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()
	fmt.Println(reasoningStyle.Render(reasoning))
	fmt.Println()
}

// printStatus prints session statistics.
func printStatus(cs *ChatSession) {
	stats := cs.Session.Stats()

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(cs.Session.Model()))
	fmt.Printf("  %s %.2f\n",
		infoStyle.Render("Temperature:"),
		cs.Session.Temperature())
	thinkingState := "off"
	if cs.Session.ThinkingMode() {
		thinkingState = "on"
	}
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Thinking:"),
		thinkingState)
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		stats.Duration.Round(time.Second).String())
	fmt.Printf("  %s %d messages\n",
		infoStyle.Render("History:"),
		stats.MessageCount)

	fmt.Println()
	fmt.Println(infoStyle.Render("Statistics:"))
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Turns:"),
		stats.Turns)
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Tokens:"),
		formatNumber(stats.TotalTokens()))
	if stats.TotalCost > 0 {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Cost:"),
			formatCost(stats.TotalCost))
	} else {
		fmt.Printf("  %s $0.00 (free model)\n",
			infoStyle.Render("Cost:"))
	}
	if stats.AvgResponseTime > 0 {
		fmt.Printf("  %s %s avg\n",
			infoStyle.Render("Speed:"),
			stats.AvgResponseTime.Round(time.Millisecond).String())
	}

	fmt.Println()
}

// printHistory prints conversation history.
func printHistory(cs *ChatSession) {
	conv := cs.Session.Conversation()
	if len(conv.Messages) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Conversation History"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, msg := range conv.Messages {
		label := roleLabel(msg.Role)

		content := msg.GetDisplayContent()
		content = strings.ReplaceAll(content, "\n", " ")
		content = util.TruncateRunes(content, 100)

		fmt.Printf("  %d. %s: %s\n", i+1, label, content)
	}

	fmt.Println()
}

// roleLabel renders a colored display name for a message role.
func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return promptStyle.Render("You")
	case model.RoleAssistant:
		return welcomeStyle.Render("AI")
	case model.RoleSystem:
		return warningStyle.Render("System")
	default:
		return string(role)
	}
}
