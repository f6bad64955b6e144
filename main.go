// orchat - terminal chat client for OpenRouter.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/orchat/internal/cli"
	"github.com/jeranaias/orchat/internal/cloud"
	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/contextwin"
	"github.com/jeranaias/orchat/internal/pricing"
	"github.com/jeranaias/orchat/internal/session"
	"github.com/jeranaias/orchat/internal/storage"
	"github.com/jeranaias/orchat/internal/tokens"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// catalogTimeout bounds the startup model catalog fetch. The catalog is
// best-effort; chat works with conservative default pricing without it.
const catalogTimeout = 5 * time.Second

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'orchat help' for usage.")
		os.Exit(2)
	}

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		if err := runChat(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// runChat wires config, client, storage, and session together and starts
// either the interactive REPL or a one-shot turn.
func runChat(cmd cli.Command, args cli.Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, args)
	config.SetGlobal(cfg)

	if cfg.API.Key == "" {
		return fmt.Errorf("no API key configured; set OPENROUTER_API_KEY or add one to %s", configHint())
	}

	client := cloud.NewClient(cfg.API.Key).
		WithBaseURL(cfg.API.BaseURL).
		WithTimeout(time.Duration(cfg.Stream.RequestTimeoutSecs) * time.Second).
		WithStallTimeout(time.Duration(cfg.Stream.StallTimeoutSecs) * time.Second).
		WithMaxRetries(cfg.Stream.MaxRetries).
		WithSiteURL(cfg.API.SiteURL).
		WithSiteName(cfg.API.SiteName)

	catalog := loadCatalog(client, args.Quiet)
	store := openStore(cfg, args.Quiet)
	if store != nil {
		defer store.Close()
	}

	sess := session.New(client, tokens.NewCounter(), catalog, store, session.Options{
		Model:        cfg.Chat.Model,
		Temperature:  cfg.Chat.Temperature,
		SystemPrompt: cfg.Chat.SystemPrompt,
		ThinkingMode: cfg.Chat.ThinkingMode,
		Budget: contextwin.Budget{
			MaxTokens: cfg.Context.MaxTokens,
			Reserve:   cfg.Context.ReserveTokens,
		},
		Autosave: cfg.Storage.Autosave && store != nil,
	})

	chat := cli.NewChatSession(sess, store, cfg)
	chat.Quiet = args.Quiet
	defer chat.Close()

	if cmd == cli.CmdAsk {
		return chat.RunOnce(args.Query)
	}
	return chat.Run()
}

// loadConfig loads from --config when given, otherwise the standard chain.
func loadConfig(args cli.Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		cfg, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", args.ConfigPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides layers command-line flags over the loaded config.
func applyFlagOverrides(cfg *config.Config, args cli.Args) {
	if args.Model != "" {
		cfg.Chat.Model = args.Model
	}
	if args.System != "" {
		cfg.Chat.SystemPrompt = args.System
	}
	if args.HasTemperature {
		cfg.Chat.Temperature = args.Temperature
	}
	if args.HasThinking {
		cfg.Chat.ThinkingMode = args.Thinking
	}
	if args.NoStream {
		cfg.Chat.Streaming = false
	}
}

// loadCatalog fetches model pricing from the API, best-effort.
func loadCatalog(client *cloud.Client, quiet bool) *pricing.Catalog {
	catalog := pricing.NewCatalog()

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		if !quiet {
			fmt.Fprintf(os.Stderr, "Warning: could not fetch model catalog: %v\n", err)
			fmt.Fprintln(os.Stderr, "Costs will use conservative default pricing.")
		}
		return catalog
	}

	catalog.Update(cloud.CatalogEntries(models))
	return catalog
}

// openStore opens the conversation database. A nil return disables
// persistence; chat still works.
func openStore(cfg *config.Config, quiet bool) *storage.Store {
	var store *storage.Store
	var err error

	if cfg.Storage.DatabasePath != "" {
		store, err = storage.Open(cfg.Storage.DatabasePath)
	} else {
		store, err = storage.OpenDefault()
	}
	if err != nil {
		if !quiet {
			fmt.Fprintf(os.Stderr, "Warning: conversation storage unavailable: %v\n", err)
		}
		return nil
	}

	store.MaxConversations = cfg.Storage.MaxConversations
	return store
}

// configHint names the preferred config file location for error messages.
func configHint() string {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "~/.orchat/config.toml"
	}
	return path
}
