// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/orchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete orchat configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// API (OpenRouter) configuration
	API APIConfig `toml:"api" json:"api"`

	// Chat behavior configuration
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Context window configuration
	Context ContextConfig `toml:"context" json:"context"`

	// Streaming configuration
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains OpenRouter API configuration.
type APIConfig struct {
	// Key is the OpenRouter API key. Prefer the OPENROUTER_API_KEY
	// environment variable over storing the key on disk.
	Key string `toml:"key" json:"key"`
	// BaseURL is the API base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// SiteURL is sent as the HTTP-Referer attribution header
	SiteURL string `toml:"site_url" json:"site_url"`
	// SiteName is sent as the X-Title attribution header
	SiteName string `toml:"site_name" json:"site_name"`
}

// ChatConfig contains per-turn chat behavior.
type ChatConfig struct {
	// Model is the default model identifier (e.g. "openai/gpt-4o-mini")
	Model string `toml:"model" json:"model"`
	// Temperature controls sampling randomness (0.0-2.0)
	Temperature float64 `toml:"temperature" json:"temperature"`
	// SystemPrompt is prepended to every new conversation
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// ThinkingMode requests reasoning output and extracts it from the
	// visible stream
	ThinkingMode bool `toml:"thinking_mode" json:"thinking_mode"`
	// Streaming enables incremental token display
	Streaming bool `toml:"streaming" json:"streaming"`
}

// ContextConfig bounds the context window sent upstream.
type ContextConfig struct {
	// MaxTokens is the context window ceiling in tokens (0 = model default)
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// ReserveTokens is headroom kept free below the ceiling for the reply
	ReserveTokens int `toml:"reserve_tokens" json:"reserve_tokens"`
}

// StreamConfig contains streaming transport tuning.
type StreamConfig struct {
	// RequestTimeoutSecs bounds connection and first-byte wait
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// StallTimeoutSecs bounds the gap between chunks mid-stream
	StallTimeoutSecs int `toml:"stall_timeout_secs" json:"stall_timeout_secs"`
	// MaxRetries bounds retry attempts for failures before first content
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// StorageConfig contains conversation persistence configuration.
type StorageConfig struct {
	// Autosave persists the conversation after every completed turn
	Autosave bool `toml:"autosave" json:"autosave"`
	// MaxConversations bounds retained conversations (oldest pruned first)
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// DatabasePath overrides the conversation database location
	// (empty = ~/.orchat/conversations.db)
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// UIConfig contains terminal display configuration.
type UIConfig struct {
	// Theme is the display theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowCost displays per-turn cost after each reply
	ShowCost bool `toml:"show_cost" json:"show_cost"`
	// ShowTokens displays token counts after each reply
	ShowTokens bool `toml:"show_tokens" json:"show_tokens"`
	// ShowReasoning prints extracted reasoning above the visible reply
	ShowReasoning bool `toml:"show_reasoning" json:"show_reasoning"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			Key:      "",
			BaseURL:  "https://openrouter.ai/api/v1",
			SiteURL:  "https://github.com/jeranaias/orchat",
			SiteName: "orchat",
		},

		Chat: ChatConfig{
			Model:        "openai/gpt-4o-mini",
			Temperature:  0.7,
			SystemPrompt: "",
			ThinkingMode: false,
			Streaming:    true,
		},

		Context: ContextConfig{
			MaxTokens:     8192,
			ReserveTokens: 1000,
		},

		Stream: StreamConfig{
			RequestTimeoutSecs: 60,
			StallTimeoutSecs:   90,
			MaxRetries:         3,
		},

		Storage: StorageConfig{
			Autosave:         true,
			MaxConversations: 100,
		},

		UI: UIConfig{
			Theme:         "dark",
			ShowCost:      true,
			ShowTokens:    true,
			ShowReasoning: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the orchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".orchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	cfg, err = finalize(cfg)
	if err != nil {
		return nil, err
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finalize applies env overrides, fills gaps, and validates.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Ensure permissions are correct even if the file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# orchat configuration file")
	fmt.Fprintln(file, "# Generated by orchat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// API settings
	if c.API.BaseURL != "" {
		if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "api.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.API.BaseURL),
			})
		}
	}

	// Chat settings
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2.0 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.Chat.Temperature),
		})
	}

	// Context settings
	if c.Context.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "context.max_tokens",
			Message: "must be non-negative",
		})
	}
	if c.Context.ReserveTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "context.reserve_tokens",
			Message: "must be non-negative",
		})
	}
	if c.Context.MaxTokens > 0 && c.Context.ReserveTokens >= c.Context.MaxTokens {
		errs = append(errs, ValidationError{
			Field:   "context.reserve_tokens",
			Message: fmt.Sprintf("reserve (%d) must be below max_tokens (%d)", c.Context.ReserveTokens, c.Context.MaxTokens),
		})
	}

	// Stream settings
	if c.Stream.RequestTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.request_timeout_secs",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Stream.RequestTimeoutSecs),
		})
	}
	if c.Stream.StallTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.stall_timeout_secs",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Stream.StallTimeoutSecs),
		})
	}
	if c.Stream.MaxRetries < 0 || c.Stream.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Stream.MaxRetries),
		})
	}

	// Storage settings
	if c.Storage.MaxConversations < 1 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Storage.MaxConversations),
		})
	}

	// UI settings
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults where a zero value is not
// meaningful on its own.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.Chat.Model == "" {
		c.Chat.Model = defaults.Chat.Model
	}
	if c.Context.MaxTokens == 0 {
		c.Context.MaxTokens = defaults.Context.MaxTokens
	}
	if c.Context.ReserveTokens == 0 {
		c.Context.ReserveTokens = defaults.Context.ReserveTokens
	}
	if c.Stream.RequestTimeoutSecs == 0 {
		c.Stream.RequestTimeoutSecs = defaults.Stream.RequestTimeoutSecs
	}
	if c.Stream.StallTimeoutSecs == 0 {
		c.Stream.StallTimeoutSecs = defaults.Stream.StallTimeoutSecs
	}
	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = defaults.Storage.MaxConversations
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Supported variables:
//   - OPENROUTER_API_KEY: overrides api.key
//   - ORCHAT_API_KEY: alias for OPENROUTER_API_KEY
//   - ORCHAT_BASE_URL: overrides api.base_url
//   - ORCHAT_MODEL: overrides chat.model
//   - ORCHAT_SYSTEM_PROMPT: overrides chat.system_prompt
//   - ORCHAT_THINKING: set to "1" or "true" to enable thinking mode
//   - ORCHAT_THEME: overrides ui.theme
//   - ORCHAT_DB_PATH: overrides storage.database_path
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.API.Key = key
	}
	if key := os.Getenv("ORCHAT_API_KEY"); key != "" {
		c.API.Key = key
	}
	if baseURL := os.Getenv("ORCHAT_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if model := os.Getenv("ORCHAT_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if prompt := os.Getenv("ORCHAT_SYSTEM_PROMPT"); prompt != "" {
		c.Chat.SystemPrompt = prompt
	}
	if thinking := os.Getenv("ORCHAT_THINKING"); thinking != "" {
		c.Chat.ThinkingMode = parseBool(thinking)
	}
	if theme := os.Getenv("ORCHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if dbPath := os.Getenv("ORCHAT_DB_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
}

// parseBool parses common boolean environment variable forms.
func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a human-readable summary with the API key masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Model: %s\n", c.Chat.Model))
	sb.WriteString(fmt.Sprintf("  Temperature: %g\n", c.Chat.Temperature))
	sb.WriteString(fmt.Sprintf("  Thinking mode: %v\n", c.Chat.ThinkingMode))
	sb.WriteString(fmt.Sprintf("  Context budget: %d tokens (%d reserved)\n", c.Context.MaxTokens, c.Context.ReserveTokens))
	sb.WriteString(fmt.Sprintf("  Theme: %s\n", c.UI.Theme))
	if c.API.Key != "" {
		sb.WriteString("  API key: configured\n")
	} else {
		sb.WriteString("  API key: not set\n")
	}
	return sb.String()
}

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Global returns the global configuration, loading it on first use.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil || cfg == nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the global configuration.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
