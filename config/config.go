/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Config is the service configuration, read once from the environment at
// startup and passed by reference to everything that needs it.
type Config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	// Model configuration
	Provider       string  `env:"MODEL_PROVIDER,default=openai"`
	Model          string  `env:"SDK_MODEL,default=gpt-5"`
	CodeModel      string  `env:"SDK_CODE_MODEL,default=gpt-5-codex"`
	Temperature    float64 `env:"MODEL_TEMPERATURE,default=0.2"`
	MaxTokens      int64   `env:"MODEL_MAX_TOKENS,default=16000"`
	OpenAIKey      string  `env:"OPENAI_API_KEY"`
	AnthropicKey   string  `env:"ANTHROPIC_API_KEY"`
	GeminiKey      string  `env:"GEMINI_API_KEY"`
	GitHubBaseURL  string  `env:"GITHUB_BASE_URL"`
	GitHost        string  `env:"GIT_HOST,default=github.com"`
	AuthorName     string  `env:"GIT_AUTHOR_NAME,default=RepEditor AI"`
	AuthorEmail    string  `env:"GIT_AUTHOR_EMAIL,default=ai@repeditor.dev"`
	CloneDepth     int     `env:"CLONE_DEPTH,default=1"`
	MaxRequestSize int64   `env:"MAX_REQUEST_BYTES,default=4194304"`

	// Stage timeouts
	CloneTimeout  time.Duration `env:"CLONE_TIMEOUT,default=2m"`
	ModelTimeout  time.Duration `env:"MODEL_TIMEOUT,default=5m"`
	GitTimeout    time.Duration `env:"GIT_TIMEOUT,default=1m"`
	GitHubTimeout time.Duration `env:"GITHUB_TIMEOUT,default=30s"`

	// Chat configuration
	ChatModel     string `env:"CHAT_MODEL,default=claude-sonnet-4-5"`
	ChatMaxRounds int    `env:"CHAT_MAX_ROUNDS,default=5"`
	ChatWebSearch bool   `env:"CHAT_WEB_SEARCH,default=false"`
	MemoryDBPath  string `env:"MEMORY_DB_PATH,default=data/memory.db"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown providers and non-positive limits.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("MODEL_PROVIDER must be one of %s, %s, %s; got %q", ProviderOpenAI, ProviderAnthropic, ProviderGoogle, c.Provider))
	}
	positive := map[string]int64{
		"PORT":              int64(c.Port),
		"METRICS_PORT":      int64(c.MetricsPort),
		"MODEL_MAX_TOKENS":  c.MaxTokens,
		"CLONE_DEPTH":       int64(c.CloneDepth),
		"MAX_REQUEST_BYTES": c.MaxRequestSize,
		"CHAT_MAX_ROUNDS":   int64(c.ChatMaxRounds),
		"CLONE_TIMEOUT":     int64(c.CloneTimeout),
		"MODEL_TIMEOUT":     int64(c.ModelTimeout),
		"GIT_TIMEOUT":       int64(c.GitTimeout),
		"GITHUB_TIMEOUT":    int64(c.GitHubTimeout),
	}
	for _, name := range []string{
		"PORT", "METRICS_PORT", "MODEL_MAX_TOKENS", "CLONE_DEPTH", "MAX_REQUEST_BYTES",
		"CHAT_MAX_ROUNDS", "CLONE_TIMEOUT", "MODEL_TIMEOUT", "GIT_TIMEOUT", "GITHUB_TIMEOUT",
	} {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("MODEL_TEMPERATURE must be between 0 and 2, got %v", c.Temperature))
	}
	if c.Model == "" || c.CodeModel == "" || c.ChatModel == "" {
		errs = append(errs, errors.New("SDK_MODEL, SDK_CODE_MODEL and CHAT_MODEL must be set"))
	}
	return errors.Join(errs...)
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.AnthropicKey
	case ProviderGoogle:
		return c.GeminiKey
	default:
		return c.OpenAIKey
	}
}
