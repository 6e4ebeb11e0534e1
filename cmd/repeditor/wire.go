/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"math"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/chat"
	"github.com/melodydashora/RepEditor/agents/diffsynth"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/executor/claudeexecutor"
	"github.com/melodydashora/RepEditor/agents/executor/googleexecutor"
	"github.com/melodydashora/RepEditor/agents/executor/openaiexecutor"
	"github.com/melodydashora/RepEditor/agents/planner"
	"github.com/melodydashora/RepEditor/autofix"
	"github.com/melodydashora/RepEditor/config"
	"github.com/melodydashora/RepEditor/repos/publisher"
	"github.com/melodydashora/RepEditor/repos/workspace"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// pipeline is everything a command needs, plus what must be closed.
type pipeline struct {
	orch   *autofix.Orchestrator
	memory *chat.Store
}

func (p *pipeline) Close() {
	if p.memory != nil {
		_ = p.memory.Close()
	}
}

// newPipeline wires the orchestrator from cfg. Chat is only enabled when
// withChat is set and an Anthropic key is configured.
func newPipeline(ctx context.Context, cfg *config.Config, withChat bool) (*pipeline, error) {
	reasoning, err := newExecutor(ctx, cfg, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating planning model: %w", err)
	}
	code, err := newExecutor(ctx, cfg, cfg.CodeModel)
	if err != nil {
		return nil, fmt.Errorf("creating code model: %w", err)
	}
	plans, err := planner.New(reasoning)
	if err != nil {
		return nil, err
	}
	diffs, err := diffsynth.New(code)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(
		workspace.WithHost(cfg.GitHost),
		workspace.WithIdentity(workspace.Identity{Name: cfg.AuthorName, Email: cfg.AuthorEmail}),
		workspace.WithDepth(cfg.CloneDepth),
		workspace.WithTimeout(cfg.CloneTimeout),
	)
	if err != nil {
		return nil, err
	}
	pub, err := publisher.New(
		publisher.WithBaseURL(cfg.GitHubBaseURL),
		publisher.WithTimeout(cfg.GitHubTimeout),
	)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	opts := []autofix.Option{autofix.WithTimeouts(autofix.Timeouts{
		Model:  cfg.ModelTimeout,
		Git:    cfg.GitTimeout,
		GitHub: cfg.GitHubTimeout,
	})}
	if withChat {
		agent, store, err := newChat(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			p.memory = store
			opts = append(opts, autofix.WithChat(agent))
		}
	}

	p.orch, err = autofix.New(ws, plans, diffs, pub, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// newExecutor builds a completion backend for model on the configured
// provider.
func newExecutor(ctx context.Context, cfg *config.Config, model string) (executor.Interface, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicKey))
		return claudeexecutor.New(ctx, client,
			claudeexecutor.WithModel(model),
			claudeexecutor.WithTemperature(min(cfg.Temperature, 1)),
			claudeexecutor.WithMaxTokens(cfg.MaxTokens),
		)
	case config.ProviderGoogle:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating Gemini client: %w", err)
		}
		return googleexecutor.New(ctx, client,
			googleexecutor.WithModel(model),
			googleexecutor.WithTemperature(float32(cfg.Temperature)),
			googleexecutor.WithMaxOutputTokens(int32(min(cfg.MaxTokens, math.MaxInt32))),
		)
	default:
		client := openai.NewClient(openaioption.WithAPIKey(cfg.OpenAIKey))
		return openaiexecutor.New(ctx, client,
			openaiexecutor.WithModel(model),
			openaiexecutor.WithTemperature(cfg.Temperature),
			openaiexecutor.WithMaxTokens(cfg.MaxTokens),
		)
	}
}

func newChat(ctx context.Context, cfg *config.Config) (*chat.Agent, *chat.Store, error) {
	if cfg.AnthropicKey == "" {
		clog.WarnContextf(ctx, "ANTHROPIC_API_KEY is not set, /api/chat is disabled")
		return nil, nil, nil
	}
	store, err := chat.OpenStore(ctx, cfg.MemoryDBPath)
	if err != nil {
		return nil, nil, err
	}
	client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicKey))
	agent, err := chat.New(ctx, client,
		chat.WithModel(cfg.ChatModel),
		chat.WithMaxRounds(cfg.ChatMaxRounds),
		chat.WithWebSearch(cfg.ChatWebSearch),
		chat.WithMemory(store),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return agent, store, nil
}
