/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeexecutor completes prompts with Anthropic's Messages API.
package claudeexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/metrics"
)

// Executor implements executor.Interface for Claude models.
type Executor struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	genai       *metrics.GenAI
}

var _ executor.Interface = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		e.model = model
		return nil
	}
}

// WithMaxTokens bounds the reply length.
func WithMaxTokens(tokens int64) Option {
	return func(e *Executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature, between 0.0 and 1.0.
func WithTemperature(temp float64) Option {
	return func(e *Executor) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// New creates an Executor on client.
func New(ctx context.Context, client anthropic.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		model:       "claude-sonnet-4-5",
		maxTokens:   8192,
		temperature: 0.2,
		genai:       metrics.NewGenAI(ctx, metrics.MeterName),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Complete implements executor.Interface.
func (e *Executor) Complete(ctx context.Context, req executor.Request) (*executor.Response, error) {
	log := clog.FromContext(ctx).With("model", e.model)
	log.With("prompt_length", len(req.User)).Info("Calling Claude")

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(e.model),
		MaxTokens:   e.maxTokens,
		Temperature: anthropic.Float(e.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, executor.Classify("anthropic", err)
	}
	e.genai.RecordTokens(ctx, e.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, executor.Classify("anthropic", fmt.Errorf("%w (stop reason %s)", executor.ErrEmptyReply, msg.StopReason))
	}

	log.With("input_tokens", msg.Usage.InputTokens).With("output_tokens", msg.Usage.OutputTokens).Info("Claude replied")
	return &executor.Response{
		Text:         text.String(),
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
