/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiexecutor completes prompts with OpenAI chat completions.
package openaiexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/metrics"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// Executor implements executor.Interface for OpenAI models.
type Executor struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
	effort      shared.ReasoningEffort
	genai       *metrics.GenAI
}

var _ executor.Interface = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel sets the model.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("model cannot be empty")
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature, between 0.0 and 2.0.
// Reasoning models ignore it.
func WithTemperature(temp float64) Option {
	return func(e *Executor) error {
		if temp < 0.0 || temp > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(tokens int64) Option {
	return func(e *Executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithReasoningEffort sets the effort sent to reasoning models.
func WithReasoningEffort(effort shared.ReasoningEffort) Option {
	return func(e *Executor) error {
		switch effort {
		case shared.ReasoningEffortLow, shared.ReasoningEffortMedium, shared.ReasoningEffortHigh:
		default:
			return fmt.Errorf("unknown reasoning effort %q", effort)
		}
		e.effort = effort
		return nil
	}
}

// New creates an Executor on client.
func New(ctx context.Context, client openai.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		model:       "gpt-5",
		temperature: 0.2,
		maxTokens:   16000,
		effort:      shared.ReasoningEffortMedium,
		genai:       metrics.NewGenAI(ctx, metrics.MeterName),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// IsReasoningModel reports whether model takes a reasoning effort in place
// of a temperature.
func IsReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Complete implements executor.Interface.
func (e *Executor) Complete(ctx context.Context, req executor.Request) (*executor.Response, error) {
	log := clog.FromContext(ctx).With("model", e.model)
	log.With("prompt_length", len(req.User)).Info("Calling OpenAI")

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(e.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(e.maxTokens),
	}
	if IsReasoningModel(e.model) {
		params.ReasoningEffort = e.effort
	} else {
		params.Temperature = openai.Float(e.temperature)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, executor.Classify("openai", err)
	}
	e.genai.RecordTokens(ctx, e.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, executor.Classify("openai", executor.ErrEmptyReply)
	}

	log.With("input_tokens", resp.Usage.PromptTokens).With("output_tokens", resp.Usage.CompletionTokens).Info("OpenAI replied")
	return &executor.Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
