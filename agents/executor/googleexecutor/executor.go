/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleexecutor completes prompts with Gemini models.
package googleexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/metrics"
	"google.golang.org/genai"
)

// Executor implements executor.Interface for Gemini models.
type Executor struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	genai           *metrics.GenAI
}

var _ executor.Interface = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel sets the model.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if !strings.HasPrefix(model, "gemini-") {
			return fmt.Errorf("model %q does not appear to be a Gemini model (expected gemini-* format)", model)
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the temperature. Gemini accepts 0.0 to 2.0.
func WithTemperature(temperature float32) Option {
	return func(e *Executor) error {
		if temperature < 0.0 || temperature > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temperature)
		}
		e.temperature = temperature
		return nil
	}
}

// WithMaxOutputTokens bounds the reply length.
func WithMaxOutputTokens(tokens int32) Option {
	return func(e *Executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max output tokens must be positive, got %d", tokens)
		}
		e.maxOutputTokens = tokens
		return nil
	}
}

// New creates an Executor on client.
func New(ctx context.Context, client *genai.Client, opts ...Option) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	e := &Executor{
		client:          client,
		model:           "gemini-2.5-pro",
		temperature:     0.2,
		maxOutputTokens: 8192,
		genai:           metrics.NewGenAI(ctx, metrics.MeterName),
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
	log.With("prompt_length", len(req.User)).Info("Calling Gemini")

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(e.temperature),
		MaxOutputTokens: e.maxOutputTokens,
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.User}},
	}}, config)
	if err != nil {
		return nil, executor.Classify("google", err)
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in, out = int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount)
		e.genai.RecordTokens(ctx, e.model, in, out)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, executor.Classify("google", executor.ErrEmptyReply)
	}

	log.With("input_tokens", in).With("output_tokens", out).Info("Gemini replied")
	model := resp.ModelVersion
	if model == "" {
		model = e.model
	}
	return &executor.Response{Text: text.String(), Model: model, InputTokens: in, OutputTokens: out}, nil
}
