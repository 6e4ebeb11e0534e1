/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records model usage as OpenTelemetry counters and pipeline
// stage outcomes as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is shared by every executor; the model is a dimension.
const MeterName = "repeditor.ai.agents"

// GenAI counts tokens and tool calls per model. Counters that fail to
// register degrade to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
}

// NewGenAI creates counters on the global meter provider.
func NewGenAI(ctx context.Context, meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			clog.WarnContextf(ctx, "Failed to create %s counter, metric disabled: %v", name, err)
			return noop.Int64Counter{}
		}
		return c
	}
	return &GenAI{
		promptTokens:     counter("genai.token.prompt", "The number of prompt tokens used", "{tokens}"),
		completionTokens: counter("genai.token.completion", "The number of completion tokens used", "{tokens}"),
		toolCalls:        counter("genai.tool.calls", "The number of tool calls made during execution", "{calls}"),
	}
}

// RecordTokens adds prompt and completion usage for model.
func (m *GenAI) RecordTokens(ctx context.Context, model string, prompt, completion int64) {
	opt := metric.WithAttributes(attributes(ctx, attribute.String("model", model))...)
	m.promptTokens.Add(ctx, prompt, opt)
	m.completionTokens.Add(ctx, completion, opt)
}

// RecordToolCall counts one invocation of tool by model.
func (m *GenAI) RecordToolCall(ctx context.Context, model, tool string) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attributes(ctx,
		attribute.String("model", model),
		attribute.String("tool", tool),
	)...))
}

type repositoryKey struct{}

// WithRepository tags metrics recorded under ctx with repo.
func WithRepository(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repositoryKey{}, repo)
}

func attributes(ctx context.Context, base ...attribute.KeyValue) []attribute.KeyValue {
	if repo, ok := ctx.Value(repositoryKey{}).(string); ok && repo != "" {
		base = append(base, attribute.String("repository", repo))
	}
	return base
}
