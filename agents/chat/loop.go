/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package chat runs a bounded tool-calling conversation with Claude against
// an ephemeral repository workspace.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/metrics"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/gitops"
	"github.com/melodydashora/RepEditor/repos/workspace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxRounds bounds model calls per Run.
	DefaultMaxRounds = 5
	// ResultPreview is how much of each tool result is reported back.
	ResultPreview = 500
)

const systemPrompt = `You are RepEditor, an assistant working inside a checked-out copy of a Git repository.

<rules>
- Use the tools to inspect the repository before answering questions about it.
- Paths are relative to the repository root.
- When asked to change code, edit files with write_file. Your edits are returned to the user as a diff; you cannot commit or push.
- Keep answers short and concrete.
</rules>`

var tracer = otel.Tracer("github.com/melodydashora/RepEditor/agents/chat", oteltrace.WithInstrumentationVersion("1.0.0"))

// Role is a conversation participant.
type Role string

const (
	// RoleUser marks a turn written by the caller.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the model.
	RoleAssistant Role = "assistant"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one user turn.
type Request struct {
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
	// MaxRounds overrides the agent's cap when positive.
	MaxRounds int `json:"max_rounds,omitempty"`
}

// ToolCall reports one executed tool.
type ToolCall struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input"`
	Result string          `json:"result"`
}

// Response is the outcome of a Run.
type Response struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls"`
	// Changes is the staged diff of the workspace after the conversation.
	Changes string `json:"changes"`
	Rounds  int    `json:"rounds"`
	// Truncated is set when the round cap stopped the conversation.
	Truncated bool `json:"truncated,omitempty"`
}

// Agent holds the model configuration shared by every Run.
type Agent struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxRounds int
	webSearch bool
	memory    *Store
	genai     *metrics.GenAI
}

// Option configures an Agent.
type Option func(*Agent) error

// WithModel overrides the Claude model.
func WithModel(model string) Option {
	return func(a *Agent) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		a.model = model
		return nil
	}
}

// WithMaxTokens bounds each reply.
func WithMaxTokens(tokens int64) Option {
	return func(a *Agent) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		a.maxTokens = tokens
		return nil
	}
}

// WithMaxRounds sets the default cap on model calls.
func WithMaxRounds(n int) Option {
	return func(a *Agent) error {
		if n <= 0 {
			return fmt.Errorf("max rounds must be positive, got %d", n)
		}
		a.maxRounds = n
		return nil
	}
}

// WithWebSearch offers the server-side web search tool.
func WithWebSearch(enabled bool) Option {
	return func(a *Agent) error {
		a.webSearch = enabled
		return nil
	}
}

// WithMemory enables memory_read and memory_write against s.
func WithMemory(s *Store) Option {
	return func(a *Agent) error {
		a.memory = s
		return nil
	}
}

// New creates an Agent on client.
func New(ctx context.Context, client anthropic.Client, opts ...Option) (*Agent, error) {
	a := &Agent{
		client:    client,
		model:     "claude-sonnet-4-5",
		maxTokens: 8192,
		maxRounds: DefaultMaxRounds,
		genai:     metrics.NewGenAI(ctx, metrics.MeterName),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return a, nil
}

// Run converses until the model answers without calling tools or the round
// cap is reached. Files the model writes stay in h; their diff is returned.
func (a *Agent) Run(ctx context.Context, h *workspace.Handle, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, failures.Invalid("message is required")
	}
	rounds := a.maxRounds
	if req.MaxRounds > 0 {
		rounds = req.MaxRounds
	}

	ctx, span := tracer.Start(ctx, "chat.run", oteltrace.WithAttributes(
		attribute.String("repo", h.ID().String()),
		attribute.String("model", a.model),
		attribute.Int("max_rounds", rounds),
	))
	defer span.End()
	log := clog.FromContext(ctx).With("model", a.model)

	tools, err := definitions(a.webSearch)
	if err != nil {
		return nil, err
	}
	messages, err := history(req.History)
	if err != nil {
		return nil, err
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Tools:     tools,
		Messages:  messages,
	}
	run := &runner{h: h, memory: a.memory, namespace: h.ID().String()}

	resp := &Response{ToolCalls: []ToolCall{}}
	for resp.Rounds < rounds {
		resp.Rounds++
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, executor.Classify("anthropic", err)
		}
		a.genai.RecordTokens(ctx, a.model, message.Usage.InputTokens, message.Usage.OutputTokens)

		var (
			uses []anthropic.ToolUseBlock
			text strings.Builder
		)
		for _, content := range message.Content {
			switch content.Type {
			case "text":
				text.WriteString(content.Text)
			case "tool_use":
				uses = append(uses, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}
		if text.Len() > 0 {
			resp.Response = text.String()
		}
		if len(uses) == 0 {
			break
		}

		params.Messages = append(params.Messages, message.ToParam())
		results := make([]anthropic.ContentBlockParamUnion, 0, len(uses))
		for _, use := range uses {
			a.genai.RecordToolCall(ctx, a.model, use.Name)
			out, isErr := a.execute(ctx, run, use)
			log.With("tool", use.Name).With("round", resp.Rounds).Info("Executed tool")
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Tool:   use.Name,
				Input:  rawOrEmpty(use.Input),
				Result: failures.Truncate(out, ResultPreview),
			})
			results = append(results, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: use.ID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: out},
					}},
					IsError: anthropic.Bool(isErr),
				},
			})
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
		if resp.Rounds == rounds {
			resp.Truncated = true
			log.With("rounds", rounds).Warn("Chat stopped at round limit")
		}
	}

	changes, err := gitops.StagedDiff(ctx, h)
	if err != nil {
		return nil, err
	}
	resp.Changes = changes
	span.SetAttributes(attribute.Int("rounds", resp.Rounds), attribute.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// execute decodes and runs one tool use. The second result reports whether
// the output is an error.
func (a *Agent) execute(ctx context.Context, run *runner, use anthropic.ToolUseBlock) (string, bool) {
	call, err := Decode(use.Name, use.Input)
	if err != nil {
		clog.FromContext(ctx).With("tool", use.Name).With("error", err).Error("Bad tool call")
		return errorResult(err), true
	}
	out := run.Run(ctx, call)
	return out, strings.HasPrefix(out, `{"error":`)
}

func history(turns []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(turns)+1)
	for i, t := range turns {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			return nil, failures.Invalid("history[%d]: unknown role %q", i, t.Role)
		}
	}
	return out, nil
}

func rawOrEmpty(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return b
}
