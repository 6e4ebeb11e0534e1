/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/executor/claudeexecutor"
	"github.com/melodydashora/RepEditor/failures"
)

func newExecutor(t *testing.T, handler http.HandlerFunc, opts ...claudeexecutor.Option) *claudeexecutor.Executor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithBaseURL(srv.URL+"/"),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	e, err := claudeexecutor.New(context.Background(), client, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestComplete(t *testing.T) {
	e := newExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path: got = %s", r.URL.Path)
		}
		var body struct {
			Model       string  `json:"model"`
			MaxTokens   int64   `json:"max_tokens"`
			Temperature float64 `json:"temperature"`
			System      []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if body.Model != "claude-opus-4-1" || body.MaxTokens != 1000 || body.Temperature != 0.5 {
			t.Errorf("params: got model=%s max_tokens=%d temperature=%v", body.Model, body.MaxTokens, body.Temperature)
		}
		if len(body.System) != 1 || body.System[0].Text != "be terse" {
			t.Errorf("system: got %+v", body.System)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" || body.Messages[0].Content[0].Text != "hello" {
			t.Errorf("messages: got %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-opus-4-1",
			"content": [{"type": "text", "text": "hi "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	},
		claudeexecutor.WithModel("claude-opus-4-1"),
		claudeexecutor.WithMaxTokens(1000),
		claudeexecutor.WithTemperature(0.5),
	)

	got, err := e.Complete(context.Background(), executor.Request{System: "be terse", User: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := executor.Response{Text: "hi there", Model: "claude-opus-4-1", InputTokens: 12, OutputTokens: 3}
	if *got != want {
		t.Errorf("Complete: got = %+v, wanted = %+v", *got, want)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{{
		name:    "server error",
		status:  http.StatusInternalServerError,
		body:    `{"type": "error", "error": {"type": "api_error", "message": "boom"}}`,
		wantErr: failures.ErrTransport,
	}, {
		name:    "no text",
		status:  http.StatusOK,
		body:    `{"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5", "content": [], "stop_reason": "max_tokens", "usage": {"input_tokens": 1, "output_tokens": 0}}`,
		wantErr: failures.ErrModelFormat,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExecutor(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := e.Complete(context.Background(), executor.Request{User: "hello"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Complete: got %v, wanted %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	tests := map[string]claudeexecutor.Option{
		"non-claude model": claudeexecutor.WithModel("gpt-5"),
		"zero max tokens":  claudeexecutor.WithMaxTokens(0),
		"hot temperature":  claudeexecutor.WithTemperature(1.5),
	}
	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := claudeexecutor.New(context.Background(), anthropic.NewClient(), opt); err == nil {
				t.Error("New: expected error")
			}
		})
	}
}
