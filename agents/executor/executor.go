/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor defines the single-shot completion contract shared by
// every model provider.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/melodydashora/RepEditor/failures"
)

// Request is one system plus user exchange.
type Request struct {
	System string
	User   string
	// JSON asks the provider for a JSON object reply where it supports it.
	JSON bool
}

// Response is the model's text reply and its usage.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Interface completes a Request. Implementations make exactly one attempt.
type Interface interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Complete implements Interface.
func (f Func) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ErrEmptyReply is returned when a provider answers without any text.
var ErrEmptyReply = errors.New("model returned no text")

// Classify maps a provider SDK error onto the failure taxonomy.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failures.Deadline("model", err)
	}
	if errors.Is(err, ErrEmptyReply) {
		return fmt.Errorf("%w: %s: %w", failures.ErrModelFormat, provider, err)
	}
	return fmt.Errorf("%w: %s: %s", failures.ErrTransport, provider, failures.Redact(err.Error()))
}
