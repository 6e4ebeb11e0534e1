/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executortest provides a scripted executor for tests.
package executortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/melodydashora/RepEditor/agents/executor"
)

// Fake replies with Replies in order, repeating the last one, and records
// every Request.
type Fake struct {
	Replies []string
	// Err, when set, is returned instead of a reply.
	Err error

	mu       sync.Mutex
	requests []executor.Request
}

var _ executor.Interface = (*Fake)(nil)

// Complete implements executor.Interface.
func (f *Fake) Complete(_ context.Context, req executor.Request) (*executor.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.requests)
	f.requests = append(f.requests, req)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Replies) == 0 {
		return nil, fmt.Errorf("no scripted reply for call %d", n+1)
	}
	reply := f.Replies[min(n, len(f.Replies)-1)]
	return &executor.Response{Text: reply, Model: "fake"}, nil
}

// Requests returns a copy of every request seen so far.
func (f *Fake) Requests() []executor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Request(nil), f.requests...)
}
