/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package planner asks a reasoning model for a structured remediation plan.
package planner

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/promptbuilder"
	"github.com/melodydashora/RepEditor/agents/result"
	"github.com/melodydashora/RepEditor/agents/schema"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/treeindex"
)

const (
	// MaxTreeEntries bounds the tree sent to the model.
	MaxTreeEntries = 4000
	// MaxSamples bounds the number of sample files.
	MaxSamples = 20
	// MaxSampleBytes bounds each sample file.
	MaxSampleBytes = 65536
)

// Result is the plan the model returns.
type Result struct {
	Plan  []string `json:"plan" jsonschema:"required,description=Ordered implementation steps"`
	Files []string `json:"files" jsonschema:"required,description=Repository-relative paths the change touches"`
	Risks []string `json:"risks" jsonschema:"description=What could go wrong"`
	Tests []string `json:"tests" jsonschema:"description=Validation checks to run afterwards"`
}

// Validate implements result.Validator.
func (r *Result) Validate() error {
	if len(r.Plan) == 0 {
		return errors.New("plan must contain at least one step")
	}
	if r.Files == nil {
		return errors.New("files is required")
	}
	return nil
}

// LocalFiles returns up to n entries of Files that name a path inside the
// repository. URLs, absolute paths and escapes are dropped.
func (r *Result) LocalFiles(n int) []string {
	out := make([]string, 0, min(n, len(r.Files)))
	for _, f := range r.Files {
		if len(out) == n {
			break
		}
		f = strings.TrimSpace(f)
		if f == "" || strings.Contains(f, "://") || strings.HasPrefix(f, "/") {
			continue
		}
		clean := path.Clean(f)
		if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
			continue
		}
		out = append(out, clean)
	}
	return out
}

// Sample is a file shown to the model verbatim.
type Sample struct {
	Path    string `xml:"path,attr"`
	Content string `xml:",chardata"`
}

type samples struct {
	XMLName xml.Name `xml:"samples"`
	Files   []Sample `xml:"file"`
}

// Request describes what to plan.
type Request struct {
	Branch  string
	Tree    []treeindex.Entry
	Goal    string
	Samples []Sample
}

var _ promptbuilder.Bindable = Request{}

// Bind implements promptbuilder.Bindable, applying the size limits.
func (r Request) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	tree := r.Tree
	if len(tree) > MaxTreeEntries {
		tree = tree[:MaxTreeEntries]
	}
	if tree == nil {
		tree = []treeindex.Entry{}
	}

	s := samples{}
	for _, sample := range r.Samples {
		if len(s.Files) == MaxSamples {
			break
		}
		sample.Content = failures.Truncate(sample.Content, MaxSampleBytes)
		s.Files = append(s.Files, sample)
	}

	p, err := p.BindJSON("goal", r.Goal)
	if err != nil {
		return nil, err
	}
	if p, err = p.BindJSON("branch", r.Branch); err != nil {
		return nil, err
	}
	if p, err = p.BindYAML("tree", tree); err != nil {
		return nil, err
	}
	return p.BindXML("samples", s)
}

// Service plans changes with a reasoning model.
type Service struct {
	exec   executor.Interface
	system string
}

// New creates a Service backed by exec.
func New(exec executor.Interface) (*Service, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	s, err := schema.JSON[Result]()
	if err != nil {
		return nil, err
	}
	system, err := systemPrompt.MustBindJSON("schema", json.RawMessage(s)).Build()
	if err != nil {
		return nil, fmt.Errorf("building system prompt: %w", err)
	}
	return &Service{exec: exec, system: system}, nil
}

// Plan makes a single model call and decodes its reply. A reply that does
// not decode into a valid Result yields a PlanningError.
func (s *Service) Plan(ctx context.Context, req Request) (*Result, error) {
	user, err := promptbuilder.Render(userPrompt, req)
	if err != nil {
		return nil, fmt.Errorf("building plan prompt: %w", err)
	}

	resp, err := s.exec.Complete(ctx, executor.Request{System: s.system, User: user, JSON: true})
	if err != nil {
		return nil, err
	}

	plan, err := result.Decode[Result](resp.Text)
	if err != nil {
		clog.WarnContextf(ctx, "Discarding plan reply: %v", err)
		return nil, &failures.PlanningError{Reply: resp.Text, Err: err}
	}
	clog.FromContext(ctx).With("steps", len(plan.Plan)).With("files", len(plan.Files)).Info("Plan ready")
	return plan, nil
}
