/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package diffsynth asks a code model for a unified diff that implements a
// goal against a set of context files.
package diffsynth

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/executor"
	"github.com/melodydashora/RepEditor/agents/promptbuilder"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/patcher"
	"github.com/melodydashora/RepEditor/repos/treeindex"
	"github.com/melodydashora/RepEditor/repos/workspace"
	"github.com/waigani/diffparser"
)

const (
	// MaxFiles bounds the number of context files.
	MaxFiles = 50
	// MaxFileBytes bounds each context file.
	MaxFileBytes = 200000
	// MaxTotalBytes bounds the content of all context files together.
	MaxTotalBytes = 300000
)

var systemPrompt = promptbuilder.MustNew(`<role>
You are the RepEditor AI Assistant generating code changes.
</role>

<task>
Generate a UNIFIED DIFF that applies cleanly with "git apply --index".
</task>

<rules>
- Output ONLY the diff, with no prose and no code fences.
- Use paths relative to the repository root with a/ and b/ prefixes.
- Keep changes minimal.
</rules>`)

var userPrompt = promptbuilder.MustNew(`<goal>
{{goal}}
</goal>

{{files}}`)

// File is one context file shown to the model.
type File struct {
	Path    string `xml:"path,attr"`
	Content string `xml:",chardata"`
}

type files struct {
	XMLName xml.Name `xml:"files"`
	Files   []File   `xml:"file"`
}

// Request is a goal plus the files the model may change.
type Request struct {
	Goal  string
	Files []File
}

var _ promptbuilder.Bindable = Request{}

// Bind implements promptbuilder.Bindable.
func (r Request) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	p, err := p.BindJSON("goal", r.Goal)
	if err != nil {
		return nil, err
	}
	return p.BindXML("files", files{Files: budget(r.Files)})
}

// budget applies the per-file and total limits to fs.
func budget(fs []File) []File {
	out := make([]File, 0, min(len(fs), MaxFiles))
	remaining := MaxTotalBytes
	for _, f := range fs {
		if len(out) == MaxFiles || remaining <= 0 {
			break
		}
		f.Content = failures.Truncate(f.Content, min(MaxFileBytes, remaining))
		remaining -= len(f.Content)
		out = append(out, f)
	}
	return out
}

// LoadContext reads paths from the workspace under the context limits. Paths
// that do not name a readable UTF-8 file are skipped; paths that escape the
// workspace fail the whole load.
func LoadContext(ctx context.Context, h *workspace.Handle, paths []string) ([]File, error) {
	log := clog.FromContext(ctx)
	out := make([]File, 0, min(len(paths), MaxFiles))
	remaining := MaxTotalBytes
	for _, p := range paths {
		if len(out) == MaxFiles || remaining <= 0 {
			break
		}
		content, err := treeindex.ReadFile(h, p, min(MaxFileBytes, remaining))
		switch {
		case errors.Is(err, failures.ErrPathSecurity):
			return nil, err
		case errors.Is(err, failures.ErrNotFound):
			log.With("path", p).Debug("Skipping missing context file")
			continue
		case err != nil:
			return nil, err
		}
		if !utf8.ValidString(content) {
			log.With("path", p).Debug("Skipping binary context file")
			continue
		}
		remaining -= len(content)
		out = append(out, File{Path: p, Content: content})
	}
	return out, nil
}

// Artifact is a model-generated diff that passed the shape check.
type Artifact struct {
	Text string
	// Files names the paths the diff touches. It is informational only.
	Files []string
}

// Check verifies that text looks like a unified diff: after leading
// whitespace it must begin with "diff " or "--- ". Nothing else about the
// diff is validated.
func Check(text string) (*Artifact, error) {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "diff ") && !strings.HasPrefix(trimmed, "--- ") {
		return nil, &failures.DiffFormatError{Reply: text}
	}
	return &Artifact{Text: text, Files: touched(trimmed)}, nil
}

func touched(diff string) (names []string) {
	if strings.HasPrefix(diff, "diff --git ") {
		if names = parsedNames(diff); len(names) > 0 {
			return names
		}
	}
	return patcher.ParseHeaders(diff).Paths
}

// parsedNames uses diffparser for git-style diffs. The parser panics on some
// malformed input, which is treated as having no names.
func parsedNames(diff string) (names []string) {
	defer func() {
		if recover() != nil {
			names = nil
		}
	}()
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(parsed.Files))
	for _, f := range parsed.Files {
		name := f.NewName
		if name == "" || name == "/dev/null" {
			name = f.OrigName
		}
		if rest, ok := strings.CutPrefix(name, "b/"); ok {
			name = rest
		} else if rest, ok := strings.CutPrefix(name, "a/"); ok {
			name = rest
		}
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Service synthesizes diffs with a code model.
type Service struct {
	exec   executor.Interface
	system string
}

// New creates a Service backed by exec.
func New(exec executor.Interface) (*Service, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	system, err := systemPrompt.Build()
	if err != nil {
		return nil, fmt.Errorf("building system prompt: %w", err)
	}
	return &Service{exec: exec, system: system}, nil
}

// Synthesize makes a single model call and shape-checks the reply.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	user, err := promptbuilder.Render(userPrompt, req)
	if err != nil {
		return nil, fmt.Errorf("building diff prompt: %w", err)
	}
	resp, err := s.exec.Complete(ctx, executor.Request{System: s.system, User: user})
	if err != nil {
		return nil, err
	}
	art, err := Check(resp.Text)
	if err != nil {
		clog.WarnContextf(ctx, "Discarding diff reply: %v", err)
		return nil, err
	}
	clog.FromContext(ctx).With("files", art.Files).Info("Diff ready")
	return art, nil
}
