/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package autofix composes the workspace, model and git stages into the plan,
// diff, apply and autofix operations. Every operation owns the workspace it
// acquires and releases it on every exit path.
package autofix

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/agents/chat"
	"github.com/melodydashora/RepEditor/agents/diffsynth"
	"github.com/melodydashora/RepEditor/agents/metrics"
	"github.com/melodydashora/RepEditor/agents/planner"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos"
	"github.com/melodydashora/RepEditor/repos/gitops"
	"github.com/melodydashora/RepEditor/repos/patcher"
	"github.com/melodydashora/RepEditor/repos/publisher"
	"github.com/melodydashora/RepEditor/repos/treeindex"
	"github.com/melodydashora/RepEditor/repos/workspace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	// DefaultCommitMessage is used by Apply when the caller gives none.
	DefaultCommitMessage = "chore(repeditor): automated fix"
	// DefaultPRBody is used when the caller gives no pull request body.
	DefaultPRBody = "Automated change by RepEditor AI Assistant."
	// MaxFileBytes bounds File reads.
	MaxFileBytes = 8 << 20

	planContextFiles = 12
	subjectRunes     = 80
)

// Timeouts bound the stages that talk to external systems. Cloning is
// bounded by the workspace.Manager.
type Timeouts struct {
	Model  time.Duration
	Git    time.Duration
	GitHub time.Duration
}

// DefaultTimeouts are used when New is given none.
var DefaultTimeouts = Timeouts{
	Model:  5 * time.Minute,
	Git:    time.Minute,
	GitHub: 30 * time.Second,
}

// Orchestrator runs autofix operations. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	workspaces *workspace.Manager
	planner    *planner.Service
	diffs      *diffsynth.Service
	applier    *patcher.Applier
	publisher  publisher.Interface
	chat       *chat.Agent
	timeouts   Timeouts
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithTimeouts overrides DefaultTimeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) error {
		if t.Model < 0 || t.Git < 0 || t.GitHub < 0 {
			return errors.New("timeouts cannot be negative")
		}
		if t.Model > 0 {
			o.timeouts.Model = t.Model
		}
		if t.Git > 0 {
			o.timeouts.Git = t.Git
		}
		if t.GitHub > 0 {
			o.timeouts.GitHub = t.GitHub
		}
		return nil
	}
}

// WithApplier replaces the default strict-then-fuzzy patch applier.
func WithApplier(a *patcher.Applier) Option {
	return func(o *Orchestrator) error {
		if a == nil {
			return errors.New("applier cannot be nil")
		}
		o.applier = a
		return nil
	}
}

// WithChat enables Chat.
func WithChat(a *chat.Agent) Option {
	return func(o *Orchestrator) error {
		if a == nil {
			return errors.New("chat agent cannot be nil")
		}
		o.chat = a
		return nil
	}
}

// New creates an Orchestrator.
func New(ws *workspace.Manager, plans *planner.Service, diffs *diffsynth.Service, pub publisher.Interface, opts ...Option) (*Orchestrator, error) {
	switch {
	case ws == nil:
		return nil, errors.New("workspace manager is required")
	case plans == nil:
		return nil, errors.New("planner is required")
	case diffs == nil:
		return nil, errors.New("diff synthesizer is required")
	case pub == nil:
		return nil, errors.New("publisher is required")
	}
	o := &Orchestrator{
		workspaces: ws,
		planner:    plans,
		diffs:      diffs,
		applier:    patcher.New(),
		publisher:  pub,
		timeouts:   DefaultTimeouts,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Plan clones the repository, indexes it and asks the planner for a plan.
func (o *Orchestrator) Plan(ctx context.Context, req PlanRequest) (resp *PlanResponse, err error) {
	id, err := validate(req.Repo, req.Goal)
	if err != nil {
		return nil, err
	}
	ctx, end := o.begin(ctx, "plan", id)
	defer func() { end(err) }()

	base, err := o.resolveBase(ctx, "plan", req.Token, id, req.Branch)
	if err != nil {
		return nil, err
	}
	h, err := o.acquire(ctx, "plan", req.Token, id, base)
	if err != nil {
		return nil, err
	}
	defer o.workspaces.Release(ctx, h)

	tree, err := stage(ctx, "plan", "index", 0, func(ctx context.Context) ([]treeindex.Entry, error) {
		return treeindex.Build(ctx, h, planner.MaxTreeEntries)
	})
	if err != nil {
		return nil, err
	}
	samples, err := loadSamples(ctx, h, req.SamplePaths)
	if err != nil {
		return nil, err
	}

	plan, err := stage(ctx, "plan", "model", o.timeouts.Model, func(ctx context.Context) (*planner.Result, error) {
		return o.planner.Plan(ctx, planner.Request{Branch: base, Tree: tree, Goal: req.Goal, Samples: samples})
	})
	if err != nil {
		return nil, err
	}
	return &PlanResponse{Plan: plan, Branch: base}, nil
}

func loadSamples(ctx context.Context, h *workspace.Handle, paths []string) ([]planner.Sample, error) {
	if len(paths) > planner.MaxSamples {
		paths = paths[:planner.MaxSamples]
	}
	out := make([]planner.Sample, 0, len(paths))
	for _, p := range paths {
		content, err := treeindex.ReadFile(h, p, planner.MaxSampleBytes)
		switch {
		case errors.Is(err, failures.ErrNotFound):
			clog.FromContext(ctx).With("path", p).Debug("Skipping missing sample")
			continue
		case err != nil:
			return nil, err
		}
		if !utf8.ValidString(content) {
			continue
		}
		out = append(out, planner.Sample{Path: p, Content: content})
	}
	return out, nil
}

// Diff synthesizes a diff. Unless the request is a dry run, the diff is then
// applied on a new branch, committed and pushed. Diff never opens a pull
// request.
func (o *Orchestrator) Diff(ctx context.Context, req DiffRequest) (resp *DiffResponse, err error) {
	id, err := validate(req.Repo, req.Goal)
	if err != nil {
		return nil, err
	}
	dryRun := boolOr(req.DryRun, true)
	ctx, end := o.begin(ctx, "diff", id, attribute.Bool("dry_run", dryRun))
	defer func() { end(err) }()

	base, err := o.resolveBase(ctx, "diff", req.Token, id, req.Branch)
	if err != nil {
		return nil, err
	}
	h, err := o.acquire(ctx, "diff", req.Token, id, base)
	if err != nil {
		return nil, err
	}
	defer o.workspaces.Release(ctx, h)

	files, err := stage(ctx, "diff", "context", 0, func(ctx context.Context) ([]diffsynth.File, error) {
		return diffsynth.LoadContext(ctx, h, req.ContextFiles)
	})
	if err != nil {
		return nil, err
	}
	art, err := stage(ctx, "diff", "model", o.timeouts.Model, func(ctx context.Context) (*diffsynth.Artifact, error) {
		return o.diffs.Synthesize(ctx, diffsynth.Request{Goal: req.Goal, Files: files})
	})
	if err != nil {
		return nil, err
	}

	resp = &DiffResponse{Diff: art.Text, Files: art.Files, Base: base}
	if dryRun {
		return resp, nil
	}

	pushed, err := o.push(ctx, "diff", h, base, art.Text, Subject(req.Goal))
	if err != nil {
		return nil, err
	}
	resp.Branch, resp.Commit = pushed.Branch, pushed.Commit
	return resp, nil
}

// Apply applies a caller-supplied diff on a new branch, pushes it and, by
// default, opens a pull request. The diff is shape-checked before any
// workspace is acquired.
func (o *Orchestrator) Apply(ctx context.Context, req ApplyRequest) (resp *ApplyResponse, err error) {
	id, err := repos.ParseID(req.Repo)
	if err != nil {
		return nil, err
	}
	if _, err := diffsynth.Check(req.Diff); err != nil {
		return nil, failures.Invalid(`diff must be a unified diff starting with "diff " or "--- "`)
	}
	ctx, end := o.begin(ctx, "apply", id)
	defer func() { end(err) }()

	message := req.CommitMessage
	if strings.TrimSpace(message) == "" {
		message = DefaultCommitMessage
	}

	base, err := o.resolveBase(ctx, "apply", req.Token, id, req.BaseBranch)
	if err != nil {
		return nil, err
	}
	h, err := o.acquire(ctx, "apply", req.Token, id, base)
	if err != nil {
		return nil, err
	}
	defer o.workspaces.Release(ctx, h)

	resp, err = o.push(ctx, "apply", h, base, req.Diff, message)
	if err != nil {
		return nil, err
	}
	if !boolOr(req.CreatePR, true) {
		return resp, nil
	}

	title := req.PRTitle
	if strings.TrimSpace(title) == "" {
		title = message
	}
	body := req.PRBody
	if strings.TrimSpace(body) == "" {
		body = DefaultPRBody
	}
	pr, err := stage(ctx, "apply", "publish", o.timeouts.GitHub, func(ctx context.Context) (*publisher.PullRequest, error) {
		return o.publisher.Open(ctx, req.Token, id, resp.Branch, base, title, body)
	})
	if err != nil {
		o.retract(ctx, h, resp.Branch)
		return nil, err
	}
	resp.PullRequest = pr
	resp.PRURL = &pr.URL
	return resp, nil
}

// Autofix plans, synthesizes a diff and applies it. Each step acquires and
// releases its own workspace.
func (o *Orchestrator) Autofix(ctx context.Context, req AutofixRequest) (*ApplyResponse, error) {
	if _, err := validate(req.Repo, req.Goal); err != nil {
		return nil, err
	}
	log := clog.FromContext(ctx).With("repo", req.Repo)

	plan, err := o.Plan(ctx, PlanRequest{
		Credentials: req.Credentials,
		Repo:        req.Repo,
		Branch:      req.Branch,
		Goal:        req.Goal,
		SamplePaths: req.ContextFiles,
	})
	if err != nil {
		return nil, err
	}

	contextFiles := req.ContextFiles
	if len(contextFiles) == 0 {
		contextFiles = plan.Plan.LocalFiles(planContextFiles)
	}
	log.With("context_files", len(contextFiles)).Info("Plan complete, synthesizing diff")

	diff, err := o.Diff(ctx, DiffRequest{
		Credentials:  req.Credentials,
		Repo:         req.Repo,
		Branch:       plan.Branch,
		Goal:         req.Goal,
		ContextFiles: contextFiles,
		DryRun:       ptr(true),
	})
	if err != nil {
		return nil, err
	}

	return o.Apply(ctx, ApplyRequest{
		Credentials:   req.Credentials,
		Repo:          req.Repo,
		BaseBranch:    plan.Branch,
		Diff:          diff.Diff,
		CommitMessage: Subject(req.Goal),
		CreatePR:      req.CreatePR,
	})
}

// Tree lists the repository.
func (o *Orchestrator) Tree(ctx context.Context, req TreeRequest) (resp *TreeResponse, err error) {
	id, err := repos.ParseID(req.Repo)
	if err != nil {
		return nil, err
	}
	ctx, end := o.begin(ctx, "tree", id)
	defer func() { end(err) }()

	base, err := o.resolveBase(ctx, "tree", req.Token, id, req.Branch)
	if err != nil {
		return nil, err
	}
	h, err := o.acquire(ctx, "tree", req.Token, id, base)
	if err != nil {
		return nil, err
	}
	defer o.workspaces.Release(ctx, h)

	items, err := treeindex.Build(ctx, h, treeindex.DefaultMaxEntries)
	if err != nil {
		return nil, err
	}
	return &TreeResponse{Repo: id.String(), Branch: base, Items: items}, nil
}

// File reads one file from the repository.
func (o *Orchestrator) File(ctx context.Context, req FileRequest) (content string, err error) {
	id, err := repos.ParseID(req.Repo)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Path) == "" {
		return "", failures.Invalid("path is required")
	}
	ctx, end := o.begin(ctx, "file", id)
	defer func() { end(err) }()

	base, err := o.resolveBase(ctx, "file", req.Token, id, req.Branch)
	if err != nil {
		return "", err
	}
	h, err := o.acquire(ctx, "file", req.Token, id, base)
	if err != nil {
		return "", err
	}
	defer o.workspaces.Release(ctx, h)

	return treeindex.ReadFile(h, req.Path, MaxFileBytes)
}

// Chat runs one conversational turn against a fresh clone of the
// repository. Edits made by the model are returned as a diff and never
// pushed.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (resp *chat.Response, err error) {
	if o.chat == nil {
		return nil, failures.Invalid("chat is not configured")
	}
	id, err := repos.ParseID(req.Repo)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, failures.Invalid("message is required")
	}
	ctx, end := o.begin(ctx, "chat", id)
	defer func() { end(err) }()

	base, err := o.resolveBase(ctx, "chat", req.Token, id, req.Branch)
	if err != nil {
		return nil, err
	}
	h, err := o.acquire(ctx, "chat", req.Token, id, base)
	if err != nil {
		return nil, err
	}
	defer o.workspaces.Release(ctx, h)

	return stage(ctx, "chat", "model", o.timeouts.Model, func(ctx context.Context) (*chat.Response, error) {
		return o.chat.Run(ctx, h, req.Request)
	})
}

// push creates a branch from base, applies diff and pushes the commit.
func (o *Orchestrator) push(ctx context.Context, op string, h *workspace.Handle, base, diff, message string) (*ApplyResponse, error) {
	branch, err := stage(ctx, op, "branch", o.timeouts.Git, func(ctx context.Context) (gitops.Branch, error) {
		return gitops.NewBranch(ctx, h, base, gitops.NewSlug())
	})
	if err != nil {
		return nil, err
	}
	strategy, err := stage(ctx, op, "apply", o.timeouts.Git, func(ctx context.Context) (string, error) {
		return o.applier.Apply(ctx, h, diff)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPatchStrategy(strategy)

	commit, err := stage(ctx, op, "push", o.timeouts.Git, func(ctx context.Context) (string, error) {
		return gitops.CommitAndPush(ctx, h, branch, message)
	})
	if err != nil {
		return nil, err
	}
	return &ApplyResponse{Branch: branch.Name, Base: branch.Base, Commit: commit, Strategy: strategy}, nil
}

// retract deletes a branch that was pushed before a later stage failed. It
// runs even when ctx is already done. Its own failure is logged and the
// original error is what the caller sees.
func (o *Orchestrator) retract(ctx context.Context, h *workspace.Handle, branch string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.Git)
	defer cancel()
	if err := gitops.DeleteRemoteBranch(ctx, h, branch); err != nil {
		clog.FromContext(ctx).With("branch", branch).Errorf("Failed to delete pushed branch after failure: %v", err)
	}
}

func (o *Orchestrator) resolveBase(ctx context.Context, op, token string, id repos.ID, branch string) (string, error) {
	if branch = strings.TrimSpace(branch); branch != "" {
		return branch, nil
	}
	return stage(ctx, op, "resolve_base", o.timeouts.GitHub, func(ctx context.Context) (string, error) {
		return o.publisher.DefaultBranch(ctx, token, id)
	})
}

func (o *Orchestrator) acquire(ctx context.Context, op, token string, id repos.ID, branch string) (*workspace.Handle, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return stage(ctx, op, "clone", 0, func(ctx context.Context) (*workspace.Handle, error) {
		return o.workspaces.Acquire(ctx, id, ts, branch)
	})
}

// begin starts the operation span and returns a func that ends it.
func (o *Orchestrator) begin(ctx context.Context, op string, id repos.ID, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx = metrics.WithRepository(ctx, id.String())
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("operation", op, "repo", id.String()))
	ctx, span := tracer().Start(ctx, "autofix."+op, oteltrace.WithAttributes(
		append(attrs, attribute.String("repository", id.String()))...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func tracer() oteltrace.Tracer {
	return otel.Tracer("repeditor.autofix", oteltrace.WithInstrumentationVersion("1.0.0"))
}

// stage runs fn as one named pipeline stage: bounded by timeout when
// positive, traced, and counted. Deadline expiry becomes a TimeoutError.
func stage[T any](ctx context.Context, op, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer().Start(ctx, "autofix.stage."+name)
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := metrics.StartStage(op, name)
	v, err := fn(ctx)
	err = failures.Deadline(name, err)
	m.Done(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		clog.FromContext(ctx).With("stage", name).Warnf("Stage failed: %v", err)
	}
	return v, err
}

func validate(repo, goal string) (repos.ID, error) {
	id, err := repos.ParseID(repo)
	if err != nil {
		return repos.ID{}, err
	}
	if strings.TrimSpace(goal) == "" {
		return repos.ID{}, failures.Invalid("goal is required")
	}
	return id, nil
}

// Subject is the commit message used for goal-driven changes: the goal's
// whitespace collapsed and cut to 80 characters, after a chore prefix.
func Subject(goal string) string {
	g := strings.Join(strings.Fields(goal), " ")
	if r := []rune(g); len(r) > subjectRunes {
		g = string(r[:subjectRunes])
	}
	return "chore(repeditor): " + g
}

func ptr[T any](v T) *T { return &v }
