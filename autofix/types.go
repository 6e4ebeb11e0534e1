/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package autofix

import (
	"github.com/melodydashora/RepEditor/agents/chat"
	"github.com/melodydashora/RepEditor/agents/planner"
	"github.com/melodydashora/RepEditor/repos/publisher"
	"github.com/melodydashora/RepEditor/repos/treeindex"
)

// Credentials carries the caller's platform token. It is never serialized.
type Credentials struct {
	Token string `json:"-"`
}

// PlanRequest asks for a remediation plan.
type PlanRequest struct {
	Credentials
	Repo        string   `json:"repo"`
	Branch      string   `json:"branch,omitempty"`
	Goal        string   `json:"goal"`
	SamplePaths []string `json:"sample_paths,omitempty"`
}

// PlanResponse is the plan and the branch it was made against.
type PlanResponse struct {
	Plan   *planner.Result `json:"plan"`
	Branch string          `json:"branch"`
}

// DiffRequest asks for a diff, and unless DryRun, pushes it to a new branch.
type DiffRequest struct {
	Credentials
	Repo         string   `json:"repo"`
	Branch       string   `json:"branch,omitempty"`
	Goal         string   `json:"goal"`
	ContextFiles []string `json:"context_files"`
	// DryRun defaults to true.
	DryRun *bool `json:"dry_run,omitempty"`
}

// DiffResponse is the synthesized diff. Branch and Commit are only set when
// the diff was pushed.
type DiffResponse struct {
	Diff   string   `json:"diff"`
	Files  []string `json:"files"`
	Base   string   `json:"base"`
	Branch string   `json:"branch,omitempty"`
	Commit string   `json:"commit,omitempty"`
}

// ApplyRequest applies a caller-supplied diff on a new branch.
type ApplyRequest struct {
	Credentials
	Repo          string `json:"repo"`
	BaseBranch    string `json:"base_branch,omitempty"`
	Diff          string `json:"diff"`
	CommitMessage string `json:"commit_message,omitempty"`
	// CreatePR defaults to true.
	CreatePR *bool  `json:"create_pr,omitempty"`
	PRTitle  string `json:"pr_title,omitempty"`
	PRBody   string `json:"pr_body,omitempty"`
}

// ApplyResponse reports the pushed branch and the pull request, if any.
type ApplyResponse struct {
	Branch      string                 `json:"branch"`
	Base        string                 `json:"base"`
	Commit      string                 `json:"commit"`
	Strategy    string                 `json:"strategy"`
	PRURL       *string                `json:"pr_url"`
	PullRequest *publisher.PullRequest `json:"pull_request,omitempty"`
}

// AutofixRequest runs plan, diff and apply in sequence.
type AutofixRequest struct {
	Credentials
	Repo         string   `json:"repo"`
	Branch       string   `json:"branch,omitempty"`
	Goal         string   `json:"goal"`
	ContextFiles []string `json:"context_files,omitempty"`
	// CreatePR defaults to true.
	CreatePR *bool `json:"create_pr,omitempty"`
}

// TreeRequest lists a repository.
type TreeRequest struct {
	Credentials
	Repo   string
	Branch string
}

// TreeResponse is a repository listing.
type TreeResponse struct {
	Repo   string            `json:"repo"`
	Branch string            `json:"branch"`
	Items  []treeindex.Entry `json:"items"`
}

// FileRequest reads one file.
type FileRequest struct {
	Credentials
	Repo   string
	Branch string
	Path   string
}

// ChatRequest is one conversational turn scoped to a repository.
type ChatRequest struct {
	Credentials
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
	chat.Request
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
