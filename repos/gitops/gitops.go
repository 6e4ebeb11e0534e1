/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitops creates branches, commits and pushes inside a workspace.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/workspace"
)

// BranchPrefix namespaces every branch this service creates.
const BranchPrefix = "repeditor/"

// Branch records a branch created for a change.
type Branch struct {
	Name string
	Base string
}

// NewSlug returns eight random hex characters.
func NewSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewBranch switches the workspace to base, fetching it first if the clone
// did not include it, and then creates and checks out repeditor/<slug>.
func NewBranch(ctx context.Context, h *workspace.Handle, base, slug string) (Branch, error) {
	if base == "" {
		base = h.Branch()
	}
	if slug == "" {
		slug = NewSlug()
	}
	name := BranchPrefix + slug

	wt, err := h.Repo().Worktree()
	if err != nil {
		return Branch{}, &failures.GitOperationError{Op: "worktree", Err: err}
	}

	if base != h.Branch() {
		if err := checkoutRemote(ctx, h, wt, base); err != nil {
			return Branch{}, err
		}
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}); err != nil {
		return Branch{}, &failures.GitOperationError{Op: "checkout -b " + name, Err: err}
	}

	clog.FromContext(ctx).With("branch", name, "base", base).Info("Created branch")
	return Branch{Name: name, Base: base}, nil
}

func checkoutRemote(ctx context.Context, h *workspace.Handle, wt *git.Worktree, base string) error {
	remoteRef := plumbing.NewRemoteReferenceName(git.DefaultRemoteName, base)
	opts := &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(base), remoteRef)),
		},
		Tags: git.NoTags,
	}
	if auth := h.Auth(); auth != nil {
		opts.Auth = auth
	}
	if err := h.Repo().FetchContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return failures.Deadline("fetch", &failures.GitOperationError{Op: "fetch " + base, Err: err})
	}

	ref, err := h.Repo().Reference(remoteRef, true)
	if err != nil {
		return &failures.GitOperationError{Op: "resolve " + base, Err: err}
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(base),
		Hash:   ref.Hash(),
		Create: true,
	}); err != nil {
		return &failures.GitOperationError{Op: "checkout " + base, Err: err}
	}
	return nil
}

// CommitAndPush commits the staged index with a sign-off trailer and pushes
// the branch to origin. Empty commits are refused and the push never forces.
func CommitAndPush(ctx context.Context, h *workspace.Handle, branch Branch, message string) (string, error) {
	hash, err := Commit(ctx, h, message)
	if err != nil {
		return "", err
	}
	if err := Push(ctx, h, branch.Name); err != nil {
		return "", err
	}
	return hash, nil
}

// Commit records the staged index and returns the new commit hash.
func Commit(ctx context.Context, h *workspace.Handle, message string) (string, error) {
	wt, err := h.Repo().Worktree()
	if err != nil {
		return "", &failures.GitOperationError{Op: "worktree", Err: err}
	}

	staged, err := hasStagedChanges(wt)
	if err != nil {
		return "", &failures.GitOperationError{Op: "status", Err: err}
	}
	if !staged {
		return "", &failures.GitOperationError{Op: "commit", Err: errors.New("nothing to commit")}
	}

	id := h.Identity()
	sig := &object.Signature{Name: id.Name, Email: id.Email, When: time.Now()}
	hash, err := wt.Commit(SignOff(message, id), &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return "", &failures.GitOperationError{Op: "commit", Err: err}
	}

	clog.FromContext(ctx).With("commit", hash.String()).Info("Committed changes")
	return hash.String(), nil
}

// Push pushes refs/heads/<branch> to the same name on origin.
func Push(ctx context.Context, h *workspace.Handle, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
	}
	if auth := h.Auth(); auth != nil {
		opts.Auth = auth
	}

	if err := h.Repo().PushContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return failures.Deadline("push", &failures.GitOperationError{Op: "push " + branch, Err: err})
	}

	clog.FromContext(ctx).With("branch", branch).Info("Pushed branch")
	return nil
}

// DeleteRemoteBranch removes refs/heads/<branch> from origin. A branch that
// is already gone is not an error.
func DeleteRemoteBranch(ctx context.Context, h *workspace.Handle, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(":" + ref.String())},
	}
	if auth := h.Auth(); auth != nil {
		opts.Auth = auth
	}

	if err := h.Repo().PushContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return failures.Deadline("delete branch", &failures.GitOperationError{Op: "push --delete " + branch, Err: err})
	}

	clog.FromContext(ctx).With("branch", branch).Info("Deleted remote branch")
	return nil
}

// SignOff appends a Signed-off-by trailer for id unless message already
// carries one.
func SignOff(message string, id workspace.Identity) string {
	trailer := fmt.Sprintf("Signed-off-by: %s <%s>", id.Name, id.Email)
	message = strings.TrimRight(message, "\n")
	if strings.Contains(message, trailer) {
		return message + "\n"
	}
	return message + "\n\n" + trailer + "\n"
}

func hasStagedChanges(wt *git.Worktree) (bool, error) {
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true, nil
		}
	}
	return false, nil
}
