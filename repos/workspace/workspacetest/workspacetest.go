/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspacetest provides local git remotes and workspace managers for
// tests of packages that operate on workspaces.
package workspacetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/melodydashora/RepEditor/repos"
	"github.com/melodydashora/RepEditor/repos/workspace"
	"golang.org/x/oauth2"
)

// DefaultBranch is the branch NewRemote commits to.
const DefaultBranch = "main"

// ID is the repository Acquire clones.
var ID = repos.ID{Owner: "acme", Name: "widgets"}

// NewRemote creates a non-bare repository under t.TempDir containing files
// committed on DefaultBranch. It returns the directory and the commit hash.
func NewRemote(t testing.TB, files map[string]string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
		AllowEmptyCommits: len(files) == 0,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	main := plumbing.NewBranchReferenceName(DefaultBranch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(main, hash)); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, main)); err != nil {
		t.Fatalf("SetReference HEAD: %v", err)
	}
	if err := repo.Storer.RemoveReference(plumbing.Master); err != nil {
		t.Fatalf("RemoveReference: %v", err)
	}

	return dir, hash.String()
}

// NewManager returns a workspace.Manager that clones every repository from
// remoteDir with full history.
func NewManager(t testing.TB, remoteDir string, opts ...workspace.Option) *workspace.Manager {
	t.Helper()

	opts = append([]workspace.Option{
		workspace.WithDepth(0),
		workspace.WithRemoteResolver(func(string, repos.ID) string { return remoteDir }),
	}, opts...)
	mgr, err := workspace.New(opts...)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return mgr
}

// Acquire creates a remote holding files and returns a workspace cloned from
// it. The workspace is released when the test ends.
func Acquire(t testing.TB, files map[string]string) (*workspace.Manager, *workspace.Handle, string) {
	t.Helper()

	remote, _ := NewRemote(t, files)
	mgr := NewManager(t, remote)

	ctx := context.Background()
	h, err := mgr.Acquire(ctx, ID, TokenSource(""), "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { mgr.Release(ctx, h) })
	return mgr, h, remote
}

// TokenSource returns a static token source for tok.
func TokenSource(tok string) oauth2.TokenSource {
	return staticTokenSource(tok)
}

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}
