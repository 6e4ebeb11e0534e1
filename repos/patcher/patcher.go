/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package patcher applies unified diffs to a workspace by trying an ordered
// list of strategies until one succeeds.
package patcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/workspace"
)

// Patch is a diff that has been validated and written to disk.
type Patch struct {
	// File is the absolute path of the diff on disk.
	File string
	// Strip is the -p level for the diff's header paths.
	Strip int
}

// Strategy applies a patch to a workspace, leaving the result staged in the
// index. The returned output is the tool's combined output.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, h *workspace.Handle, p Patch) (string, error)
}

// Applier runs its strategies in order until one succeeds.
type Applier struct {
	strategies []Strategy
}

// New returns an Applier using strategies, or Strict then Fuzzy when none
// are given.
func New(strategies ...Strategy) *Applier {
	if len(strategies) == 0 {
		strategies = []Strategy{Strict(), Fuzzy()}
	}
	return &Applier{strategies: strategies}
}

// Apply validates the paths named by diff, then applies it. It returns the
// name of the strategy that succeeded.
func (a *Applier) Apply(ctx context.Context, h *workspace.Handle, diff string) (string, error) {
	if strings.TrimSpace(diff) == "" {
		return "", failures.Invalid("diff is empty")
	}

	headers := ParseHeaders(diff)
	for _, p := range headers.Paths {
		if err := checkPath(h, p); err != nil {
			return "", err
		}
	}

	f, err := os.CreateTemp(filepath.Join(h.Root(), ".git"), "repeditor-patch-*.diff")
	if err != nil {
		return "", fmt.Errorf("creating patch file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(diff); err != nil {
		f.Close()
		return "", fmt.Errorf("writing patch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing patch file: %w", err)
	}

	patch := Patch{File: f.Name(), Strip: headers.Strip}
	log := clog.FromContext(ctx).With("files", len(headers.Paths), "strip", headers.Strip)

	var attempts []failures.Attempt
	for _, s := range a.strategies {
		out, err := s.Apply(ctx, h, patch)
		if err == nil {
			log.With("strategy", s.Name()).Info("Applied diff")
			return s.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", failures.Deadline("apply", ctxErr)
		}
		log.With("strategy", s.Name()).Warnf("Strategy failed: %v", err)
		attempts = append(attempts, failures.Attempt{Strategy: s.Name(), Output: out, Err: err})
	}
	return "", &failures.PatchApplyError{Attempts: attempts}
}

func checkPath(h *workspace.Handle, p string) error {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return &failures.PathSecurityError{Path: p}
	}
	_, err := h.Resolve(p)
	return err
}

type strict struct{}

// Strict applies the patch with `git apply --index`, which refuses to
// touch the tree unless every hunk applies exactly.
func Strict() Strategy { return strict{} }

func (strict) Name() string { return "strict" }

func (strict) Apply(ctx context.Context, h *workspace.Handle, p Patch) (string, error) {
	// The index may carry stat data written by another git implementation;
	// refresh it so `git apply --index` compares content, not timestamps.
	// A non-zero exit only means some entries need updating.
	_, _ = run(ctx, h.Root(), "git", "update-index", "-q", "--refresh")

	return run(ctx, h.Root(), "git", "apply", "--index", "-p"+strconv.Itoa(p.Strip), p.File)
}

type fuzzy struct{}

// Fuzzy applies the patch with `patch`, which tolerates offsets and fuzz,
// then stages every change. A dry run precedes the real one so a partial
// application never reaches the tree.
func Fuzzy() Strategy { return fuzzy{} }

func (fuzzy) Name() string { return "fuzzy" }

func (fuzzy) Apply(ctx context.Context, h *workspace.Handle, p Patch) (string, error) {
	args := []string{"--batch", "--forward", "--no-backup-if-mismatch", "-p" + strconv.Itoa(p.Strip), "-i", p.File}

	if out, err := run(ctx, h.Root(), "patch", append([]string{"--dry-run"}, args...)...); err != nil {
		return out, err
	}
	out, err := run(ctx, h.Root(), "patch", args...)
	if err != nil {
		return out, err
	}

	wt, err := h.Repo().Worktree()
	if err != nil {
		return out, fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return out, fmt.Errorf("staging changes: %w", err)
	}
	return out, nil
}

func run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.String(), fmt.Errorf("%s exited with status %d", name, exitErr.ExitCode())
		}
		return out.String(), fmt.Errorf("running %s: %w", name, err)
	}
	return out.String(), nil
}
