/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-git/go-git/v5"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/workspace"
)

// StageAll stages every change in the working tree, including deletions.
func StageAll(h *workspace.Handle) error {
	wt, err := h.Repo().Worktree()
	if err != nil {
		return &failures.GitOperationError{Op: "worktree", Err: err}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return &failures.GitOperationError{Op: "add", Err: err}
	}
	return nil
}

// StagedDiff stages every change and returns the unified diff of the index
// against HEAD. The result is empty when nothing changed.
func StagedDiff(ctx context.Context, h *workspace.Handle) (string, error) {
	if err := StageAll(h); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--no-color", "--no-ext-diff")
	cmd.Dir = h.Root()
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &failures.GitOperationError{Op: "diff --cached", Err: fmt.Errorf("%s: %w", bytes.TrimSpace(stderr.Bytes()), err)}
	}
	return stdout.String(), nil
}
