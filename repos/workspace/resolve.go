/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/melodydashora/RepEditor/failures"
)

// Resolve maps a slash-separated path relative to the workspace root onto
// the filesystem. Absolute paths, paths that climb out of the root, and
// paths that reach outside through a symlink yield a PathSecurityError. The
// path does not need to exist.
func (h *Handle) Resolve(rel string) (string, error) {
	return resolveWithin(h.root, h.realRoot, rel)
}

func resolveWithin(root, realRoot, rel string) (string, error) {
	if rel == "" || rel == "." {
		return root, nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", &failures.PathSecurityError{Path: rel}
	}

	full := filepath.Join(root, filepath.FromSlash(rel))
	if !within(root, full) {
		return "", &failures.PathSecurityError{Path: rel}
	}

	// Walk up to the nearest existing ancestor so that a symlinked directory
	// cannot be used to create files outside the root.
	for p := full; ; {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			if !within(realRoot, resolved) {
				return "", &failures.PathSecurityError{Path: rel}
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolving %q: %w", rel, err)
		}
		parent := filepath.Dir(p)
		if parent == p || !within(root, parent) {
			break
		}
		p = parent
	}
	return full, nil
}

// Within reports whether path is inside the workspace root, lexically.
func (h *Handle) Within(path string) bool {
	return within(h.root, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
