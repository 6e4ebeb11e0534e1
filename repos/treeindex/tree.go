/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package treeindex enumerates and reads files inside a workspace for
// prompting and browsing.
package treeindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/workspace"
)

// DefaultMaxEntries bounds Build when no explicit limit is given.
const DefaultMaxEntries = 8000

// Kind distinguishes files from directories.
type Kind string

// Entry kinds.
const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Entry is one node of the workspace tree.
type Entry struct {
	Path string `json:"path" yaml:"path"`
	Kind Kind   `json:"kind" yaml:"kind"`
	// Size is nil for directories.
	Size *int64 `json:"size" yaml:"size,omitempty"`
}

// Build walks the workspace in lexical order, skipping .git, and returns at
// most maxEntries entries. Truncation is silent.
func Build(ctx context.Context, h *workspace.Handle, maxEntries int) ([]Entry, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	root := h.Root()

	entries := make([]Entry, 0, min(maxEntries, 1024))
	errStop := errors.New("stop")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		e := Entry{Path: filepath.ToSlash(rel), Kind: KindFile}
		if d.IsDir() {
			e.Kind = KindDir
		} else {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size := info.Size()
			e.Size = &size
		}
		entries = append(entries, e)
		if len(entries) >= maxEntries {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}

	clog.FromContext(ctx).With("entries", len(entries)).Debug("Built workspace tree")
	return entries, nil
}

// ReadFile reads a workspace file through the containment check, returning at
// most limit bytes (no limit when limit <= 0). Truncation never splits a
// UTF-8 sequence.
func ReadFile(h *workspace.Handle, rel string, limit int) (string, error) {
	full, err := h.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", failures.NotFound(rel)
		}
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return "", failures.NotFound(rel)
	}

	f, err := os.Open(full)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		// Read a few bytes beyond the limit so a trailing multi-byte rune can
		// be trimmed cleanly.
		r = io.LimitReader(f, int64(limit)+utf8.UTFMax)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	s := string(data)
	if limit > 0 {
		s = failures.Truncate(s, limit)
	}
	return s, nil
}
