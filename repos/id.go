/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repos holds the types shared by the repository-facing packages:
// the workspace manager, tree indexer, patch applier, git operator and
// pull request publisher live in its subpackages.
package repos

import (
	"regexp"
	"strings"

	"github.com/melodydashora/RepEditor/failures"
)

var segment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ID identifies a remote repository by owner and name.
type ID struct {
	Owner string
	Name  string
}

// ParseID parses an "owner/name" string. A trailing ".git" is accepted and
// dropped.
func ParseID(s string) (ID, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return ID{}, failures.Invalid("repository %q must be in owner/name form", s)
	}
	name = strings.TrimSuffix(name, ".git")
	for _, part := range []string{owner, name} {
		if part == "" || part == "." || part == ".." || !segment.MatchString(part) {
			return ID{}, failures.Invalid("repository %q must be in owner/name form", s)
		}
	}
	return ID{Owner: owner, Name: name}, nil
}

// String returns the "owner/name" form.
func (id ID) String() string {
	return id.Owner + "/" + id.Name
}
