/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patcher

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	hunkHeader  = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)
	copyHeaders = []string{"rename from ", "rename to ", "copy from ", "copy to "}
)

// Headers is what a unified diff declares about the files it touches.
type Headers struct {
	// Paths lists every file named by the diff with any a/ b/ prefix
	// removed, in order of first appearance.
	Paths []string
	// Strip is the -p level that maps header paths onto the tree.
	Strip int
}

// ParseHeaders scans diff for file headers. Hunk bodies are skipped using
// the line counts in each @@ header, so removed lines that happen to begin
// with "-- " are not mistaken for headers.
func ParseHeaders(diff string) Headers {
	var prefixed, plain []string
	oldLeft, newLeft := 0, 0

	for _, line := range strings.Split(diff, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if oldLeft > 0 || newLeft > 0 {
			switch {
			case strings.HasPrefix(line, "-"):
				oldLeft--
			case strings.HasPrefix(line, "+"):
				newLeft--
			case strings.HasPrefix(line, `\`):
			default:
				oldLeft--
				newLeft--
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@ "):
			oldLeft, newLeft = hunkCounts(line)
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			if p := headerPath(line[4:]); p != "" && p != "/dev/null" {
				prefixed = append(prefixed, p)
			}
		case strings.HasPrefix(line, "diff --git "):
			if a, b, ok := gitPaths(line[len("diff --git "):]); ok {
				prefixed = append(prefixed, a, b)
			}
		default:
			for _, prefix := range copyHeaders {
				if rest, ok := strings.CutPrefix(line, prefix); ok {
					plain = append(plain, headerPath(rest))
					break
				}
			}
		}
	}

	h := Headers{Strip: stripLevel(prefixed)}
	seen := map[string]struct{}{}
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		h.Paths = append(h.Paths, p)
	}
	for _, p := range prefixed {
		if h.Strip == 1 {
			_, p, _ = strings.Cut(p, "/")
		}
		add(p)
	}
	for _, p := range plain {
		add(p)
	}
	return h
}

func stripLevel(paths []string) int {
	if len(paths) == 0 {
		return 0
	}
	for _, p := range paths {
		if !strings.HasPrefix(p, "a/") && !strings.HasPrefix(p, "b/") {
			return 0
		}
	}
	return 1
}

func hunkCounts(line string) (int, int) {
	m := hunkHeader.FindStringSubmatch(line)
	if m == nil {
		return 0, 0
	}
	count := func(s string) int {
		if s == "" {
			return 1
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	return count(m[1]), count(m[2])
}

// headerPath extracts the path from the remainder of a ---/+++ line,
// dropping any trailing timestamp.
func headerPath(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if end := closingQuote(s); end > 0 {
			if u, err := strconv.Unquote(s[:end+1]); err == nil {
				return u
			}
		}
	}
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func gitPaths(s string) (string, string, bool) {
	if strings.HasPrefix(s, `"`) {
		end := closingQuote(s)
		if end < 0 {
			return "", "", false
		}
		a, err := strconv.Unquote(s[:end+1])
		if err != nil {
			return "", "", false
		}
		return a, headerPath(s[end+1:]), true
	}
	i := strings.Index(s, " b/")
	if i < 0 {
		i = strings.LastIndex(s, " ")
		if i < 0 {
			return "", "", false
		}
	}
	return s[:i], headerPath(s[i+1:]), true
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
