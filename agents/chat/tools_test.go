/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package chat

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/melodydashora/RepEditor/repos/workspace/workspacetest"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		input   string
		want    Call
		wantErr bool
	}{{
		name:  "read",
		tool:  "read_file",
		input: `{"path":"main.go"}`,
		want:  ReadFile{Path: "main.go"},
	}, {
		name:  "write",
		tool:  "write_file",
		input: `{"path":"a.txt","content":"hi"}`,
		want:  WriteFile{Path: "a.txt", Content: "hi"},
	}, {
		name:  "empty input",
		tool:  "list_directory",
		input: ``,
		want:  ListDirectory{},
	}, {
		name:  "memory",
		tool:  "memory_write",
		input: `{"key":"k","data":"v"}`,
		want:  MemoryWrite{Key: "k", Data: "v"},
	}, {
		name:    "unknown tool",
		tool:    "rm_rf",
		input:   `{}`,
		wantErr: true,
	}, {
		name:    "unknown field",
		tool:    "read_file",
		input:   `{"path":"a","mode":"w"}`,
		wantErr: true,
	}, {
		name:    "trailing data",
		tool:    "grep_code",
		input:   `{"pattern":"x"} {}`,
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.tool, json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode: err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode: (-want, +got) = %s", diff)
			}
		})
	}
}

func TestDefinitions(t *testing.T) {
	defs, err := definitions(true)
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != len(kinds)+1 {
		t.Fatalf("definitions: got %d tools, wanted %d", len(defs), len(kinds)+1)
	}
	for i, k := range kinds {
		tool := defs[i].OfTool
		if tool == nil || tool.Name != k.Tool() {
			t.Fatalf("definitions[%d]: got %+v, wanted %s", i, defs[i], k.Tool())
		}
	}
	write := defs[1].OfTool
	if diff := cmp.Diff([]string{"path", "content"}, write.InputSchema.Required); diff != "" {
		t.Errorf("write_file required: (-want, +got) = %s", diff)
	}
	if defs[len(defs)-1].OfWebSearchTool20250305 == nil {
		t.Error("web search tool missing")
	}

	defs, err = definitions(false)
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != len(kinds) {
		t.Errorf("definitions without search: got %d, wanted %d", len(defs), len(kinds))
	}
}

func newRunner(t *testing.T, files map[string]string) *runner {
	t.Helper()
	_, h, _ := workspacetest.Acquire(t, files)
	return &runner{h: h, memory: openStore(t), namespace: h.ID().String()}
}

func decodeResult(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("result is not JSON: %v: %s", err, out)
	}
	return m
}

func TestRunnerFiles(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, map[string]string{
		"README.md":     "# widgets\n",
		"pkg/a.go":      "package pkg\n\nfunc Alpha() {}\n",
		"pkg/b.go":      "package pkg\n\nfunc Beta() {}\n",
		"pkg/notes.txt": "alpha beta\n",
	})

	got := decodeResult(t, r.Run(ctx, ReadFile{Path: "README.md"}))
	if got["content"] != "# widgets\n" || got["truncated"] != false {
		t.Errorf("read_file: got = %v", got)
	}

	got = decodeResult(t, r.Run(ctx, ListDirectory{}))
	if diff := cmp.Diff([]any{"README.md", "pkg/"}, got["entries"]); diff != "" {
		t.Errorf("list_directory: (-want, +got) = %s", diff)
	}

	got = decodeResult(t, r.Run(ctx, SearchFiles{Pattern: "*.go"}))
	if diff := cmp.Diff([]any{"pkg/a.go", "pkg/b.go"}, got["matches"]); diff != "" {
		t.Errorf("search_files: (-want, +got) = %s", diff)
	}

	got = decodeResult(t, r.Run(ctx, GrepCode{Pattern: `func \w+\(`, Path: "pkg"}))
	if diff := cmp.Diff([]any{"pkg/a.go:3: func Alpha() {}", "pkg/b.go:3: func Beta() {}"}, got["matches"]); diff != "" {
		t.Errorf("grep_code: (-want, +got) = %s", diff)
	}

	got = decodeResult(t, r.Run(ctx, WriteFile{Path: "docs/new.md", Content: "hello"}))
	if got["bytes"] != float64(5) {
		t.Errorf("write_file: got = %v", got)
	}
	b, err := os.ReadFile(filepath.Join(r.h.Root(), "docs", "new.md"))
	if err != nil || string(b) != "hello" {
		t.Errorf("written file: got %q, %v", b, err)
	}
}

func TestRunnerRejectsEscapes(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, map[string]string{"a.txt": "a\n"})

	for _, call := range []Call{
		ReadFile{Path: "../outside"},
		ReadFile{Path: "/etc/passwd"},
		WriteFile{Path: "../escape.txt", Content: "x"},
		WriteFile{Path: ".git/config", Content: "x"},
		WriteFile{Path: "sub/../.git/HEAD", Content: "x"},
		ListDirectory{Path: "../.."},
		SearchFiles{Pattern: "*", Path: "/"},
		GrepCode{Pattern: "x", Path: "../"},
		ReadFile{Path: "missing.txt"},
		GrepCode{Pattern: "("},
		SearchFiles{Pattern: "["},
	} {
		got := decodeResult(t, r.Run(ctx, call))
		if _, ok := got["error"]; !ok {
			t.Errorf("%s %+v: got = %v, wanted an error", call.Tool(), call, got)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(r.h.Root()), "escape.txt")); err == nil {
		t.Error("write escaped the workspace")
	}

	// A committed symlink can point anywhere on the host.
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("TOPSECRET-123\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(r.h.Root(), "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	for _, cmd := range []string{
		"cat link/secret.txt",
		"grep -R TOPSECRET .",
		"grep -rnR TOPSECRET .",
		"grep --dereference-recursive TOPSECRET .",
		"grep --deref TOPSECRET .",
		"find -L . -name secret.txt",
		"find . -follow -name secret.txt",
		"find -H link",
		"ls -L link",
		"ls -lL .",
		"ls --dereference .",
		"tree -l .",
		"tree -o out.txt .",
		"grep -f/etc/passwd a.txt",
		"grep -rf../../etc/passwd .",
		"grep -f.git/config a.txt",
	} {
		got := decodeResult(t, r.Run(ctx, ExecuteCommand{Command: cmd}))
		if _, ok := got["error"]; !ok {
			t.Errorf("%q: got = %v, wanted an error", cmd, got)
		}
	}

	if _, err := exec.LookPath("grep"); err != nil {
		t.Skip("grep not available")
	}
	// Plain recursion does not descend through the link.
	got := decodeResult(t, r.Run(ctx, ExecuteCommand{Command: "grep -rn TOPSECRET ."}))
	if _, ok := got["error"]; ok {
		t.Fatalf("grep -rn: got = %v", got)
	}
	if out, _ := got["output"].(string); strings.Contains(out, "TOPSECRET") {
		t.Errorf("grep -rn read through the symlink: %q", out)
	}
}

func TestForbiddenFlag(t *testing.T) {
	tests := []struct {
		name, arg string
		want      bool
	}{
		{"grep", "-r", false},
		{"grep", "-rn", false},
		{"grep", "-R", true},
		{"grep", "-inR", true},
		{"grep", "--dereference-recursive", true},
		{"grep", "--dereference", true},
		{"grep", "--include=*.go", false},
		{"find", "-name", false},
		{"find", "-L", true},
		{"find", "-follow", true},
		{"find", "-execdir", true},
		{"ls", "-la", false},
		{"ls", "-lL", true},
		{"ls", "--dereference-command-line", true},
		{"tree", "-L", false},
		{"tree", "-al", true},
		{"wc", "-l", false},
		{"cat", "-", false},
		{"grep", "pattern", false},
	}
	for _, tt := range tests {
		if _, got := forbiddenFlag(tt.name, tt.arg); got != tt.want {
			t.Errorf("forbiddenFlag(%q, %q): got = %v, wanted = %v", tt.name, tt.arg, got, tt.want)
		}
	}
}

func TestRunnerExecuteCommand(t *testing.T) {
	if _, err := exec.LookPath("wc"); err != nil {
		t.Skip("wc not available")
	}
	ctx := context.Background()
	r := newRunner(t, map[string]string{"a.txt": "one\ntwo\n"})

	got := decodeResult(t, r.Run(ctx, ExecuteCommand{Command: "wc -l a.txt"}))
	if got["exit_code"] != float64(0) || !strings.Contains(got["output"].(string), "2 a.txt") {
		t.Errorf("wc: got = %v", got)
	}

	for _, cmd := range []string{
		"",
		"rm -rf .",
		"cat a.txt | sh",
		"cat $(HOME)",
		"cat ../../etc/passwd",
		"cat /etc/passwd",
		"cat .git/config",
		"grep --file=/etc/passwd a.txt",
		"find . -exec rm {} ;",
		"find . -delete",
	} {
		got := decodeResult(t, r.Run(ctx, ExecuteCommand{Command: cmd}))
		if _, ok := got["error"]; !ok {
			t.Errorf("%q: got = %v, wanted an error", cmd, got)
		}
	}
}

func TestRunnerMemory(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, map[string]string{"a.txt": "a\n"})

	if got := decodeResult(t, r.Run(ctx, MemoryRead{Key: "style"})); got["error"] == nil {
		t.Errorf("memory_read before write: got = %v", got)
	}
	decodeResult(t, r.Run(ctx, MemoryWrite{Key: "style", Data: "tabs"}))
	got := decodeResult(t, r.Run(ctx, MemoryWrite{Key: "style", Data: "spaces"}))
	if got["version"] != float64(2) {
		t.Errorf("memory_write: got = %v", got)
	}
	got = decodeResult(t, r.Run(ctx, MemoryRead{Key: "style"}))
	if got["data"] != "spaces" || got["version"] != float64(2) {
		t.Errorf("memory_read: got = %v", got)
	}

	r.memory = nil
	if got := decodeResult(t, r.Run(ctx, MemoryRead{Key: "style"})); got["error"] == nil {
		t.Errorf("memory_read without a store: got = %v", got)
	}
}

func TestInGitDir(t *testing.T) {
	for path, want := range map[string]bool{
		".git":           true,
		".git/config":    true,
		"a/../.git/HEAD": true,
		"sub/.git/x":     true,
		".github/ci.yml": false,
		"src/git.go":     false,
	} {
		if got := inGitDir(path); got != want {
			t.Errorf("inGitDir(%q) = %v, wanted %v", path, got, want)
		}
	}
}
