/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package diffsynth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/melodydashora/RepEditor/agents/executor/executortest"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/workspace/workspacetest"
)

const gitDiff = `diff --git a/src/paginate.ts b/src/paginate.ts
--- a/src/paginate.ts
+++ b/src/paginate.ts
@@ -1 +1 @@
-export const pageSize = 10;
+export const pageSize = 25;
diff --git a/docs/new.md b/docs/new.md
new file mode 100644
--- /dev/null
+++ b/docs/new.md
@@ -0,0 +1 @@
+hello
`

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantFiles []string
		wantErr   bool
	}{{
		name:      "git diff",
		text:      gitDiff,
		wantFiles: []string{"src/paginate.ts", "docs/new.md"},
	}, {
		name:      "plain unified diff after whitespace",
		text:      "\n\n  --- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a\n+b\n",
		wantFiles: []string{"x.go"},
	}, {
		name:    "prose",
		text:    "Sure! Here is the change you asked for.",
		wantErr: true,
	}, {
		name:    "fenced diff",
		text:    "```diff\n--- a/x.go\n+++ b/x.go\n```",
		wantErr: true,
	}, {
		name:    "empty",
		text:    "   ",
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Check(tt.text)
			if tt.wantErr {
				var de *failures.DiffFormatError
				if !errors.As(err, &de) || !errors.Is(err, failures.ErrModelFormat) {
					t.Fatalf("Check: got %v, wanted DiffFormatError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if got.Text != tt.text {
				t.Errorf("Text: got = %q, wanted the reply unchanged", got.Text)
			}
			if diff := cmp.Diff(tt.wantFiles, got.Files); diff != "" {
				t.Errorf("Files: (-want, +got) = %s", diff)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	fake := &executortest.Fake{Replies: []string{gitDiff}}
	s, err := New(fake)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := s.Synthesize(context.Background(), Request{
		Goal:  "raise the page size",
		Files: []File{{Path: "src/paginate.ts", Content: "export const pageSize = 10;\n"}},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Text != gitDiff {
		t.Errorf("Text: got = %q", got.Text)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("model calls: got %d, wanted 1", len(reqs))
	}
	if reqs[0].JSON {
		t.Error("diff request asked for JSON")
	}
	if !strings.Contains(reqs[0].System, "UNIFIED DIFF") {
		t.Errorf("system prompt: got %q", reqs[0].System)
	}
	for _, want := range []string{`"raise the page size"`, `<file path="src/paginate.ts">`, "export const pageSize = 10;"} {
		if !strings.Contains(reqs[0].User, want) {
			t.Errorf("user prompt lacks %q:\n%s", want, reqs[0].User)
		}
	}
}

func TestSynthesizeRejectsProse(t *testing.T) {
	s, err := New(&executortest.Fake{Replies: []string{"I cannot do that."}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), Request{Goal: "g"}); !errors.Is(err, failures.ErrModelFormat) {
		t.Errorf("Synthesize: got %v, wanted ErrModelFormat", err)
	}
}

func TestBudget(t *testing.T) {
	var fs []File
	for i := range MaxFiles + 5 {
		fs = append(fs, File{Path: fmt.Sprintf("f%02d", i), Content: "x"})
	}
	if got := budget(fs); len(got) != MaxFiles {
		t.Errorf("budget: got %d files, wanted %d", len(got), MaxFiles)
	}

	big := []File{
		{Path: "a", Content: strings.Repeat("a", MaxFileBytes+1)},
		{Path: "b", Content: strings.Repeat("b", MaxFileBytes)},
		{Path: "c", Content: "c"},
	}
	got := budget(big)
	if len(got) != 2 {
		t.Fatalf("budget: got %d files, wanted 2", len(got))
	}
	if len(got[0].Content) != MaxFileBytes {
		t.Errorf("first file: got %d bytes, wanted %d", len(got[0].Content), MaxFileBytes)
	}
	if len(got[1].Content) != MaxTotalBytes-MaxFileBytes {
		t.Errorf("second file: got %d bytes, wanted %d", len(got[1].Content), MaxTotalBytes-MaxFileBytes)
	}
}

func TestLoadContext(t *testing.T) {
	_, h, _ := workspacetest.Acquire(t, map[string]string{
		"src/paginate.ts": "export const pageSize = 10;\n",
		"README.md":       "# widgets\n",
		"logo.bin":        "\xff\xfe\x00",
	})
	ctx := context.Background()

	got, err := LoadContext(ctx, h, []string{"src/paginate.ts", "missing.go", "logo.bin", "src", "README.md"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	want := []File{
		{Path: "src/paginate.ts", Content: "export const pageSize = 10;\n"},
		{Path: "README.md", Content: "# widgets\n"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadContext: (-want, +got) = %s", diff)
	}

	for _, p := range []string{"../../etc/passwd", "/etc/passwd"} {
		if _, err := LoadContext(ctx, h, []string{"README.md", p}); !errors.Is(err, failures.ErrPathSecurity) {
			t.Errorf("LoadContext(%q): got %v, wanted ErrPathSecurity", p, err)
		}
	}
}
