/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos/treeindex"
	"github.com/melodydashora/RepEditor/repos/workspace"
)

const (
	// MaxReadBytes bounds a read_file result.
	MaxReadBytes = 100_000
	// MaxMatches bounds search_files and grep_code results.
	MaxMatches = 200
	// MaxCommandOutput bounds execute_command output.
	MaxCommandOutput = 50_000
	// CommandTimeout bounds a single execute_command.
	CommandTimeout = 30 * time.Second
)

var allowed = map[string]bool{
	"ls": true, "find": true, "grep": true, "cat": true, "head": true,
	"tail": true, "wc": true, "tree": true, "pwd": true,
}

const allowedList = "ls, find, grep, cat, head, tail, wc, tree, pwd"

// forbidden lists, per command, flags that execute or write, and flags that
// follow symlinks while traversing. A symlink committed to the repository
// may point anywhere on the host.
var forbidden = map[string][]string{
	"find": {
		"-exec", "-execdir", "-ok", "-okdir", "-delete",
		"-fprint", "-fprint0", "-fprintf", "-fls",
		"-L", "-H", "-follow",
	},
	"grep": {"-R", "--dereference-recursive"},
	"ls": {
		"-L", "-H", "--dereference", "--dereference-command-line",
		"--dereference-command-line-symlink-to-dir",
	},
	"tree": {"-l", "-o"},
}

// forbiddenShort holds the single-letter flags of forbidden that are also
// refused inside a cluster such as -rnR. find has no clustered flags.
var forbiddenShort = map[string]string{
	"grep": "R",
	"ls":   "LH",
	"tree": "lo",
}

var binaryExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".jar": true,
	".so": true, ".dylib": true, ".exe": true, ".wasm": true, ".woff": true, ".woff2": true,
}

// runner executes calls against one workspace.
type runner struct {
	h         *workspace.Handle
	memory    *Store
	namespace string
}

// Run executes call and returns the JSON result handed back to the model.
// Tool failures are reported in the result rather than as errors.
func (r *runner) Run(ctx context.Context, call Call) string {
	out, err := r.run(ctx, call)
	if err != nil {
		return errorResult(err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errorResult(err)
	}
	return string(b)
}

func errorResult(err error) string {
	b, _ := json.Marshal(map[string]string{"error": failures.Redact(err.Error())})
	return string(b)
}

func (r *runner) run(ctx context.Context, call Call) (any, error) {
	switch c := call.(type) {
	case ReadFile:
		return r.readFile(c)
	case WriteFile:
		return r.writeFile(c)
	case ListDirectory:
		return r.listDirectory(c)
	case SearchFiles:
		return r.searchFiles(ctx, c)
	case GrepCode:
		return r.grepCode(ctx, c)
	case ExecuteCommand:
		return r.executeCommand(ctx, c)
	case MemoryRead:
		return r.memoryRead(ctx, c)
	case MemoryWrite:
		return r.memoryWrite(ctx, c)
	default:
		return nil, fmt.Errorf("unsupported tool %T", call)
	}
}

func (r *runner) readFile(c ReadFile) (any, error) {
	if c.Path == "" {
		return nil, failures.Invalid("path is required")
	}
	content, err := treeindex.ReadFile(r.h, c.Path, MaxReadBytes+1)
	if err != nil {
		return nil, err
	}
	truncated := len(content) > MaxReadBytes
	if truncated {
		content = failures.Truncate(content, MaxReadBytes)
	}
	return map[string]any{"path": c.Path, "content": content, "truncated": truncated}, nil
}

func (r *runner) writeFile(c WriteFile) (any, error) {
	if c.Path == "" {
		return nil, failures.Invalid("path is required")
	}
	if inGitDir(c.Path) {
		return nil, &failures.PathSecurityError{Path: c.Path}
	}
	full, err := r.h.Resolve(c.Path)
	if err != nil {
		return nil, err
	}
	if full == r.h.Root() {
		return nil, failures.Invalid("path must name a file")
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", c.Path, err)
	}
	if err := os.WriteFile(full, []byte(c.Content), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", c.Path, err)
	}
	return map[string]any{"path": c.Path, "bytes": len(c.Content)}, nil
}

func (r *runner) listDirectory(c ListDirectory) (any, error) {
	full, err := r.h.Resolve(c.Path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failures.NotFound(c.Path)
		}
		return nil, fmt.Errorf("listing %s: %w", c.Path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return map[string]any{"path": c.Path, "entries": names}, nil
}

func (r *runner) searchFiles(ctx context.Context, c SearchFiles) (any, error) {
	if c.Pattern == "" {
		return nil, failures.Invalid("pattern is required")
	}
	if _, err := path.Match(c.Pattern, ""); err != nil {
		return nil, failures.Invalid("bad pattern %q: %v", c.Pattern, err)
	}
	var matches []string
	truncated, err := r.walk(ctx, c.Path, func(rel string, _ string) (bool, error) {
		ok, _ := path.Match(c.Pattern, path.Base(rel))
		if ok {
			matches = append(matches, rel)
		}
		return len(matches) >= MaxMatches, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": nonNil(matches), "truncated": truncated}, nil
}

func (r *runner) grepCode(ctx context.Context, c GrepCode) (any, error) {
	if c.Pattern == "" {
		return nil, failures.Invalid("pattern is required")
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return nil, failures.Invalid("bad pattern %q: %v", c.Pattern, err)
	}
	var matches []string
	truncated, err := r.walk(ctx, c.Path, func(rel, full string) (bool, error) {
		if binaryExt[strings.ToLower(path.Ext(rel))] {
			return false, nil
		}
		f, err := os.Open(full)
		if err != nil {
			return false, nil
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for line := 1; sc.Scan(); line++ {
			if re.Match(sc.Bytes()) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, line, failures.Truncate(sc.Text(), 300)))
				if len(matches) >= MaxMatches {
					return true, nil
				}
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": nonNil(matches), "truncated": truncated}, nil
}

// walk visits regular files below dir in lexical order, skipping .git. visit
// returns true to stop; walk then reports truncation.
func (r *runner) walk(ctx context.Context, dir string, visit func(rel, full string) (bool, error)) (bool, error) {
	start, err := r.h.Resolve(dir)
	if err != nil {
		return false, err
	}
	root := r.h.Root()
	stopped := false
	errStop := errors.New("stop")
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return failures.NotFound(dir)
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		stop, err := visit(filepath.ToSlash(rel), p)
		if err != nil {
			return err
		}
		if stop {
			stopped = true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}
	return stopped, nil
}

func (r *runner) executeCommand(ctx context.Context, c ExecuteCommand) (any, error) {
	args := strings.Fields(c.Command)
	if len(args) == 0 {
		return nil, failures.Invalid("command is required")
	}
	if !allowed[args[0]] {
		return nil, failures.Invalid("command %q is not allowed; use one of %s", args[0], allowedList)
	}
	if strings.ContainsAny(c.Command, "|;&$`<>\\") {
		return nil, failures.Invalid("shell syntax is not supported")
	}
	for _, a := range args[1:] {
		if flag, bad := forbiddenFlag(args[0], a); bad {
			return nil, failures.Invalid("%s %s is not allowed", args[0], flag)
		}
		if err := r.checkArg(a); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.h.Root()
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "LC_ALL=C"}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	code := 0
	if err != nil {
		var ee *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, &failures.TimeoutError{Stage: "execute_command", Err: ctx.Err()}
		case errors.As(err, &ee):
			code = ee.ExitCode()
		default:
			return nil, fmt.Errorf("running %s: %w", args[0], err)
		}
	}
	output := out.String()
	truncated := len(output) > MaxCommandOutput
	if truncated {
		output = failures.Truncate(output, MaxCommandOutput)
	}
	return map[string]any{"exit_code": code, "output": output, "truncated": truncated}, nil
}

// forbiddenFlag reports whether a names a forbidden flag of command name,
// directly or through an abbreviation or a short-flag cluster.
func forbiddenFlag(name, a string) (string, bool) {
	if !strings.HasPrefix(a, "-") || a == "-" {
		return "", false
	}
	if strings.HasPrefix(a, "--") {
		opt, _, _ := strings.Cut(a, "=")
		if len(opt) < 3 {
			return "", false
		}
		for _, f := range forbidden[name] {
			if strings.HasPrefix(f, "--") && strings.HasPrefix(f, opt) {
				return f, true
			}
		}
		return "", false
	}
	for _, f := range forbidden[name] {
		if a == f {
			return f, true
		}
	}
	if i := strings.IndexAny(a[1:], forbiddenShort[name]); i >= 0 {
		return "-" + string(a[1+i]), true
	}
	return "", false
}

// checkArg rejects operands that would reach outside the workspace or into
// .git. A long flag's value after = is checked like an operand. Short flags
// may carry a value attached, as in -f/etc/passwd or -rnf../x, so every tail
// of a short flag is checked.
func (r *runner) checkArg(a string) error {
	switch {
	case strings.HasPrefix(a, "--"):
		_, v, ok := strings.Cut(a, "=")
		if !ok {
			return nil
		}
		return r.checkOperand(v)
	case strings.HasPrefix(a, "-"):
		for i := 2; i < len(a); i++ {
			if err := r.checkOperand(a[i:]); err != nil {
				return err
			}
		}
		return nil
	default:
		return r.checkOperand(a)
	}
}

func (r *runner) checkOperand(a string) error {
	if a == "" {
		return nil
	}
	if inGitDir(a) {
		return &failures.PathSecurityError{Path: a}
	}
	_, err := r.h.Resolve(a)
	return err
}

func (r *runner) memoryRead(ctx context.Context, c MemoryRead) (any, error) {
	if r.memory == nil {
		return nil, errors.New("memory is not configured")
	}
	return r.memory.Read(ctx, r.namespace, c.Key)
}

func (r *runner) memoryWrite(ctx context.Context, c MemoryWrite) (any, error) {
	if r.memory == nil {
		return nil, errors.New("memory is not configured")
	}
	return r.memory.Write(ctx, r.namespace, c.Key, c.Data)
}

// inGitDir reports whether rel names .git or something inside it.
func inGitDir(rel string) bool {
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(rel)), "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
