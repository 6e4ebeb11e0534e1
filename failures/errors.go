/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package failures defines the error taxonomy shared by every stage of the
// autofix pipeline. Each typed error reports its class through errors.Is
// against one of the Err* sentinels, so callers can classify a failure
// without knowing which stage produced it.
package failures

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrTransport    = errors.New("transport error")
	ErrAuth         = errors.New("authentication required")
	ErrModelFormat  = errors.New("model reply has unexpected shape")
	ErrPatchApply   = errors.New("patch could not be applied")
	ErrPathSecurity = errors.New("path escapes its root")
	ErrPublish      = errors.New("pull request could not be published")
	ErrTimeout      = errors.New("operation timed out")
	ErrInvalid      = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
)

// CloneError reports a failed clone of a remote repository.
type CloneError struct {
	Repo   string
	Branch string
	Err    error
}

func (e *CloneError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("cloning %s@%s: %s", e.Repo, e.Branch, Redact(e.Err.Error()))
	}
	return fmt.Sprintf("cloning %s: %s", e.Repo, Redact(e.Err.Error()))
}

func (e *CloneError) Unwrap() error        { return e.Err }
func (e *CloneError) Is(target error) bool { return target == ErrTransport }

// GitOperationError reports a failed local or remote git mutation such as a
// commit or push.
type GitOperationError struct {
	Op  string
	Err error
}

func (e *GitOperationError) Error() string {
	return fmt.Sprintf("git %s: %s", e.Op, Redact(e.Err.Error()))
}

func (e *GitOperationError) Unwrap() error        { return e.Err }
func (e *GitOperationError) Is(target error) bool { return target == ErrTransport }

// PlanningError reports a planning reply that could not be decoded.
type PlanningError struct {
	Reply string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("model did not return a valid plan: %v (reply: %q)", e.Err, Truncate(e.Reply, 500))
}

func (e *PlanningError) Unwrap() error        { return e.Err }
func (e *PlanningError) Is(target error) bool { return target == ErrModelFormat }

// DiffFormatError reports a diff reply without a recognized unified-diff header.
type DiffFormatError struct {
	Reply string
}

func (e *DiffFormatError) Error() string {
	return fmt.Sprintf("model did not return a unified diff (reply: %q)", Truncate(e.Reply, 500))
}

func (e *DiffFormatError) Is(target error) bool { return target == ErrModelFormat }

// PatchApplyError carries the output of every strategy that was attempted.
type PatchApplyError struct {
	Attempts []Attempt
}

// Attempt records the outcome of one patch strategy.
type Attempt struct {
	Strategy string
	Output   string
	Err      error
}

func (e *PatchApplyError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msg := a.Err.Error()
		if out := strings.TrimSpace(a.Output); out != "" {
			msg += ": " + Truncate(out, 1000)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, msg))
	}
	return "applying diff failed (" + strings.Join(parts, "; ") + ")"
}

func (e *PatchApplyError) Is(target error) bool { return target == ErrPatchApply }

// PathSecurityError reports a path that resolves outside of its root.
type PathSecurityError struct {
	Path string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("path %q escapes repository", e.Path)
}

func (e *PathSecurityError) Is(target error) bool { return target == ErrPathSecurity }

// PublishError reports a rejected pull request creation.
type PublishError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publishing pull request: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("publishing pull request: %v", e.Err)
}

func (e *PublishError) Unwrap() error        { return e.Err }
func (e *PublishError) Is(target error) bool { return target == ErrPublish }

// TimeoutError reports a stage that exceeded its deadline.
type TimeoutError struct {
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error        { return e.Err }
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Invalid returns an ErrInvalid-classed error with the given message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound-classed error for the given subject.
func NotFound(subject string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, subject)
}

// Deadline converts a deadline expiry into a TimeoutError for stage and
// returns every other error unchanged.
func Deadline(stage string, err error) error {
	if err == nil {
		return nil
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Stage: stage, Err: err}
	}
	return err
}

var userinfo = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// Redact strips URL userinfo so credentials never reach logs or responses.
func Redact(s string) string {
	return userinfo.ReplaceAllString(s, "${1}***@")
}

// RedactURL returns u with any password replaced.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.User == nil {
		return Redact(u)
	}
	return parsed.Redacted()
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
