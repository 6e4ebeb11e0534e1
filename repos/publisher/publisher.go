/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher talks to the GitHub REST API on behalf of the caller:
// it resolves default branches and opens pull requests.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos"
	"golang.org/x/oauth2"
)

// FallbackBranch is used when the platform reports no default branch.
const FallbackBranch = "main"

// PullRequest records an opened pull request.
type PullRequest struct {
	Head   string `json:"head"`
	Base   string `json:"base"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	Number int    `json:"number"`
}

// Interface is the subset of the platform the pipeline depends on.
type Interface interface {
	DefaultBranch(ctx context.Context, token string, id repos.ID) (string, error)
	Open(ctx context.Context, token string, id repos.ID, head, base, title, body string) (*PullRequest, error)
}

// Client implements Interface against the GitHub REST API.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
}

var _ Interface = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server. The
// URL is used as the API root as-is.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL %q must be absolute", raw)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.baseURL = u
		return nil
	}
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// New constructs a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{timeout: 30 * time.Second}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

func (c *Client) client(ctx context.Context, token string) *github.Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	gh := github.NewClient(httpClient)
	if c.baseURL != nil {
		base := *c.baseURL
		gh.BaseURL = &base
	}
	return gh
}

// DefaultBranch returns the repository's default branch, or FallbackBranch
// when the platform reports none.
func (c *Client) DefaultBranch(ctx context.Context, token string, id repos.ID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	repo, _, err := c.client(ctx, token).Repositories.Get(ctx, id.Owner, id.Name)
	if err != nil {
		return "", classify("get repository", err)
	}
	if b := repo.GetDefaultBranch(); b != "" {
		return b, nil
	}
	return FallbackBranch, nil
}

// Open creates a pull request from head into base.
func (c *Client) Open(ctx context.Context, token string, id repos.ID, head, base, title, body string) (*PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := clog.FromContext(ctx).With("repo", id.String(), "head", head, "base", base)
	log.Info("Opening pull request")

	pr, _, err := c.client(ctx, token).PullRequests.Create(ctx, id.Owner, id.Name, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
	})
	if err != nil {
		return nil, publishError(err)
	}

	log.Infof("Opened PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
	return &PullRequest{
		Head:   head,
		Base:   base,
		Title:  title,
		Body:   body,
		URL:    pr.GetHTMLURL(),
		Number: pr.GetNumber(),
	}, nil
}

func publishError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failures.Deadline("publish", err)
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return &failures.PublishError{StatusCode: er.Response.StatusCode, Message: errorMessage(er), Err: err}
	}
	return &failures.PublishError{Err: err}
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failures.Deadline(op, err)
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch er.Response.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %s", failures.ErrAuth, op, errorMessage(er))
		case http.StatusNotFound:
			return failures.NotFound(op + ": " + errorMessage(er))
		}
	}
	return fmt.Errorf("%w: %s: %v", failures.ErrTransport, op, err)
}

func errorMessage(er *github.ErrorResponse) string {
	msg := er.Message
	for _, e := range er.Errors {
		detail := e.Message
		if detail == "" {
			detail = strings.TrimSpace(e.Resource + " " + e.Field + " " + e.Code)
		}
		if detail != "" {
			msg += "; " + detail
		}
	}
	return msg
}
