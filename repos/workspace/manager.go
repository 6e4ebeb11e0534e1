/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/melodydashora/RepEditor/failures"
	"github.com/melodydashora/RepEditor/repos"
	"golang.org/x/oauth2"
)

const dirPrefix = "repeditor-ws-"

// RemoteResolver maps a repository to the URL it is cloned from.
type RemoteResolver func(host string, id repos.ID) string

// Identity is the author recorded on commits made inside a workspace.
type Identity struct {
	Name  string
	Email string
}

// Manager creates and destroys workspaces.
type Manager struct {
	host      string
	identity  Identity
	depth     int
	timeout   time.Duration
	remoteURL RemoteResolver
}

// Option configures a Manager.
type Option func(*Manager) error

// WithHost sets the git host used to build clone URLs.
func WithHost(host string) Option {
	return func(m *Manager) error {
		host = strings.TrimSpace(host)
		if host == "" {
			return errors.New("host cannot be empty")
		}
		m.host = host
		return nil
	}
}

// WithIdentity sets the commit identity written into every clone.
func WithIdentity(id Identity) Option {
	return func(m *Manager) error {
		if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.Email) == "" {
			return errors.New("identity name and email cannot be empty")
		}
		m.identity = id
		return nil
	}
}

// WithDepth sets the clone depth. Zero clones full history.
func WithDepth(depth int) Option {
	return func(m *Manager) error {
		if depth < 0 {
			return fmt.Errorf("depth must not be negative, got %d", depth)
		}
		m.depth = depth
		return nil
	}
}

// WithTimeout bounds each clone.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		m.timeout = d
		return nil
	}
}

// WithRemoteResolver overrides how clone URLs are built. Tests use it to
// point clones at local repositories.
func WithRemoteResolver(fn RemoteResolver) Option {
	return func(m *Manager) error {
		if fn == nil {
			return errors.New("remote resolver cannot be nil")
		}
		m.remoteURL = fn
		return nil
	}
}

// New constructs a Manager.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		host:      "github.com",
		identity:  Identity{Name: "RepEditor AI", Email: "ai@repeditor.dev"},
		depth:     1,
		timeout:   2 * time.Minute,
		remoteURL: defaultRemoteURL,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return m, nil
}

// Identity returns the configured commit identity.
func (m *Manager) Identity() Identity {
	return m.identity
}

// Acquire clones id into a fresh temporary directory. When branch is empty
// the remote's default branch is checked out. The returned Handle must be
// passed to Release once the caller is done with it.
func (m *Manager) Acquire(ctx context.Context, id repos.ID, ts oauth2.TokenSource, branch string) (*Handle, error) {
	if ts == nil {
		return nil, errors.New("token source cannot be nil")
	}
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", failures.ErrAuth, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", dirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	var auth *githttp.BasicAuth
	if token.AccessToken != "" {
		auth = &githttp.BasicAuth{Username: "oauth2", Password: token.AccessToken}
	}

	remote := m.remoteURL(m.host, id)
	log := clog.FromContext(ctx).With("repo", id.String(), "dir", dir)
	log.Infof("Cloning repository %s", failures.RedactURL(remote))

	opts := &git.CloneOptions{
		URL:          remote,
		SingleBranch: true,
		Depth:        m.depth,
		Tags:         git.NoTags,
	}
	if auth != nil {
		opts.Auth = auth
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failures.Deadline("clone", err)
		}
		return nil, &failures.CloneError{Repo: id.String(), Branch: branch, Err: err}
	}

	if branch == "" {
		head, err := repo.Head()
		if err != nil {
			os.RemoveAll(dir)
			return nil, &failures.CloneError{Repo: id.String(), Err: fmt.Errorf("resolving HEAD: %w", err)}
		}
		branch = head.Name().Short()
	}

	cfg, err := repo.Config()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("reading clone config: %w", err)
	}
	cfg.User.Name = m.identity.Name
	cfg.User.Email = m.identity.Email
	if err := repo.SetConfig(cfg); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing clone identity: %w", err)
	}

	realRoot, err := filepath.EvalSymlinks(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	log.With("branch", branch).Info("Workspace ready")
	return &Handle{
		id:       id,
		branch:   branch,
		root:     dir,
		realRoot: realRoot,
		repo:     repo,
		auth:     auth,
		identity: m.identity,
	}, nil
}

// Release deletes the workspace. It is safe to call more than once and on a
// nil handle; removal failures are logged, never returned.
func (m *Manager) Release(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		if err := os.RemoveAll(h.root); err != nil {
			clog.FromContext(ctx).With("dir", h.root).Warnf("Failed to remove workspace: %v", err)
			return
		}
		clog.FromContext(ctx).With("dir", h.root).Debug("Workspace released")
	})
}

func defaultRemoteURL(host string, id repos.ID) string {
	return fmt.Sprintf("https://%s/%s/%s.git", host, id.Owner, id.Name)
}

// Handle is an exclusively owned clone.
type Handle struct {
	id       repos.ID
	branch   string
	root     string
	realRoot string
	repo     *git.Repository
	auth     *githttp.BasicAuth
	identity Identity

	releaseOnce sync.Once
}

// ID returns the repository the workspace was cloned from.
func (h *Handle) ID() repos.ID { return h.id }

// Branch returns the branch that was checked out at acquisition.
func (h *Handle) Branch() string { return h.branch }

// Root returns the absolute path of the working tree.
func (h *Handle) Root() string { return h.root }

// Repo returns the underlying repository.
func (h *Handle) Repo() *git.Repository { return h.repo }

// Identity returns the commit identity configured on the clone.
func (h *Handle) Identity() Identity { return h.identity }

// Auth returns the credentials used for the clone, or nil for anonymous
// remotes. Pushes reuse them.
func (h *Handle) Auth() *githttp.BasicAuth { return h.auth }
