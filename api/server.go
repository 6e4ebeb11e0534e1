/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package api serves the autofix operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/melodydashora/RepEditor/agents/chat"
	"github.com/melodydashora/RepEditor/autofix"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 4 << 20

// Pipeline is the set of operations the server exposes.
type Pipeline interface {
	Plan(ctx context.Context, req autofix.PlanRequest) (*autofix.PlanResponse, error)
	Diff(ctx context.Context, req autofix.DiffRequest) (*autofix.DiffResponse, error)
	Apply(ctx context.Context, req autofix.ApplyRequest) (*autofix.ApplyResponse, error)
	Autofix(ctx context.Context, req autofix.AutofixRequest) (*autofix.ApplyResponse, error)
	Tree(ctx context.Context, req autofix.TreeRequest) (*autofix.TreeResponse, error)
	File(ctx context.Context, req autofix.FileRequest) (string, error)
	Chat(ctx context.Context, req autofix.ChatRequest) (*chat.Response, error)
}

var _ Pipeline = (*autofix.Orchestrator)(nil)

// Server routes HTTP requests to a Pipeline.
type Server struct {
	pipeline Pipeline
	maxBody  int64
}

// Option configures a Server.
type Option func(*Server) error

// WithMaxBodyBytes bounds JSON request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("max body bytes must be positive, got %d", n)
		}
		s.maxBody = n
		return nil
	}
}

// New creates a Server for p.
func New(p Pipeline, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}
	s := &Server{pipeline: p, maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Group(func(r chi.Router) {
		r.Use(credentials)
		r.Route("/api/ai", func(r chi.Router) {
			r.Post("/plan", s.plan)
			r.Post("/diff", s.diff)
			r.Post("/apply", s.apply)
			r.Post("/autofix", s.autofix)
			r.Get("/tree", s.tree)
			r.Get("/file", s.file)
		})
		r.Post("/api/chat", s.chat)
	})

	return otelhttp.NewHandler(r, "repeditor")
}

// ListenAndServe serves h on addr and Prometheus metrics on metricsAddr
// until ctx is done, then shuts both down gracefully.
func ListenAndServe(ctx context.Context, addr, metricsAddr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	servers := []*http.Server{
		{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second},
		{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		eg.Go(func() error {
			clog.InfoContextf(ctx, "Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		clog.InfoContextf(ctx, "Servers shut down")
		return errors.Join(errs...)
	})
	return eg.Wait()
}
