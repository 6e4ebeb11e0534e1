/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command repeditor serves the autofix API and runs one-shot pipeline
// operations from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/melodydashora/RepEditor/api"
	"github.com/melodydashora/RepEditor/config"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "repeditor: %v", err)
	}
}

func rootCmd() *cobra.Command {
	serve := serveCmd()
	root := &cobra.Command{
		Use:   "repeditor",
		Short: "Plan, synthesize and apply repository changes with an LLM",
		Long: `RepEditor clones a repository into a throwaway workspace, asks a model
for a plan and a unified diff, applies the diff on a new branch, pushes it
and optionally opens a pull request.

Without a subcommand it runs the HTTP server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, planCmd(), diffCmd(), applyCmd(), autofixCmd(), treeCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			p, err := newPipeline(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer p.Close()

			srv, err := api.New(p.orch, api.WithMaxBodyBytes(cfg.MaxRequestSize))
			if err != nil {
				return err
			}
			clog.InfoContextf(ctx, "Starting RepEditor (provider=%s model=%s code_model=%s)", cfg.Provider, cfg.Model, cfg.CodeModel)
			return api.ListenAndServe(ctx,
				fmt.Sprintf(":%d", cfg.Port),
				fmt.Sprintf(":%d", cfg.MetricsPort),
				srv.Handler())
		},
	}
}
