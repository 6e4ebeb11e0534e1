/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/melodydashora/RepEditor/autofix"
	"github.com/melodydashora/RepEditor/config"
	"github.com/melodydashora/RepEditor/repos/treeindex"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// target holds the flags every one-shot command shares.
type target struct {
	repo   string
	branch string
}

func (t *target) bind(cmd *cobra.Command, branchFlag string) {
	cmd.Flags().StringVar(&t.repo, "repo", "", "repository in owner/name form")
	cmd.Flags().StringVar(&t.branch, branchFlag, "", "branch to work from (default: the repository default branch)")
	_ = cmd.MarkFlagRequired("repo")
}

// oneShot loads config, wires the pipeline and runs fn with the caller's
// token from GITHUB_TOKEN.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error) error {
	ctx := cmd.Context()
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return errors.New("GITHUB_TOKEN must be set")
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(ctx, p.orch, autofix.Credentials{Token: token})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func planCmd() *cobra.Command {
	var (
		t       target
		goal    string
		samples []string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Ask the model for a remediation plan",
		Example: `  repeditor plan --repo acme/widgets --goal "fix off-by-one in pagination" \
    --sample src/paginate.ts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error {
				resp, err := o.Plan(ctx, autofix.PlanRequest{
					Credentials: creds, Repo: t.repo, Branch: t.branch, Goal: goal, SamplePaths: samples,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	t.bind(cmd, "branch")
	cmd.Flags().StringVar(&goal, "goal", "", "what the change should achieve")
	cmd.Flags().StringSliceVar(&samples, "sample", nil, "file to show the model alongside the tree (repeatable)")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func diffCmd() *cobra.Command {
	var (
		t     target
		goal  string
		files []string
		push  bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Synthesize a unified diff, optionally pushing it to a new branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error {
				dry := !push
				resp, err := o.Diff(ctx, autofix.DiffRequest{
					Credentials: creds, Repo: t.repo, Branch: t.branch, Goal: goal, ContextFiles: files, DryRun: &dry,
				})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), resp.Diff)
				if resp.Branch != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "pushed %s (%s) based on %s\n", resp.Branch, resp.Commit, resp.Base)
				}
				return nil
			})
		},
	}
	t.bind(cmd, "branch")
	cmd.Flags().StringVar(&goal, "goal", "", "what the change should achieve")
	cmd.Flags().StringSliceVar(&files, "file", nil, "context file to send to the model (repeatable)")
	cmd.Flags().BoolVar(&push, "push", false, "apply the diff on a new branch and push it")
	_ = cmd.MarkFlagRequired("goal")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func applyCmd() *cobra.Command {
	var (
		t        target
		diffPath string
		message  string
		title    string
		body     string
		noPR     bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a diff on a new branch, push it and open a pull request",
		Example: `  git diff | repeditor apply --repo acme/widgets --diff -
  repeditor apply --repo acme/widgets --diff fix.patch --no-pr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			diff, err := readDiff(cmd.InOrStdin(), diffPath)
			if err != nil {
				return err
			}
			return oneShot(cmd, func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error {
				createPR := !noPR
				resp, err := o.Apply(ctx, autofix.ApplyRequest{
					Credentials: creds, Repo: t.repo, BaseBranch: t.branch, Diff: diff,
					CommitMessage: message, CreatePR: &createPR, PRTitle: title, PRBody: body,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	t.bind(cmd, "base-branch")
	cmd.Flags().StringVar(&diffPath, "diff", "-", "file holding the unified diff, or - for stdin")
	cmd.Flags().StringVar(&message, "message", "", "commit message (default: "+strconv.Quote(autofix.DefaultCommitMessage)+")")
	cmd.Flags().StringVar(&title, "pr-title", "", "pull request title (default: the commit subject)")
	cmd.Flags().StringVar(&body, "pr-body", "", "pull request body")
	cmd.Flags().BoolVar(&noPR, "no-pr", false, "push the branch without opening a pull request")
	return cmd
}

func readDiff(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading diff: %w", err)
	}
	return string(b), nil
}

func autofixCmd() *cobra.Command {
	var (
		t     target
		goal  string
		files []string
		noPR  bool
	)
	cmd := &cobra.Command{
		Use:   "autofix",
		Short: "Plan, synthesize and apply a change in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error {
				createPR := !noPR
				resp, err := o.Autofix(ctx, autofix.AutofixRequest{
					Credentials: creds, Repo: t.repo, Branch: t.branch, Goal: goal, ContextFiles: files, CreatePR: &createPR,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	t.bind(cmd, "branch")
	cmd.Flags().StringVar(&goal, "goal", "", "what the change should achieve")
	cmd.Flags().StringSliceVar(&files, "file", nil, "context file to send to the model (default: the files the plan names)")
	cmd.Flags().BoolVar(&noPR, "no-pr", false, "push the branch without opening a pull request")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func treeCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "List the files of a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, func(ctx context.Context, o *autofix.Orchestrator, creds autofix.Credentials) error {
				resp, err := o.Tree(ctx, autofix.TreeRequest{Credentials: creds, Repo: t.repo, Branch: t.branch})
				if err != nil {
					return err
				}
				return renderTree(cmd.OutOrStdout(), resp.Items)
			})
		},
	}
	t.bind(cmd, "branch")
	return cmd
}

func renderTree(w io.Writer, items []treeindex.Entry) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithHeader([]string{"Path", "Kind", "Size"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	for _, e := range items {
		size := ""
		if e.Size != nil {
			size = strconv.FormatInt(*e.Size, 10)
		}
		if err := table.Append([]string{e.Path, string(e.Kind), size}); err != nil {
			return err
		}
	}
	return table.Render()
}
