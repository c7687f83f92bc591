package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

// errViolations makes the process exit non-zero under --fail-on-violations.
var errViolations = errors.New("violations found")

func newAnalyzeCmd() *cobra.Command {
	var (
		src        graphSource
		entries    []string
		failOnFind bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze entry points and print the violations as JSON",
		Example: `  pathflow analyze --graph model.yaml
  pathflow analyze --db graph.db --entry AccountController.load --fail-on-violations`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := newStack(ctx, src)
			if err != nil {
				return err
			}
			defer s.Close()

			var eps []*graph.Vertex
			if len(entries) > 0 {
				eps, err = s.engine.Lookup(ctx, entries)
			} else {
				eps, err = s.engine.Discover(ctx)
			}
			if err != nil {
				return err
			}
			if len(eps) == 0 {
				slog.Warn("no entry points matched the configured selection")
			}

			run, err := s.engine.Run(ctx, eps)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(run); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			if failOnFind && len(run.Violations) > 0 {
				return fmt.Errorf("%w: %d", errViolations, len(run.Violations))
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVarP(&src.model, "graph", "g", "", "YAML source model to build the code graph from")
	cmd.Flags().StringVar(&src.db, "db", "", "SQLite code graph written by the import command")
	cmd.Flags().StringSliceVarP(&entries, "entry", "e", nil, "Entry point to analyze as Type.method (repeatable); default is the configured selection")
	cmd.Flags().BoolVar(&failOnFind, "fail-on-violations", false, "Exit non-zero when any violation is reported")
	return cmd
}
