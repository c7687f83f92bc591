package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/pathflow/internal/api"
)

func newServeCmd() *cobra.Command {
	var (
		src  graphSource
		addr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := newStack(ctx, src)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.loader != nil {
				stopWatch, err := s.loader.Watch()
				if err != nil {
					slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
				} else {
					defer stopWatch()
				}
			}

			srv := &http.Server{
				Addr:         addr,
				Handler:      api.New(s.engine, s.loader, slog.Default()),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: s.cfg.Engine.TaskTimeout() + 30*time.Second,
				IdleTimeout:  60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				slog.Info("server starting", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				slog.Info("shutting down")
				shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVarP(&src.model, "graph", "g", "", "YAML source model to build the code graph from")
	cmd.Flags().StringVar(&src.db, "db", "", "SQLite code graph written by the import command")
	return cmd
}
