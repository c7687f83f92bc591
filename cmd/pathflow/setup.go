package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gyaneshwarpardhi/pathflow/internal/config"
	"github.com/gyaneshwarpardhi/pathflow/internal/engine"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/progress"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/dbloop"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/repeatedsink"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/unused"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
)

// graphSource names where the code graph comes from. Flags win over the
// config's graph section.
type graphSource struct {
	model string
	db    string
}

func (s graphSource) orConfig(cfg *config.Config) graphSource {
	if s.model == "" && s.db == "" {
		return graphSource{model: cfg.Graph.Model, db: cfg.Graph.Database}
	}
	return s
}

func newRules() *rules.Registry {
	return rules.NewRegistry(dbloop.New(), repeatedsink.New(), unused.New())
}

// loadConfig returns the file config with a Loader when a path was given,
// otherwise the defaults.
func loadConfig() (*config.Config, *config.Loader, error) {
	if configPath == "" {
		return config.Default(), nil, nil
	}
	l, err := config.NewLoader(configPath, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return l.Config(), l, nil
}

// openProvider returns the graph provider and a function releasing it.
func openProvider(ctx context.Context, src graphSource) (graph.Provider, io.Closer, error) {
	switch {
	case src.model != "" && src.db != "":
		return nil, nil, errors.New("give either a graph model or a graph database, not both")
	case src.model != "":
		m, err := graph.LoadModel(src.model)
		if err != nil {
			return nil, nil, err
		}
		g, err := graph.Build(m)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("graph built", "model", src.model, "vertices", g.VertexCount())
		return g, io.NopCloser(nil), nil
	case src.db != "":
		s, err := graph.OpenSQLite(ctx, src.db)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("graph database opened", "db", src.db)
		return s, s, nil
	default:
		return nil, nil, errors.New("no code graph: pass --graph or --db, or set graph.model or graph.database in the config")
	}
}

func openUsage(cfg config.UsageConf) (usage.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		s, err := usage.NewRedisStore(usage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("usage backend: %w", err)
		}
		slog.Info("usage sets on redis", "addr", cfg.RedisAddr, "key_prefix", cfg.RedisKey)
		return s, s, nil
	default:
		return usage.MemoryStore{}, io.NopCloser(nil), nil
	}
}

// stack is everything a command needs to run analyses.
type stack struct {
	cfg     *config.Config
	loader  *config.Loader
	engine  *engine.Engine
	closers []io.Closer
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			slog.Warn("close", "err", err)
		}
	}
}

func newStack(ctx context.Context, src graphSource) (*stack, error) {
	cfg, loader, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &stack{cfg: cfg, loader: loader}

	p, pc, err := openProvider(ctx, src.orConfig(cfg))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pc)

	store, uc, err := openUsage(cfg.Usage)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, uc)

	s.engine, err = engine.New(p, newRules(), cfg, engine.Options{
		Logger:   slog.Default(),
		Notifier: progress.NewLogNotifier(slog.Default()),
		Usage:    store,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
