package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/pathflow/internal/metrics"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// worker is the state owned by one pool goroutine. Nothing in it is shared
// with other workers except the provider and the run's usage set.
type worker struct {
	id        int
	reg       *registry.Registry
	cache     *vcache.Cache
	exp       *path.Expander
	walker    *walker.Walker
	collector *rules.Collector
	flushers  []rules.Flusher
	seen      vcache.Stats
}

func (e *Engine) newWorker(id int, s *snapshot, set usage.Set) (*worker, error) {
	reg, err := registry.New(s.budget, s.specs...)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}
	logger := e.logger.With("worker", id)
	w := &worker{
		id:        id,
		reg:       reg,
		cache:     vcache.New(e.provider),
		collector: rules.NewCollector(),
	}
	w.exp = path.NewExpander(w.cache, reg, logger)

	visitors := make([]walker.Visitor, 0, len(s.rules)+1)
	for _, ar := range s.rules {
		v := ar.rule.NewVisitor(rules.Env{
			Settings:  ar.settings,
			Collector: w.collector,
			Usage:     set,
			Logger:    logger.With("rule", ar.rule.ID()),
		})
		if v == nil {
			continue
		}
		if f, ok := v.(rules.Flusher); ok {
			w.flushers = append(w.flushers, f)
		}
		visitors = append(visitors, v)
	}
	// The collector commits at EndPath, after every rule saw the path end.
	visitors = append(visitors, w.collector)
	w.walker = walker.New(w.cache, w.exp, logger, visitors...)
	return w, nil
}

// finish releases everything held for one entry point. Buffered usage marks
// are written even when the entry point was cancelled.
func (w *worker) finish(ctx context.Context, logger *slog.Logger) {
	metrics.Forks.Add(float64(w.exp.Stats().Forks))
	w.exp.Reset()
	w.reg.Clear()
	w.collector.Reset()

	flushCtx := context.WithoutCancel(ctx)
	for _, f := range w.flushers {
		if err := f.Flush(flushCtx); err != nil {
			logger.Error("flush usage marks", "worker", w.id, "err", err)
		}
	}

	st := w.cache.Stats()
	metrics.CacheLookups.WithLabelValues("hit").Add(float64(st.Hits - w.seen.Hits))
	metrics.CacheLookups.WithLabelValues("miss").Add(float64(st.Misses - w.seen.Misses))
	w.seen = st
}
