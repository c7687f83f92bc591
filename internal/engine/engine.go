package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/pathflow/internal/config"
	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/metrics"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/progress"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

const tracerName = "github.com/gyaneshwarpardhi/pathflow/internal/engine"

// ErrUnknownEntryPoint is returned by Lookup for a key that names no method.
var ErrUnknownEntryPoint = errors.New("unknown entry point")

// DefaultMaxHeapBytes is planned against when neither the config nor
// GOMEMLIMIT sets a heap size.
const DefaultMaxHeapBytes int64 = 4 << 30

// Status is the final state of one entry point.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusTimeout           Status = "timeout"
	StatusCancelled         Status = "cancelled"
	StatusResourceExhausted Status = "resource_exhausted"
	StatusInternalError     Status = "internal_error"
)

// EntryPointResult is the outcome of analyzing a single entry point.
type EntryPointResult struct {
	EntryPoint string `json:"entry_point"`
	Status     Status `json:"status"`
	Paths      int    `json:"paths"`
	// Infeasible counts paths pruned because a condition contradicted the
	// branch they take.
	Infeasible int               `json:"infeasible_paths"`
	Violations []rules.Violation `json:"violations"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

// RunResult is the outcome of one analysis run.
type RunResult struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	DurationMs  int64              `json:"duration_ms"`
	EntryPoints []EntryPointResult `json:"entry_points"`
	// Violations is the union of every entry point's violations plus those of
	// run-wide checks.
	Violations []rules.Violation `json:"violations"`
}

// Counts returns the number of entry points per status.
func (r *RunResult) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, ep := range r.EntryPoints {
		out[ep.Status]++
	}
	return out
}

// Options holds the engine's collaborators. Zero values get defaults.
type Options struct {
	Logger   *slog.Logger
	Notifier progress.Notifier
	// Usage hands each run its own set of reached methods.
	Usage  usage.Store
	Tracer trace.Tracer
}

// RuleInfo describes a registered rule and its configured state.
type RuleInfo struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Severity    rules.Severity `json:"severity"`
}

type activeRule struct {
	rule     rules.Rule
	settings rules.Settings
}

// snapshot is a compiled config. Runs read it once at start.
type snapshot struct {
	cfg      *config.Config
	budget   registry.Budget
	specs    []registry.TypeSpec
	rules    []activeRule
	selector path.Selector
}

// Engine analyzes entry points of a code graph with a pool of workers.
type Engine struct {
	provider graph.Provider
	registry *rules.Registry
	snap     atomic.Pointer[snapshot]
	logger   *slog.Logger
	notifier progress.Notifier
	usage    usage.Store
	tracer   trace.Tracer
}

// New creates an Engine. Configuration problems, including a heap too small
// for the configured registry minimums, fail here before any work starts.
func New(p graph.Provider, reg *rules.Registry, cfg *config.Config, opts Options) (*Engine, error) {
	e := &Engine{
		provider: p,
		registry: reg,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		usage:    opts.Usage,
		tracer:   opts.Tracer,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notifier == nil {
		e.notifier = progress.Nop
	}
	if e.usage == nil {
		e.usage = usage.MemoryStore{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if err := e.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reconfigure atomically replaces the configuration (used on hot-reload).
// Runs already in progress keep the configuration they started with.
func (e *Engine) Reconfigure(cfg *config.Config) error {
	s, err := e.compile(cfg)
	if err != nil {
		return err
	}
	e.snap.Store(s)
	e.logger.Info("engine configured",
		"workers", cfg.Engine.Workers, "max_heap_bytes", s.budget.MaxHeapBytes, "rules", len(s.rules))
	return nil
}

// Config returns the configuration new runs use.
func (e *Engine) Config() *config.Config { return e.snap.Load().cfg }

// Rules describes every registered rule.
func (e *Engine) Rules() []RuleInfo {
	s := e.snap.Load()
	out := make([]RuleInfo, 0, len(e.registry.IDs()))
	for _, r := range e.registry.All() {
		info := RuleInfo{ID: r.ID(), Description: r.Description(), Severity: r.DefaultSeverity()}
		for _, ar := range s.rules {
			if ar.rule.ID() == r.ID() {
				info.Enabled, info.Severity = true, ar.settings.Severity
			}
		}
		out = append(out, info)
	}
	return out
}

func (e *Engine) compile(cfg *config.Config) (*snapshot, error) {
	const op = "engine.configure"
	if err := config.Validate(cfg); err != nil {
		return nil, fault.Misconfigured(op, "%v", err)
	}

	heap := cfg.Registry.MaxHeapBytes
	if heap == 0 {
		if detected, ok := registry.DetectMaxHeap(); ok {
			heap = detected
		} else {
			heap = DefaultMaxHeapBytes
		}
	}
	s := &snapshot{
		cfg:    cfg,
		budget: registry.Budget{MaxHeapBytes: heap, CapacityFraction: cfg.Registry.CapacityFraction},
		selector: path.Selector{
			Annotations: cfg.EntryPoints.Annotations,
			Modifiers:   cfg.EntryPoints.Modifiers,
			Methods:     cfg.EntryPoints.Methods,
			All:         cfg.EntryPoints.All,
		},
	}
	for _, t := range cfg.Registry.Types {
		spec := registry.TypeSpec{
			Name:             registry.TypeKey(t.Name),
			AverageSizeBytes: t.AverageSizeBytes,
			MinimumCount:     t.MinimumCount,
		}
		if _, err := registry.Capacity(spec, s.budget); err != nil {
			return nil, err
		}
		s.specs = append(s.specs, spec)
	}
	if !slices.ContainsFunc(s.specs, func(t registry.TypeSpec) bool { return t.Name == path.RegistryType }) {
		return nil, fault.Misconfigured(op, "registry type %q is not configured", path.RegistryType)
	}

	ids := e.registry.IDs()
	for _, rc := range cfg.Rules {
		if !slices.ContainsFunc(ids, func(id string) bool { return strings.EqualFold(id, rc.ID) }) {
			return nil, fault.Misconfigured(op, "unknown rule %q (known: %s)", rc.ID, strings.Join(ids, ", "))
		}
	}
	for _, r := range e.registry.All() {
		rc, _ := cfg.Rule(r.ID())
		if !rc.IsEnabled() {
			continue
		}
		st := rules.Settings{Enabled: true, Sinks: rc.Sinks}
		if rc.Severity != "" {
			sev, err := rules.ParseSeverity(rc.Severity)
			if err != nil {
				return nil, fault.Misconfigured(op, "rule %s: %v", r.ID(), err)
			}
			st.Severity = sev
		}
		s.rules = append(s.rules, activeRule{rule: r, settings: rules.Resolve(r, st)})
	}
	return s, nil
}

// Discover returns the configured entry points, ordered by identity key.
func (e *Engine) Discover(ctx context.Context) ([]*graph.Vertex, error) {
	return path.Discover(ctx, e.provider, e.snap.Load().selector)
}

// Lookup returns the methods named by keys ("Type.method", case-insensitive),
// in the order given. Deferred types named by a key are loaded first.
func (e *Engine) Lookup(ctx context.Context, keys []string) ([]*graph.Vertex, error) {
	for _, k := range keys {
		if i := strings.LastIndex(k, "."); i > 0 {
			if _, err := e.provider.LoadSubgraph(ctx, k[:i]); err != nil {
				return nil, fmt.Errorf("lookup %s: %w", k, err)
			}
		}
	}
	found, err := path.Discover(ctx, e.provider, path.Selector{Methods: keys})
	if err != nil {
		return nil, err
	}
	out := make([]*graph.Vertex, 0, len(keys))
	var missing []string
	for _, k := range keys {
		i := slices.IndexFunc(found, func(v *graph.Vertex) bool { return strings.EqualFold(v.IdentityKey(), k) })
		if i < 0 {
			missing = append(missing, k)
			continue
		}
		out = append(out, found[i])
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntryPoint, strings.Join(missing, ", "))
	}
	return out, nil
}

// RunAll discovers the entry points and analyzes them.
func (e *Engine) RunAll(ctx context.Context) (*RunResult, error) {
	entries, err := e.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover entry points: %w", err)
	}
	return e.Run(ctx, entries)
}

// Run analyzes entries on the worker pool. Failures of single entry points are
// reported in their results; an error means the run could not start or a
// run-wide check failed.
func (e *Engine) Run(ctx context.Context, entries []*graph.Vertex) (*RunResult, error) {
	s := e.snap.Load()
	run := &RunResult{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.Engine.Run", trace.WithAttributes(
		attribute.String("run_id", run.RunID),
		attribute.Int("entry_points", len(entries)),
	))
	defer span.End()

	set, err := e.usage.ForRun(ctx, run.RunID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("usage set: %w", err)
	}
	defer e.discard(ctx, run.RunID, set)

	n := max(min(s.cfg.Engine.Workers, len(entries)), 1)
	workers := make([]*worker, n)
	for i := range workers {
		w, err := e.newWorker(i, s, set)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		workers[i] = w
	}

	e.notify(ctx, progress.Event{Type: progress.RunStarted, RunID: run.RunID, Count: len(entries)})
	e.logger.Info("analysis started", "run_id", run.RunID, "entry_points", len(entries), "workers", n)

	pool := newWorkerPool(ctx, workers, s.cfg.Engine.QueueDepth,
		func(ctx context.Context, w *worker, entry *graph.Vertex) (EntryPointResult, error) {
			return e.analyze(ctx, s, run.RunID, w, entry), nil
		})
	results := make(chan jobResult[*graph.Vertex, EntryPointResult], len(entries))
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for _, entry := range entries {
			pool.Enqueue(entry, results)
			metrics.EntryPointsEnqueued.Inc()
			metrics.QueueUtilization.Set(utilization(pool))
		}
		pool.Drain()
		metrics.QueueUtilization.Set(0)
	}()

	run.EntryPoints = make([]EntryPointResult, 0, len(entries))
	for range entries {
		r := <-results
		run.EntryPoints = append(run.EntryPoints, r.value)
		run.Violations = append(run.Violations, r.value.Violations...)
	}
	<-submitted
	slices.SortFunc(run.EntryPoints, func(a, b EntryPointResult) int { return strings.Compare(a.EntryPoint, b.EntryPoint) })

	if ctx.Err() == nil {
		for _, ar := range s.rules {
			rc, ok := ar.rule.(rules.RunCheck)
			if !ok {
				continue
			}
			vs, err := rc.CheckRun(ctx, e.provider, set, ar.settings)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("rule %s: %w", ar.rule.ID(), err)
			}
			for _, v := range vs {
				metrics.Violations.WithLabelValues(v.Rule).Inc()
			}
			run.Violations = append(run.Violations, vs...)
		}
	}
	rules.Sort(run.Violations)
	run.DurationMs = time.Since(start).Milliseconds()

	e.notify(ctx, progress.Event{Type: progress.RunCompleted, RunID: run.RunID, Count: len(entries)})
	e.logger.Info("analysis completed",
		"run_id", run.RunID, "entry_points", len(entries), "violations", len(run.Violations), "duration_ms", run.DurationMs)
	span.SetAttributes(attribute.Int("violations", len(run.Violations)))
	return run, nil
}

// discard drops the run's usage marks once nothing reads them any more.
func (e *Engine) discard(ctx context.Context, runID string, set usage.Set) {
	if err := set.Reset(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("discard usage set", "run_id", runID, "err", err)
	}
}

// analyze runs the expansion and walk pipeline for one entry point. It never
// panics and never returns an error: every failure becomes a status.
func (e *Engine) analyze(ctx context.Context, s *snapshot, runID string, w *worker, entry *graph.Vertex) (res EntryPointResult) {
	key := entry.IdentityKey()
	start := time.Now()
	res = EntryPointResult{EntryPoint: key, Status: StatusCompleted}

	ctx, span := e.tracer.Start(ctx, "engine.Engine.analyze", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("entry_point", key),
		attribute.Int("worker", w.id),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fault.Defect("engine.analyze", "panic: %v", r)
			e.logger.Error("entry point panicked", "entry_point", key, "panic", r, "stack", string(debug.Stack()))
			res.Status, res.Error = StatusInternalError, err.Error()
			res.Violations = []rules.Violation{rules.InternalError(entry, err)}
		}
		w.finish(ctx, e.logger)
		res.DurationMs = time.Since(start).Milliseconds()
		e.record(ctx, runID, span, &res)
	}()

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Engine.TaskTimeout())
	defer cancel()

	e.notify(ctx, progress.Event{Type: progress.PathCreationStarted, RunID: runID, EntryPoint: key})
	paths, err := w.exp.Expand(tctx, entry.ID)
	if err != nil {
		e.fail(ctx, &res, entry, err)
		return res
	}
	res.Paths = len(paths)
	metrics.PathsExpanded.Add(float64(len(paths)))
	e.notify(ctx, progress.Event{Type: progress.PathsIdentified, RunID: runID, EntryPoint: key, Count: len(paths)})

	defect := false
	for _, p := range paths {
		out := w.walker.Walk(tctx, entry, p)
		metrics.PathsWalked.WithLabelValues(outcomeLabel(out)).Inc()
		switch out.Reason {
		case walker.ReasonCancelled:
			e.fail(ctx, &res, entry, out.Err)
			return res
		case walker.ReasonInfeasible:
			res.Infeasible++
		case walker.ReasonDefect:
			if !defect {
				w.collector.Add(rules.InternalError(entry, out.Err))
				defect = true
			}
		}
	}
	res.Violations = w.collector.Violations()
	return res
}

// fail converts an entry point's error into its result. ctx is the parent of
// the entry point's timeout, so a live parent means the deadline fired.
func (e *Engine) fail(ctx context.Context, res *EntryPointResult, entry *graph.Vertex, err error) {
	res.Error = err.Error()
	res.Violations = nil
	switch fault.KindOf(err) {
	case fault.KindCancelled:
		res.Status = StatusTimeout
		if ctx.Err() != nil {
			res.Status = StatusCancelled
		}
	case fault.KindResourceExhausted:
		res.Status = StatusResourceExhausted
		res.Violations = []rules.Violation{rules.PathExpansionLimit(entry, err)}
		metrics.RegistryRejections.Inc()
		e.logger.Warn("path expansion limit reached", "entry_point", entry.IdentityKey(), "err", err)
	default:
		res.Status = StatusInternalError
		res.Violations = []rules.Violation{rules.InternalError(entry, err)}
		e.logger.Error("entry point failed", "entry_point", entry.IdentityKey(), "kind", fault.KindOf(err), "err", err)
	}
}

func (e *Engine) record(ctx context.Context, runID string, span trace.Span, res *EntryPointResult) {
	metrics.EntryPointsAnalyzed.WithLabelValues(string(res.Status)).Inc()
	metrics.EntryPointDuration.Observe(float64(res.DurationMs))
	for _, v := range res.Violations {
		metrics.Violations.WithLabelValues(v.Rule).Inc()
	}
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("paths", res.Paths),
		attribute.Int("violations", len(res.Violations)),
	)
	if res.Status == StatusInternalError {
		span.SetStatus(codes.Error, res.Error)
	}
	e.notify(ctx, progress.Event{
		Type: progress.EntryPointCompleted, RunID: runID, EntryPoint: res.EntryPoint, Status: string(res.Status),
	})
}

// notify stamps e and hands it to the notifier.
func (e *Engine) notify(ctx context.Context, ev progress.Event) {
	stamped := progress.New(ev.Type, ev.RunID)
	stamped.EntryPoint, stamped.Count, stamped.Status = ev.EntryPoint, ev.Count, ev.Status
	e.notifier.Notify(ctx, stamped)
}

func outcomeLabel(o walker.Outcome) string {
	if o.State == walker.Completed {
		return "completed"
	}
	return o.Reason.String()
}

func utilization[S, T, R any](p *workerPool[S, T, R]) float64 {
	if p.QueueCap() == 0 {
		return 0
	}
	return float64(p.QueueLen()) / float64(p.QueueCap())
}
