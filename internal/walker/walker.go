// Package walker walks ApexPaths step by step, keeping symbolic state and the
// loop boundary stack, and dispatches vertices to rule visitors by kind.
package walker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gyaneshwarpardhi/pathflow/internal/condition"
	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/symbolic"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
)

// State is the state of one path walk.
type State int

const (
	NotStarted State = iota
	Visiting
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Visiting:
		return "visiting"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return "not_started"
}

// Reason explains an aborted walk.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCancelled
	ReasonDefect
	// ReasonInfeasible means a condition contradicted the branch the path
	// takes, so the path cannot execute.
	ReasonInfeasible
)

func (r Reason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonDefect:
		return "defect"
	case ReasonInfeasible:
		return "infeasible"
	}
	return "none"
}

// Outcome is the result of one path walk.
type Outcome struct {
	State  State
	Reason Reason
	Err    error
	// Steps counts the steps processed, callee steps included.
	Steps int
}

// Resolver resolves a callee path id through the worker's registry.
type Resolver interface {
	Resolve(id registry.ID) (*path.ApexPath, error)
}

var errInfeasible = errors.New("infeasible branch")

// Walker walks paths for one worker. It is not safe for concurrent use.
type Walker struct {
	cache  *vcache.Cache
	paths  Resolver
	d      *dispatch
	logger *slog.Logger
	seeds  map[graph.VertexID]*symbolic.Table
}

// New creates a walker dispatching to visitors.
func New(c *vcache.Cache, paths Resolver, logger *slog.Logger, visitors ...Visitor) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		cache:  c,
		paths:  paths,
		d:      newDispatch(visitors),
		logger: logger,
		seeds:  make(map[graph.VertexID]*symbolic.Table),
	}
}

type walk struct {
	ctx   context.Context
	scope *Scope
	steps int
}

// Walk runs every step of p in order. Each walk starts from its own fork of
// the entry method's parameter bindings, so walks never see each other's
// state.
func (w *Walker) Walk(ctx context.Context, entry *graph.Vertex, p *path.ApexPath) Outcome {
	s := &Scope{
		Entry:      entry,
		Root:       p,
		Path:       p,
		Symbols:    w.seed(entry).Fork(),
		Boundaries: &Boundaries{},
	}
	wk := &walk{ctx: ctx, scope: s}

	for i, l := range w.d.listeners {
		if err := l.StartPath(s); err != nil {
			out := Outcome{State: Aborted, Reason: ReasonDefect, Err: err}
			for _, started := range w.d.listeners[:i] {
				started.EndPath(s, out)
			}
			return out
		}
	}

	out := Outcome{State: Visiting}
	err := w.walkPath(wk, p)
	if err == nil && s.Boundaries.Len() != 0 {
		err = fault.Defect("walker.walk", "%d regions still open at end of path %d", s.Boundaries.Len(), p.ID())
	}
	out.Steps = wk.steps
	switch {
	case err == nil:
		out.State = Completed
	case errors.Is(err, errInfeasible):
		out.State, out.Reason = Aborted, ReasonInfeasible
	case fault.Is(err, fault.KindCancelled):
		out.State, out.Reason, out.Err = Aborted, ReasonCancelled, err
	default:
		out.State, out.Reason, out.Err = Aborted, ReasonDefect, err
	}
	for _, l := range w.d.listeners {
		l.EndPath(s, out)
	}
	if out.Reason == ReasonDefect {
		w.logger.Warn("path walk aborted", "entry", entry.IdentityKey(), "path", p.ID(), "err", out.Err)
	}
	return out
}

// seed returns the entry method's table with every parameter indeterminate.
func (w *Walker) seed(entry *graph.Vertex) *symbolic.Table {
	if t, ok := w.seeds[entry.ID]; ok {
		return t
	}
	t := symbolic.NewTable()
	for _, p := range entry.PropList(graph.PropParameters) {
		t.Declare(p, symbolic.Indeterminate())
	}
	w.seeds[entry.ID] = t
	return t
}

// walkPath processes the steps of one (sub)path. After a return statement
// only the exits of regions already entered are processed.
func (w *Walker) walkPath(wk *walk, p *path.ApexPath) error {
	s := wk.scope
	returned := false
	var opened []graph.VertexID
	for _, st := range p.Steps {
		if err := wk.ctx.Err(); err != nil {
			return fault.Cancelled("walker.step", err)
		}
		if returned && (st.Phase != path.PhaseExit || len(opened) == 0 || opened[len(opened)-1] != st.Vertex) {
			continue
		}
		wk.steps++
		n, err := path.NodeOf(wk.ctx, w.cache, st.Vertex, st.Branch)
		if err != nil {
			return err
		}
		switch st.Phase {
		case path.PhaseEnter:
			if err := w.enter(s, n); err != nil {
				return err
			}
			opened = append(opened, n.ID)
		case path.PhaseExit:
			if err := w.exit(s, n); err != nil {
				return err
			}
			if len(opened) > 0 {
				opened = opened[:len(opened)-1]
			}
		default:
			if n.Kind == graph.KindCondition {
				if err := w.condition(s, n); err != nil {
					return err
				}
				continue
			}
			if err := w.statement(wk, n); err != nil {
				return err
			}
			returned = n.Kind == graph.KindReturn
		}
	}
	return nil
}

func (w *Walker) enter(s *Scope, n *path.Node) error {
	s.Symbols.PushFrame()
	if n.Kind.IsLoop() {
		s.Boundaries.Push(n)
		if v := n.Prop(graph.PropVariable); v != "" {
			s.Symbols.Declare(v, symbolic.Indeterminate())
		}
	}
	for _, rv := range w.d.regions {
		if err := rv.EnterRegion(s, n); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) exit(s *Scope, n *path.Node) error {
	for _, rv := range w.d.regions {
		if err := rv.ExitRegion(s, n); err != nil {
			return err
		}
	}
	if n.Kind.IsLoop() {
		if err := s.Boundaries.Pop(n); err != nil {
			return err
		}
	}
	return s.Symbols.PopFrame()
}

// condition evaluates a branch condition against the symbols. A definite
// result that contradicts the branch taken makes the path infeasible.
func (w *Walker) condition(s *Scope, n *path.Node) error {
	if err := w.d.pre(s, n); err != nil {
		return err
	}
	if n.Cond != nil && n.Branch != path.BranchNone {
		got, err := condition.Evaluate(n.Cond, s.Symbols)
		if err != nil {
			return fault.Defect("walker.condition", "condition %d: %v", n.ID, err)
		}
		if (n.Branch == path.BranchTrue && got == condition.False) ||
			(n.Branch == path.BranchFalse && got == condition.True) {
			return errInfeasible
		}
	}
	return w.d.postVisit(s, n)
}

// statement visits a statement and its expression tree pre-order, then
// applies its effect on the symbol table.
func (w *Walker) statement(wk *walk, n *path.Node) error {
	s := wk.scope
	if err := w.expr(wk, n); err != nil {
		return err
	}
	switch n.Kind {
	case graph.KindVariableDeclaration:
		v, err := w.valueOf(wk, n)
		if err != nil {
			return err
		}
		s.Symbols.Declare(n.Name, v)
	case graph.KindAssignment:
		v, err := w.valueOf(wk, n)
		if err != nil {
			return err
		}
		s.Symbols.Assign(n.Name, v)
	}
	return nil
}

func (w *Walker) expr(wk *walk, n *path.Node) error {
	s := wk.scope
	if err := w.d.pre(s, n); err != nil {
		return err
	}
	kids, err := path.ChildNodes(wk.ctx, w.cache, n)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if k.Kind.IsStructural() {
			continue
		}
		if err := w.expr(wk, k); err != nil {
			return err
		}
	}
	if n.Kind == graph.KindMethodCall {
		if err := w.invoke(wk, n); err != nil {
			return err
		}
	}
	return w.d.postVisit(s, n)
}

// valueOf returns the value of a declaration's or assignment's initializer.
func (w *Walker) valueOf(wk *walk, n *path.Node) (symbolic.Value, error) {
	if len(n.Children) == 0 {
		if n.Kind == graph.KindVariableDeclaration {
			return symbolic.Null(), nil
		}
		return symbolic.Indeterminate(), nil
	}
	init, err := path.NodeOf(wk.ctx, w.cache, n.Children[0], path.BranchNone)
	if err != nil {
		return symbolic.Value{}, err
	}
	return w.evaluate(wk.scope, init), nil
}

func (w *Walker) evaluate(s *Scope, n *path.Node) symbolic.Value {
	switch n.Kind {
	case graph.KindLiteral:
		return symbolic.FromLiteral(n.Vertex)
	case graph.KindVariable:
		if v, ok := s.Symbols.Get(n.Name); ok {
			return v
		}
	}
	v := symbolic.Indeterminate()
	v.Source = n.ID
	return v
}

// invoke walks the callee path the current path chose for inv, if any.
func (w *Walker) invoke(wk *walk, inv *path.Node) error {
	s := wk.scope
	id, ok := s.Path.Callee(inv.ID)
	if !ok {
		return nil
	}
	sub, err := w.paths.Resolve(id)
	if err != nil {
		return err
	}
	for _, fo := range w.d.forks {
		fo.OnFork(s.Path, sub, inv)
	}

	callee, err := w.bindArguments(wk, inv, sub)
	if err != nil {
		return err
	}
	caller, callerSymbols := s.Path, s.Symbols
	s.calls = append(s.calls, CallFrame{Invocation: inv, Path: sub})
	s.Path, s.Symbols = sub, callee
	defer func() {
		s.Path, s.Symbols = caller, callerSymbols
		s.calls = s.calls[:len(s.calls)-1]
	}()

	for _, il := range w.d.invocations {
		if err := il.EnterInvocation(s, inv, sub); err != nil {
			return err
		}
	}
	if err := w.walkPath(wk, sub); err != nil {
		return err
	}
	for _, il := range w.d.invocations {
		if err := il.ExitInvocation(s, inv, sub); err != nil {
			return err
		}
	}
	return nil
}

// bindArguments builds the callee's table: a fresh scope binding each
// parameter to the matching argument value, indeterminate when unknown.
func (w *Walker) bindArguments(wk *walk, inv *path.Node, sub *path.ApexPath) (*symbolic.Table, error) {
	m, err := path.NodeOf(wk.ctx, w.cache, sub.Method, path.BranchNone)
	if err != nil {
		return nil, err
	}
	args, err := path.ChildNodes(wk.ctx, w.cache, inv)
	if err != nil {
		return nil, err
	}
	t := symbolic.NewTable()
	for i, name := range m.PropList(graph.PropParameters) {
		v := symbolic.Indeterminate()
		if i < len(args) {
			v = w.evaluate(wk.scope, args[i])
		}
		t.Declare(name, v)
	}
	return t, nil
}
