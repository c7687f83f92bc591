package path

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
)

// ForkObserver is told about every fork: current took invocation into sub.
type ForkObserver interface {
	OnFork(current, sub *ApexPath, invocation *Node)
}

// ForkObserverFunc adapts a function to ForkObserver.
type ForkObserverFunc func(current, sub *ApexPath, invocation *Node)

// OnFork implements ForkObserver.
func (f ForkObserverFunc) OnFork(current, sub *ApexPath, invocation *Node) { f(current, sub, invocation) }

// ExpandStats counts expansion work since the last Reset.
type ExpandStats struct {
	Expansions int // methods expanded (memo misses)
	Routes     int // intra-method routes registered
	Forks      int // paths created by attaching a callee path
}

type invocationsKey graph.VertexID

type targetsKey graph.VertexID

type route []Step

// Expander turns methods into ApexPaths. It belongs to one worker and shares
// that worker's cache and registry. Callee expansions are memoized until Reset,
// so the registry must be cleared together with the expander.
type Expander struct {
	cache     *vcache.Cache
	reg       *registry.Registry
	observers []ForkObserver
	logger    *slog.Logger

	done  map[graph.VertexID][]registry.ID
	depth int
	stats ExpandStats
}

// NewExpander creates an expander over the worker's cache and registry.
func NewExpander(c *vcache.Cache, r *registry.Registry, logger *slog.Logger, observers ...ForkObserver) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		cache:     c,
		reg:       r,
		observers: observers,
		logger:    logger,
		done:      make(map[graph.VertexID][]registry.ID),
	}
}

// Reset forgets memoized expansions and zeroes the counters.
func (e *Expander) Reset() {
	clear(e.done)
	e.depth = 0
	e.stats = ExpandStats{}
}

// Stats returns the counters since the last Reset.
func (e *Expander) Stats() ExpandStats { return e.stats }

// Expand returns every path of method, with calls expanded. Paths stay
// registered until the registry is cleared. Registry exhaustion aborts the
// whole expansion with a resource-exhaustion fault.
func (e *Expander) Expand(ctx context.Context, method graph.VertexID) ([]*ApexPath, error) {
	ids, err := e.expand(ctx, method)
	if err != nil {
		return nil, err
	}
	out := make([]*ApexPath, 0, len(ids))
	for _, id := range ids {
		p, err := registry.LookupAs[*ApexPath](e.reg, RegistryType, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Resolve returns a registered path by id.
func (e *Expander) Resolve(id registry.ID) (*ApexPath, error) {
	return registry.LookupAs[*ApexPath](e.reg, RegistryType, id)
}

func (e *Expander) expand(ctx context.Context, method graph.VertexID) ([]registry.ID, error) {
	if ids, ok := e.done[method]; ok {
		return ids, nil
	}
	e.stats.Expansions++

	m, err := NodeOf(ctx, e.cache, method, BranchNone)
	if err != nil {
		return nil, err
	}
	if m.Kind != graph.KindMethod {
		return nil, fault.Defect("path.expand", "vertex %d is %s, not a method", method, m.Kind)
	}
	routes, err := e.methodRoutes(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := e.admit(len(routes), m); err != nil {
		return nil, err
	}

	var out []registry.ID
	for _, r := range routes {
		if err := ctx.Err(); err != nil {
			return nil, fault.Cancelled("path.expand", err)
		}
		p := newPath(e.reg.NextID(), m, e.depth, r)
		if err := e.reg.Register(RegistryType, p); err != nil {
			return nil, err
		}
		e.stats.Routes++
		ids, err := e.expandCalls(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	e.done[method] = out
	e.logger.Debug("method expanded", "method", m.IdentityKey(), "routes", len(routes), "paths", len(out), "depth", e.depth)
	return out, nil
}

// expandCalls resolves every invocation on p in order, forking the frontier
// once per callee path.
func (e *Expander) expandCalls(ctx context.Context, p *ApexPath) ([]registry.ID, error) {
	invs, err := e.invocations(ctx, p.Steps)
	if err != nil {
		return nil, err
	}
	frontier := []*ApexPath{p}
	for _, inv := range invs {
		targets, err := e.targets(ctx, inv)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			continue
		}

		var subs []*ApexPath
		e.depth++
		for _, t := range targets {
			ids, err := e.expand(ctx, t)
			if err != nil {
				e.depth--
				return nil, err
			}
			for _, id := range ids {
				sub, err := e.Resolve(id)
				if err != nil {
					e.depth--
					return nil, err
				}
				subs = append(subs, sub)
			}
		}
		e.depth--
		if len(subs) == 0 {
			continue
		}

		if err := e.admit(len(frontier)*len(subs), inv.Vertex); err != nil {
			return nil, err
		}
		next := make([]*ApexPath, 0, len(frontier)*len(subs))
		for _, cur := range frontier {
			for _, sub := range subs {
				if err := ctx.Err(); err != nil {
					return nil, fault.Cancelled("path.fork", err)
				}
				f := cur.fork(e.reg.NextID(), inv.ID, sub.ID())
				if err := e.reg.Register(RegistryType, f); err != nil {
					return nil, err
				}
				e.stats.Forks++
				for _, o := range e.observers {
					o.OnFork(cur, sub, inv)
				}
				next = append(next, f)
			}
			e.reg.Deregister(RegistryType, cur.ID())
		}
		frontier = next
	}

	ids := make([]registry.ID, len(frontier))
	for i, f := range frontier {
		ids[i] = f.ID()
	}
	return ids, nil
}

// admit fails fast when n more paths cannot fit in the registry.
func (e *Expander) admit(n int, at interface{ IdentityKey() string }) error {
	if remaining := e.reg.Remaining(RegistryType); int64(n) > remaining {
		return fault.Exhausted("path.expand", fmt.Errorf("%d paths at %s exceed the %d remaining: %w",
			n, at.IdentityKey(), remaining, registry.ErrCapacityReached))
	}
	return nil
}

// invocations returns the method calls made by the visit steps, in path order.
func (e *Expander) invocations(ctx context.Context, steps []Step) ([]*Node, error) {
	var out []*Node
	for _, s := range steps {
		if s.Phase != PhaseVisit {
			continue
		}
		calls, _, err := vcache.Memo(e.cache, invocationsKey(s.Vertex), func() ([]*Node, bool, error) {
			n, err := NodeOf(ctx, e.cache, s.Vertex, BranchNone)
			if err != nil {
				return nil, false, err
			}
			if n.Kind == graph.KindCondition {
				return nil, false, nil
			}
			var found []*Node
			if n.Kind == graph.KindMethodCall {
				found = append(found, n)
			}
			if err := e.collectCalls(ctx, n, &found); err != nil {
				return nil, false, err
			}
			return found, len(found) > 0, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, calls...)
	}
	return out, nil
}

func (e *Expander) collectCalls(ctx context.Context, n *Node, out *[]*Node) error {
	kids, err := ChildNodes(ctx, e.cache, n)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if k.Kind.IsStructural() {
			continue
		}
		if k.Kind == graph.KindMethodCall {
			*out = append(*out, k)
		}
		if err := e.collectCalls(ctx, k, out); err != nil {
			return err
		}
	}
	return nil
}

// targets resolves the methods an invocation may dispatch to. Types named by
// the call site are loaded on demand when the graph has no targets yet.
func (e *Expander) targets(ctx context.Context, inv *Node) ([]graph.VertexID, error) {
	ids, _, err := vcache.Memo(e.cache, targetsKey(inv.ID), func() ([]graph.VertexID, bool, error) {
		p := e.cache.Provider()
		ids, err := p.CallTargets(ctx, inv.ID)
		if err != nil {
			return nil, false, err
		}
		if len(ids) > 0 {
			return ids, true, nil
		}
		names := inv.PropList(graph.PropTargets)
		if len(names) == 0 {
			return nil, false, nil
		}
		for _, name := range names {
			i := strings.LastIndexByte(name, '.')
			if i <= 0 {
				continue
			}
			loaded, err := p.LoadSubgraph(ctx, name[:i])
			if err != nil {
				return nil, false, err
			}
			if loaded {
				e.logger.Debug("type loaded on demand", "type", name[:i], "invocation", inv.ID)
			}
		}
		ids, err = p.CallTargets(ctx, inv.ID)
		if err != nil {
			return nil, false, err
		}
		return ids, len(ids) > 0, nil
	})
	return ids, err
}

// methodRoutes flattens the method body into intra-method routes.
func (e *Expander) methodRoutes(ctx context.Context, m *Node) ([]route, error) {
	kids, err := ChildNodes(ctx, e.cache, m)
	if err != nil {
		return nil, err
	}
	routes := []route{nil}
	for _, k := range kids {
		if k.Kind != graph.KindBlock {
			continue
		}
		body, err := e.blockRoutes(ctx, k)
		if err != nil {
			return nil, err
		}
		if routes, err = e.cross(routes, body, k); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

func (e *Expander) blockRoutes(ctx context.Context, block *Node) ([]route, error) {
	stmts, err := ChildNodes(ctx, e.cache, block)
	if err != nil {
		return nil, err
	}
	routes := []route{nil}
	for _, s := range stmts {
		sr, err := e.stmtRoutes(ctx, s)
		if err != nil {
			return nil, err
		}
		if routes, err = e.cross(routes, sr, s); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

func (e *Expander) stmtRoutes(ctx context.Context, s *Node) ([]route, error) {
	switch {
	case s.Kind == graph.KindBlock:
		return e.blockRoutes(ctx, s)

	case s.Kind == graph.KindIfElse:
		kids, err := ChildNodes(ctx, e.cache, s)
		if err != nil {
			return nil, err
		}
		if len(kids) < 2 || kids[0].Kind != graph.KindCondition {
			return nil, fault.Defect("path.routes", "if/else %d has malformed children", s.ID)
		}
		thenR, err := e.blockRoutes(ctx, kids[1])
		if err != nil {
			return nil, err
		}
		elseR := []route{nil}
		if len(kids) > 2 {
			if elseR, err = e.blockRoutes(ctx, kids[2]); err != nil {
				return nil, err
			}
		}
		enter := Step{Vertex: s.ID, Phase: PhaseEnter}
		exit := Step{Vertex: s.ID, Phase: PhaseExit}
		out := make([]route, 0, len(thenR)+len(elseR))
		for _, r := range thenR {
			out = append(out, slices.Concat(route{enter, {Vertex: kids[0].ID, Branch: BranchTrue}}, r, route{exit}))
		}
		for _, r := range elseR {
			out = append(out, slices.Concat(route{enter, {Vertex: kids[0].ID, Branch: BranchFalse}}, r, route{exit}))
		}
		return out, nil

	case s.Kind.IsLoop():
		kids, err := ChildNodes(ctx, e.cache, s)
		if err != nil {
			return nil, err
		}
		head := route{{Vertex: s.ID, Phase: PhaseEnter}}
		var body *Node
		for _, k := range kids {
			switch k.Kind {
			case graph.KindCondition:
				head = append(head, Step{Vertex: k.ID})
			case graph.KindBlock:
				body = k
			}
		}
		bodyR := []route{nil}
		if body != nil {
			if bodyR, err = e.blockRoutes(ctx, body); err != nil {
				return nil, err
			}
		}
		exit := route{{Vertex: s.ID, Phase: PhaseExit}}
		out := make([]route, len(bodyR))
		for i, r := range bodyR {
			out[i] = slices.Concat(head, r, exit)
		}
		return out, nil

	default:
		return []route{{{Vertex: s.ID}}}, nil
	}
}

// cross appends every suffix to every prefix.
func (e *Expander) cross(prefixes, suffixes []route, at *Node) ([]route, error) {
	if len(suffixes) == 1 && len(suffixes[0]) == 0 {
		return prefixes, nil
	}
	if err := e.admit(len(prefixes)*len(suffixes), at.Vertex); err != nil {
		return nil, err
	}
	out := make([]route, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, slices.Concat(p, s))
		}
	}
	return out, nil
}
