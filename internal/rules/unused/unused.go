// Package unused reports methods that no analyzed path ever reached.
package unused

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// ID is the rule id.
const ID = "UnusedMethod"

// Rule marks every method a path starts from or calls into as used, and
// after the run reports the graph methods never marked.
type Rule struct{}

// New returns the unused-method rule.
func New() *Rule { return &Rule{} }

// ID implements rules.Rule.
func (r *Rule) ID() string { return ID }

// Description implements rules.Rule.
func (r *Rule) Description() string {
	return "Methods that are never reached from any entry point can be removed"
}

// DefaultSeverity implements rules.Rule.
func (r *Rule) DefaultSeverity() rules.Severity { return rules.SeverityLow }

// NewVisitor returns a Tracker on the run's usage set.
func (r *Rule) NewVisitor(env rules.Env) walker.Visitor {
	return NewTracker(env.Usage)
}

// CheckRun reports every unused method.
func (r *Rule) CheckRun(ctx context.Context, p graph.Provider, set usage.Set, s rules.Settings) ([]rules.Violation, error) {
	methods, err := UnusedMethods(ctx, p, set)
	if err != nil {
		return nil, err
	}
	out := make([]rules.Violation, len(methods))
	for i, m := range methods {
		loc := rules.LocationOf(m)
		out[i] = rules.Violation{
			Rule:     ID,
			Message:  fmt.Sprintf("method %s is never invoked from any analyzed entry point", m.IdentityKey()),
			Severity: s.Severity,
			Entry:    m.IdentityKey(),
			Source:   loc,
			Sink:     loc,
		}
	}
	return out, nil
}

// Tracker buffers the methods a worker's paths reach and writes them to the
// shared usage set on Flush.
type Tracker struct {
	set  usage.Set
	keys map[string]struct{}
}

// NewTracker creates a tracker writing to set.
func NewTracker(set usage.Set) *Tracker {
	return &Tracker{set: set, keys: make(map[string]struct{})}
}

// Interests implements walker.Visitor; the tracker only listens to path events.
func (t *Tracker) Interests() []graph.Kind { return nil }

// Visit implements walker.Visitor.
func (t *Tracker) Visit(*walker.Scope, *path.Node) error { return nil }

// StartPath marks the method the path originates from.
func (t *Tracker) StartPath(s *walker.Scope) error {
	t.keys[s.Root.MethodKey] = struct{}{}
	return nil
}

// EndPath implements walker.PathListener.
func (t *Tracker) EndPath(*walker.Scope, walker.Outcome) {}

// OnFork marks the callee the walk descends into.
func (t *Tracker) OnFork(_, sub *path.ApexPath, _ *path.Node) {
	t.keys[sub.MethodKey] = struct{}{}
}

// Flush writes the buffered marks to the shared set.
func (t *Tracker) Flush(ctx context.Context) error {
	if len(t.keys) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.keys))
	for k := range t.keys {
		keys = append(keys, k)
	}
	if err := t.set.Mark(ctx, keys...); err != nil {
		return err
	}
	clear(t.keys)
	return nil
}

// UnusedMethods returns the provider's methods whose identity key was never
// marked, in id order. Providers able to load every deferred type do so
// first, so methods of never-loaded types are reported too.
func UnusedMethods(ctx context.Context, p graph.Provider, set usage.Set) ([]*graph.Vertex, error) {
	if l, ok := p.(interface{ LoadAll(context.Context) error }); ok {
		if err := l.LoadAll(ctx); err != nil {
			return nil, err
		}
	}
	ids, err := p.Methods(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vs, err := p.Vertices(ctx, ids)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(vs))
	for i, v := range vs {
		keys[i] = v.IdentityKey()
	}
	marked, err := set.Marked(ctx, keys...)
	if err != nil {
		return nil, err
	}
	var out []*graph.Vertex
	for i, v := range vs {
		if !marked[i] {
			out = append(out, v)
		}
	}
	return out, nil
}
