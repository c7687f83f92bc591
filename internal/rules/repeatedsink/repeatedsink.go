// Package repeatedsink flags methods invoked more than once on a path when
// every invocation reaches an expensive sink call, such as a global schema
// describe.
package repeatedsink

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// ID is the rule id.
const ID = "AvoidRepeatedSinkInvocation"

// DefaultSinks are used when the rule's settings name none.
var DefaultSinks = []string{"Schema.getGlobalDescribe", "Schema.describeSObjects"}

// Rule reports a callee invoked a second time on the same path when both the
// earlier and the later invocation reach a sink call before returning.
type Rule struct{}

// New returns the duplicate-invocation rule.
func New() *Rule { return &Rule{} }

// ID implements rules.Rule.
func (r *Rule) ID() string { return ID }

// Description implements rules.Rule.
func (r *Rule) Description() string {
	return "Avoid invoking a method that performs an expensive sink call more than once on the same path"
}

// DefaultSeverity implements rules.Rule.
func (r *Rule) DefaultSeverity() rules.Severity { return rules.SeverityMedium }

// NewVisitor returns a visitor watching the configured sinks.
func (r *Rule) NewVisitor(env rules.Env) walker.Visitor {
	names := env.Settings.Sinks
	if len(names) == 0 {
		names = DefaultSinks
	}
	sinks := make(map[string]struct{}, len(names))
	for _, s := range names {
		sinks[strings.ToLower(s)] = struct{}{}
	}
	return &visitor{env: env, sinks: sinks}
}

// occurrence is one invocation of a callee on the current path.
type occurrence struct {
	key     string
	inv     *path.Node
	reached bool
}

type visitor struct {
	env   rules.Env
	sinks map[string]struct{}

	// per path
	byKey    map[string][]*occurrence
	active   []*occurrence
	reported map[string]struct{}
}

func (v *visitor) Interests() []graph.Kind { return []graph.Kind{graph.KindMethodCall} }

func (v *visitor) StartPath(*walker.Scope) error {
	v.byKey = make(map[string][]*occurrence)
	v.active = v.active[:0]
	v.reported = make(map[string]struct{})
	return nil
}

func (v *visitor) EndPath(*walker.Scope, walker.Outcome) {
	v.active = v.active[:0]
}

// OnFork records the invocation the walker is about to descend into.
func (v *visitor) OnFork(_, sub *path.ApexPath, inv *path.Node) {
	o := &occurrence{key: strings.ToLower(sub.MethodKey), inv: inv}
	v.byKey[o.key] = append(v.byKey[o.key], o)
	v.active = append(v.active, o)
}

func (v *visitor) EnterInvocation(*walker.Scope, *path.Node, *path.ApexPath) error { return nil }

// ExitInvocation decides on the occurrence being left. Only occurrences that
// reached a sink, preceded by an earlier one that also did, are kept.
func (v *visitor) ExitInvocation(s *walker.Scope, inv *path.Node, sub *path.ApexPath) error {
	if len(v.active) == 0 {
		return fault.Defect("repeatedsink.exit", "exit of %s with no recorded invocation", sub.MethodKey)
	}
	o := v.active[len(v.active)-1]
	if o.inv.ID != inv.ID {
		return fault.Defect("repeatedsink.exit", "exit of invocation %d while %d is innermost", inv.ID, o.inv.ID)
	}
	v.active = v.active[:len(v.active)-1]
	if !o.reached {
		return nil
	}
	if _, done := v.reported[o.key]; done {
		return nil
	}
	for _, prev := range v.byKey[o.key] {
		if prev == o {
			break
		}
		if !prev.reached {
			continue
		}
		v.reported[o.key] = struct{}{}
		first := rules.LocationOf(prev.inv.Vertex)
		v.env.Collector.Report(rules.Violation{
			Rule: ID,
			Message: fmt.Sprintf("%s reaches an expensive sink and was already invoked at %s on this path",
				sub.MethodKey, first),
			Severity: v.env.Settings.Severity,
			Entry:    s.Entry.IdentityKey(),
			Source:   first,
			Sink:     rules.LocationOf(o.inv.Vertex),
		})
		break
	}
	return nil
}

// Visit marks every invocation on the call stack as reaching the sink.
func (v *visitor) Visit(_ *walker.Scope, n *path.Node) error {
	if n.Kind != graph.KindMethodCall {
		return fault.Defect("repeatedsink.visit", "unexpected %s vertex %d", n.Kind, n.ID)
	}
	if _, ok := v.sinks[strings.ToLower(n.Name)]; !ok {
		return nil
	}
	for _, o := range v.active {
		o.reached = true
	}
	return nil
}
