// Package dbloop flags database operations that run inside a loop.
package dbloop

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
const ID = "AvoidDatabaseOperationInLoop"

// databaseMethods are the built-in methods that hit the database.
var databaseMethods = []string{
	"Database.insert",
	"Database.update",
	"Database.upsert",
	"Database.delete",
	"Database.undelete",
	"Database.merge",
	"Database.query",
	"Database.queryWithBinds",
	"Database.countQuery",
	"Database.countQueryWithBinds",
	"Database.getQueryLocator",
	"Database.emptyRecycleBin",
	"Database.convertLead",
	"Search.query",
}

// Rule reports every DML statement, SOQL or SOSL query and database method
// call that runs while a loop is open, once per sink and path.
type Rule struct{}

// New returns the loop-sink rule.
func New() *Rule { return &Rule{} }

// ID implements rules.Rule.
func (r *Rule) ID() string { return ID }

// Description implements rules.Rule.
func (r *Rule) Description() string {
	return "Database operations inside loops exhaust governor limits; move them outside the loop"
}

// DefaultSeverity implements rules.Rule.
func (r *Rule) DefaultSeverity() rules.Severity { return rules.SeverityHigh }

// NewVisitor returns a visitor tracking the database calls of one worker.
func (r *Rule) NewVisitor(env rules.Env) walker.Visitor {
	methods := make(map[string]struct{}, len(databaseMethods)+len(env.Settings.Sinks))
	for _, m := range databaseMethods {
		methods[strings.ToLower(m)] = struct{}{}
	}
	for _, m := range env.Settings.Sinks {
		methods[strings.ToLower(m)] = struct{}{}
	}
	return &visitor{env: env, methods: methods, seen: make(map[graph.VertexID]struct{})}
}

type visitor struct {
	env     rules.Env
	methods map[string]struct{}
	seen    map[graph.VertexID]struct{}
}

func (v *visitor) Interests() []graph.Kind {
	return append([]graph.Kind{graph.KindSoql, graph.KindSosl, graph.KindMethodCall}, graph.DMLKinds...)
}

func (v *visitor) StartPath(*walker.Scope) error {
	clear(v.seen)
	return nil
}

func (v *visitor) EndPath(*walker.Scope, walker.Outcome) {}

func (v *visitor) Visit(s *walker.Scope, n *path.Node) error {
	var what string
	switch {
	case n.Kind.IsDML():
		what = "DML " + strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(string(n.Kind), "Dml"), "Statement"))
	case n.Kind == graph.KindSoql:
		what = "SOQL query"
	case n.Kind == graph.KindSosl:
		what = "SOSL query"
	case n.Kind == graph.KindMethodCall:
		if _, ok := v.methods[strings.ToLower(n.Name)]; !ok {
			return nil
		}
		what = n.Name + " call"
	default:
		return fault.Defect("dbloop.visit", "unexpected %s vertex %d", n.Kind, n.ID)
	}

	loop, ok := s.Boundaries.Innermost()
	if !ok {
		return nil
	}
	if _, dup := v.seen[n.ID]; dup {
		return nil
	}
	v.seen[n.ID] = struct{}{}

	loopAt := rules.LocationOf(loop.Vertex)
	v.env.Collector.Report(rules.Violation{
		Rule:     ID,
		Message:  fmt.Sprintf("%s runs inside the loop at %s", what, loopAt),
		Severity: v.env.Settings.Severity,
		Entry:    s.Entry.IdentityKey(),
		Source:   loopAt,
		Sink:     rules.LocationOf(n.Vertex),
	})
	return nil
}
