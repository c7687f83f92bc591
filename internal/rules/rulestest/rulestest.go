// Package rulestest runs a single rule over a YAML source model for tests.
package rulestest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// Harness holds a graph and the usage set shared by its runs.
type Harness struct {
	Graph *graph.Graph
	Usage usage.Set
}

// New builds the graph for model.
func New(t testing.TB, model string) *Harness {
	t.Helper()
	m, err := graph.ParseModel([]byte(model))
	require.NoError(t, err)
	g, err := graph.Build(m)
	require.NoError(t, err)
	return &Harness{Graph: g, Usage: usage.NewMemorySet()}
}

// Result is what one Run produced.
type Result struct {
	Violations []rules.Violation
	Outcomes   []walker.Outcome
}

// Run expands entry, walks every path with the rule's visitor and returns the
// committed violations.
func (h *Harness) Run(t testing.TB, r rules.Rule, s rules.Settings, entry string) Result {
	t.Helper()
	ctx := context.Background()
	m, ok := h.Graph.MethodByKey(entry)
	require.True(t, ok, "no method %s", entry)

	reg, err := registry.New(registry.Budget{MaxHeapBytes: 10_000, CapacityFraction: 1},
		registry.TypeSpec{Name: path.RegistryType, AverageSizeBytes: 1})
	require.NoError(t, err)
	c := vcache.New(h.Graph)
	exp := path.NewExpander(c, reg, nil)
	paths, err := exp.Expand(ctx, m.ID)
	require.NoError(t, err)

	collector := rules.NewCollector()
	v := r.NewVisitor(rules.Env{Settings: rules.Resolve(r, s), Collector: collector, Usage: h.Usage})
	w := walker.New(c, exp, nil, v, collector)

	var res Result
	for _, p := range paths {
		res.Outcomes = append(res.Outcomes, w.Walk(ctx, m, p))
	}
	if f, ok := v.(rules.Flusher); ok {
		require.NoError(t, f.Flush(ctx))
	}
	res.Violations = collector.Violations()
	return res
}
