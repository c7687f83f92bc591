package walker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

const model = `
classes:
  - name: W
    methods:
      - name: inLoop
        body:
          - {line: 1, dml: insert}
          - line: 2
            foreach:
              variable: acct
              body:
                - line: 3
                  while:
                    condition: "more"
                    body:
                      - {line: 4, soql: "SELECT Id FROM Account"}
      - name: pruned
        body:
          - {line: 10, declare: {name: x, value: {literal: 1}}}
          - line: 11
            if:
              condition: "x == 2"
              then:
                - {line: 12, dml: delete}
              else:
                - {line: 14, dml: update}
      - name: caller
        body:
          - {line: 20, call: {name: W.callee, targets: [W.callee], args: [{literal: 5}]}}
      - name: callee
        parameters: [n]
        body:
          - line: 31
            if:
              condition: "n > 3"
              then:
                - {line: 32, soql: "SELECT Id FROM Contact"}
      - name: early
        body:
          - line: 40
            if:
              condition: "flag"
              then:
                - {line: 41, return: {nil: true}}
          - line: 43
            for:
              condition: "i < 3"
              body:
                - {line: 44, dml: insert}
`

type harness struct {
	g     *graph.Graph
	cache *vcache.Cache
	exp   *path.Expander
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m, err := graph.ParseModel([]byte(model))
	require.NoError(t, err)
	g, err := graph.Build(m)
	require.NoError(t, err)
	reg, err := registry.New(registry.Budget{MaxHeapBytes: 1000, CapacityFraction: 1},
		registry.TypeSpec{Name: path.RegistryType, AverageSizeBytes: 1})
	require.NoError(t, err)
	c := vcache.New(g)
	return &harness{g: g, cache: c, exp: path.NewExpander(c, reg, nil)}
}

func (h *harness) paths(t *testing.T, key string) (*graph.Vertex, []*path.ApexPath) {
	t.Helper()
	m, ok := h.g.MethodByKey(key)
	require.True(t, ok, key)
	ps, err := h.exp.Expand(context.Background(), m.ID)
	require.NoError(t, err)
	return m, ps
}

// recorder notes every vertex it sees with the loop depth and call depth at the time.
type recorder struct {
	seen   []string
	depths []int
	calls  []int
	forks  int
	enters int
	exits  int
	starts int
	ends   []walker.Outcome
	fail   error
}

func (r *recorder) Interests() []graph.Kind {
	return append([]graph.Kind{graph.KindSoql, graph.KindMethodCall}, graph.DMLKinds...)
}

func (r *recorder) Visit(s *walker.Scope, n *path.Node) error {
	if r.fail != nil {
		return r.fail
	}
	r.seen = append(r.seen, string(n.Kind))
	r.depths = append(r.depths, s.Boundaries.Len())
	r.calls = append(r.calls, s.CallDepth())
	return nil
}

func (r *recorder) StartPath(*walker.Scope) error { r.starts++; return nil }

func (r *recorder) EndPath(_ *walker.Scope, o walker.Outcome) { r.ends = append(r.ends, o) }

func (r *recorder) OnFork(_, _ *path.ApexPath, _ *path.Node) { r.forks++ }

func (r *recorder) EnterInvocation(*walker.Scope, *path.Node, *path.ApexPath) error {
	r.enters++
	return nil
}

func (r *recorder) ExitInvocation(*walker.Scope, *path.Node, *path.ApexPath) error {
	r.exits++
	return nil
}

func TestWalk_BoundaryDepthFollowsNesting(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.inLoop")
	require.Len(t, ps, 1)

	rec := &recorder{}
	w := walker.New(h.cache, h.exp, nil, rec)
	out := w.Walk(context.Background(), entry, ps[0])

	require.Equal(t, walker.Completed, out.State, "%v", out.Err)
	assert.Equal(t, []string{string(graph.KindDmlInsert), string(graph.KindSoql)}, rec.seen)
	assert.Equal(t, []int{0, 2}, rec.depths)
	assert.Equal(t, 1, rec.starts)
	require.Len(t, rec.ends, 1)
	assert.Equal(t, walker.Completed, rec.ends[0].State)
}

func TestWalk_ContradictedBranchIsInfeasible(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.pruned")
	require.Len(t, ps, 2)

	rec := &recorder{}
	w := walker.New(h.cache, h.exp, nil, rec)

	thenOut := w.Walk(context.Background(), entry, ps[0])
	assert.Equal(t, walker.Aborted, thenOut.State)
	assert.Equal(t, walker.ReasonInfeasible, thenOut.Reason)

	elseOut := w.Walk(context.Background(), entry, ps[1])
	assert.Equal(t, walker.Completed, elseOut.State)
	assert.Equal(t, []string{string(graph.KindDmlUpdate)}, rec.seen)
}

func TestWalk_CalleeSeesBoundArguments(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.caller")
	require.Len(t, ps, 2)

	rec := &recorder{}
	w := walker.New(h.cache, h.exp, nil, rec)
	var states []walker.Reason
	for _, p := range ps {
		states = append(states, w.Walk(context.Background(), entry, p).Reason)
	}
	// n = 5: the true branch runs, the false branch cannot.
	assert.Equal(t, []walker.Reason{walker.ReasonNone, walker.ReasonInfeasible}, states)
	assert.Equal(t, 2, rec.forks)
	assert.Equal(t, 2, rec.enters)
	assert.Equal(t, 1, rec.exits, "the infeasible callee never exits")

	// method call seen at depth 0, then the query inside the callee at depth 1.
	assert.Equal(t, []string{string(graph.KindMethodCall), string(graph.KindSoql), string(graph.KindMethodCall)}, rec.seen)
	assert.Equal(t, []int{0, 1, 0}, rec.calls)
}

func TestWalk_EarlyReturnSkipsRest(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.early")
	require.Len(t, ps, 2)

	rec := &recorder{}
	w := walker.New(h.cache, h.exp, nil, rec)
	returned := w.Walk(context.Background(), entry, ps[0])
	require.Equal(t, walker.Completed, returned.State, "%v", returned.Err)
	assert.Empty(t, rec.seen)

	through := w.Walk(context.Background(), entry, ps[1])
	require.Equal(t, walker.Completed, through.State)
	assert.Equal(t, []int{1}, rec.depths)
}

func TestWalk_Cancelled(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.inLoop")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	out := walker.New(h.cache, h.exp, nil, rec).Walk(ctx, entry, ps[0])
	assert.Equal(t, walker.Aborted, out.State)
	assert.Equal(t, walker.ReasonCancelled, out.Reason)
	assert.True(t, fault.Is(out.Err, fault.KindCancelled))
	assert.Empty(t, rec.seen)
}

func TestWalk_VisitorErrorIsDefect(t *testing.T) {
	h := newHarness(t)
	entry, ps := h.paths(t, "W.inLoop")
	boom := errors.New("wrong shape")

	rec := &recorder{fail: boom}
	out := walker.New(h.cache, h.exp, nil, rec).Walk(context.Background(), entry, ps[0])
	assert.Equal(t, walker.ReasonDefect, out.Reason)
	assert.ErrorIs(t, out.Err, boom)
	require.Len(t, rec.ends, 1)
}

func TestBoundaries_MismatchedPop(t *testing.T) {
	b := &walker.Boundaries{}
	outer := &path.Node{Vertex: &graph.Vertex{ID: 1, Kind: graph.KindForLoop}}
	inner := &path.Node{Vertex: &graph.Vertex{ID: 2, Kind: graph.KindWhileLoop}}
	b.Push(outer)
	b.Push(inner)

	assert.True(t, fault.Is(b.Pop(outer), fault.KindDefect))
	require.NoError(t, b.Pop(inner))
	top, ok := b.Innermost()
	require.True(t, ok)
	assert.Equal(t, graph.VertexID(1), top.ID)
	require.NoError(t, b.Pop(outer))
	assert.False(t, b.InLoop())
	assert.True(t, fault.Is(b.Pop(outer), fault.KindDefect))
}
