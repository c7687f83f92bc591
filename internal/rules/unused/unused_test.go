package unused_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/rulestest"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/unused"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
)

const model = `
classes:
  - name: Svc
    file: Svc.cls
    methods:
      - name: entry
        line: 1
        body:
          - line: 2
            if:
              condition: "flag"
              then:
                - {line: 3, call: {name: Svc.used, targets: [Svc.used]}}
      - name: used
        line: 10
        body:
          - {line: 11, dml: insert}
      - name: orphan
        line: 20
        body:
          - {line: 21, dml: delete}
  - name: Later
    file: Later.cls
    lazy: true
    methods:
      - {name: never, line: 1, body: [{line: 2, dml: update}]}
`

func keys(vs []*graph.Vertex) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.IdentityKey()
	}
	return out
}

func TestUnusedMethods(t *testing.T) {
	ctx := context.Background()
	h := rulestest.New(t, model)
	h.Run(t, unused.New(), rules.Settings{}, "Svc.entry")

	members, err := h.Usage.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.entry", "svc.used"}, members)

	got, err := unused.UnusedMethods(ctx, h.Graph, h.Usage)
	require.NoError(t, err)
	assert.Equal(t, []string{"Svc.orphan", "Later.never"}, keys(got))
}

func TestMarksAreMonotonic(t *testing.T) {
	ctx := context.Background()
	h := rulestest.New(t, model)
	h.Run(t, unused.New(), rules.Settings{}, "Svc.orphan")
	h.Run(t, unused.New(), rules.Settings{}, "Svc.used")
	h.Run(t, unused.New(), rules.Settings{}, "Svc.used")

	n, err := h.Usage.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := unused.UnusedMethods(ctx, h.Graph, h.Usage)
	require.NoError(t, err)
	assert.Equal(t, []string{"Svc.entry", "Later.never"}, keys(got))
}

func TestCheckRun(t *testing.T) {
	ctx := context.Background()
	h := rulestest.New(t, model)
	h.Run(t, unused.New(), rules.Settings{}, "Svc.entry")

	r := unused.New()
	vs, err := r.CheckRun(ctx, h.Graph, h.Usage, rules.Resolve(r, rules.Settings{}))
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, unused.ID, vs[0].Rule)
	assert.Equal(t, rules.SeverityLow, vs[0].Severity)
	assert.Equal(t, "Svc.orphan", vs[0].Entry)
	assert.Equal(t, 20, vs[0].Source.Line)
	assert.Equal(t, "method Svc.orphan is never invoked from any analyzed entry point", vs[0].Message)
}

func TestTrackerFlushIsBuffered(t *testing.T) {
	ctx := context.Background()
	set := usage.NewMemorySet()
	tr := unused.NewTracker(set)
	require.NoError(t, tr.Flush(ctx))
	n, err := set.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
