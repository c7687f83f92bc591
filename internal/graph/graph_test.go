package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

const sampleModel = `
classes:
  - name: AccountService
    file: AccountService.cls
    methods:
      - name: load
        line: 3
        annotations: [AuraEnabled]
        body:
          - line: 4
            declare: {name: limit, type: Integer, value: {literal: 10}}
          - line: 5
            for:
              variable: i
              condition: "i < limit"
              body:
                - line: 6
                  soql: "SELECT Id FROM Account"
          - line: 8
            call: {name: Helper.touch, targets: [Helper.touch]}
          - line: 9
            if:
              condition: "limit == 10"
              then:
                - {line: 10, dml: insert}
              else:
                - {line: 12, return: {nil: true}}
  - name: Helper
    file: Helper.cls
    lazy: true
    methods:
      - name: touch
        line: 2
        body:
          - {line: 3, dml: update}
`

func buildSample(t *testing.T) *graph.Graph {
	t.Helper()
	m, err := graph.ParseModel([]byte(sampleModel))
	require.NoError(t, err)
	g, err := graph.Build(m)
	require.NoError(t, err)
	return g
}

func TestBuild_MethodShape(t *testing.T) {
	g := buildSample(t)
	ctx := context.Background()

	load, ok := g.MethodByKey("AccountService.load")
	require.True(t, ok)
	assert.True(t, load.HasAnnotation("auraenabled"))
	assert.Equal(t, "AccountService.cls", load.FileName)

	kids, err := g.Children(ctx, load.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	body := g.Vertex(kids[0])
	assert.Equal(t, graph.KindBlock, body.Kind)

	stmts, err := g.Children(ctx, body.ID)
	require.NoError(t, err)
	vs, err := g.Vertices(ctx, stmts)
	require.NoError(t, err)
	kinds := make([]graph.Kind, len(vs))
	for i, v := range vs {
		kinds[i] = v.Kind
	}
	assert.Equal(t, []graph.Kind{
		graph.KindVariableDeclaration,
		graph.KindForLoop,
		graph.KindExpressionStatement,
		graph.KindIfElse,
	}, kinds)

	loopKids, err := g.Children(ctx, vs[1].ID)
	require.NoError(t, err)
	require.Len(t, loopKids, 2)
	cond := g.Vertex(loopKids[0])
	assert.Equal(t, graph.KindCondition, cond.Kind)
	assert.Equal(t, "i < limit", cond.Prop(graph.PropExpression))
	assert.Equal(t, "i", vs[1].Prop(graph.PropVariable))
}

func TestGraph_LazyTypeLinksOnLoad(t *testing.T) {
	g := buildSample(t)
	ctx := context.Background()

	_, ok := g.MethodByKey("Helper.touch")
	assert.False(t, ok, "lazy class must not be built up front")

	var call graph.VertexID
	err := g.Each(func(v *graph.Vertex, _, _ []graph.VertexID) error {
		if v.Kind == graph.KindMethodCall {
			call = v.ID
		}
		return nil
	})
	require.NoError(t, err)
	require.NotZero(t, call)

	targets, err := g.CallTargets(ctx, call)
	require.NoError(t, err)
	assert.Empty(t, targets)

	loaded, err := g.LoadSubgraph(ctx, "Helper")
	require.NoError(t, err)
	assert.True(t, loaded)

	again, err := g.LoadSubgraph(ctx, "Helper")
	require.NoError(t, err)
	assert.False(t, again, "a type loads at most once")

	touch, ok := g.MethodByKey("Helper.touch")
	require.True(t, ok)
	targets, err = g.CallTargets(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, []graph.VertexID{touch.ID}, targets)
}

func TestGraph_VerticesOrderAndMissing(t *testing.T) {
	g := buildSample(t)
	ctx := context.Background()

	methods, err := g.Methods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 1)

	ids := []graph.VertexID{3, 1, 2}
	vs, err := g.Vertices(ctx, ids)
	require.NoError(t, err)
	for i, v := range vs {
		assert.Equal(t, ids[i], v.ID)
	}

	_, err = g.Vertices(ctx, []graph.VertexID{1, 9999})
	assert.True(t, errors.Is(err, graph.ErrVertexNotFound))
}

func TestGraph_DuplicateVertex(t *testing.T) {
	g := graph.NewGraph()
	_, err := g.AddVertex(&graph.Vertex{ID: 7, Kind: graph.KindBlock})
	require.NoError(t, err)
	_, err = g.AddVertex(&graph.Vertex{ID: 7, Kind: graph.KindBlock})
	assert.ErrorIs(t, err, graph.ErrDuplicateVertex)

	id, err := g.AddVertex(&graph.Vertex{Kind: graph.KindBlock})
	require.NoError(t, err)
	assert.Equal(t, graph.VertexID(8), id)
}

func TestModel_Validate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate class",
			yaml: "classes:\n  - name: A\n  - name: A\n",
			want: `duplicate class "A"`,
		},
		{
			name: "two statement kinds",
			yaml: "classes:\n  - name: A\n    methods:\n      - name: m\n        body:\n          - {dml: insert, soql: \"SELECT Id FROM A\"}\n",
			want: "exactly one statement kind",
		},
		{
			name: "unknown dml",
			yaml: "classes:\n  - name: A\n    methods:\n      - name: m\n        body:\n          - {dml: truncate}\n",
			want: `unknown dml operation "truncate"`,
		},
		{
			name: "missing method name",
			yaml: "classes:\n  - name: A\n    methods:\n      - line: 1\n",
			want: "name is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := graph.ParseModel([]byte(tt.yaml))
			require.NoError(t, err)
			err = m.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrInvalidModel)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_ReturnForms(t *testing.T) {
	m, err := graph.ParseModel([]byte(`
classes:
  - name: R
    methods:
      - name: none
        body:
          - {line: 2, return: {nil: true}}
      - name: void
        body:
          - {line: 5, return: {}}
`))
	require.NoError(t, err)
	g, err := graph.Build(m)
	require.NoError(t, err)
	ctx := context.Background()

	returned := func(key string) []graph.VertexID {
		method, ok := g.MethodByKey(key)
		require.True(t, ok, key)
		body, err := g.Children(ctx, method.ID)
		require.NoError(t, err)
		require.Len(t, body, 1)
		stmts, err := g.Children(ctx, body[0])
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		ret := g.Vertex(stmts[0])
		require.Equal(t, graph.KindReturn, ret.Kind)
		kids, err := g.Children(ctx, ret.ID)
		require.NoError(t, err)
		return kids
	}

	value := returned("R.none")
	require.Len(t, value, 1)
	lit := g.Vertex(value[0])
	assert.Equal(t, graph.KindLiteral, lit.Kind)
	assert.Equal(t, "null", lit.Prop(graph.PropValueType))

	assert.Empty(t, returned("R.void"))
}
