package symbolic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/condition"
	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/symbolic"
)

var _ condition.EvalContext = (*symbolic.Table)(nil)

func TestTable_ForkIsolation(t *testing.T) {
	base := symbolic.NewTable()
	base.Declare("limit", symbolic.Of(10.0))
	base.PushFrame()
	base.Declare("i", symbolic.Of(0.0))

	left := base.Fork()
	right := base.Fork()

	left.Assign("limit", symbolic.Of(1.0))
	right.Declare("extra", symbolic.Of("r"))
	base.Assign("i", symbolic.Of(5.0))

	got := func(tb *symbolic.Table, name string) any {
		v, ok := tb.Get(name)
		if !ok {
			return "<missing>"
		}
		x, _ := v.Get()
		return x
	}
	assert.Equal(t, 10.0, got(base, "limit"))
	assert.Equal(t, 1.0, got(left, "limit"))
	assert.Equal(t, 10.0, got(right, "limit"))

	assert.Equal(t, 5.0, got(base, "i"))
	assert.Equal(t, 0.0, got(left, "i"))
	assert.Equal(t, "r", got(right, "extra"))
	assert.Equal(t, "<missing>", got(left, "extra"))
}

func TestTable_Scopes(t *testing.T) {
	tb := symbolic.NewTable()
	tb.Declare("Acct", symbolic.Of("outer"))
	tb.PushFrame()
	tb.Declare("acct", symbolic.Of("inner"))

	v, ok := tb.Get("ACCT")
	require.True(t, ok)
	assert.Equal(t, "inner", v.String())

	require.NoError(t, tb.PopFrame())
	v, _ = tb.Get("acct")
	assert.Equal(t, "outer", v.String())

	err := tb.PopFrame()
	assert.True(t, fault.Is(err, fault.KindDefect))
	assert.Equal(t, 1, tb.Depth())
}

func TestTable_AssignUndeclaredGoesToRoot(t *testing.T) {
	tb := symbolic.NewTable()
	tb.PushFrame()
	tb.Assign("counter", symbolic.Of(1.0))
	require.NoError(t, tb.PopFrame())

	v, ok := tb.Get("counter")
	require.True(t, ok)
	assert.Equal(t, "1", v.String())
}

func TestTable_Resolve(t *testing.T) {
	tb := symbolic.NewTable()
	tb.Declare("n", symbolic.Of(3.0))
	tb.Declare("unknown", symbolic.Indeterminate())
	tb.Declare("acct", symbolic.Of(map[string]any{"Type": "Partner"}))
	tb.Declare("nothing", symbolic.Null())

	tests := []struct {
		path   []string
		want   any
		wantOK bool
	}{
		{[]string{"n"}, 3.0, true},
		{[]string{"unknown"}, nil, false},
		{[]string{"undeclared"}, nil, false},
		{[]string{"acct", "type"}, "Partner", true},
		{[]string{"acct", "Missing"}, nil, false},
		{[]string{"n", "field"}, nil, false},
		{[]string{"nothing"}, nil, true},
	}
	for _, tt := range tests {
		got, ok := tb.Resolve(tt.path)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.path)
		assert.Equal(t, tt.want, got, "%v", tt.path)
	}
}

func TestFromLiteral(t *testing.T) {
	lit := func(typ, val string) *graph.Vertex {
		return &graph.Vertex{ID: 9, Kind: graph.KindLiteral, Properties: map[string]string{
			graph.PropValueType: typ, graph.PropValue: val,
		}}
	}
	n := symbolic.FromLiteral(lit("number", "10"))
	x, ok := n.Get()
	assert.True(t, ok)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, graph.VertexID(9), n.Source)

	b, _ := symbolic.FromLiteral(lit("boolean", "true")).Get()
	assert.Equal(t, true, b)

	assert.Equal(t, "null", symbolic.FromLiteral(lit("null", "")).String())
	assert.False(t, symbolic.FromLiteral(lit("number", "ten")).Known())
	assert.Equal(t, "hi", symbolic.FromLiteral(lit("string", "hi")).String())
}
