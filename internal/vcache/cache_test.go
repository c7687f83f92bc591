package vcache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
)

// countingProvider records every batched Vertices call.
type countingProvider struct {
	*graph.Graph
	batches [][]graph.VertexID
	fail    error
}

func (p *countingProvider) Vertices(ctx context.Context, ids []graph.VertexID) ([]*graph.Vertex, error) {
	p.batches = append(p.batches, append([]graph.VertexID(nil), ids...))
	if p.fail != nil {
		return nil, p.fail
	}
	return p.Graph.Vertices(ctx, ids)
}

func newProvider(t *testing.T, n int) *countingProvider {
	t.Helper()
	g := graph.NewGraph()
	for i := 1; i <= n; i++ {
		_, err := g.AddVertex(&graph.Vertex{Kind: graph.KindLiteral, Name: fmt.Sprintf("v%d", i)})
		require.NoError(t, err)
	}
	return &countingProvider{Graph: g}
}

type materialized struct {
	id   graph.VertexID
	disc vcache.Discriminator
}

func TestGet_PreservesOrderAcrossHitsAndMisses(t *testing.T) {
	p := newProvider(t, 6)
	c := vcache.New(p)
	ctx := context.Background()
	build := func(_ context.Context, v *graph.Vertex, d vcache.Discriminator) (*materialized, error) {
		return &materialized{id: v.ID, disc: d}, nil
	}

	_, err := vcache.Get(ctx, c, []graph.VertexID{2, 5}, vcache.None, build)
	require.NoError(t, err)

	ids := []graph.VertexID{6, 2, 1, 5, 3, 2, 4}
	out, err := vcache.Get(ctx, c, ids, vcache.None, build)
	require.NoError(t, err)
	require.Len(t, out, len(ids))
	for i, m := range out {
		assert.Equal(t, ids[i], m.id, "position %d", i)
	}

	// Second call: a single batch with only the distinct misses, in first-seen order.
	require.Len(t, p.batches, 2)
	assert.Equal(t, []graph.VertexID{6, 1, 3, 4}, p.batches[1])
	assert.Same(t, out[1], out[5], "duplicate ids share one instance")
}

func TestGet_BuildsOncePerDiscriminator(t *testing.T) {
	p := newProvider(t, 3)
	c := vcache.New(p)
	ctx := context.Background()
	calls := map[materialized]int{}
	build := func(_ context.Context, v *graph.Vertex, d vcache.Discriminator) (*materialized, error) {
		calls[materialized{id: v.ID, disc: d}]++
		return &materialized{id: v.ID, disc: d}, nil
	}

	for range 3 {
		_, err := vcache.Get(ctx, c, []graph.VertexID{1, 2, 3}, "true", build)
		require.NoError(t, err)
		_, err = vcache.Get(ctx, c, []graph.VertexID{3, 1}, "false", build)
		require.NoError(t, err)
	}
	for k, n := range calls {
		assert.Equal(t, 1, n, "builder for %+v", k)
	}
	assert.Len(t, calls, 5)

	a, err := vcache.GetOne(ctx, c, 1, "true", build)
	require.NoError(t, err)
	b, err := vcache.GetOne(ctx, c, 1, "false", build)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	st := c.Stats()
	assert.Equal(t, 2, st.Batches)
	assert.Equal(t, 5, st.Misses)
}

func TestGet_ProviderErrorPropagates(t *testing.T) {
	p := newProvider(t, 2)
	boom := errors.New("graph offline")
	p.fail = boom
	c := vcache.New(p)
	build := func(_ context.Context, v *graph.Vertex, _ vcache.Discriminator) (graph.VertexID, error) {
		return v.ID, nil
	}

	_, err := vcache.Get(context.Background(), c, []graph.VertexID{1}, vcache.None, build)
	assert.ErrorIs(t, err, boom)

	p.fail = nil
	out, err := vcache.Get(context.Background(), c, []graph.VertexID{1}, vcache.None, build)
	require.NoError(t, err)
	assert.Equal(t, []graph.VertexID{1}, out)
}

func TestMemo_NoValueSentinel(t *testing.T) {
	c := vcache.New(newProvider(t, 0))
	supplied := 0
	supply := func() ([]graph.VertexID, bool, error) {
		supplied++
		return nil, false, nil
	}

	for range 3 {
		v, found, err := vcache.Memo(c, "Unknown.call", supply)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
	}
	assert.Equal(t, 1, supplied)
	assert.Equal(t, 1, c.Len())
}

func TestMemo_ErrorsAreNotCached(t *testing.T) {
	c := vcache.New(newProvider(t, 0))
	attempts := 0
	supply := func() (int, bool, error) {
		attempts++
		if attempts == 1 {
			return 0, false, errors.New("transient")
		}
		return 42, true, nil
	}

	_, _, err := vcache.Memo(c, 7, supply)
	require.Error(t, err)
	v, found, err := vcache.Memo(c, 7, supply)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, v)

	v, found, err = vcache.Memo(c, 7, supply)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, attempts)
}
