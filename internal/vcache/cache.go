// Package vcache is the per-worker materialized vertex cache.
//
// A Cache is owned by exactly one worker and is not safe for concurrent use.
// It sits in front of a shared, read-only graph.Provider and guarantees that a
// given (vertex id, discriminator, materialized type) triple is built at most
// once for the worker's lifetime.
package vcache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

// Discriminator distinguishes semantically different materializations of the
// same vertex id, e.g. a condition seen on its true branch versus its false one.
type Discriminator string

// None is the discriminator for vertices that have a single materialization.
const None Discriminator = ""

// Builder turns a raw vertex into its materialized form.
type Builder[T any] func(ctx context.Context, v *graph.Vertex, d Discriminator) (T, error)

type vertexKey struct {
	id   graph.VertexID
	disc Discriminator
	typ  reflect.Type
}

type memoKey struct {
	key any
	typ reflect.Type
}

// noValue marks a memoized lookup that legitimately resolved to nothing.
type noValue struct{}

var absent = noValue{}

// Stats counts cache activity since the last Reset.
type Stats struct {
	Hits    int
	Misses  int
	Batches int
}

// Cache memoizes materialized vertices and arbitrary derived values.
type Cache struct {
	provider graph.Provider
	vertices map[vertexKey]any
	memo     map[memoKey]any
	stats    Stats
}

// New creates an empty cache over provider.
func New(provider graph.Provider) *Cache {
	return &Cache{
		provider: provider,
		vertices: make(map[vertexKey]any),
		memo:     make(map[memoKey]any),
	}
}

// Provider returns the graph the cache reads from.
func (c *Cache) Provider() graph.Provider {
	return c.provider
}

// Stats returns the activity counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Len returns the number of cached entries of both kinds.
func (c *Cache) Len() int {
	return len(c.vertices) + len(c.memo)
}

// Reset drops every cached entry and zeroes the counters.
func (c *Cache) Reset() {
	clear(c.vertices)
	clear(c.memo)
	c.stats = Stats{}
}

// Get returns the materialized form of each id, in the order given.
// Hits are served from the cache. All distinct misses are fetched with a single
// Provider.Vertices call, built once each, and written back. Provider and
// builder errors are returned unchanged and nothing from the failed batch is
// cached.
func Get[T any](ctx context.Context, c *Cache, ids []graph.VertexID, d Discriminator, build Builder[T]) ([]T, error) {
	typ := reflect.TypeFor[T]()
	out := make([]T, len(ids))

	var missIDs []graph.VertexID
	positions := make(map[graph.VertexID][]int)
	for i, id := range ids {
		if cached, ok := c.vertices[vertexKey{id: id, disc: d, typ: typ}]; ok {
			c.stats.Hits++
			out[i] = cached.(T)
			continue
		}
		if _, seen := positions[id]; !seen {
			missIDs = append(missIDs, id)
		}
		positions[id] = append(positions[id], i)
	}
	if len(missIDs) == 0 {
		return out, nil
	}

	c.stats.Misses += len(missIDs)
	c.stats.Batches++
	vs, err := c.provider.Vertices(ctx, missIDs)
	if err != nil {
		return nil, err
	}
	if len(vs) != len(missIDs) {
		return nil, fmt.Errorf("provider returned %d vertices for %d ids", len(vs), len(missIDs))
	}

	built := make([]T, len(vs))
	for i, v := range vs {
		m, err := build(ctx, v, d)
		if err != nil {
			return nil, err
		}
		built[i] = m
	}
	for i, id := range missIDs {
		c.vertices[vertexKey{id: id, disc: d, typ: typ}] = built[i]
		for _, pos := range positions[id] {
			out[pos] = built[i]
		}
	}
	return out, nil
}

// GetOne is Get for a single id.
func GetOne[T any](ctx context.Context, c *Cache, id graph.VertexID, d Discriminator, build Builder[T]) (T, error) {
	out, err := Get(ctx, c, []graph.VertexID{id}, d, build)
	if err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// Memo returns the value cached under key, calling supply on a miss.
// supply reports found=false when the key legitimately has no value; that
// outcome is cached too, so supply runs at most once per key. Errors are
// returned and not cached. Suppliers may load graph subsets on demand.
func Memo[K comparable, V any](c *Cache, key K, supply func() (V, bool, error)) (V, bool, error) {
	mk := memoKey{key: key, typ: reflect.TypeFor[V]()}
	if cached, ok := c.memo[mk]; ok {
		c.stats.Hits++
		if _, none := cached.(noValue); none {
			var zero V
			return zero, false, nil
		}
		return cached.(V), true, nil
	}
	c.stats.Misses++
	v, found, err := supply()
	if err != nil {
		var zero V
		return zero, false, err
	}
	if !found {
		c.memo[mk] = absent
		var zero V
		return zero, false, nil
	}
	c.memo[mk] = v
	return v, true, nil
}
