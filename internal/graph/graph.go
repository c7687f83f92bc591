package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Graph holds vertices and their parent→children adjacency list in memory.
// It is read-only once built, except for deferred types which LoadSubgraph
// materializes on first use; all access is guarded so workers can share it.
type Graph struct {
	mu       sync.RWMutex
	vertices map[VertexID]*Vertex
	children map[VertexID][]VertexID // parent id → ordered children
	parents  map[VertexID]VertexID
	calls    map[VertexID][]VertexID // invocation id → target method ids
	methods  map[string]VertexID     // identity key → method id
	pending  map[string][]VertexID   // unresolved "Type.method" → invocations
	deferred map[string]*deferredType
	nextID   VertexID
}

// deferredType loads at most once; concurrent callers wait for the first.
type deferredType struct {
	once sync.Once
	load func(*Graph) error
	err  error
}

// NewGraph allocates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		vertices: make(map[VertexID]*Vertex),
		children: make(map[VertexID][]VertexID),
		parents:  make(map[VertexID]VertexID),
		calls:    make(map[VertexID][]VertexID),
		methods:  make(map[string]VertexID),
		pending:  make(map[string][]VertexID),
		deferred: make(map[string]*deferredType),
	}
}

// AddVertex registers v. A zero ID is replaced by the next free id.
func (g *Graph) AddVertex(v *Vertex) (VertexID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addVertexLocked(v)
}

func (g *Graph) addVertexLocked(v *Vertex) (VertexID, error) {
	if v.ID == 0 {
		g.nextID++
		v.ID = g.nextID
	} else if v.ID > g.nextID {
		g.nextID = v.ID
	}
	if _, exists := g.vertices[v.ID]; exists {
		return 0, fmt.Errorf("add vertex %d: %w", v.ID, ErrDuplicateVertex)
	}
	g.vertices[v.ID] = v
	if v.Kind == KindMethod {
		g.methods[v.IdentityKey()] = v.ID
	}
	return v.ID, nil
}

// AddChild records that child is the next ordered successor of parent.
func (g *Graph) AddChild(parent, child VertexID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = parent
}

// AddCallTarget records that invocation may dispatch to method.
func (g *Graph) AddCallTarget(invocation, method VertexID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCallTargetLocked(invocation, method)
}

func (g *Graph) addCallTargetLocked(invocation, method VertexID) {
	if slices.Contains(g.calls[invocation], method) {
		return
	}
	g.calls[invocation] = append(g.calls[invocation], method)
}

// AddPendingCall records a call target by name. It is linked as soon as a
// method with that identity key exists (now, or after a deferred type loads).
func (g *Graph) AddPendingCall(invocation VertexID, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.methods[target]; ok {
		g.addCallTargetLocked(invocation, id)
		return
	}
	g.pending[target] = append(g.pending[target], invocation)
}

// Defer registers a loader for a type that is materialized on demand.
func (g *Graph) Defer(definingType string, load func(*Graph) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deferred[definingType] = &deferredType{load: load}
}

// Vertex returns a vertex by id (nil if not found).
func (g *Graph) Vertex(id VertexID) *Vertex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.vertices[id]
}

// Parent returns the parent of a vertex.
func (g *Graph) Parent(id VertexID) (VertexID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.parents[id]
	return p, ok
}

// MethodByKey returns the method vertex with the given identity key.
func (g *Graph) MethodByKey(key string) (*Vertex, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.methods[key]
	if !ok {
		return nil, false
	}
	return g.vertices[id], true
}

// VertexCount returns the total number of loaded vertices.
func (g *Graph) VertexCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vertices)
}

// Each calls fn for every loaded vertex in id order.
func (g *Graph) Each(fn func(v *Vertex, children, targets []VertexID) error) error {
	g.mu.RLock()
	ids := make([]VertexID, 0, len(g.vertices))
	for id := range g.vertices {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	slices.Sort(ids)

	for _, id := range ids {
		g.mu.RLock()
		v := g.vertices[id]
		children := slices.Clone(g.children[id])
		targets := slices.Clone(g.calls[id])
		g.mu.RUnlock()
		if err := fn(v, children, targets); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll materializes every deferred type.
func (g *Graph) LoadAll(ctx context.Context) error {
	g.mu.RLock()
	names := make([]string, 0, len(g.deferred))
	for name := range g.deferred {
		names = append(names, name)
	}
	g.mu.RUnlock()
	slices.Sort(names)
	for _, name := range names {
		if _, err := g.LoadSubgraph(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Vertices implements Provider.
func (g *Graph) Vertices(ctx context.Context, ids []VertexID) ([]*Vertex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Vertex, len(ids))
	for i, id := range ids {
		v, ok := g.vertices[id]
		if !ok {
			return nil, fmt.Errorf("vertex %d: %w", id, ErrVertexNotFound)
		}
		out[i] = v
	}
	return out, nil
}

// Children implements Provider.
func (g *Graph) Children(ctx context.Context, id VertexID) ([]VertexID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.vertices[id]; !ok {
		return nil, fmt.Errorf("children of %d: %w", id, ErrVertexNotFound)
	}
	return slices.Clone(g.children[id]), nil
}

// CallTargets implements Provider. Ids are returned in ascending order.
func (g *Graph) CallTargets(ctx context.Context, invocation VertexID) ([]VertexID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := slices.Clone(g.calls[invocation])
	slices.Sort(out)
	return out, nil
}

// Methods implements Provider. Ids are returned in ascending order.
func (g *Graph) Methods(ctx context.Context) ([]VertexID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]VertexID, 0, len(g.methods))
	for _, id := range g.methods {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// LoadSubgraph implements Provider. The deferred loader for definingType runs
// at most once and callers racing with it block until it finishes; pending
// calls are linked against the newly loaded methods.
func (g *Graph) LoadSubgraph(ctx context.Context, definingType string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	d, ok := g.deferred[definingType]
	g.mu.RUnlock()
	if !ok {
		return false, nil
	}
	loaded := false
	d.once.Do(func() {
		loaded = true
		if err := d.load(g); err != nil {
			d.err = fmt.Errorf("load type %s: %w", definingType, err)
			return
		}
		g.linkPending()
	})
	if d.err != nil {
		return false, d.err
	}
	return loaded, nil
}

func (g *Graph) linkPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for target, invocations := range g.pending {
		id, ok := g.methods[target]
		if !ok {
			continue
		}
		for _, inv := range invocations {
			g.addCallTargetLocked(inv, id)
		}
		delete(g.pending, target)
	}
}
