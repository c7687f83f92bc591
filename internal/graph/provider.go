// Package graph holds the code-graph boundary of the analysis engine.
//
// The engine never mutates the graph. It reads vertices in bulk, navigates
// child and call edges, and may ask the provider to load a referenced type on
// demand (a one-way effect). Two providers ship with the module: the in-memory
// Graph built from a YAML source model, and SQLStore backed by SQLite.
package graph

import (
	"context"
	"errors"
)

// Sentinel errors for graph operations.
var (
	// ErrVertexNotFound is returned when a requested vertex id does not exist.
	ErrVertexNotFound = errors.New("vertex not found")

	// ErrDuplicateVertex is returned when adding a vertex whose id already exists.
	ErrDuplicateVertex = errors.New("duplicate vertex id")

	// ErrInvalidModel is returned when a source model fails validation.
	ErrInvalidModel = errors.New("invalid source model")
)

// Provider is the read-only view of the code graph used by the engine.
// Implementations must be safe for concurrent use by multiple workers.
type Provider interface {
	// Vertices returns the vertices for ids in the same order.
	// A missing id yields an error wrapping ErrVertexNotFound.
	Vertices(ctx context.Context, ids []VertexID) ([]*Vertex, error)

	// Children returns the ordered child ids of a vertex.
	Children(ctx context.Context, id VertexID) ([]VertexID, error)

	// CallTargets returns the resolved method ids an invocation may dispatch to.
	CallTargets(ctx context.Context, invocation VertexID) ([]VertexID, error)

	// Methods returns the ids of every method vertex currently loaded.
	Methods(ctx context.Context) ([]VertexID, error)

	// LoadSubgraph materializes a deferred type. It reports whether anything new
	// was loaded. Loading is never rolled back.
	LoadSubgraph(ctx context.Context, definingType string) (bool, error)
}
