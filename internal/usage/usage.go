// Package usage holds the set of methods reached by the paths of one
// analysis run. It is the only state shared between workers.
package usage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Set records method identity keys. Implementations are safe for concurrent
// use and monotonic: a marked key stays marked until Reset.
type Set interface {
	// Mark records keys as used.
	Mark(ctx context.Context, keys ...string) error
	// Marked reports, for each key, whether it was marked.
	Marked(ctx context.Context, keys ...string) ([]bool, error)
	// Members returns every marked key, sorted.
	Members(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// Store hands out a fresh Set for each analysis run. Runs never see each
// other's marks, including runs in flight at the same time.
type Store interface {
	ForRun(ctx context.Context, runID string) (Set, error)
}

// MemoryStore creates in-process sets.
type MemoryStore struct{}

// ForRun returns an empty MemorySet.
func (MemoryStore) ForRun(context.Context, string) (Set, error) { return NewMemorySet(), nil }

// Normalize returns the form keys are stored in. Apex identifiers are case
// insensitive.
func Normalize(key string) string { return strings.ToLower(key) }

// MemorySet is an in-process Set.
type MemorySet struct {
	keys sync.Map
	n    atomic.Int64
}

// NewMemorySet creates an empty set.
func NewMemorySet() *MemorySet { return &MemorySet{} }

// Mark implements Set.
func (s *MemorySet) Mark(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if _, loaded := s.keys.LoadOrStore(Normalize(k), struct{}{}); !loaded {
			s.n.Add(1)
		}
	}
	return nil
}

// Marked implements Set.
func (s *MemorySet) Marked(_ context.Context, keys ...string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		_, out[i] = s.keys.Load(Normalize(k))
	}
	return out, nil
}

// Members implements Set.
func (s *MemorySet) Members(context.Context) ([]string, error) {
	var out []string
	s.keys.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	slices.Sort(out)
	return out, nil
}

// Len implements Set.
func (s *MemorySet) Len(context.Context) (int64, error) { return s.n.Load(), nil }

// Reset implements Set.
func (s *MemorySet) Reset(context.Context) error {
	s.keys.Clear()
	s.n.Store(0)
	return nil
}
