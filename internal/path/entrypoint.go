package path

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

// Selector decides which methods are entry points.
type Selector struct {
	// Annotations select methods carrying any of them, e.g. AuraEnabled.
	Annotations []string
	// Modifiers select methods carrying any of them, e.g. global.
	Modifiers []string
	// Methods select by identity key ("Type.method"), case-insensitive.
	Methods []string
	// All selects every method.
	All bool
}

// Matches reports whether v is an entry point.
func (s Selector) Matches(v *graph.Vertex) bool {
	if v.Kind != graph.KindMethod {
		return false
	}
	if s.All {
		return true
	}
	for _, a := range s.Annotations {
		if v.HasAnnotation(a) {
			return true
		}
	}
	for _, m := range s.Modifiers {
		if v.HasModifier(m) {
			return true
		}
	}
	key := v.IdentityKey()
	return slices.ContainsFunc(s.Methods, func(m string) bool { return strings.EqualFold(m, key) })
}

// Discover returns the entry-point methods of the loaded graph, sorted by
// identity key.
func Discover(ctx context.Context, p graph.Provider, sel Selector) ([]*graph.Vertex, error) {
	ids, err := p.Methods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vs, err := p.Vertices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load methods: %w", err)
	}
	var out []*graph.Vertex
	for _, v := range vs {
		if sel.Matches(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b *graph.Vertex) int {
		if c := strings.Compare(a.IdentityKey(), b.IdentityKey()); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}
