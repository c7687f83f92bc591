package walker

import (
	"slices"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/symbolic"
)

// Boundaries is the stack of loop regions enclosing the current vertex.
type Boundaries struct {
	stack []*path.Node
}

// Push opens a region.
func (b *Boundaries) Push(n *path.Node) {
	b.stack = append(b.stack, n)
}

// Pop closes the innermost region, which must be n.
func (b *Boundaries) Pop(n *path.Node) error {
	if len(b.stack) == 0 {
		return fault.Defect("walker.boundary", "exit of %s %d with no open region", n.Kind, n.ID)
	}
	top := b.stack[len(b.stack)-1]
	if top.ID != n.ID {
		return fault.Defect("walker.boundary", "exit of %d while %d is innermost", n.ID, top.ID)
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

// Innermost returns the innermost open region.
func (b *Boundaries) Innermost() (*path.Node, bool) {
	if len(b.stack) == 0 {
		return nil, false
	}
	return b.stack[len(b.stack)-1], true
}

// InLoop reports whether any region is open.
func (b *Boundaries) InLoop() bool { return len(b.stack) > 0 }

// Len returns the nesting depth.
func (b *Boundaries) Len() int { return len(b.stack) }

// CallFrame is one active invocation on the call stack.
type CallFrame struct {
	Invocation *path.Node
	Path       *path.ApexPath
}

// Scope is what visitors see of the walk in progress.
type Scope struct {
	// Entry is the entry-point method the root path starts from.
	Entry *graph.Vertex
	// Root is the path being walked; Path is the (sub)path currently executing.
	Root *path.ApexPath
	Path *path.ApexPath
	// Symbols is the symbol table of the current call frame.
	Symbols    *symbolic.Table
	Boundaries *Boundaries

	calls []CallFrame
}

// CallStack returns the active invocations, outermost first.
func (s *Scope) CallStack() []CallFrame {
	return slices.Clone(s.calls)
}

// CallDepth returns the number of active invocations.
func (s *Scope) CallDepth() int { return len(s.calls) }

// OnCallStack reports whether a callee with the given identity key is active.
func (s *Scope) OnCallStack(methodKey string) bool {
	return slices.ContainsFunc(s.calls, func(f CallFrame) bool { return f.Path.MethodKey == methodKey })
}

// CurrentMethod returns the identity key of the method currently executing.
func (s *Scope) CurrentMethod() string { return s.Path.MethodKey }
