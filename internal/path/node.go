package path

import (
	"context"

	"github.com/gyaneshwarpardhi/pathflow/internal/condition"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/vcache"
)

// Branch tells which side of a condition a step was taken on.
type Branch int

const (
	BranchNone Branch = iota
	BranchTrue
	BranchFalse
)

// Discriminator maps a branch to its cache discriminator.
func (b Branch) Discriminator() vcache.Discriminator {
	switch b {
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	}
	return vcache.None
}

func (b Branch) String() string {
	switch b {
	case BranchTrue:
		return "true"
	case BranchFalse:
		return "false"
	}
	return "none"
}

func branchOf(d vcache.Discriminator) Branch {
	switch d {
	case "true":
		return BranchTrue
	case "false":
		return BranchFalse
	}
	return BranchNone
}

// Node is a materialized vertex: the raw vertex plus its ordered children and,
// for conditions, the parsed expression and the branch it was taken on.
type Node struct {
	*graph.Vertex
	Children []graph.VertexID
	Branch   Branch
	// Cond is nil when the vertex is not a condition or its text did not parse;
	// an unparsed condition always evaluates to Unknown.
	Cond    condition.Expr
	CondErr error
}

// Nodes materializes ids through the worker's cache, preserving order.
func Nodes(ctx context.Context, c *vcache.Cache, ids []graph.VertexID, b Branch) ([]*Node, error) {
	return vcache.Get(ctx, c, ids, b.Discriminator(), nodeBuilder(c.Provider()))
}

// NodeOf materializes a single id.
func NodeOf(ctx context.Context, c *vcache.Cache, id graph.VertexID, b Branch) (*Node, error) {
	return vcache.GetOne(ctx, c, id, b.Discriminator(), nodeBuilder(c.Provider()))
}

// ChildNodes materializes the children of n without a branch.
func ChildNodes(ctx context.Context, c *vcache.Cache, n *Node) ([]*Node, error) {
	if len(n.Children) == 0 {
		return nil, nil
	}
	return Nodes(ctx, c, n.Children, BranchNone)
}

func nodeBuilder(p graph.Provider) vcache.Builder[*Node] {
	return func(ctx context.Context, v *graph.Vertex, d vcache.Discriminator) (*Node, error) {
		children, err := p.Children(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		n := &Node{Vertex: v, Children: children, Branch: branchOf(d)}
		if v.Kind == graph.KindCondition {
			n.Cond, n.CondErr = condition.Parse(v.Prop(graph.PropExpression))
		}
		return n, nil
	}
}
