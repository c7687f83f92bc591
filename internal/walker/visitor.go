package walker

import (
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
)

// Visitor receives the vertices of the kinds it declares interest in.
// Returning an error aborts the current path as a defect.
type Visitor interface {
	Interests() []graph.Kind
	Visit(s *Scope, n *path.Node) error
}

// PostVisitor is called after a vertex's expression children were visited.
type PostVisitor interface {
	PostVisit(s *Scope, n *path.Node) error
}

// RegionVisitor is told when the walk enters and leaves a loop or if/else.
type RegionVisitor interface {
	EnterRegion(s *Scope, n *path.Node) error
	ExitRegion(s *Scope, n *path.Node) error
}

// PathListener brackets each path walk. EndPath always runs once StartPath
// has succeeded.
type PathListener interface {
	StartPath(s *Scope) error
	EndPath(s *Scope, o Outcome)
}

// InvocationListener brackets the walk of each callee path.
type InvocationListener interface {
	EnterInvocation(s *Scope, inv *path.Node, sub *path.ApexPath) error
	ExitInvocation(s *Scope, inv *path.Node, sub *path.ApexPath) error
}

// dispatch is the precomputed kind → visitors table plus the optional hooks
// each visitor implements.
type dispatch struct {
	byKind      map[graph.Kind][]Visitor
	post        map[graph.Kind][]PostVisitor
	regions     []RegionVisitor
	listeners   []PathListener
	invocations []InvocationListener
	forks       []path.ForkObserver
}

func newDispatch(visitors []Visitor) *dispatch {
	d := &dispatch{
		byKind: make(map[graph.Kind][]Visitor),
		post:   make(map[graph.Kind][]PostVisitor),
	}
	for _, v := range visitors {
		pv, hasPost := v.(PostVisitor)
		for _, k := range v.Interests() {
			d.byKind[k] = append(d.byKind[k], v)
			if hasPost {
				d.post[k] = append(d.post[k], pv)
			}
		}
		if rv, ok := v.(RegionVisitor); ok {
			d.regions = append(d.regions, rv)
		}
		if pl, ok := v.(PathListener); ok {
			d.listeners = append(d.listeners, pl)
		}
		if il, ok := v.(InvocationListener); ok {
			d.invocations = append(d.invocations, il)
		}
		if fo, ok := v.(path.ForkObserver); ok {
			d.forks = append(d.forks, fo)
		}
	}
	return d
}

func (d *dispatch) pre(s *Scope, n *path.Node) error {
	for _, v := range d.byKind[n.Kind] {
		if err := v.Visit(s, n); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatch) postVisit(s *Scope, n *path.Node) error {
	for _, pv := range d.post[n.Kind] {
		if err := pv.PostVisit(s, n); err != nil {
			return err
		}
	}
	return nil
}
