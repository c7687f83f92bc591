// Package path builds ApexPaths: concrete control-flow routes from an entry
// point, expanded across method calls.
package path

import (
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"strconv"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/registry"
)

// RegistryType is the registry table ApexPaths live in.
const RegistryType registry.TypeKey = "apex_path"

// Phase says how the walker handles a step.
type Phase int

const (
	// PhaseVisit visits a statement or condition.
	PhaseVisit Phase = iota
	// PhaseEnter opens a structural region (loop or if/else).
	PhaseEnter
	// PhaseExit closes the region opened by the matching PhaseEnter.
	PhaseExit
)

func (p Phase) String() string {
	switch p {
	case PhaseEnter:
		return "enter"
	case PhaseExit:
		return "exit"
	}
	return "visit"
}

// Step is one element of a path.
type Step struct {
	Vertex graph.VertexID
	Phase  Phase
	Branch Branch
}

// ApexPath is one control-flow route through a method. Calls made along the
// route point at the callee's path by registry id. An ApexPath is immutable
// once Expand returns it.
type ApexPath struct {
	id        registry.ID
	Method    graph.VertexID
	MethodKey string
	// Depth is the call depth at which the path was expanded.
	Depth int
	Steps []Step
	calls map[graph.VertexID]registry.ID
}

func newPath(id registry.ID, method *Node, depth int, steps []Step) *ApexPath {
	return &ApexPath{id: id, Method: method.ID, MethodKey: method.IdentityKey(), Depth: depth, Steps: steps}
}

// RegistryID implements registry.Entry.
func (p *ApexPath) RegistryID() registry.ID { return p.id }

// ID returns the registry id of the path.
func (p *ApexPath) ID() registry.ID { return p.id }

// Callee returns the registry id of the path taken by invocation.
func (p *ApexPath) Callee(invocation graph.VertexID) (registry.ID, bool) {
	id, ok := p.calls[invocation]
	return id, ok
}

// Invocations returns the expanded invocation ids in ascending order.
func (p *ApexPath) Invocations() []graph.VertexID {
	return slices.Sorted(maps.Keys(p.calls))
}

// CallCount returns how many invocations on this path were expanded.
func (p *ApexPath) CallCount() int { return len(p.calls) }

// fork returns a copy of p whose invocation resolves to sub. Steps are shared.
func (p *ApexPath) fork(id registry.ID, invocation graph.VertexID, sub registry.ID) *ApexPath {
	calls := maps.Clone(p.calls)
	if calls == nil {
		calls = make(map[graph.VertexID]registry.ID, 1)
	}
	calls[invocation] = sub
	return &ApexPath{id: id, Method: p.Method, MethodKey: p.MethodKey, Depth: p.Depth, Steps: p.Steps, calls: calls}
}

// Fingerprint implements registry.Fingerprinter: two paths are equal when
// they share method, depth, steps and call resolutions.
func (p *ApexPath) Fingerprint() string {
	h := fnv.New64a()
	buf := make([]byte, 0, 64)
	buf = strconv.AppendInt(buf, int64(p.Method), 10)
	buf = append(buf, '/')
	buf = strconv.AppendInt(buf, int64(p.Depth), 10)
	h.Write(buf)
	for _, s := range p.Steps {
		buf = buf[:0]
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, int64(s.Vertex), 10)
		buf = append(buf, ':', byte('0'+s.Phase), byte('0'+s.Branch))
		h.Write(buf)
	}
	invs := slices.Sorted(maps.Keys(p.calls))
	for _, inv := range invs {
		buf = buf[:0]
		buf = append(buf, '#')
		buf = strconv.AppendInt(buf, int64(inv), 10)
		buf = append(buf, '>')
		buf = strconv.AppendInt(buf, int64(p.calls[inv]), 10)
		h.Write(buf)
	}
	return fmt.Sprintf("%s:%d:%016x", p.MethodKey, len(p.Steps), h.Sum64())
}

func (p *ApexPath) String() string {
	return fmt.Sprintf("path %d of %s (%d steps, %d calls)", p.id, p.MethodKey, len(p.Steps), len(p.calls))
}
