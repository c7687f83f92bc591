package rules

import (
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// Collector gathers the violations of one entry point. Violations reported
// during a path walk stay pending until the walk completes; an aborted or
// infeasible path contributes nothing.
//
// The collector must be passed to the walker after the rule visitors so that
// it sees the end of each path last.
type Collector struct {
	pending   []Violation
	committed map[string]Violation
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{committed: make(map[string]Violation)}
}

// Report adds v to the current path.
func (c *Collector) Report(v Violation) {
	c.pending = append(c.pending, v)
}

// Add records v for the entry point directly, outside any path.
func (c *Collector) Add(v Violation) {
	if _, dup := c.committed[v.Key()]; !dup {
		c.committed[v.Key()] = v
	}
}

// Violations returns the committed violations in Sort order.
func (c *Collector) Violations() []Violation {
	out := make([]Violation, 0, len(c.committed))
	for _, v := range c.committed {
		out = append(out, v)
	}
	Sort(out)
	return out
}

// Reset drops everything, pending and committed.
func (c *Collector) Reset() {
	c.pending = c.pending[:0]
	clear(c.committed)
}

func (c *Collector) Interests() []graph.Kind { return nil }

func (c *Collector) Visit(*walker.Scope, *path.Node) error { return nil }

func (c *Collector) StartPath(*walker.Scope) error {
	c.pending = c.pending[:0]
	return nil
}

func (c *Collector) EndPath(_ *walker.Scope, o walker.Outcome) {
	if o.State == walker.Completed {
		for _, v := range c.pending {
			c.Add(v)
		}
	}
	c.pending = c.pending[:0]
}
