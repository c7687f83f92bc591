package rules

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps rule ids to rules.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates a registry holding rs.
func NewRegistry(rs ...Rule) *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	for _, rule := range rs {
		r.Register(rule)
	}
	return r
}

// Register adds a rule. Panics on duplicate id to surface misconfiguration early.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID()]; exists {
		panic(fmt.Sprintf("rule registry: duplicate id %q", rule.ID()))
	}
	r.rules[rule.ID()] = rule
}

// Get returns the rule registered under id.
func (r *Registry) Get(id string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("no rule registered with id %q", id)
	}
	return rule, nil
}

// IDs returns every registered id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for k := range r.rules {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// All returns every rule ordered by id.
func (r *Registry) All() []Rule {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(ids))
	for i, id := range ids {
		out[i] = r.rules[id]
	}
	return out
}
