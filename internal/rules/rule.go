// Package rules defines the rule contract, the violations rules produce and
// the per-entry-point collector. Rule implementations live in subpackages.
package rules

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

// Settings is the configured state of one rule.
type Settings struct {
	Enabled  bool
	Severity Severity
	// Sinks overrides the rule's default sink method names, when it has any.
	Sinks []string
}

// Env is what a rule visitor is built with. One visitor set is built per
// worker, so visitors need no locking.
type Env struct {
	Settings  Settings
	Collector *Collector
	Usage     usage.Set
	Logger    *slog.Logger
}

// Rule is the interface all rule implementations must satisfy.
type Rule interface {
	// ID returns the key the rule is registered and configured under.
	ID() string
	Description() string
	DefaultSeverity() Severity
	// NewVisitor builds the walker visitor that checks the rule.
	NewVisitor(env Env) walker.Visitor
}

// Flusher is implemented by visitors that buffer side effects for an entry
// point. Flush runs after every entry point, completed or not.
type Flusher interface {
	Flush(ctx context.Context) error
}

// RunCheck is implemented by rules that report once per run, after every
// entry point was analyzed.
type RunCheck interface {
	CheckRun(ctx context.Context, p graph.Provider, set usage.Set, s Settings) ([]Violation, error)
}

// Resolve fills unset settings from the rule's defaults.
func Resolve(r Rule, s Settings) Settings {
	if s.Severity == "" {
		s.Severity = r.DefaultSeverity()
	}
	return s
}
