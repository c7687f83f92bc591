package rules

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ParseSeverity accepts the configured spelling of a severity.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Location points at a vertex in the source.
type Location struct {
	Vertex graph.VertexID `json:"vertex"`
	Method string         `json:"method,omitempty"`
	File   string         `json:"file,omitempty"`
	Line   int            `json:"line,omitempty"`
}

// LocationOf returns the location of v.
func LocationOf(v *graph.Vertex) Location {
	if v == nil {
		return Location{}
	}
	method := v.DefiningType
	if v.Kind == graph.KindMethod {
		method = v.IdentityKey()
	}
	return Location{Vertex: v.ID, Method: method, File: v.FileName, Line: v.BeginLine}
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%s#%d", l.Method, l.Vertex)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Violation is an immutable record of one rule failure.
type Violation struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	// Entry is the identity key of the entry-point method.
	Entry  string   `json:"entry"`
	Source Location `json:"source"`
	Sink   Location `json:"sink"`
}

// Key identifies a violation for de-duplication across paths.
func (v Violation) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", v.Rule, strings.ToLower(v.Entry), v.Source.Vertex, v.Sink.Vertex)
}

// Sort orders violations by rule, entry, source and sink.
func Sort(vs []Violation) {
	slices.SortFunc(vs, func(a, b Violation) int {
		return cmp.Or(
			strings.Compare(a.Rule, b.Rule),
			strings.Compare(a.Entry, b.Entry),
			cmp.Compare(a.Source.Vertex, b.Source.Vertex),
			cmp.Compare(a.Sink.Vertex, b.Sink.Vertex),
		)
	})
}

// Rule ids reported by the engine itself rather than by a visitor.
const (
	InternalErrorRule      = "InternalError"
	PathExpansionLimitRule = "PathExpansionLimit"
)

// InternalError reports a defect that aborted the analysis of entry.
func InternalError(entry *graph.Vertex, err error) Violation {
	loc := LocationOf(entry)
	return Violation{
		Rule:     InternalErrorRule,
		Message:  fmt.Sprintf("internal error while analyzing %s: %v", entry.IdentityKey(), err),
		Severity: SeverityHigh,
		Entry:    entry.IdentityKey(),
		Source:   loc,
		Sink:     loc,
	}
}

// PathExpansionLimit warns that entry produced more paths than the registry
// could hold, so it was not analyzed.
func PathExpansionLimit(entry *graph.Vertex, err error) Violation {
	loc := LocationOf(entry)
	return Violation{
		Rule:     PathExpansionLimitRule,
		Message:  fmt.Sprintf("path expansion limit reached for %s; results are incomplete: %v", entry.IdentityKey(), err),
		Severity: SeverityLow,
		Entry:    entry.IdentityKey(),
		Source:   loc,
		Sink:     loc,
	}
}
