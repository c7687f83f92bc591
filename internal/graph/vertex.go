package graph

import (
	"strings"
)

// VertexID is the stable integer id of a vertex in the code graph.
type VertexID int64

// Kind discriminates vertex shapes.
type Kind string

const (
	KindMethod              Kind = "MethodVertex"
	KindBlock               Kind = "BlockStatement"
	KindExpressionStatement Kind = "ExpressionStatement"
	KindVariableDeclaration Kind = "VariableDeclarationStatements"
	KindAssignment          Kind = "AssignmentExpression"
	KindReturn              Kind = "ReturnStatement"
	KindIfElse              Kind = "IfElseBlockStatement"
	KindCondition           Kind = "StandardConditionVertex"
	KindForLoop             Kind = "ForLoopStatement"
	KindForEach             Kind = "ForEachStatement"
	KindWhileLoop           Kind = "WhileLoopStatement"
	KindDoLoop              Kind = "DoLoopStatement"
	KindMethodCall          Kind = "MethodCallExpression"
	KindSoql                Kind = "SoqlExpression"
	KindSosl                Kind = "SoslExpression"
	KindLiteral             Kind = "LiteralExpression"
	KindVariable            Kind = "VariableExpression"
	KindDmlInsert           Kind = "DmlInsertStatement"
	KindDmlUpdate           Kind = "DmlUpdateStatement"
	KindDmlDelete           Kind = "DmlDeleteStatement"
	KindDmlUpsert           Kind = "DmlUpsertStatement"
	KindDmlUndelete         Kind = "DmlUndeleteStatement"
	KindDmlMerge            Kind = "DmlMergeStatement"
)

// DMLKinds lists every DML statement kind.
var DMLKinds = []Kind{KindDmlInsert, KindDmlUpdate, KindDmlDelete, KindDmlUpsert, KindDmlUndelete, KindDmlMerge}

// IsLoop reports whether k opens a loop region.
func (k Kind) IsLoop() bool {
	switch k {
	case KindForLoop, KindForEach, KindWhileLoop, KindDoLoop:
		return true
	}
	return false
}

// IsDML reports whether k is a DML statement.
func (k Kind) IsDML() bool {
	switch k {
	case KindDmlInsert, KindDmlUpdate, KindDmlDelete, KindDmlUpsert, KindDmlUndelete, KindDmlMerge:
		return true
	}
	return false
}

// IsStructural reports whether k is a composite statement whose children are
// flattened into a path rather than visited as expressions.
func (k Kind) IsStructural() bool {
	return k == KindBlock || k == KindIfElse || k.IsLoop()
}

// Well-known property keys.
const (
	PropExpression  = "expression"  // condition source text
	PropValue       = "value"       // literal value
	PropValueType   = "valueType"   // string | number | boolean | null
	PropQuery       = "query"       // SOQL / SOSL text
	PropAnnotations = "annotations" // comma separated
	PropModifiers   = "modifiers"   // comma separated
	PropParameters  = "parameters"  // comma separated parameter names
	PropTargets     = "targets"     // comma separated "Type.method" call target names
	PropVariable    = "variable"    // loop variable
)

// Vertex is an immutable node from the code graph.
// Vertices are owned by the graph and must not be mutated after construction.
type Vertex struct {
	ID           VertexID          `json:"id" yaml:"id"`
	Kind         Kind              `json:"kind" yaml:"kind"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	DefiningType string            `json:"defining_type,omitempty" yaml:"defining_type,omitempty"`
	FileName     string            `json:"file,omitempty" yaml:"file,omitempty"`
	BeginLine    int               `json:"begin_line,omitempty" yaml:"begin_line,omitempty"`
	EndLine      int               `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	Properties   map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Prop returns a property value ("" when absent).
func (v *Vertex) Prop(key string) string {
	if v == nil || v.Properties == nil {
		return ""
	}
	return v.Properties[key]
}

// PropList splits a comma separated property into trimmed, non-empty items.
func (v *Vertex) PropList(key string) []string {
	raw := v.Prop(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IdentityKey is the stable, graph-independent key of a method ("Type.name").
// For method calls it is the name as written at the call site.
func (v *Vertex) IdentityKey() string {
	if v.Kind == KindMethodCall {
		return v.Name
	}
	if v.DefiningType == "" {
		return v.Name
	}
	return v.DefiningType + "." + v.Name
}

// HasAnnotation reports whether the vertex carries the annotation (case-insensitive,
// with or without a leading '@').
func (v *Vertex) HasAnnotation(name string) bool {
	name = strings.TrimPrefix(name, "@")
	for _, a := range v.PropList(PropAnnotations) {
		if strings.EqualFold(strings.TrimPrefix(a, "@"), name) {
			return true
		}
	}
	return false
}

// HasModifier reports whether the vertex carries the modifier (case-insensitive).
func (v *Vertex) HasModifier(name string) bool {
	for _, m := range v.PropList(PropModifiers) {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}
