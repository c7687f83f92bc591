// Package symbolic tracks approximate variable state along one path walk.
//
// Values are either definite (a Go string, float64, bool, nil for null, or a
// map for simple records) or indeterminate. Indeterminate is the normal answer
// whenever the engine cannot know a value; it is never an error.
package symbolic

import (
	"fmt"
	"strconv"

	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
)

// Value is a symbolic value. The zero Value is indeterminate.
type Value struct {
	known bool
	v     any
	// Source is the vertex that produced the value, when known.
	Source graph.VertexID
}

// Indeterminate returns the unknown value.
func Indeterminate() Value { return Value{} }

// Of wraps a definite Go value.
func Of(v any) Value { return Value{known: true, v: v} }

// Null is the definite null value.
func Null() Value { return Value{known: true} }

// Known reports whether the value is definite.
func (v Value) Known() bool { return v.known }

// Get returns the definite value and whether it is known.
func (v Value) Get() (any, bool) { return v.v, v.known }

func (v Value) String() string {
	if !v.known {
		return "<indeterminate>"
	}
	if v.v == nil {
		return "null"
	}
	return fmt.Sprint(v.v)
}

// FromLiteral converts a literal vertex into a value.
func FromLiteral(vx *graph.Vertex) Value {
	raw := vx.Prop(graph.PropValue)
	var out Value
	switch vx.Prop(graph.PropValueType) {
	case "null":
		out = Null()
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{Source: vx.ID}
		}
		out = Of(b)
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{Source: vx.ID}
		}
		out = Of(f)
	default:
		out = Of(raw)
	}
	out.Source = vx.ID
	return out
}
