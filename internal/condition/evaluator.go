package condition

import (
	"fmt"
)

// Tri is the result of evaluating a condition against incomplete knowledge.
type Tri int

const (
	Unknown Tri = iota
	True
	False
)

// FromBool lifts a definite boolean.
func FromBool(b bool) Tri {
	if b {
		return True
	}
	return False
}

// Not negates t; Unknown stays Unknown.
func (t Tri) Not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// Definite reports whether t is True or False.
func (t Tri) Definite() bool { return t != Unknown }

func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// EvalContext supplies variable values. ok is false when the value is
// indeterminate; a resolved nil is the null value.
type EvalContext interface {
	Resolve(path []string) (any, bool)
}

// Evaluate walks the AST. Unresolvable variables make the affected
// sub-expression Unknown; errors are reserved for malformed trees.
func Evaluate(expr Expr, ctx EvalContext) (Tri, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		return evalBinary(e, ctx)
	case *NotExpr:
		v, err := Evaluate(e.Expr, ctx)
		if err != nil {
			return Unknown, err
		}
		return v.Not(), nil
	case *ComparisonExpr:
		return evalComparison(e, ctx)
	case *TruthExpr:
		v, ok, err := resolveOperand(e.Operand, ctx)
		if err != nil || !ok {
			return Unknown, err
		}
		b, isBool := v.(bool)
		if !isBool {
			return Unknown, nil
		}
		return FromBool(b), nil
	default:
		return Unknown, fmt.Errorf("unknown expr type %T", expr)
	}
}

func evalBinary(e *BinaryExpr, ctx EvalContext) (Tri, error) {
	left, err := Evaluate(e.Left, ctx)
	if err != nil {
		return Unknown, err
	}
	switch e.Op {
	case "&&":
		if left == False {
			return False, nil
		}
		right, err := Evaluate(e.Right, ctx)
		if err != nil {
			return Unknown, err
		}
		if right == False {
			return False, nil
		}
		if left == True && right == True {
			return True, nil
		}
		return Unknown, nil
	case "||":
		if left == True {
			return True, nil
		}
		right, err := Evaluate(e.Right, ctx)
		if err != nil {
			return Unknown, err
		}
		if right == True {
			return True, nil
		}
		if left == False && right == False {
			return False, nil
		}
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown binary op %q", e.Op)
	}
}

func evalComparison(e *ComparisonExpr, ctx EvalContext) (Tri, error) {
	left, lok, err := resolveOperand(e.Left, ctx)
	if err != nil {
		return Unknown, err
	}
	right, rok, err := resolveOperand(e.Right, ctx)
	if err != nil {
		return Unknown, err
	}
	if !lok || !rok {
		return Unknown, nil
	}
	return compare(e.Op, left, right)
}

func resolveOperand(op Operand, ctx EvalContext) (any, bool, error) {
	switch o := op.(type) {
	case *LiteralOperand:
		return o.Value, true, nil
	case *FieldOperand:
		if ctx == nil {
			return nil, false, nil
		}
		v, ok := ctx.Resolve(o.Path)
		return v, ok, nil
	default:
		return nil, false, fmt.Errorf("unknown operand type %T", op)
	}
}

// MapContext resolves single-segment paths from a map. Handy for tests and
// for evaluating conditions against literal bindings.
type MapContext map[string]any

// Resolve implements EvalContext.
func (m MapContext) Resolve(path []string) (any, bool) {
	if len(path) != 1 {
		return nil, false
	}
	v, ok := m[path[0]]
	return v, ok
}
