package condition

import (
	"fmt"
	"math"
	"strings"
)

// Operator represents a comparison operator.
type Operator string

const (
	OpEq        Operator = "=="
	OpStrictEq  Operator = "==="
	OpNeq       Operator = "!="
	OpStrictNeq Operator = "!=="
	OpNeqAlt    Operator = "<>"
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
)

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare applies a comparison to two definite values. Operand types that the
// operator cannot order yield Unknown rather than an error.
func compare(op Operator, left, right any) (Tri, error) {
	switch op {
	case OpEq, OpStrictEq:
		return FromBool(equal(left, right, op == OpStrictEq)), nil
	case OpNeq, OpStrictNeq, OpNeqAlt:
		return FromBool(!equal(left, right, op == OpStrictNeq)), nil
	case OpGt, OpGte, OpLt, OpLte:
		return order(op, left, right), nil
	default:
		return Unknown, fmt.Errorf("unknown operator: %s", op)
	}
}

// equal compares numbers by value and strings case-insensitively unless strict.
func equal(left, right any, strict bool) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	ls, rs := fmt.Sprint(left), fmt.Sprint(right)
	if strict {
		return ls == rs
	}
	return strings.EqualFold(ls, rs)
}

func order(op Operator, left, right any) Tri {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		ls, lsok := left.(string)
		rs, rsok := right.(string)
		if !lsok || !rsok {
			return Unknown
		}
		c := strings.Compare(ls, rs)
		lf, rf = float64(c), 0
	}
	switch op {
	case OpGt:
		return FromBool(lf > rf)
	case OpGte:
		return FromBool(lf >= rf)
	case OpLt:
		return FromBool(lf < rf)
	default:
		return FromBool(lf <= rf)
	}
}
