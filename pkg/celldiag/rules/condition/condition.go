// Package condition evaluates typed field/operator/value predicates against
// a context map. Cause boosts use it to decide whether the situation at
// hand supports a candidate cause.
package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported operators.
const (
	OpEqual            = "eq"
	OpNotEqual         = "ne"
	OpLessThan         = "lt"
	OpLessThanEqual    = "lte"
	OpGreaterThan      = "gt"
	OpGreaterThanEqual = "gte"
	OpContains         = "contains"
	OpIn               = "in"
)

// Condition is a single predicate on one context field.
type Condition struct {
	Field string `yaml:"field" json:"field"` // context key, e.g. "tool_changed"
	Op    string `yaml:"op" json:"op"`       // operator, e.g. "gte"
	Value any    `yaml:"value" json:"value"` // literal the field is compared with
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// OperatorFunc compares a context value with a literal.
type OperatorFunc func(fieldValue, literal any) (bool, error)

// Error describes a predicate that could not be evaluated.
type Error struct {
	Field   string
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("condition %s %s: %s", e.Field, e.Op, e.Message)
}

// Evaluator holds the operator registry.
type Evaluator struct {
	operators map[string]OperatorFunc
}

// NewEvaluator returns an evaluator with every supported operator registered.
func NewEvaluator() *Evaluator {
	e := &Evaluator{operators: make(map[string]OperatorFunc)}

	e.operators[OpEqual] = opEqual
	e.operators[OpNotEqual] = opNotEqual
	e.operators[OpLessThan] = numeric(func(a, b float64) bool { return a < b })
	e.operators[OpLessThanEqual] = numeric(func(a, b float64) bool { return a <= b })
	e.operators[OpGreaterThan] = numeric(func(a, b float64) bool { return a > b })
	e.operators[OpGreaterThanEqual] = numeric(func(a, b float64) bool { return a >= b })
	e.operators[OpContains] = opContains
	e.operators[OpIn] = opIn

	return e
}

// Validate reports whether c names a field and a registered operator.
// Operand shapes are only checked at evaluation time.
func (e *Evaluator) Validate(c Condition) error {
	if strings.TrimSpace(c.Field) == "" {
		return &Error{Field: c.Field, Op: c.Op, Message: "missing field"}
	}
	if _, ok := e.operators[c.Op]; !ok {
		return &Error{Field: c.Field, Op: c.Op, Message: "unsupported operator"}
	}
	return nil
}

// Evaluate applies c to ctx. A missing field is not satisfied and not an
// error; an operand of the wrong shape is an error.
func (e *Evaluator) Evaluate(c Condition, ctx map[string]any) (bool, error) {
	fn, ok := e.operators[c.Op]
	if !ok {
		return false, &Error{Field: c.Field, Op: c.Op, Message: "unsupported operator"}
	}
	v, ok := ctx[c.Field]
	if !ok || v == nil {
		return false, nil
	}
	res, err := fn(v, c.Value)
	if err != nil {
		return false, &Error{Field: c.Field, Op: c.Op, Message: err.Error()}
	}
	return res, nil
}

// Satisfied is Evaluate with every failure folded into false.
func (e *Evaluator) Satisfied(c Condition, ctx map[string]any) bool {
	ok, err := e.Evaluate(c, ctx)
	return err == nil && ok
}

func opEqual(a, b any) (bool, error) {
	return compare(a, b)
}

func opNotEqual(a, b any) (bool, error) {
	eq, err := compare(a, b)
	if err != nil {
		return false, err
	}
	return !eq, nil
}

// equal is compare with incomparable operands treated as different.
func equal(a, b any) bool {
	eq, err := compare(a, b)
	return err == nil && eq
}

// compare reports equality of two numbers, two bools or two strings
// (case-insensitive). Any other pairing cannot be compared.
func compare(a, b any) (bool, error) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf, nil
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb, nil
		}
		return false, fmt.Errorf("cannot compare bool %v with %v", a, b)
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs), nil
	}
	return false, fmt.Errorf("cannot compare %v (%T) with %v (%T)", a, a, b, b)
}

func numeric(cmp func(a, b float64) bool) OperatorFunc {
	return func(a, b any) (bool, error) {
		af, ok := toFloat(a)
		if !ok {
			return false, fmt.Errorf("field value %v is not numeric", a)
		}
		bf, ok := toFloat(b)
		if !ok {
			return false, fmt.Errorf("literal %v is not numeric", b)
		}
		return cmp(af, bf), nil
	}
}

// opContains matches a substring of a string field or an element of a list
// field.
func opContains(a, b any) (bool, error) {
	switch v := a.(type) {
	case string:
		lit, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("literal %v is not a string", b)
		}
		return strings.Contains(strings.ToLower(v), strings.ToLower(lit)), nil
	case []string:
		for _, s := range v {
			if equal(s, b) {
				return true, nil
			}
		}
		return false, nil
	case []any:
		for _, s := range v {
			if equal(s, b) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("field value %v does not support contains", a)
	}
}

// opIn matches when the field equals one element of a list literal.
func opIn(a, b any) (bool, error) {
	switch list := b.(type) {
	case []any:
		for _, item := range list {
			if equal(a, item) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, item := range list {
			if equal(a, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("literal %v is not a list", b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
