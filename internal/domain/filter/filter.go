package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"docforge/internal/core/apperror"
)

// Filter is one predicate. The concrete type is fixed by the operator's
// category and carries only the value shape that category allows.
type Filter interface {
	Field() string
	Operator() Operator
	// Operand returns the value in wire form.
	Operand() any
	filter()
}

// Comparison covers =, !=, >, >=, <, <=.
type Comparison struct {
	Name  string
	Op    Operator
	Value any
}

// Membership covers IN and NOT IN.
type Membership struct {
	Name   string
	Negate bool
	Values []any
}

// NullCheck covers IS NULL and IS NOT NULL. Marker is kept only so the
// filter re-serializes to the same tuple.
type NullCheck struct {
	Name   string
	Negate bool
	Marker any
}

// Pattern covers LIKE and NOT LIKE.
type Pattern struct {
	Name    string
	Negate  bool
	Pattern string
}

func (c Comparison) Field() string      { return c.Name }
func (c Comparison) Operator() Operator { return c.Op }
func (c Comparison) Operand() any       { return c.Value }
func (Comparison) filter()              {}

func (m Membership) Field() string { return m.Name }
func (m Membership) Operator() Operator {
	if m.Negate {
		return NotInList
	}
	return InList
}
func (m Membership) Operand() any { return m.Values }
func (Membership) filter()        {}

func (n NullCheck) Field() string { return n.Name }
func (n NullCheck) Operator() Operator {
	if n.Negate {
		return IsNotNull
	}
	return IsNull
}
func (n NullCheck) Operand() any { return n.Marker }
func (NullCheck) filter()        {}

func (p Pattern) Field() string { return p.Name }
func (p Pattern) Operator() Operator {
	if p.Negate {
		return NotLike
	}
	return Like
}
func (p Pattern) Operand() any { return p.Pattern }
func (Pattern) filter()        {}

// New builds the filter variant for op, checking the value shape the operator
// requires. Numbers are normalized to int64 or float64.
func New(field string, op Operator, value any) (Filter, error) {
	if strings.TrimSpace(field) == "" {
		return nil, apperror.NewInvalidFilter("filter field is required")
	}
	if !op.Valid() {
		return nil, apperror.NewInvalidFilter("unknown operator: " + string(op)).
			WithDetail("field", field).
			WithDetail("operator", string(op))
	}

	switch op.Category() {
	case CategoryMembership:
		values, ok := sequence(value)
		if !ok {
			return nil, shapeError(field, op, "a list of values")
		}
		return Membership{Name: field, Negate: op == NotInList, Values: values}, nil

	case CategoryNullCheck:
		return NullCheck{Name: field, Negate: op == IsNotNull, Marker: normalize(value)}, nil

	case CategoryPattern:
		s, ok := value.(string)
		if !ok {
			return nil, shapeError(field, op, "a pattern string")
		}
		return Pattern{Name: field, Negate: op == NotLike, Pattern: s}, nil
	}

	if value == nil {
		return nil, shapeError(field, op, "a value; use IS NULL to match empty fields")
	}
	if _, isList := sequence(value); isList {
		return nil, shapeError(field, op, "a single value")
	}
	if _, isMap := value.(map[string]any); isMap {
		return nil, shapeError(field, op, "a single value")
	}
	return Comparison{Name: field, Op: op, Value: normalize(value)}, nil
}

// MustNew is New for literals known to be valid; it panics on error.
func MustNew(field string, op Operator, value any) Filter {
	f, err := New(field, op, value)
	if err != nil {
		panic(err)
	}
	return f
}

func shapeError(field string, op Operator, want string) error {
	return apperror.NewInvalidFilter(fmt.Sprintf("%s %s requires %s", field, op, want)).
		WithDetail("field", field).
		WithDetail("operator", string(op))
}

// sequence converts any slice or array (but not a string or []byte) to []any.
func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = normalize(rv.Index(i).Interface())
	}
	return out, true
}

// normalize maps every numeric representation onto int64 or float64 so that
// a filter built in code equals the same filter read back from JSON.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		s := n.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
		if f, err := n.Float64(); err == nil {
			return wholeToInt(f)
		}
		return s
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return wholeToInt(float64(n))
	case float64:
		return wholeToInt(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// wholeToInt maps whole floats within int64 range to int64. JSON does not
// keep 12.0 apart from 12, so both forms must normalize alike.
func wholeToInt(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}
