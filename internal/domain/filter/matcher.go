package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
)

// Matcher evaluates a filter list against documents held in memory, e.g. a
// client cache or a YAML-backed store without a query engine. The whole list
// is compiled once into a single CEL program.
//
// Absent and null values never satisfy a comparison, membership or pattern
// filter, including != and NOT IN. Numbers compare by value whatever their Go
// type.
type Matcher struct {
	expr string
	prg  cel.Program
	vars map[string]any
}

// NewMatcher compiles l.
func NewMatcher(l List) (*Matcher, error) {
	opts := []cel.EnvOption{
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	}
	vars := make(map[string]any, 2*len(l))
	terms := make([]string, 0, len(l))

	for i, f := range l {
		k, v := fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)
		opts = append(opts, cel.Variable(k, cel.StringType))
		vars[k] = f.Field()

		term, operand, err := celTerm(f, k, v)
		if err != nil {
			return nil, err
		}
		if _, isNullCheck := f.(NullCheck); !isNullCheck {
			opts = append(opts, cel.Variable(v, cel.DynType))
			vars[v] = operand
		}
		terms = append(terms, term)
	}

	expr := "true"
	if len(terms) > 0 {
		expr = strings.Join(terms, " && ")
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("filter env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program filter: %w", err)
	}
	return &Matcher{expr: expr, prg: prg, vars: vars}, nil
}

// Match reports whether values satisfies every filter.
func (m *Matcher) Match(values map[string]any) (bool, error) {
	doc := make(map[string]any, len(values))
	for k, v := range values {
		doc[k] = celValue(v)
	}
	input := make(map[string]any, len(m.vars)+1)
	for k, v := range m.vars {
		input[k] = v
	}
	input["doc"] = doc

	out, _, err := m.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", m.expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", m.expr, out.Value())
	}
	return b, nil
}

// celTerm renders one filter as a CEL boolean expression over doc[k] and
// returns the operand bound to v.
func celTerm(f Filter, k, v string) (string, any, error) {
	present := fmt.Sprintf("(%[1]s in doc && doc[%[1]s] != null)", k)
	val := fmt.Sprintf("doc[%s]", k)

	switch t := f.(type) {
	case Comparison:
		switch t.Op {
		case Equal:
			return fmt.Sprintf("(%s && %s == %s)", present, val, v), celValue(t.Value), nil
		case NotEqual:
			return fmt.Sprintf("(%s && %s != %s)", present, val, v), celValue(t.Value), nil
		default:
			return fmt.Sprintf("(%s && type(%s) == type(%s) && %s %s %s)", present, val, v, val, t.Op, v),
				celValue(t.Value), nil
		}

	case Membership:
		list := make([]any, len(t.Values))
		for i, e := range t.Values {
			list[i] = celValue(e)
		}
		if t.Negate {
			return fmt.Sprintf("(%s && !(%s in %s))", present, val, v), list, nil
		}
		return fmt.Sprintf("(%s && %s in %s)", present, val, v), list, nil

	case Pattern:
		match := fmt.Sprintf("%s.matches(%s)", val, v)
		if t.Negate {
			match = "!" + match
		}
		return fmt.Sprintf("(%s && type(%s) == string && %s)", present, val, match), LikeToRegexp(t.Pattern), nil

	case NullCheck:
		if t.Negate {
			return present, nil, nil
		}
		return "!" + present, nil, nil
	}
	return "", nil, fmt.Errorf("unsupported filter %T", f)
}

// LikeToRegexp converts an SQL LIKE pattern to an anchored regular
// expression: % matches any run of characters and _ exactly one.
func LikeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// celValue maps numbers onto float64 so ordering works across Integer and
// Float fields.
func celValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = celValue(e)
		}
		return out
	}
	return v
}
