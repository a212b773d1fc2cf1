package filter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"docforge/internal/core/apperror"
)

// List is an ordered conjunction of filters. On the wire it is a JSON array
// of [field, operator, value] tuples.
type List []Filter

// MarshalJSON writes the tuple form. A nil list encodes as [].
func (l List) MarshalJSON() ([]byte, error) {
	tuples := make([][3]any, len(l))
	for i, f := range l {
		tuples[i] = [3]any{f.Field(), string(f.Operator()), f.Operand()}
	}
	return json.Marshal(tuples)
}

// UnmarshalJSON reads the tuple form.
func (l *List) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse decodes a wire filter list. Integer literals become int64 and other
// numbers float64, so parse(marshal(l)) equals l.
func Parse(data []byte) (List, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, apperror.NewInvalidFilter("filters must be a JSON array of [field, operator, value] tuples").
			WithCause(err)
	}

	out := make(List, 0, len(raw))
	for i, item := range raw {
		f, err := parseTuple(item)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("index", i)
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseTuple(item json.RawMessage) (Filter, error) {
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()

	var tuple []any
	if err := dec.Decode(&tuple); err != nil || len(tuple) != 3 {
		return nil, apperror.NewInvalidFilter(fmt.Sprintf("filter %s is not a [field, operator, value] tuple", item))
	}
	field, ok := tuple[0].(string)
	if !ok {
		return nil, apperror.NewInvalidFilter("filter field must be a string")
	}
	opText, ok := tuple[1].(string)
	if !ok {
		return nil, apperror.NewInvalidFilter("filter operator must be a string").WithDetail("field", field)
	}
	op, err := ParseOperator(opText)
	if err != nil {
		return nil, err
	}
	return New(field, op, tuple[2])
}
