package filter

import (
	"fmt"

	"docforge/internal/core/apperror"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

// Validate checks every filter against c and returns the list with operand
// values coerced to the field's base value type. Comparison and membership
// operands must satisfy that type; patterns are strings whatever the field
// type; null-check markers are not inspected.
func (l List) Validate(c *schema.Compiled) (List, error) {
	out := make(List, len(l))
	for i, f := range l {
		bound, err := validateOne(c, f)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("index", i)
			}
			return nil, err
		}
		out[i] = bound
	}
	return out, nil
}

func validateOne(c *schema.Compiled, f Filter) (Filter, error) {
	field, ok := c.Field(f.Field())
	if !ok {
		return nil, apperror.NewInvalidFilter(fmt.Sprintf("unknown field %q", f.Field())).
			WithDetail("field", f.Field()).
			WithDetail("doctype", c.Doctype)
	}
	if field.Storage == metadata.StorageNull {
		return nil, apperror.NewInvalidFilter(fmt.Sprintf("field %q of type %s cannot be filtered", f.Field(), field.Config.Type)).
			WithDetail("field", f.Field())
	}

	switch t := f.(type) {
	case Comparison:
		v, err := field.ValidateBase(t.Value)
		if err != nil {
			return nil, operandError(t, err)
		}
		t.Value = v
		return t, nil

	case Membership:
		values := make([]any, len(t.Values))
		for i, e := range t.Values {
			v, err := field.ValidateBase(e)
			if err != nil {
				return nil, operandError(t, err).WithDetail("element", i)
			}
			values[i] = v
		}
		t.Values = values
		return t, nil
	}
	return f, nil
}

func operandError(f Filter, err error) *apperror.AppError {
	msg := err.Error()
	if ve, ok := err.(*metadata.ValidationError); ok {
		msg = ve.Message
	}
	return apperror.NewInvalidFilter(fmt.Sprintf("%s %s: %s", f.Field(), f.Operator(), msg)).
		WithDetail("field", f.Field()).
		WithDetail("operator", string(f.Operator()))
}
