package schema

import (
	"fmt"
	"sort"
	"strings"

	"docforge/internal/core/apperror"
	"docforge/internal/metadata"
)

// ValidationErrors is the complete set of per-field failures for one
// document. Keys are field paths; rows of a Reference Table are addressed as
// "items[0].qty".
type ValidationErrors struct {
	Doctype string
	Fields  map[string]*metadata.ValidationError
}

func (e *ValidationErrors) Error() string {
	keys := e.Paths()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k].Message
	}
	return fmt.Sprintf("%s: invalid document: %s", e.Doctype, strings.Join(parts, "; "))
}

// Paths returns the failing field paths, sorted.
func (e *ValidationErrors) Paths() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppError converts the set into the API error shape (422, details.fields).
func (e *ValidationErrors) AppError() *apperror.AppError {
	msgs := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		msgs[k] = v.Message
	}
	return apperror.NewFieldErrors(msgs).WithDetail("doctype", e.Doctype)
}

// ValidateBase coerces v against the field's base value type, without the
// null widening. Filters use it to check operand values.
func (f *Field) ValidateBase(v any) (any, error) {
	if v == nil {
		return nil, &metadata.ValidationError{Field: f.Name(), Message: "value is required"}
	}
	return f.Config.Type.Validate(f.Config, v)
}

// ValidateDocument validates every field of raw independently and returns
// the coerced document, or every failure at once. Keys that are not part of
// the schema are dropped.
func (c *Compiled) ValidateDocument(raw map[string]any) (map[string]any, error) {
	return c.validate(raw, false)
}

// ValidatePartial validates only the keys present in raw, as for an update
// payload. Absent required fields are not reported.
func (c *Compiled) ValidatePartial(raw map[string]any) (map[string]any, error) {
	return c.validate(raw, true)
}

func (c *Compiled) validate(raw map[string]any, partial bool) (map[string]any, error) {
	out := make(map[string]any, len(c.Fields))
	errs := make(map[string]*metadata.ValidationError)
	c.validateInto("", raw, out, errs, partial)
	if len(errs) > 0 {
		return nil, &ValidationErrors{Doctype: c.Doctype, Fields: errs}
	}
	return out, nil
}

func (c *Compiled) validateInto(prefix string, raw, out map[string]any, errs map[string]*metadata.ValidationError, partial bool) {
	for _, f := range c.Fields {
		if f.Structural() {
			continue
		}
		name := f.Name()
		path := prefix + name
		v, present := raw[name]

		if !present && partial {
			continue
		}
		if v == nil {
			if f.Nullable {
				if present {
					out[name] = nil
				}
				continue
			}
			errs[path] = &metadata.ValidationError{Field: path, Message: "required, got null"}
			continue
		}

		if f.Config.Type == metadata.TypeReferenceTable {
			out[name] = f.Child.validateRows(path, v, errs)
			continue
		}

		coerced, err := f.Config.Type.Validate(f.Config, v)
		if err != nil {
			errs[path] = &metadata.ValidationError{Field: path, Message: messageOf(err)}
			continue
		}
		out[name] = coerced
	}
}

func (c *Compiled) validateRows(path string, v any, errs map[string]*metadata.ValidationError) []map[string]any {
	var rows []any
	switch t := v.(type) {
	case []any:
		rows = t
	case []map[string]any:
		rows = make([]any, len(t))
		for i, r := range t {
			rows[i] = r
		}
	default:
		errs[path] = &metadata.ValidationError{Field: path, Message: "expected array of rows"}
		return nil
	}

	out := make([]map[string]any, 0, len(rows))
	for i, r := range rows {
		rowPath := fmt.Sprintf("%s[%d]", path, i)
		row, ok := r.(map[string]any)
		if !ok {
			errs[rowPath] = &metadata.ValidationError{Field: rowPath, Message: "expected object"}
			continue
		}
		coerced := make(map[string]any, len(c.Fields))
		c.validateInto(rowPath+".", row, coerced, errs, false)
		out = append(out, coerced)
	}
	return out
}

func messageOf(err error) string {
	if ve, ok := err.(*metadata.ValidationError); ok {
		return ve.Message
	}
	return err.Error()
}
