package schema

import (
	"fmt"

	"docforge/internal/metadata"
)

// EncodeRow converts validated values into their stored form: vectors become
// JSON text and passwords bcrypt hashes. Reference Table rows are encoded
// against the child schema. Keys outside the schema pass through.
func (c *Compiled) EncodeRow(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		f, ok := c.index[k]
		if !ok || v == nil {
			out[k] = v
			continue
		}
		if f.Config.Type == metadata.TypeReferenceTable {
			rows, err := f.Child.mapRows(v, f.Child.EncodeRow)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rows
			continue
		}
		enc, err := f.Config.Type.EncodeStorage(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// DecodeRow is the inverse of EncodeRow for values read back from storage.
// Scalars are also normalized to their validated Go types (json.Number to
// int64 or float64) where possible.
func (c *Compiled) DecodeRow(stored map[string]any) map[string]any {
	out := make(map[string]any, len(stored))
	for k, v := range stored {
		f, ok := c.index[k]
		if !ok || v == nil {
			out[k] = v
			continue
		}
		if f.Config.Type == metadata.TypeReferenceTable {
			rows, err := f.Child.mapRows(v, func(r map[string]any) (map[string]any, error) {
				return f.Child.DecodeRow(r), nil
			})
			if err != nil {
				out[k] = v
				continue
			}
			out[k] = rows
			continue
		}
		dec, err := f.Config.Type.DecodeStorage(v)
		if err != nil {
			out[k] = v
			continue
		}
		if norm, err := f.Config.Type.Validate(f.Config, dec); err == nil && f.Config.Type != metadata.TypeFile {
			dec = norm
		}
		out[k] = dec
	}
	return out
}

func (c *Compiled) mapRows(v any, fn func(map[string]any) (map[string]any, error)) ([]map[string]any, error) {
	var rows []map[string]any
	switch t := v.(type) {
	case []map[string]any:
		rows = t
	case []any:
		rows = make([]map[string]any, 0, len(t))
		for i, r := range t {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d: expected object, got %T", i, r)
			}
			rows = append(rows, m)
		}
	default:
		return nil, fmt.Errorf("expected rows, got %T", v)
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m, err := fn(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}
