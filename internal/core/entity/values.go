// Package entity provides the runtime document type and its lifecycle.
package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Values holds a document's field values keyed by field name.
// Implements sql.Scanner and driver.Valuer so a document body can live in a
// JSON/JSONB column.
//
// Numbers are decoded as json.Number so integer and decimal values survive a
// round trip through storage unchanged.
type Values map[string]any

// Scan implements sql.Scanner.
func (v *Values) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var source []byte
	switch s := src.(type) {
	case []byte:
		source = s
	case string:
		source = []byte(s)
	default:
		return fmt.Errorf("unsupported type for Values: %T", src)
	}

	if len(source) == 0 {
		*v = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(source))
	decoder.UseNumber()

	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return fmt.Errorf("failed to decode Values: %w", err)
	}

	*v = result
	return nil
}

// Value implements driver.Valuer.
func (v Values) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetString returns the string value or "" if absent or not a string.
func (v Values) GetString(key string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return ""
}

// GetInt returns an integer value, handling json.Number.
func (v Values) GetInt(key string) int64 {
	switch n := v[key].(type) {
	case json.Number:
		i, _ := n.Int64()
		return i
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// GetDecimal returns a numeric value with full precision.
func (v Values) GetDecimal(key string) decimal.Decimal {
	switch n := v[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	}
	return decimal.Zero
}

// Has reports whether key is present, including explicit nulls.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Clone returns a copy. Nested rows are copied one level deep so that a
// transition never shares a row map with the document it came from.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		switch rows := val.(type) {
		case []map[string]any:
			cp := make([]map[string]any, len(rows))
			for i, r := range rows {
				cp[i] = Values(r).Clone()
			}
			out[k] = cp
		default:
			out[k] = val
		}
	}
	return out
}
