package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError is a coercion or constraint failure for one field's value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(f FieldConfig, format string, args ...any) error {
	return &ValidationError{Field: f.Name, Message: fmt.Sprintf(format, args...)}
}

// Validate coerces a non-nil raw value to the field's base value type.
// Nullability is not handled here: the schema compiler widens optional and
// standard fields before calling in. Reference Table and Extend are
// structural and are validated by the compiler against the referenced schema.
func (t FieldType) Validate(f FieldConfig, raw any) (any, error) {
	switch t {
	case TypeText, TypeLongText, TypePassword, TypeData, TypeEmail,
		TypeJSON, TypeCode, TypeReference, TypeVirtualReference,
		TypeDate, TypeTime, TypeDatetime:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid(f, "expected string, got %s", kindOf(raw))
		}
		return s, nil

	case TypeFile:
		switch v := raw.(type) {
		case string, []byte, *multipart.FileHeader:
			return v, nil
		case io.Reader:
			return v, nil
		}
		return nil, invalid(f, "expected file path or file content, got %s", kindOf(raw))

	case TypeInteger:
		n, err := toInt(raw)
		if err != nil {
			return nil, invalid(f, "%v", err)
		}
		return n, nil

	case TypeFloat, TypeCurrency:
		n, err := toFloat(raw)
		if err != nil {
			return nil, invalid(f, "%v", err)
		}
		return n, nil

	case TypeCheck:
		if b, ok := raw.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		n, err := toInt(raw)
		if err != nil {
			return nil, invalid(f, "%v", err)
		}
		if n != 0 && n != 1 {
			return nil, invalid(f, "expected 0 or 1, got %d", n)
		}
		return n, nil

	case TypeSelect:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid(f, "expected string, got %s", kindOf(raw))
		}
		opts := f.SelectOptions()
		if len(opts) == 0 {
			return s, nil
		}
		for _, opt := range opts {
			if opt == s {
				return s, nil
			}
		}
		return nil, invalid(f, "%q is not one of %s", s, strings.Join(opts, ", "))

	case TypeVector:
		v, err := toVector(raw)
		if err != nil {
			return nil, invalid(f, "%v", err)
		}
		return v, nil

	case TypeReferenceTable, TypeExtend:
		return nil, invalid(f, "%s fields are validated against the %q schema", t, f.Reference)
	}
	return nil, invalid(f, "unknown field type %q", t)
}

func kindOf(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

// toInt coerces integers, integral floats and numeric strings.
func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", v)
		}
		return int64(v), nil
	case float32:
		return integral(float64(v))
	case float64:
		return integral(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return parseIntString(v.String())
	case string:
		return parseIntString(v)
	}
	return 0, fmt.Errorf("expected integer, got %s", kindOf(raw))
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

func parseIntString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("expected integer, got %q", s)
	}
	return d.IntPart(), nil
}

// toFloat coerces numbers and numeric strings. Strings are parsed as exact
// decimals so "12.50" becomes 12.5 without binary rounding surprises.
func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := toInt(v)
		if err != nil {
			return 0, err
		}
		f = float64(n)
	case json.Number:
		return parseFloatString(v.String())
	case string:
		return parseFloatString(v)
	default:
		return 0, fmt.Errorf("expected number, got %s", kindOf(raw))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected finite number, got %v", f)
	}
	return f, nil
}

func parseFloatString(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}

// toVector accepts a sequence of numbers, or its JSON text form as stored.
func toVector(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return append([]float64{}, v...), nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case string:
		var out []float64
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("expected vector text, got %q", v)
		}
		if out == nil {
			out = []float64{}
		}
		return out, nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected array of numbers, got %s", kindOf(raw))
	}
	out := make([]float64, rv.Len())
	for i := range out {
		elem := rv.Index(i).Interface()
		if _, isString := elem.(string); isString {
			return nil, fmt.Errorf("element %d: expected number, got string", i)
		}
		f, err := toFloat(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", i, err)
		}
		out[i] = f
	}
	return out, nil
}
