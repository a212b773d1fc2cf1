package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
)

func TestValidateDocument(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")

	tests := []struct {
		name      string
		raw       map[string]any
		want      map[string]any
		wantPaths []string
	}{
		{
			name: "coerces and drops unknown keys",
			raw: map[string]any{
				"customer":  "ACME",
				"items":     []any{map[string]any{"item": "bolt", "qty": "3", "rate": json.Number("1.25")}},
				"embedding": []any{1, 0.5},
				"unknown":   true,
			},
			want: map[string]any{
				"customer":  "ACME",
				"items":     []map[string]any{{"item": "bolt", "qty": int64(3), "rate": 1.25}},
				"embedding": []float64{1, 0.5},
			},
		},
		{
			name: "explicit null on optional field is kept",
			raw:  map[string]any{"customer": "ACME", "remarks": nil},
			want: map[string]any{"customer": "ACME", "remarks": nil},
		},
		{
			name: "collects every failure",
			raw: map[string]any{
				"customer": nil,
				"items": []any{
					map[string]any{"item": "ok", "qty": 1},
					map[string]any{"qty": "many"},
					"not a row",
				},
				"embedding": "oops",
			},
			wantPaths: []string{"customer", "embedding", "items[1].item", "items[1].qty", "items[2]"},
		},
		{
			name:      "table must be an array",
			raw:       map[string]any{"customer": "ACME", "items": map[string]any{}},
			wantPaths: []string{"items"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ValidateDocument(tt.raw)
			if tt.wantPaths != nil {
				require.Error(t, err)
				var verrs *ValidationErrors
				require.ErrorAs(t, err, &verrs)
				assert.Equal(t, tt.wantPaths, verrs.Paths())
				assert.Equal(t, "Invoice", verrs.Doctype)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePartial(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")

	got, err := c.ValidatePartial(map[string]any{"remarks": "late"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"remarks": "late"}, got)

	_, err = c.ValidatePartial(map[string]any{"customer": nil})
	require.Error(t, err)

	_, err = c.ValidateDocument(map[string]any{"remarks": "late"})
	require.Error(t, err, "a full document still needs its required fields")
}

func TestValidationErrors_AppError(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")
	_, err := c.ValidateDocument(map[string]any{"items": []any{map[string]any{"item": "x", "qty": 1.5}}})

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	appErr := verrs.AppError()
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, 422, appErr.HTTPStatus)

	fields, ok := appErr.Details["fields"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "customer")
	assert.Contains(t, fields, "items[0].qty")
	assert.Contains(t, err.Error(), "items[0].qty")
}

func TestField_ValidateBase(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")
	f, _ := c.Field("remarks")

	_, err := f.ValidateBase(nil)
	assert.Error(t, err, "nullable fields still reject a null operand")

	v, err := f.ValidateBase("x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
