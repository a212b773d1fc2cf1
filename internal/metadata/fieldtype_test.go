package metadata

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"docforge/internal/core/apperror"
)

func TestParseFieldType(t *testing.T) {
	got, err := ParseFieldType("reference table")
	require.NoError(t, err)
	assert.Equal(t, TypeReferenceTable, got)

	_, err = ParseFieldType("Blob")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownFieldType))
}

func TestFieldType_Unmarshal(t *testing.T) {
	var f FieldConfig
	require.NoError(t, json.Unmarshal([]byte(`{"name":"qty","type":"integer"}`), &f))
	assert.Equal(t, TypeInteger, f.Type)

	require.NoError(t, yaml.Unmarshal([]byte("name: due\ntype: Date\n"), &f))
	assert.Equal(t, TypeDate, f.Type)

	err := json.Unmarshal([]byte(`{"name":"x","type":"Blob"}`), &f)
	assert.Error(t, err)
}

func TestFieldType_Storage(t *testing.T) {
	tests := []struct {
		typ  FieldType
		want StorageType
	}{
		{TypeData, StorageText},
		{TypeJSON, StorageText},
		{TypeVector, StorageText},
		{TypeInteger, StorageInteger},
		{TypeCheck, StorageInteger},
		{TypeFloat, StorageFloat},
		{TypeCurrency, StorageFloat},
		{TypeReferenceTable, StorageNull},
		{TypeExtend, StorageNull},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Storage())
		})
	}

	for _, typ := range FieldTypes {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, FieldType("Blob").Valid())
}

func TestFieldType_Validate(t *testing.T) {
	selectField := FieldConfig{Name: "status", Type: TypeSelect, Options: "Open\n Closed \n\n"}

	tests := []struct {
		name    string
		typ     FieldType
		field   FieldConfig
		raw     any
		want    any
		wantErr bool
	}{
		{name: "data string", typ: TypeData, raw: "x", want: "x"},
		{name: "data rejects number", typ: TypeData, raw: 3, wantErr: true},
		{name: "integer from int", typ: TypeInteger, raw: 7, want: int64(7)},
		{name: "integer from integral float", typ: TypeInteger, raw: 7.0, want: int64(7)},
		{name: "integer from string", typ: TypeInteger, raw: " 42 ", want: int64(42)},
		{name: "integer from json number", typ: TypeInteger, raw: json.Number("9"), want: int64(9)},
		{name: "integer rejects fraction", typ: TypeInteger, raw: 1.5, wantErr: true},
		{name: "integer rejects 2^63", typ: TypeInteger, raw: math.Pow(2, 63), wantErr: true},
		{name: "integer accepts -2^63", typ: TypeInteger, raw: -math.Pow(2, 63), want: int64(math.MinInt64)},
		{name: "integer rejects word", typ: TypeInteger, raw: "many", wantErr: true},
		{name: "float from string", typ: TypeFloat, raw: "12.50", want: 12.5},
		{name: "currency from int", typ: TypeCurrency, raw: 3, want: 3.0},
		{name: "float rejects bool", typ: TypeFloat, raw: true, wantErr: true},
		{name: "check from bool", typ: TypeCheck, raw: true, want: int64(1)},
		{name: "check from zero", typ: TypeCheck, raw: 0, want: int64(0)},
		{name: "check rejects two", typ: TypeCheck, raw: 2, wantErr: true},
		{name: "select option", typ: TypeSelect, field: selectField, raw: "Closed", want: "Closed"},
		{name: "select unknown option", typ: TypeSelect, field: selectField, raw: "Done", wantErr: true},
		{name: "select without options", typ: TypeSelect, raw: "any", want: "any"},
		{name: "vector from numbers", typ: TypeVector, raw: []any{1, 2.5}, want: []float64{1, 2.5}},
		{name: "vector from text", typ: TypeVector, raw: "[0.5,1]", want: []float64{0.5, 1}},
		{name: "vector rejects strings", typ: TypeVector, raw: []any{"a"}, wantErr: true},
		{name: "file path", typ: TypeFile, raw: "/tmp/a.pdf", want: "/tmp/a.pdf"},
		{name: "file rejects number", typ: TypeFile, raw: 1, wantErr: true},
		{name: "structural", typ: TypeReferenceTable, raw: []any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.field
			if f.Name == "" {
				f = FieldConfig{Name: "f", Type: tt.typ}
			}
			got, err := tt.typ.Validate(f, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				assert.Equal(t, f.Name, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectOptions(t *testing.T) {
	f := FieldConfig{Options: "A\n\n B \nC"}
	assert.Equal(t, []string{"A", "B", "C"}, f.SelectOptions())
	assert.Nil(t, FieldConfig{}.SelectOptions())
}

func TestEncodeStorage(t *testing.T) {
	v, err := TypeVector.EncodeStorage([]float64{1, 0.5})
	require.NoError(t, err)
	assert.Equal(t, "[1,0.5]", v)

	back, err := TypeVector.DecodeStorage(v)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5}, back)

	v, err = TypeCheck.EncodeStorage(true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = TypeReferenceTable.EncodeStorage([]any{map[string]any{}})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = TypeData.EncodeStorage(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEncodeStorage_Password(t *testing.T) {
	old := PasswordCost
	PasswordCost = 4
	t.Cleanup(func() { PasswordCost = old })

	hash, err := TypePassword.EncodeStorage("s3cret")
	require.NoError(t, err)
	s, ok := hash.(string)
	require.True(t, ok)
	assert.NotEqual(t, "s3cret", s)
	assert.True(t, CheckPassword(s, "s3cret"))
	assert.False(t, CheckPassword(s, "wrong"))

	again, err := TypePassword.EncodeStorage(s)
	require.NoError(t, err)
	assert.Equal(t, s, again, "an existing hash is stored as is")
}
