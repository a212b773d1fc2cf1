package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Coded struct {
	Code string `json:"code"`
}

type order struct {
	Coded
	Customer string    `json:"customer" doctype:"Reference,reference=Customer,required"`
	Status   string    `doctype:"Select,options=Open|Closed"`
	Total    float64   `json:"total"`
	Qty      int       `json:"qty"`
	Paid     bool      `json:"paid"`
	Due      time.Time `json:"due"`
	Vector   []float32 `json:"embedding"`
	Tags     []string  `json:"tags"`
	ID       string    `json:"id"`
	Skipped  string    `json:"-"`
	internal string
}

func TestInspect(t *testing.T) {
	d := Inspect(&order{}, "")
	assert.Equal(t, "order", d.Name)
	require.NoError(t, d.Validate())

	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"code", "customer", "status", "total", "qty", "paid", "due", "embedding", "tags"}, names)

	tests := []struct {
		field string
		typ   FieldType
	}{
		{"code", TypeData},
		{"customer", TypeReference},
		{"status", TypeSelect},
		{"total", TypeFloat},
		{"qty", TypeInteger},
		{"paid", TypeCheck},
		{"due", TypeDatetime},
		{"embedding", TypeVector},
		{"tags", TypeJSON},
	}
	for _, tt := range tests {
		f, ok := d.Field(tt.field)
		require.True(t, ok, tt.field)
		assert.Equal(t, tt.typ, f.Type, tt.field)
	}

	customer, _ := d.Field("customer")
	assert.True(t, customer.Required)
	assert.Equal(t, "Customer", customer.Reference)
	status, _ := d.Field("status")
	assert.Equal(t, []string{"Open", "Closed"}, status.SelectOptions())
	assert.Equal(t, "Status", status.Label)
}

func TestBuiltinDoctypes(t *testing.T) {
	builtins := BuiltinDoctypes()
	require.Len(t, builtins, 1)
	user := builtins[0]
	assert.Equal(t, UserDoctype, user.Name)
	require.NoError(t, user.Validate())

	email, ok := user.Field("email")
	require.True(t, ok)
	assert.Equal(t, TypeEmail, email.Type)
	assert.True(t, email.Unique)

	name, _ := user.Field("full_name")
	assert.Equal(t, "Full Name", name.Label)
}
