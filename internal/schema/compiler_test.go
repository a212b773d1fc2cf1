package schema

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
	"docforge/internal/metadata"
)

var (
	invoiceItem = metadata.Doctype{
		Name: "Invoice Item",
		Fields: []metadata.FieldConfig{
			{Name: "item", Type: metadata.TypeData, Required: true},
			{Name: "qty", Type: metadata.TypeInteger, Required: true},
			{Name: "rate", Type: metadata.TypeCurrency},
		},
	}
	invoice = metadata.Doctype{
		Name: "Invoice",
		Fields: []metadata.FieldConfig{
			{Name: "customer", Type: metadata.TypeData, Required: true, Label: "Customer Name"},
			{Name: "items", Type: metadata.TypeReferenceTable, Reference: "Invoice Item"},
			{Name: "embedding", Type: metadata.TypeVector},
			{Name: "remarks", Type: metadata.TypeText, AllowOnSubmit: true},
		},
	}
	address = metadata.Doctype{
		Name: "Address",
		Fields: []metadata.FieldConfig{
			{Name: "city", Type: metadata.TypeData, Required: true},
			{Name: "zip", Type: metadata.TypeData},
		},
	}
	customer = metadata.Doctype{
		Name: "Customer",
		Fields: []metadata.FieldConfig{
			{Name: "full_name", Type: metadata.TypeData, Required: true},
			{Name: "address", Type: metadata.TypeExtend, Reference: "Address"},
		},
	}
)

// billing mirrors a typical invoice: a plain Reference to Customer, a required
// amount and a table of InvoiceItem rows.
func billing() *metadata.Registry {
	return metadata.NewRegistry().MustRegister(
		metadata.Doctype{
			Name: "Customer",
			Fields: []metadata.FieldConfig{
				{Name: "full_name", Type: metadata.TypeData, Required: true},
			},
		},
		metadata.Doctype{
			Name: "InvoiceItem",
			Fields: []metadata.FieldConfig{
				{Name: "item", Type: metadata.TypeData, Required: true},
				{Name: "qty", Type: metadata.TypeInteger},
			},
		},
		metadata.Doctype{
			Name: "Invoice",
			Fields: []metadata.FieldConfig{
				{Name: "customer", Type: metadata.TypeReference, Reference: "Customer"},
				{Name: "amount", Type: metadata.TypeCurrency, Required: true},
				{Name: "items", Type: metadata.TypeReferenceTable, Reference: "InvoiceItem"},
			},
		},
	)
}

func fixtures() *metadata.Registry {
	return metadata.NewRegistry().MustRegister(invoiceItem, invoice, address, customer)
}

func compile(t *testing.T, r metadata.Lookup, name string) *Compiled {
	t.Helper()
	c, err := NewCompiler(r).CompileByName(context.Background(), name, Options{})
	require.NoError(t, err)
	return c
}

func fieldNames(c *Compiled) []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name()
	}
	return out
}

func TestCompile_StandardFieldsFirst(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")

	var want []string
	for _, f := range metadata.StandardFields() {
		want = append(want, f.Name)
	}
	want = append(want, "customer", "items", "embedding", "remarks")
	assert.Equal(t, want, fieldNames(c))

	createdAt, ok := c.Field("created_at")
	require.True(t, ok)
	assert.True(t, createdAt.Standard)
	assert.True(t, createdAt.Nullable, "standard fields are filled by the system")

	cust, _ := c.Field("customer")
	assert.False(t, cust.Nullable)
	assert.Equal(t, "string", cust.TypeScript())

	items, _ := c.Field("items")
	require.NotNil(t, items.Child)
	assert.Equal(t, "Invoice Item", items.Child.Doctype)
	assert.Equal(t, metadata.StorageNull, items.Storage)
	assert.Equal(t, "InvoiceItem[] | null", items.TypeScript())

	child, ok := items.Child.Field("qty")
	require.True(t, ok)
	assert.False(t, child.Nullable)
}

func TestCompile_BillingInvoice(t *testing.T) {
	c := compile(t, billing(), "Invoice")

	tests := []struct {
		field    string
		storage  metadata.StorageType
		nullable bool
		ts       string
		zod      string
	}{
		{field: "customer", storage: metadata.StorageText, nullable: true, ts: "string | null", zod: "z.string().nullish()"},
		{field: "amount", storage: metadata.StorageFloat, nullable: false, ts: "number", zod: "z.coerce.number()"},
		{field: "items", storage: metadata.StorageNull, nullable: true, ts: "InvoiceItem[] | null", zod: "z.array(InvoiceItemSchema).nullish()"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := c.Field(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.storage, f.Storage)
			assert.Equal(t, tt.nullable, f.Nullable)
			assert.Equal(t, tt.ts, f.TypeScript())
			assert.Equal(t, tt.zod, f.Zod())
		})
	}

	cust, _ := c.Field("customer")
	assert.Nil(t, cust.Child, "plain references are not resolved")
	items, _ := c.Field("items")
	require.NotNil(t, items.Child)
	assert.Equal(t, "InvoiceItem", items.Child.Doctype)

	out, err := c.ValidateDocument(map[string]any{"amount": "12.50", "customer": nil})
	require.NoError(t, err)
	assert.Equal(t, 12.5, out["amount"])
	assert.Nil(t, out["customer"])

	_, err = c.ValidateDocument(map[string]any{"customer": "CUST-1"})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"amount"}, verrs.Paths())
	assert.Equal(t, "required, got null", verrs.Fields["amount"].Message)
}

func TestCompile_Options(t *testing.T) {
	var calls atomic.Int32
	lookup := metadata.LookupFunc(func(ctx context.Context, name string) (metadata.Doctype, error) {
		calls.Add(1)
		return fixtures().Resolve(ctx, name)
	})
	compiler := NewCompiler(lookup)

	c, err := compiler.Compile(context.Background(), invoice, Options{
		ExcludeStandardFields: true,
		ExcludeRelational:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer", "embedding", "remarks"}, fieldNames(c))
	assert.Zero(t, calls.Load(), "flat compiles never call the lookup")

	_, err = compiler.Compile(context.Background(), invoice, Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompile_ExtendFlattens(t *testing.T) {
	c := compile(t, fixtures(), "Customer")

	names := fieldNames(c)
	assert.Equal(t, []string{"full_name", "address", "city", "zip"}, names[len(names)-4:])

	city, ok := c.Field("city")
	require.True(t, ok)
	assert.Equal(t, "Address", city.Origin)
	assert.False(t, city.Nullable)

	ext, _ := c.Field("address")
	assert.True(t, ext.Structural())
	assert.False(t, ext.Nullable, "extend fields have no value to null out")
	assert.Equal(t, "Address", ext.TypeScript())
	assert.Equal(t, "AddressSchema", ext.Zod())
	_, hasStd := ext.Child.Field("id")
	assert.False(t, hasStd, "extended doctypes contribute only their own fields")
}

func TestCompile_ExtendConflict(t *testing.T) {
	r := fixtures().MustRegister(metadata.Doctype{
		Name: "Branch",
		Fields: []metadata.FieldConfig{
			{Name: "city", Type: metadata.TypeData},
			{Name: "address", Type: metadata.TypeExtend, Reference: "Address"},
		},
	})
	_, err := NewCompiler(r).CompileByName(context.Background(), "Branch", Options{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeFieldConflict))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, []string{"Branch", "Address"}, appErr.Details["sources"])
}

func TestCompile_Cycles(t *testing.T) {
	tests := []struct {
		name     string
		doctypes []metadata.Doctype
		root     string
		wantPath []string
	}{
		{
			name: "self extend",
			doctypes: []metadata.Doctype{
				{Name: "A", Fields: []metadata.FieldConfig{{Name: "a", Type: metadata.TypeExtend, Reference: "A"}}},
			},
			root:     "A",
			wantPath: []string{"A", "A"},
		},
		{
			name: "table loop",
			doctypes: []metadata.Doctype{
				{Name: "A", Fields: []metadata.FieldConfig{{Name: "bs", Type: metadata.TypeReferenceTable, Reference: "B"}}},
				{Name: "B", Fields: []metadata.FieldConfig{{Name: "c", Type: metadata.TypeExtend, Reference: "C"}}},
				{Name: "C", Fields: []metadata.FieldConfig{{Name: "as", Type: metadata.TypeReferenceTable, Reference: "A"}}},
			},
			root:     "A",
			wantPath: []string{"A", "B", "C", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := metadata.NewRegistry().MustRegister(tt.doctypes...)
			_, err := NewCompiler(r).CompileByName(context.Background(), tt.root, Options{})
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeCyclicSchemaReference))
			appErr, _ := apperror.AsAppError(err)
			assert.Equal(t, tt.wantPath, appErr.Details["path"])
		})
	}
}

func TestCompile_SharedReferenceIsNotACycle(t *testing.T) {
	r := metadata.NewRegistry().MustRegister(
		metadata.Doctype{Name: "Leaf", Fields: []metadata.FieldConfig{{Name: "v", Type: metadata.TypeData}}},
		metadata.Doctype{Name: "Left", Fields: []metadata.FieldConfig{{Name: "leaves", Type: metadata.TypeReferenceTable, Reference: "Leaf"}}},
		metadata.Doctype{Name: "Right", Fields: []metadata.FieldConfig{{Name: "leaves", Type: metadata.TypeReferenceTable, Reference: "Leaf"}}},
		metadata.Doctype{Name: "Root", Fields: []metadata.FieldConfig{
			{Name: "left", Type: metadata.TypeReferenceTable, Reference: "Left"},
			{Name: "right", Type: metadata.TypeReferenceTable, Reference: "Right"},
		}},
	)
	c := compile(t, r, "Root")
	left, _ := c.Field("left")
	leaves, ok := left.Child.Field("leaves")
	require.True(t, ok)
	assert.Equal(t, "Leaf", leaves.Child.Doctype)
}

func TestCompile_LookupFailures(t *testing.T) {
	r := metadata.NewRegistry().MustRegister(metadata.Doctype{
		Name:   "Order",
		Fields: []metadata.FieldConfig{{Name: "lines", Type: metadata.TypeReferenceTable, Reference: "Order Line"}},
	})

	_, err := NewCompiler(r).CompileByName(context.Background(), "Order", Options{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeLookupFailed))
	assert.True(t, metadata.IsNotFound(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "Order Line", appErr.Details["doctype"])

	boom := errors.New("connection reset")
	failing := metadata.LookupFunc(func(ctx context.Context, name string) (metadata.Doctype, error) {
		return metadata.Doctype{}, boom
	})
	_, err = NewCompiler(failing).CompileByName(context.Background(), "Order", Options{})
	assert.True(t, apperror.IsCode(err, apperror.CodeLookupFailed))
	assert.ErrorIs(t, err, boom)
	assert.False(t, metadata.IsNotFound(err))

	_, err = NewCompiler(nil).CompileByName(context.Background(), "Order", Options{})
	assert.True(t, apperror.IsCode(err, apperror.CodeLookupFailed))
}

func TestCompile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCompiler(fixtures()).Compile(ctx, invoice, Options{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeLookupFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile_UnknownFieldType(t *testing.T) {
	d := metadata.Doctype{Name: "Odd", Fields: []metadata.FieldConfig{{Name: "x", Type: "Blob"}}}
	_, err := NewCompiler(nil).Compile(context.Background(), d, Options{})
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownFieldType))
}

func TestCompiled_SubmitFrozenAndColumns(t *testing.T) {
	c := compile(t, fixtures(), "Invoice")
	assert.Equal(t, []string{"customer", "items", "embedding"}, c.SubmitFrozen())

	for _, f := range c.Columns() {
		assert.NotEqual(t, "items", f.Name())
	}
	assert.Len(t, c.Columns(), len(c.Fields)-1)
}
