package metadata

// Standard field names. Every doctype carries them ahead of its own fields.
const (
	FieldID        = "id"
	FieldOwner     = "owner"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldCreatedBy = "created_by"
	FieldUpdatedBy = "updated_by"
	FieldDocStatus = "doc_status"
	FieldIdx       = "idx"
	FieldVector    = "vector"
)

// Default generator tokens.
const (
	DefaultHex = "HEX()"
	DefaultNow = "NOW()"
)

// UserDoctype is the doctype ownership fields point at.
const UserDoctype = "User"

var standardFields = []FieldConfig{
	{Name: FieldID, Type: TypeText, Label: "ID", Unique: true, Default: DefaultHex, ReadOnly: true},
	{Name: FieldOwner, Type: TypeReference, Label: "Owner", Reference: UserDoctype, OnDelete: "SET NULL", ReadOnly: true},
	{Name: FieldCreatedAt, Type: TypeDatetime, Label: "Created At", Required: true, Default: DefaultNow, ReadOnly: true},
	{Name: FieldUpdatedAt, Type: TypeDatetime, Label: "Updated At", Required: true, Default: DefaultNow, ReadOnly: true},
	{Name: FieldCreatedBy, Type: TypeReference, Label: "Created By", Reference: UserDoctype, OnDelete: "SET NULL", ReadOnly: true},
	{Name: FieldUpdatedBy, Type: TypeReference, Label: "Updated By", Reference: UserDoctype, OnDelete: "SET NULL", ReadOnly: true},
	{Name: FieldDocStatus, Type: TypeInteger, Label: "Document Status", Required: true, Default: 0, ReadOnly: true},
	{Name: FieldIdx, Type: TypeInteger, Label: "Index", Default: 0, Hidden: true},
	{Name: FieldVector, Type: TypeText, Label: "Vector", Default: "[]", Hidden: true},
}

var standardFieldSet = func() map[string]bool {
	m := make(map[string]bool, len(standardFields))
	for _, f := range standardFields {
		m[f.Name] = true
	}
	return m
}()

// StandardFields returns a copy of the system-managed fields in their fixed order.
func StandardFields() []FieldConfig {
	return append([]FieldConfig(nil), standardFields...)
}

// IsStandardField reports whether name is one of the system-managed fields.
func IsStandardField(name string) bool {
	return standardFieldSet[name]
}

// WithStandardFields returns a copy of d with the standard fields prefixed.
// A user field that reuses a standard name is dropped; the standard
// definition always wins.
func WithStandardFields(d Doctype) Doctype {
	out := d
	out.Fields = make([]FieldConfig, 0, len(standardFields)+len(d.Fields))
	out.Fields = append(out.Fields, standardFields...)
	for _, f := range d.Fields {
		if IsStandardField(f.Name) {
			continue
		}
		out.Fields = append(out.Fields, f)
	}
	return out
}
