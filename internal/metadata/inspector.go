package metadata

import (
	"reflect"
	"strings"
	"time"
	"unicode"
)

// Inspect derives a doctype from a Go struct, for doctypes the platform
// declares in code. Field types come from the `doctype` tag when present:
//
//	Email string `json:"email" doctype:"Email,required"`
//	Role  string `json:"role" doctype:"Select,options=Admin|Member"`
//	Lines []Line `json:"lines" doctype:"Reference Table,reference=Order Line"`
//
// and are otherwise inferred from the Go kind. Embedded structs are flattened.
func Inspect(entity any, name string) Doctype {
	t := reflect.TypeOf(entity)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name == "" {
		name = t.Name()
	}

	def := Doctype{
		Name:   name,
		Label:  guessLabel(name),
		Fields: make([]FieldConfig, 0, t.NumField()),
	}
	inspectStruct(t, &def)
	return def
}

func inspectStruct(t reflect.Type, def *Doctype) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.PkgPath != "" { // unexported
			continue
		}

		// Handle embedded structs (flattening)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			inspectStruct(field.Type, def)
			continue
		}

		f := FieldConfig{
			Name:  jsonName(field),
			Label: guessLabel(field.Name),
		}
		if f.Name == "-" || IsStandardField(f.Name) {
			continue
		}

		applyTag(&f, field.Tag.Get("doctype"))
		if f.Type == "" {
			f.Type = inferFieldType(field.Type)
		}
		def.Fields = append(def.Fields, f)
	}
}

// applyTag parses `doctype:"Type,flag,key=value"`.
func applyTag(f *FieldConfig, tag string) {
	if tag == "" {
		return
	}
	parts := strings.Split(tag, ",")
	if t, err := ParseFieldType(parts[0]); err == nil {
		f.Type = t
	}
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch key {
		case "required":
			f.Required = true
		case "readonly":
			f.ReadOnly = true
		case "hidden":
			f.Hidden = true
		case "unique":
			f.Unique = true
		case "in_list_view":
			f.InListView = true
		case "allow_on_submit":
			f.AllowOnSubmit = true
		case "reference":
			f.Reference = value
		case "options":
			f.Options = strings.ReplaceAll(value, "|", "\n")
		case "default":
			f.Default = value
		}
	}
}

func inferFieldType(t reflect.Type) FieldType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return TypeDatetime
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeCheck
	case reflect.Slice, reflect.Array:
		switch t.Elem().Kind() {
		case reflect.Float32, reflect.Float64:
			return TypeVector
		}
		return TypeJSON
	case reflect.Map, reflect.Struct:
		return TypeJSON
	default:
		return TypeData
	}
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			return parts[0]
		}
	}
	// Fallback: snake_case
	return Slug(field.Name)
}

// guessLabel splits CamelCase and snake_case names into words.
func guessLabel(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		if r == '_' || r == '-' {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			prevLower = false
			continue
		}
		if unicode.IsUpper(r) && prevLower {
			b.WriteByte(' ')
		}
		if b.Len() == 0 || strings.HasSuffix(b.String(), " ") {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return b.String()
}

// User is the built-in doctype referenced by the ownership standard fields.
type User struct {
	Email    string `json:"email" doctype:"Email,required,unique,in_list_view"`
	FullName string `json:"full_name" doctype:"Data,in_list_view"`
	Password string `json:"password" doctype:"Password"`
	Enabled  bool   `json:"enabled" doctype:"Check,default=1"`
	Role     string `json:"role" doctype:"Select,options=Administrator|Member|Guest"`
}

// BuiltinDoctypes returns the doctypes every deployment carries.
func BuiltinDoctypes() []Doctype {
	return []Doctype{Inspect(User{}, UserDoctype)}
}
