package metadata

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// TypeKind is the shape of a generated type expression.
type TypeKind string

const (
	KindString        TypeKind = "string"
	KindNumber        TypeKind = "number"
	KindStringLiteral TypeKind = "string_literal" // closed union of string literals
	KindNumberLiteral TypeKind = "number_literal" // closed union of integer literals
	KindArray         TypeKind = "array"
	KindRef           TypeKind = "ref" // another doctype's generated type
)

// TypeExpr is a structural description of a field's exported type.
type TypeExpr struct {
	Kind     TypeKind  `json:"kind"`
	Strings  []string  `json:"strings,omitempty"`
	Numbers  []int64   `json:"numbers,omitempty"`
	Elem     *TypeExpr `json:"elem,omitempty"`
	Ref      string    `json:"ref,omitempty"`
	Nullable bool      `json:"nullable,omitempty"`
}

// Describe returns the variant's type expression. Relational variants only
// need the referenced doctype's name, not its schema.
func (t FieldType) Describe(f FieldConfig) TypeExpr {
	switch t {
	case TypeInteger, TypeFloat, TypeCurrency:
		return TypeExpr{Kind: KindNumber}
	case TypeCheck:
		return TypeExpr{Kind: KindNumberLiteral, Numbers: []int64{0, 1}}
	case TypeSelect:
		if opts := f.SelectOptions(); len(opts) > 0 {
			return TypeExpr{Kind: KindStringLiteral, Strings: opts}
		}
		return TypeExpr{Kind: KindString}
	case TypeVector:
		return TypeExpr{Kind: KindArray, Elem: &TypeExpr{Kind: KindNumber}}
	case TypeReferenceTable:
		return TypeExpr{Kind: KindArray, Elem: &TypeExpr{Kind: KindRef, Ref: f.Reference}}
	case TypeExtend:
		return TypeExpr{Kind: KindRef, Ref: f.Reference}
	default:
		return TypeExpr{Kind: KindString}
	}
}

// TypeScript renders the expression as TypeScript source text. Output is a
// pure function of the expression.
func (e TypeExpr) TypeScript() string {
	var s string
	switch e.Kind {
	case KindNumber:
		s = "number"
	case KindStringLiteral:
		parts := make([]string, len(e.Strings))
		for i, lit := range e.Strings {
			parts[i] = quote(lit)
		}
		s = strings.Join(parts, " | ")
	case KindNumberLiteral:
		parts := make([]string, len(e.Numbers))
		for i, n := range e.Numbers {
			parts[i] = strconv.FormatInt(n, 10)
		}
		s = strings.Join(parts, " | ")
	case KindArray:
		elem := "unknown"
		if e.Elem != nil {
			elem = e.Elem.TypeScript()
			if e.Elem.Nullable || e.Elem.isUnion() {
				elem = "(" + elem + ")"
			}
		}
		s = elem + "[]"
	case KindRef:
		s = TypeName(e.Ref)
	default:
		s = "string"
	}
	if e.Nullable {
		s += " | null"
	}
	return s
}

func (e TypeExpr) isUnion() bool {
	return (e.Kind == KindStringLiteral && len(e.Strings) > 1) ||
		(e.Kind == KindNumberLiteral && len(e.Numbers) > 1)
}

// Zod renders a zod-style runtime validator expression for client code.
// Relational types refer to "<TypeName>Schema".
func (e TypeExpr) Zod(t FieldType) string {
	var s string
	switch e.Kind {
	case KindNumber:
		s = "z.coerce.number()"
		if t == TypeInteger {
			s += ".int()"
		}
	case KindNumberLiteral:
		s = "z.coerce.number().int().min(0).max(1)"
	case KindStringLiteral:
		parts := make([]string, len(e.Strings))
		for i, lit := range e.Strings {
			parts[i] = quote(lit)
		}
		s = "z.enum([" + strings.Join(parts, ", ") + "])"
	case KindArray:
		if e.Elem != nil && e.Elem.Kind == KindRef {
			s = "z.array(" + TypeName(e.Elem.Ref) + "Schema)"
		} else {
			s = "z.array(z.number())"
		}
	case KindRef:
		s = TypeName(e.Ref) + "Schema"
	default:
		switch t {
		case TypeEmail:
			s = "z.string().email()"
		case TypeFile:
			s = "z.union([z.string(), z.instanceof(File)])"
		default:
			s = "z.string()"
		}
	}
	if e.Nullable {
		s += ".nullish()"
	}
	return s
}

// TypeName converts a doctype name into an exported type identifier:
// "Invoice Item" and "invoice_item" both become "InvoiceItem".
func TypeName(doctype string) string {
	var b strings.Builder
	upper := true
	for _, r := range doctype {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteByte('_')
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "Unknown"
	}
	return b.String()
}

// quote renders a string literal valid in both JSON and TypeScript.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
