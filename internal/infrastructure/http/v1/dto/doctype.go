package dto

import (
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

// DoctypeSummary is one entry of the doctype list.
type DoctypeSummary struct {
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Fields int    `json:"fields"`
}

// FieldResponse describes one compiled field.
type FieldResponse struct {
	Name          string             `json:"name"`
	Type          metadata.FieldType `json:"type"`
	Label         string             `json:"label,omitempty"`
	Storage       string             `json:"storage"`
	Required      bool               `json:"required"`
	Nullable      bool               `json:"nullable"`
	Standard      bool               `json:"standard,omitempty"`
	AllowOnSubmit bool               `json:"allow_on_submit,omitempty"`
	Origin        string             `json:"origin,omitempty"`
	Reference     string             `json:"reference,omitempty"`
	Options       []string           `json:"options,omitempty"`
	Default       any                `json:"default,omitempty"`
	TypeScript    string             `json:"typescript"`
	Shape         metadata.TypeExpr  `json:"shape"`
	Fields        []FieldResponse    `json:"fields,omitempty"`
}

// SchemaResponse is a compiled doctype.
type SchemaResponse struct {
	Doctype      string          `json:"doctype"`
	TypeName     string          `json:"type_name"`
	SubmitFrozen []string        `json:"submit_frozen"`
	Fields       []FieldResponse `json:"fields"`
}

// FromCompiled converts a compiled schema. Reference Table children are
// nested; Extend fields are omitted since their fields are already flattened.
func FromCompiled(c *schema.Compiled) SchemaResponse {
	return SchemaResponse{
		Doctype:      c.Doctype,
		TypeName:     metadata.TypeName(c.Doctype),
		SubmitFrozen: c.SubmitFrozen(),
		Fields:       fromFields(c),
	}
}

func fromFields(c *schema.Compiled) []FieldResponse {
	out := make([]FieldResponse, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Structural() {
			continue
		}
		r := FieldResponse{
			Name:          f.Name(),
			Type:          f.Config.Type,
			Label:         f.Config.Label,
			Storage:       string(f.Storage),
			Required:      f.Config.Required,
			Nullable:      f.Nullable,
			Standard:      f.Standard,
			AllowOnSubmit: f.Config.AllowOnSubmit,
			Reference:     f.Config.Reference,
			Default:       f.Config.Default,
			TypeScript:    f.TypeScript(),
			Shape:         f.Type,
		}
		if f.Origin != c.Doctype {
			r.Origin = f.Origin
		}
		if f.Config.Type == metadata.TypeSelect {
			r.Options = f.Config.SelectOptions()
		}
		if f.Child != nil {
			r.Fields = fromFields(f.Child)
		}
		out = append(out, r)
	}
	return out
}

// FieldTypeResponse describes one registered field type.
type FieldTypeResponse struct {
	Type           metadata.FieldType `json:"type"`
	Storage        string             `json:"storage"`
	Relational     bool               `json:"relational"`
	NeedsReference bool               `json:"needs_reference"`
}
