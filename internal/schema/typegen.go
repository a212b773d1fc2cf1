package schema

import (
	"bytes"
	"io"
	"strings"
	"text/template"

	"docforge/internal/metadata"
)

// TypeScript returns the field's generated type text.
func (f *Field) TypeScript() string {
	return f.Type.TypeScript()
}

// Zod returns the field's generated runtime validator text.
func (f *Field) Zod() string {
	return f.Type.Zod(f.Config.Type)
}

type declaration struct {
	Name    string
	Extends []string
	Props   []property
}

type property struct {
	Name     string
	Optional bool
	TS       string
	Zod      string
	Comment  string
}

var declTemplate = template.Must(template.New("decl").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`// Code generated by docforge typegen. DO NOT EDIT.

import { z } from "zod";
{{range .}}
export interface {{.Name}}{{if .Extends}} extends {{join .Extends ", "}}{{end}} {
{{- range .Props}}
{{- if .Comment}}
  /** {{.Comment}} */
{{- end}}
  {{.Name}}{{if .Optional}}?{{end}}: {{.TS}};
{{- end}}
}

export const {{.Name}}Schema = z.object({
{{- range .Props}}
  {{.Name}}: {{.Zod}},
{{- end}}
}){{range .Extends}}.merge({{.}}Schema){{end}};
{{end}}`))

// RenderTypeScript writes TypeScript interfaces and zod schemas for the given
// compiled doctypes and every doctype they reference. Referenced doctypes are
// emitted before their users; output depends only on the inputs.
func RenderTypeScript(w io.Writer, roots ...*Compiled) error {
	var decls []declaration
	seen := make(map[string]bool)
	for _, c := range roots {
		collect(c, seen, &decls)
	}
	var buf bytes.Buffer
	if err := declTemplate.Execute(&buf, decls); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// collect walks the reference graph depth-first, dependencies first.
func collect(c *Compiled, seen map[string]bool, out *[]declaration) {
	if seen[c.Doctype] {
		return
	}
	seen[c.Doctype] = true

	d := declaration{Name: metadata.TypeName(c.Doctype)}
	for _, f := range c.Fields {
		if f.Child != nil {
			collect(f.Child, seen, out)
		}
		if f.Origin != c.Doctype {
			continue // declared by an extended doctype
		}
		if f.Structural() {
			d.Extends = append(d.Extends, metadata.TypeName(f.Config.Reference))
			continue
		}
		d.Props = append(d.Props, property{
			Name:     f.Name(),
			Optional: f.Nullable,
			TS:       f.TypeScript(),
			Zod:      f.Zod(),
			Comment:  commentText(f.Config),
		})
	}
	*out = append(*out, d)
}

func commentText(f metadata.FieldConfig) string {
	text := f.Description
	if text == "" && f.Label != "" && f.Label != f.Name {
		text = f.Label
	}
	return strings.ReplaceAll(strings.ReplaceAll(text, "*/", "* /"), "\n", " ")
}
