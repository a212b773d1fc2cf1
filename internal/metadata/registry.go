package metadata

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"docforge/internal/core/apperror"
)

// FieldConfig is one field's declaration within a doctype.
type FieldConfig struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`

	// Default is a literal or a generator token (HEX(), NOW()) resolved at
	// document creation.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Reference names another doctype. Set only for Reference, Virtual
	// Reference, Reference Table and Extend.
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Options is newline-delimited: the closed value set for Select, the
	// sub-language hint for Code.
	Options string `json:"options,omitempty" yaml:"options,omitempty"`

	Unique   bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	OnDelete string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`

	// Presentation and lifecycle flags, carried through compilation verbatim.
	OnlyCreate    bool `json:"only_create,omitempty" yaml:"only_create,omitempty"`
	ReadOnly      bool `json:"readonly,omitempty" yaml:"readonly,omitempty"`
	Hidden        bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	NoCopy        bool `json:"no_copy,omitempty" yaml:"no_copy,omitempty"`
	InListView    bool `json:"in_list_view,omitempty" yaml:"in_list_view,omitempty"`
	AllowOnSubmit bool `json:"allow_on_submit,omitempty" yaml:"allow_on_submit,omitempty"`
}

// SelectOptions returns the newline-separated options, trimmed, without blanks.
func (f FieldConfig) SelectOptions() []string {
	if f.Options == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(f.Options, "\n") {
		if opt := strings.TrimSpace(line); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}

// Doctype is a named, ordered list of field declarations.
type Doctype struct {
	Name        string        `json:"name" yaml:"name"`
	Label       string        `json:"label,omitempty" yaml:"label,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldConfig `json:"fields" yaml:"fields"`
}

// Field returns the field declared under name.
func (d Doctype) Field(name string) (FieldConfig, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// Clone returns a copy whose field slice can be modified freely.
func (d Doctype) Clone() Doctype {
	d.Fields = append([]FieldConfig(nil), d.Fields...)
	return d
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the doctype definition itself: field names, field types and
// the reference invariant. It runs where definitions enter the system (loader,
// stores, registry), not during compilation.
func (d Doctype) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return apperror.NewInvalidDoctype(d.Name, "doctype name is required")
	}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return apperror.NewInvalidDoctype(d.Name, fmt.Sprintf("invalid field name %q", f.Name)).
				WithDetail("field", f.Name)
		}
		if seen[f.Name] {
			return apperror.NewInvalidDoctype(d.Name, fmt.Sprintf("duplicate field %q", f.Name)).
				WithDetail("field", f.Name)
		}
		seen[f.Name] = true

		if IsStandardField(f.Name) {
			return apperror.NewInvalidDoctype(d.Name, fmt.Sprintf("field %q is a standard field", f.Name)).
				WithDetail("field", f.Name)
		}
		if !f.Type.Valid() {
			return apperror.NewUnknownFieldType(string(f.Type)).
				WithDetail("doctype", d.Name).
				WithDetail("field", f.Name)
		}

		hasRef := strings.TrimSpace(f.Reference) != ""
		if f.Type.NeedsReference() && !hasRef {
			return apperror.NewInvalidDoctype(d.Name,
				fmt.Sprintf("field %q of type %s must name a reference doctype", f.Name, f.Type)).
				WithDetail("field", f.Name)
		}
		if !f.Type.NeedsReference() && hasRef {
			return apperror.NewInvalidDoctype(d.Name,
				fmt.Sprintf("field %q of type %s cannot have a reference", f.Name, f.Type)).
				WithDetail("field", f.Name)
		}
	}
	return nil
}

// Registry is an in-memory doctype store. It implements Lookup and is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	doctypes map[string]Doctype
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		doctypes: make(map[string]Doctype),
	}
}

// Register validates and stores a doctype, replacing any previous definition.
func (r *Registry) Register(d Doctype) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.doctypes[d.Name] = d.Clone()
	r.mu.Unlock()
	return nil
}

// MustRegister is Register for fixtures and built-ins; it panics on error.
func (r *Registry) MustRegister(defs ...Doctype) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns a copy of the named doctype.
func (r *Registry) Get(name string) (Doctype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctypes[name]
	if !ok {
		return Doctype{}, false
	}
	return d.Clone(), true
}

// Remove drops a doctype. It reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.doctypes[name]
	delete(r.doctypes, name)
	return ok
}

// List returns all doctypes sorted by name.
func (r *Registry) List() []Doctype {
	r.mu.RLock()
	list := make([]Doctype, 0, len(r.doctypes))
	for _, def := range r.doctypes {
		list = append(list, def.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Resolve implements Lookup.
func (r *Registry) Resolve(ctx context.Context, name string) (Doctype, error) {
	if err := ctx.Err(); err != nil {
		return Doctype{}, err
	}
	d, ok := r.Get(name)
	if !ok {
		return Doctype{}, fmt.Errorf("%w: %s", ErrDoctypeNotFound, name)
	}
	return d, nil
}
