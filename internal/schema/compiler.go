// Package schema compiles doctype field lists into document validators and
// generated type descriptions.
package schema

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docforge/internal/core/apperror"
	"docforge/internal/metadata"
	"docforge/pkg/logger"
)

var tracer = otel.Tracer("docforge/schema")

// Options tune a single compile.
type Options struct {
	// ExcludeStandardFields compiles only the doctype's own fields.
	ExcludeStandardFields bool
	// ExcludeRelational drops Reference Table and Extend fields, producing a
	// flat shape that never calls the lookup.
	ExcludeRelational bool
}

// Field is one compiled field.
type Field struct {
	Config   metadata.FieldConfig
	Storage  metadata.StorageType
	Type     metadata.TypeExpr
	Nullable bool
	Standard bool
	// Origin is the doctype that declared the field; it differs from the
	// compiled doctype for fields flattened in through Extend.
	Origin string
	// Child is the referenced doctype's compiled schema for Reference Table
	// and Extend fields.
	Child *Compiled
}

// Name returns the field name.
func (f *Field) Name() string { return f.Config.Name }

// Structural reports whether the field carries no value of its own (Extend).
func (f *Field) Structural() bool { return f.Config.Type == metadata.TypeExtend }

// Compiled is a doctype's compiled schema. It is immutable and safe to share.
type Compiled struct {
	Doctype string
	Fields  []*Field
	index   map[string]*Field
}

// Field returns a compiled field by name.
func (c *Compiled) Field(name string) (*Field, bool) {
	f, ok := c.index[name]
	return f, ok
}

// Compiler turns doctypes into Compiled schemas. It holds no mutable state;
// one Compiler may serve concurrent Compile calls.
type Compiler struct {
	lookup metadata.Lookup
}

// NewCompiler creates a compiler that resolves relational references through lookup.
func NewCompiler(lookup metadata.Lookup) *Compiler {
	return &Compiler{lookup: lookup}
}

// Compile compiles d. Reference Table and Extend fields are resolved
// depth-first through the lookup; a doctype that reappears on the resolution
// path fails with CYCLIC_SCHEMA_REFERENCE.
func (c *Compiler) Compile(ctx context.Context, d metadata.Doctype, opts Options) (*Compiled, error) {
	ctx, span := tracer.Start(ctx, "schema.Compile")
	defer span.End()
	span.SetAttributes(attribute.String("doctype", d.Name))

	r := &resolution{compiler: c, stack: []string{}}
	compiled, err := r.compile(ctx, d, opts)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "schema compile failed", "doctype", d.Name, "error", err)
		return nil, err
	}
	logger.Debug(ctx, "schema compiled",
		"doctype", d.Name,
		"fields", len(compiled.Fields),
		"resolved", r.resolved,
	)
	return compiled, nil
}

// CompileByName resolves name through the lookup and compiles it.
func (c *Compiler) CompileByName(ctx context.Context, name string, opts Options) (*Compiled, error) {
	d, err := c.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, d, opts)
}

func (c *Compiler) resolve(ctx context.Context, name string) (metadata.Doctype, error) {
	if c.lookup == nil {
		return metadata.Doctype{}, apperror.NewLookupFailed(name, metadata.ErrDoctypeNotFound)
	}
	d, err := c.lookup.Resolve(ctx, name)
	if err != nil {
		return metadata.Doctype{}, apperror.NewLookupFailed(name, err).
			WithDetail("not_found", metadata.IsNotFound(err))
	}
	return d, nil
}

// resolution is the per-call cycle guard. It is never shared between calls.
type resolution struct {
	compiler *Compiler
	stack    []string
	resolved int
}

func (r *resolution) push(name string) error {
	for _, s := range r.stack {
		if s == name {
			path := append(append([]string{}, r.stack...), name)
			return apperror.NewCyclicReference(path)
		}
	}
	r.stack = append(r.stack, name)
	return nil
}

func (r *resolution) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *resolution) compile(ctx context.Context, d metadata.Doctype, opts Options) (*Compiled, error) {
	if err := r.push(d.Name); err != nil {
		return nil, err
	}
	defer r.pop()

	src := d
	if !opts.ExcludeStandardFields {
		src = metadata.WithStandardFields(d)
	}

	out := &Compiled{
		Doctype: d.Name,
		Fields:  make([]*Field, 0, len(src.Fields)),
		index:   make(map[string]*Field, len(src.Fields)),
	}

	for _, cfg := range src.Fields {
		if !cfg.Type.Valid() {
			return nil, apperror.NewUnknownFieldType(string(cfg.Type)).
				WithDetail("doctype", d.Name).
				WithDetail("field", cfg.Name)
		}
		if opts.ExcludeRelational && cfg.Type.IsRelational() {
			continue
		}

		standard := !opts.ExcludeStandardFields && metadata.IsStandardField(cfg.Name)
		field := &Field{
			Config:   cfg,
			Storage:  cfg.Type.Storage(),
			Type:     cfg.Type.Describe(cfg),
			Nullable: (!cfg.Required || standard) && cfg.Type != metadata.TypeExtend,
			Standard: standard,
			Origin:   d.Name,
		}
		field.Type.Nullable = field.Nullable

		if cfg.Type.IsRelational() {
			child, err := r.child(ctx, cfg)
			if err != nil {
				return nil, err
			}
			field.Child = child
		}

		if err := out.add(field); err != nil {
			return nil, err
		}

		if cfg.Type == metadata.TypeExtend {
			for _, inherited := range field.Child.Fields {
				if err := out.add(inherited); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// child resolves and compiles the doctype a relational field refers to.
// Extended doctypes contribute only their own fields; the parent's standard
// fields already cover the system-managed ones.
func (r *resolution) child(ctx context.Context, cfg metadata.FieldConfig) (*Compiled, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.NewLookupFailed(cfg.Reference, err)
	}
	d, err := r.compiler.resolve(ctx, cfg.Reference)
	if err != nil {
		return nil, err
	}
	r.resolved++

	childOpts := Options{}
	if cfg.Type == metadata.TypeExtend {
		childOpts.ExcludeStandardFields = true
	}
	return r.compile(ctx, d, childOpts)
}

func (c *Compiled) add(f *Field) error {
	if prev, ok := c.index[f.Name()]; ok {
		return apperror.NewFieldConflict(f.Name(), prev.Origin, f.Origin).
			WithDetail("doctype", c.Doctype)
	}
	c.Fields = append(c.Fields, f)
	c.index[f.Name()] = f
	return nil
}

// SubmitFrozen lists the value-carrying fields that cannot change once the
// document is submitted (allow_on_submit unset). Standard fields are
// system-managed and excluded.
func (c *Compiled) SubmitFrozen() []string {
	var out []string
	for _, f := range c.Fields {
		if f.Standard || f.Structural() || f.Config.AllowOnSubmit {
			continue
		}
		out = append(out, f.Name())
	}
	return out
}

// Columns returns the fields that need a storage column, in order.
func (c *Compiled) Columns() []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.Storage != metadata.StorageNull {
			out = append(out, f)
		}
	}
	return out
}
