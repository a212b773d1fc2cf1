package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"docforge/internal/core/apperror"
	"docforge/internal/domain"
	"docforge/internal/infrastructure/http/v1/dto"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

// DoctypeStore persists doctype definitions.
type DoctypeStore interface {
	metadata.Lookup
	List(ctx context.Context) ([]metadata.Doctype, error)
	Save(ctx context.Context, d metadata.Doctype) error
	Delete(ctx context.Context, name string) (bool, error)
}

// SchemaInvalidator drops cached compiled schemas.
type SchemaInvalidator interface {
	Invalidate(doctype string) []string
}

// MetadataHandler serves doctype definitions, compiled schemas and their
// generated TypeScript.
type MetadataHandler struct {
	*BaseHandler
	store    DoctypeStore
	compiler *schema.Compiler
	schemas  domain.SchemaSource
	cache    SchemaInvalidator
}

// MetadataHandlerConfig configures the metadata handler.
type MetadataHandlerConfig struct {
	Store DoctypeStore
	// Compiler checks definitions before they are saved.
	Compiler *schema.Compiler
	Schemas  domain.SchemaSource
	// Cache is invalidated after a save or delete. Optional.
	Cache SchemaInvalidator
}

// NewMetadataHandler creates a metadata handler.
func NewMetadataHandler(base *BaseHandler, cfg MetadataHandlerConfig) *MetadataHandler {
	return &MetadataHandler{
		BaseHandler: base,
		store:       cfg.Store,
		compiler:    cfg.Compiler,
		schemas:     cfg.Schemas,
		cache:       cfg.Cache,
	}
}

// FieldTypes lists the registered field types.
// GET /field-types
func (h *MetadataHandler) FieldTypes(c *gin.Context) {
	out := make([]dto.FieldTypeResponse, 0, len(metadata.FieldTypes))
	for _, t := range metadata.FieldTypes {
		out = append(out, dto.FieldTypeResponse{
			Type:           t,
			Storage:        string(t.Storage()),
			Relational:     t.IsRelational(),
			NeedsReference: t.NeedsReference(),
		})
	}
	h.OK(c, out)
}

// ListDoctypes handles GET /doctypes
func (h *MetadataHandler) ListDoctypes(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.DoctypeSummary, 0, len(list))
	for _, d := range list {
		out = append(out, dto.DoctypeSummary{Name: d.Name, Label: d.Label, Fields: len(d.Fields)})
	}
	h.OK(c, out)
}

// GetDoctype handles GET /doctypes/:name
func (h *MetadataHandler) GetDoctype(c *gin.Context) {
	name := c.Param("name")
	d, err := h.store.Resolve(c.Request.Context(), name)
	if err != nil {
		h.Error(c, notFoundDoctype(name, err))
		return
	}
	h.OK(c, d)
}

// SaveDoctype handles PUT /doctypes/:name. The path name wins over the
// body. The definition must compile against the stored doctypes it
// references before it is saved.
func (h *MetadataHandler) SaveDoctype(c *gin.Context) {
	var d metadata.Doctype
	if !h.BindJSON(c, &d) {
		return
	}
	d.Name = c.Param("name")

	ctx := c.Request.Context()
	if err := d.Validate(); err != nil {
		h.Error(c, err)
		return
	}
	if h.compiler != nil {
		if _, err := h.compiler.Compile(ctx, d, schema.Options{}); err != nil {
			h.Error(c, rejectDefinition(d.Name, err))
			return
		}
	}
	if err := h.store.Save(ctx, d); err != nil {
		h.Error(c, err)
		return
	}
	h.invalidate(d.Name)
	h.OK(c, d)
}

// DeleteDoctype handles DELETE /doctypes/:name
func (h *MetadataHandler) DeleteDoctype(c *gin.Context) {
	name := c.Param("name")
	deleted, err := h.store.Delete(c.Request.Context(), name)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !deleted {
		h.Error(c, apperror.NewNotFound("doctype", name))
		return
	}
	h.invalidate(name)
	h.NoContent(c)
}

// Schema handles GET /doctypes/:name/schema
func (h *MetadataHandler) Schema(c *gin.Context) {
	name := c.Param("name")
	compiled, err := h.schemas.Get(c.Request.Context(), name)
	if err != nil {
		h.Error(c, notFoundDoctype(name, err))
		return
	}
	h.OK(c, dto.FromCompiled(compiled))
}

// TypeScript handles GET /doctypes/:name/typescript and returns the
// declarations of the doctype and every doctype it embeds.
func (h *MetadataHandler) TypeScript(c *gin.Context) {
	name := c.Param("name")
	compiled, err := h.schemas.Get(c.Request.Context(), name)
	if err != nil {
		h.Error(c, notFoundDoctype(name, err))
		return
	}
	var buf bytes.Buffer
	if err := schema.RenderTypeScript(&buf, compiled); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	c.Data(http.StatusOK, "application/typescript; charset=utf-8", buf.Bytes())
}

func (h *MetadataHandler) invalidate(name string) {
	if h.cache != nil {
		h.cache.Invalidate(name)
	}
}

// notFoundDoctype reports a lookup miss for name itself as NOT_FOUND.
// A missing referenced doctype stays a LOOKUP_FAILED error.
func notFoundDoctype(name string, err error) error {
	if !metadata.IsNotFound(err) {
		return err
	}
	if appErr, ok := apperror.AsAppError(err); ok && appErr.Details["doctype"] != name {
		return err
	}
	return apperror.NewNotFound("doctype", name)
}

// rejectDefinition turns a compile failure of a submitted definition into a
// client error.
func rejectDefinition(name string, err error) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return err
	}
	return apperror.NewInvalidDoctype(name, appErr.Message).
		WithDetail("cause", appErr.Code).
		WithDetail("details", appErr.Details)
}
