// Package domain provides the document service and the storage contracts it
// depends on.
package domain

import (
	"context"

	"docforge/internal/core/entity"
	"docforge/internal/domain/filter"
	"docforge/internal/schema"
)

// --- Filter & Pagination ---

// ListFilter selects documents of one doctype.
type ListFilter struct {
	// Filters are AND-combined and already validated against the schema.
	Filters filter.List

	// OrderBy names a field, "-" prefix for descending (e.g. "-created_at").
	OrderBy string

	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-created_at",
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Repository Interfaces ---

// DocumentRepository persists documents of every doctype. Values are passed
// in their stored form (see schema.Compiled.EncodeRow).
type DocumentRepository interface {
	// Create inserts a new document.
	Create(ctx context.Context, doc *entity.Document) error

	// Get returns the document or a NOT_FOUND AppError.
	Get(ctx context.Context, doctype, id string) (*entity.Document, error)

	// Update replaces the document's values and status, provided the stored
	// status still equals expected. A changed status is a CONFLICT AppError.
	Update(ctx context.Context, doc *entity.Document, expected entity.DocStatus) error

	// List returns documents matching the filter; c whitelists the fields
	// filters and ordering may reference.
	List(ctx context.Context, c *schema.Compiled, f ListFilter) (ListResult[*entity.Document], error)
}

// SchemaSource returns compiled schemas by doctype name, typically through a cache.
type SchemaSource interface {
	Get(ctx context.Context, doctype string) (*schema.Compiled, error)
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeSubmit HookEvent = "before_submit"
	AfterSubmit  HookEvent = "after_submit"
	BeforeCancel HookEvent = "before_cancel"
	AfterCancel  HookEvent = "after_cancel"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks keyed by event.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// before/after event pairs for lifecycle actions.
var actionEvents = map[entity.Action][2]HookEvent{
	entity.ActionSubmit: {BeforeSubmit, AfterSubmit},
	entity.ActionCancel: {BeforeCancel, AfterCancel},
}
