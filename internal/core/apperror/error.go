// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All schema, lifecycle and filter errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Doctype definition errors. These are operator-facing: they indicate a broken
	// doctype definition, never bad user input.
	CodeUnknownFieldType      = "UNKNOWN_FIELD_TYPE"
	CodeCyclicSchemaReference = "CYCLIC_SCHEMA_REFERENCE"
	CodeLookupFailed          = "LOOKUP_FAILED"
	CodeFieldConflict         = "FIELD_CONFLICT"
	CodeInvalidDoctype        = "INVALID_DOCTYPE"

	// Validation errors (400, 422)
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInvalidFilter = "INVALID_FILTER"

	// Lifecycle violations (409)
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeDocumentFrozen    = "DOCUMENT_FROZEN"
	CodeConflict          = "CONFLICT"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, cycle path, states)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFieldErrors creates a document validation error (422) carrying every
// invalid field at once under details.fields.
func NewFieldErrors(fields map[string]string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("%d field(s) failed validation", len(fields)),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"fields": fields},
	}
}

// NewInvalidFilter creates a filter shape error (400)
func NewInvalidFilter(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidFilter,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConflict creates a conflict error (409), e.g. for a duplicate key.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewStatusChanged is a CONFLICT for a write based on a doc_status that has
// since changed.
func NewStatusChanged(expected, current string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    fmt.Sprintf("document status changed from %s to %s", expected, current),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"expected": expected, "current": current},
	}
}

// NewUnknownFieldType is returned when a doctype declares a type outside the registry.
func NewUnknownFieldType(fieldType string) *AppError {
	return &AppError{
		Code:       CodeUnknownFieldType,
		Message:    fmt.Sprintf("unknown field type %q", fieldType),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"type": fieldType},
	}
}

// NewCyclicReference reports the full resolution path, ending with the doctype
// that closed the cycle.
func NewCyclicReference(path []string) *AppError {
	return &AppError{
		Code:       CodeCyclicSchemaReference,
		Message:    "cyclic schema reference: " + strings.Join(path, " -> "),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"path": path},
	}
}

// NewLookupFailed wraps a doctype lookup failure (not found or transient).
func NewLookupFailed(doctype string, err error) *AppError {
	return &AppError{
		Code:       CodeLookupFailed,
		Message:    fmt.Sprintf("failed to resolve doctype %q", doctype),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"doctype": doctype},
		Err:        err,
	}
}

// NewFieldConflict is returned when two flattened sources declare the same field.
func NewFieldConflict(field, first, second string) *AppError {
	return &AppError{
		Code:       CodeFieldConflict,
		Message:    fmt.Sprintf("field %q is declared by both %s and %s", field, first, second),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"field": field, "sources": []string{first, second}},
	}
}

// NewInvalidDoctype is returned by doctype definition validation.
func NewInvalidDoctype(doctype, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidDoctype,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"doctype": doctype},
	}
}

// NewIllegalTransition is returned when a lifecycle action is requested from a
// state that does not permit it.
func NewIllegalTransition(action, current string) *AppError {
	return &AppError{
		Code:       CodeIllegalTransition,
		Message:    fmt.Sprintf("cannot %s a document in state %s", action, current),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"action": action, "current": current},
	}
}

// NewDocumentFrozen lists the fields an update attempted to change on a
// submitted or cancelled document.
func NewDocumentFrozen(status string, fields []string) *AppError {
	return &AppError{
		Code:       CodeDocumentFrozen,
		Message:    fmt.Sprintf("document is %s; fields cannot be changed", strings.ToLower(status)),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"status": status, "fields": fields},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether the error chain carries an AppError with the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
