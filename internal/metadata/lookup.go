package metadata

import (
	"context"
	"errors"
)

// ErrDoctypeNotFound is wrapped by Lookup implementations when the doctype
// does not exist. Any other error is treated as transient by callers.
var ErrDoctypeNotFound = errors.New("doctype not found")

// Lookup resolves a doctype name to its field list. Implementations must be
// idempotent and safe for concurrent use.
type Lookup interface {
	Resolve(ctx context.Context, name string) (Doctype, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, name string) (Doctype, error)

// Resolve implements Lookup.
func (f LookupFunc) Resolve(ctx context.Context, name string) (Doctype, error) {
	return f(ctx, name)
}

// IsNotFound reports whether a lookup error means the doctype does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoctypeNotFound)
}
