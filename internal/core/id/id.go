// Package id provides identifier generation for documents and audit records.
package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used for audit entries and request tracing.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return id
}

// NewHex returns a 32-character lowercase hex token. It backs the HEX()
// default generator used for document names.
func NewHex() string {
	u := New()
	return hex.EncodeToString(u[:])
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
