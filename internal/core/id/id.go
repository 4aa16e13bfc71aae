// Package id provides identifiers for materials, movements and allocations.
// Identifiers are UUIDv7, so they sort by creation time.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is the identifier type used by every entity.
type ID = uuid.UUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts a string to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts a string to an ID and panics on error. Tests only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// ParseOptional parses an optional reference: blank input yields nil.
func ParseOptional(s string) (*ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return &v, nil
}

// IsNil reports whether v is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Equal compares two optional references.
func Equal(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
