// Package ids mints collision-free identifiers for domain entities and
// events.
package ids

import "github.com/google/uuid"

// New mints a fresh random identifier.
func New() uuid.UUID {
	return uuid.New()
}

// Parse parses a string-form identifier.
func Parse(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a string-form identifier, panicking on malformed input.
// Intended for static/test values only.
func MustParse(s string) uuid.UUID {
	return uuid.MustParse(s)
}
