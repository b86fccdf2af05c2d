// Package uuid wraps github.com/google/uuid with UUIDv7 (time-ordered)
// as the default version for all identifiers minted by the service.
package uuid

import (
	"github.com/google/uuid"
)

// UUID is aliased from github.com/google/uuid.UUID.
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// New returns a new UUIDv7. Panics if generation fails.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

// NewRandom returns a new UUIDv7 and any error encountered.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// Parse decodes s into a UUID.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}
