package store

import "github.com/google/uuid"

// NewStackID returns a fresh, opaque, stable Stack identity.
func NewStackID() string {
	return uuid.NewString()
}
