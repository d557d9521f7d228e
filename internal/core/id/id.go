// Package id generates identifiers for allocation records, batches and
// offline requests. They are UUIDv7, so a depot's records list in the order
// they were committed when sorted by id.
package id

import (
	"github.com/google/uuid"
)

// ID identifies an allocation record.
type ID = uuid.UUID

// New returns a UUIDv7, or a random UUID if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// NewString is New in canonical form. Batch and request ids are plain
// strings, so receipts imported from other systems keep their own.
func NewString() string {
	return New().String()
}

// Parse reads a record id from a URL or payload.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}
