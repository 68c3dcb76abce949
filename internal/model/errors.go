package model

import "fmt"

// NotFoundError identifies a missing (or soft-deleted) entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidReferenceError is returned when a mutation would create a dangling
// reference (e.g. an instance pointing at a deleted source file). It is
// raised before any write, so no partial state is persisted.
type InvalidReferenceError struct {
	Field  string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
