package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateElement is returned when creating an id that is live.
	ErrDuplicateElement = errors.New("duplicate element")

	// ErrInvalidStartElement is returned when a relationship's start node
	// does not exist.
	ErrInvalidStartElement = errors.New("invalid start element")
)

// ElementError carries the id an operation failed on.
// Use errors.Is with the sentinel errors above to classify it.
type ElementError struct {
	Err      error
	ID       string
	SchemaID string
}

func (e *ElementError) Error() string {
	if e.SchemaID != "" {
		return fmt.Sprintf("%v: %s (schema=%s)", e.Err, e.ID, e.SchemaID)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.ID)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

func duplicateError(id, schemaID string) error {
	return &ElementError{Err: ErrDuplicateElement, ID: id, SchemaID: schemaID}
}

func invalidStartError(startID, schemaID string) error {
	return &ElementError{Err: ErrInvalidStartElement, ID: startID, SchemaID: schemaID}
}
