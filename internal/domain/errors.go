package domain

import (
	"errors"
	"fmt"

	"github.com/roach88/hypergraph/internal/graph"
	"github.com/roach88/hypergraph/internal/session"
)

var (
	// ErrInvalidElement is returned when an operation names an element that
	// does not exist or a handle whose element was removed.
	ErrInvalidElement = errors.New("invalid element")

	// ErrUnknownDomain is returned for a domain name that was never created.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrDuplicateDomain is returned when a domain or scope name is taken.
	ErrDuplicateDomain = errors.New("duplicate domain")

	// ErrSchemaKind is returned when a schema of the wrong kind is used, such
	// as creating an entity from a relationship schema.
	ErrSchemaKind = errors.New("schema kind mismatch")
)

// Re-exported so callers classify every structural error from one package.
var (
	ErrDuplicateElement    = graph.ErrDuplicateElement
	ErrInvalidStartElement = graph.ErrInvalidStartElement
	ErrSessionClosed       = session.ErrSessionClosed
)

func invalidElement(id string) error {
	return &graph.ElementError{Err: ErrInvalidElement, ID: id}
}

func duplicateElement(id, schemaID string) error {
	return &graph.ElementError{Err: ErrDuplicateElement, ID: id, SchemaID: schemaID}
}

func schemaKindError(schemaID, want string) error {
	return fmt.Errorf("%w: %s is not %s", ErrSchemaKind, schemaID, want)
}
