package domain

import (
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/graph"
)

// Element is the handle of one entity or relationship. Handles are cached
// per domain, so a live element has exactly one. Once the element is
// removed every operation on the handle fails with ErrInvalidElement.
type Element struct {
	domain   *Domain
	id       string
	schemaID string
	kind     graph.Kind
	startID  string
	endID    string
	disposed bool
}

func (e *Element) ID() string           { return e.id }
func (e *Element) SchemaID() string     { return e.schemaID }
func (e *Element) Kind() graph.Kind     { return e.kind }
func (e *Element) Domain() *Domain      { return e.domain }
func (e *Element) Disposed() bool       { return e.disposed }
func (e *Element) IsRelationship() bool { return e.kind == graph.KindRelationship }

func (e *Element) check() error {
	if e.disposed || !e.domain.ElementExists(e.id) {
		return invalidElement(e.id)
	}
	return nil
}

// Version returns the element's current version.
func (e *Element) Version() (uint64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.domain.graph.GetNode(e.id).Version, nil
}

// Get returns a property value, or nil when unset.
func (e *Element) Get(name string) (any, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.domain.GetPropertyValue(e.id, name)
}

// Set assigns a property value.
func (e *Element) Set(name string, value any) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.domain.SetPropertyValue(e.id, name, value)
}

// Remove removes the element with its cascade.
func (e *Element) Remove() ([]event.Event, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.domain.Remove(e.id)
}

// PropertyValue reports a property for constraint checks.
func (e *Element) PropertyValue(name string) (any, bool) {
	if e.disposed {
		return nil, false
	}
	p := e.domain.graph.GetPropertyNode(e.id, name)
	if p == nil {
		return nil, false
	}
	return p.Value, true
}

// Start returns the start element of a relationship.
func (e *Element) Start() (*Element, error) {
	return e.endpoint(e.startID)
}

// End returns the end element of a relationship. It fails until the end
// element exists.
func (e *Element) End() (*Element, error) {
	return e.endpoint(e.endID)
}

func (e *Element) endpoint(id string) (*Element, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if !e.IsRelationship() {
		return nil, schemaKindError(e.schemaID, "a relationship schema")
	}
	el := e.domain.Get(id)
	if el == nil {
		return nil, invalidElement(id)
	}
	return el, nil
}

func (e *Element) String() string {
	return e.schemaID + "#" + e.id
}
