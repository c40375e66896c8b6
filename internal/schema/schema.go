// Package schema describes the element types of a domain and answers the
// schema questions the graph, the domain model and the constraint engine
// ask: is a schema a relationship, is it embedded, which properties does it
// declare (inherited ones first), and which of them are required.
//
// Registries are built in code, from YAML (LoadYAML) or from CUE
// (CompileCUE, LoadCUEDir).
package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownSchema is returned when a schema id is not registered.
var ErrUnknownSchema = errors.New("unknown schema")

// Kind classifies a schema element.
type Kind string

const (
	KindEntity       Kind = "entity"
	KindRelationship Kind = "relationship"
	KindValueObject  Kind = "value_object"
	KindPrimitive    Kind = "primitive"
)

// Cardinality constrains how many relationships of one schema an element
// may take part in.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// Property declares one property of a schema.
type Property struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
	Default  any    `yaml:"default,omitempty"`
}

// Element is one schema definition.
type Element struct {
	ID         string     `yaml:"id"`
	Kind       Kind       `yaml:"kind"`
	Base       string     `yaml:"base,omitempty"`
	Properties []Property `yaml:"properties,omitempty"`

	// Relationship only.
	Start       string      `yaml:"start,omitempty"`
	End         string      `yaml:"end,omitempty"`
	Cardinality Cardinality `yaml:"cardinality,omitempty"`
	Embedded    bool        `yaml:"embedded,omitempty"`
}

// Provider resolves schema ids.
type Provider interface {
	Lookup(id string) (*Element, bool)
	IsRelationship(id string) bool
	IsEmbedded(id string) bool
	PropertiesOf(id string) []string
}

// Registry is an in-memory Provider. Registration order is preserved.
type Registry struct {
	order    []string
	elements map[string]*Element
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{elements: make(map[string]*Element)}
}

// Register adds el. An id may be registered once.
func (r *Registry) Register(el Element) error {
	if el.ID == "" {
		return errors.New("schema id is required")
	}
	if _, ok := r.elements[el.ID]; ok {
		return fmt.Errorf("schema %s already registered", el.ID)
	}
	if el.Kind == "" {
		el.Kind = KindEntity
	}
	stored := el
	stored.Properties = append([]Property(nil), el.Properties...)
	r.elements[el.ID] = &stored
	r.order = append(r.order, el.ID)
	return nil
}

// Merge registers every element of other in its order.
func (r *Registry) Merge(other *Registry) error {
	for _, id := range other.order {
		if err := r.Register(*other.elements[id]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int { return len(r.order) }

// SchemaIDs returns the registered ids in registration order.
func (r *Registry) SchemaIDs() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the element registered under id.
func (r *Registry) Lookup(id string) (*Element, bool) {
	el, ok := r.elements[id]
	return el, ok
}

// IsRelationship reports whether id names a relationship schema.
func (r *Registry) IsRelationship(id string) bool {
	el, ok := r.elements[id]
	return ok && el.Kind == KindRelationship
}

// IsEmbedded reports whether id names an embedded relationship schema.
func (r *Registry) IsEmbedded(id string) bool {
	el, ok := r.elements[id]
	return ok && el.Kind == KindRelationship && el.Embedded
}

// IsA reports whether id is base or derives from it.
func (r *Registry) IsA(id, base string) bool {
	for _, cur := range r.chain(id) {
		if cur.ID == base {
			return true
		}
	}
	return false
}

// chain returns id followed by its bases, stopping at an unknown id or a
// cycle.
func (r *Registry) chain(id string) []*Element {
	var out []*Element
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; {
		seen[cur] = true
		el, ok := r.elements[cur]
		if !ok {
			break
		}
		out = append(out, el)
		cur = el.Base
	}
	return out
}

// Properties returns every property of id, inherited ones first. A derived
// declaration overrides a base one of the same name in place.
func (r *Registry) Properties(id string) []Property {
	chain := r.chain(id)
	var out []Property
	index := make(map[string]int)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].Properties {
			if at, ok := index[p.Name]; ok {
				out[at] = p
				continue
			}
			index[p.Name] = len(out)
			out = append(out, p)
		}
	}
	return out
}

// Property returns the declaration of name on id or one of its bases.
func (r *Registry) Property(id, name string) (Property, bool) {
	for _, p := range r.Properties(id) {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertiesOf returns the property names of id, inherited ones first.
func (r *Registry) PropertiesOf(id string) []string {
	props := r.Properties(id)
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Name
	}
	return out
}

// RequiredProperties returns the required properties declared directly on
// id. Rules for inherited ones are matched through IsA.
func (r *Registry) RequiredProperties(id string) []string {
	el, ok := r.elements[id]
	if !ok {
		return nil
	}
	var out []string
	for _, p := range el.Properties {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}
