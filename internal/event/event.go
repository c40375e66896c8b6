// Package event defines the six mutation events that form the only
// externally observable trace of a session.
//
// Events are a closed set: AddEntityEvent, RemoveEntityEvent,
// AddRelationshipEvent, RemoveRelationshipEvent, ChangePropertyValueEvent and
// RemovePropertyEvent. Each carries enough data to be replayed by a
// Dispatcher, and all but RemovePropertyEvent can be reversed with Reverse.
package event

import "fmt"

// Kind identifies one of the six event types.
type Kind int

const (
	KindAddEntity Kind = iota + 1
	KindRemoveEntity
	KindAddRelationship
	KindRemoveRelationship
	KindChangePropertyValue
	KindRemoveProperty
)

func (k Kind) String() string {
	switch k {
	case KindAddEntity:
		return "AddEntity"
	case KindRemoveEntity:
		return "RemoveEntity"
	case KindAddRelationship:
		return "AddRelationship"
	case KindRemoveRelationship:
		return "RemoveRelationship"
	case KindChangePropertyValue:
		return "ChangePropertyValue"
	case KindRemoveProperty:
		return "RemoveProperty"
	default:
		return "Unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindAddEntity; k <= KindRemoveProperty; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Header holds the fields shared by every event.
type Header struct {
	// Domain is the name of the domain the element lives in.
	Domain string

	// ID is the element id. For property events it is the owner id.
	ID string

	// SchemaID is the element's type tag.
	SchemaID string

	// CorrelationID ties the event to the session that produced it.
	CorrelationID string

	// Version is the logical timestamp stamped by the mutation.
	Version uint64

	// TopLevel is false for events produced by cascading side effects.
	TopLevel bool
}

// Event is implemented by the six event types only.
type Event interface {
	Kind() Kind
	Meta() Header
	sealed()
}

// AddEntityEvent records the creation of an entity.
type AddEntityEvent struct {
	Header
}

// RemoveEntityEvent records the removal of an entity.
type RemoveEntityEvent struct {
	Header
}

// AddRelationshipEvent records the creation of a relationship.
type AddRelationshipEvent struct {
	Header
	StartID       string
	StartSchemaID string
	EndID         string
	EndSchemaID   string
}

// RemoveRelationshipEvent records the removal of a relationship.
type RemoveRelationshipEvent struct {
	Header
	StartID       string
	StartSchemaID string
	EndID         string
	EndSchemaID   string
}

// ChangePropertyValueEvent records a property assignment on element ID.
// A nil Value unsets the property.
type ChangePropertyValueEvent struct {
	Header
	PropertyName string
	Value        any
	OldValue     any
	OldVersion   uint64
}

// RemovePropertyEvent records the deletion of a stored property value,
// typically as a side effect of removing its owner.
type RemovePropertyEvent struct {
	Header
	PropertyName string
	Value        any
	// OldVersion is the version of the removed value.
	OldVersion uint64
}

func (AddEntityEvent) Kind() Kind           { return KindAddEntity }
func (RemoveEntityEvent) Kind() Kind        { return KindRemoveEntity }
func (AddRelationshipEvent) Kind() Kind     { return KindAddRelationship }
func (RemoveRelationshipEvent) Kind() Kind  { return KindRemoveRelationship }
func (ChangePropertyValueEvent) Kind() Kind { return KindChangePropertyValue }
func (RemovePropertyEvent) Kind() Kind      { return KindRemoveProperty }

func (e AddEntityEvent) Meta() Header           { return e.Header }
func (e RemoveEntityEvent) Meta() Header        { return e.Header }
func (e AddRelationshipEvent) Meta() Header     { return e.Header }
func (e RemoveRelationshipEvent) Meta() Header  { return e.Header }
func (e ChangePropertyValueEvent) Meta() Header { return e.Header }
func (e RemovePropertyEvent) Meta() Header      { return e.Header }

func (AddEntityEvent) sealed()           {}
func (RemoveEntityEvent) sealed()        {}
func (AddRelationshipEvent) sealed()     {}
func (RemoveRelationshipEvent) sealed()  {}
func (ChangePropertyValueEvent) sealed() {}
func (RemovePropertyEvent) sealed()      {}

// Reverse returns the event that undoes e. The second result is false for
// RemovePropertyEvent, which has no reverse.
func Reverse(e Event) (Event, bool) {
	switch ev := e.(type) {
	case AddEntityEvent:
		return RemoveEntityEvent{Header: ev.Header}, true
	case RemoveEntityEvent:
		return AddEntityEvent{Header: ev.Header}, true
	case AddRelationshipEvent:
		return RemoveRelationshipEvent{
			Header:        ev.Header,
			StartID:       ev.StartID,
			StartSchemaID: ev.StartSchemaID,
			EndID:         ev.EndID,
			EndSchemaID:   ev.EndSchemaID,
		}, true
	case RemoveRelationshipEvent:
		return AddRelationshipEvent{
			Header:        ev.Header,
			StartID:       ev.StartID,
			StartSchemaID: ev.StartSchemaID,
			EndID:         ev.EndID,
			EndSchemaID:   ev.EndSchemaID,
		}, true
	case ChangePropertyValueEvent:
		h := ev.Header
		h.Version = ev.OldVersion
		return ChangePropertyValueEvent{
			Header:       h,
			PropertyName: ev.PropertyName,
			Value:        ev.OldValue,
			OldValue:     ev.Value,
			OldVersion:   ev.Version,
		}, true
	default:
		return nil, false
	}
}

// Dispatcher applies events to a domain.
type Dispatcher interface {
	Handle(e Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(e Event) error

// Handle calls f(e).
func (f DispatcherFunc) Handle(e Event) error { return f(e) }

// Touched returns the element ids an event affects, used to scope
// constraint checks. Relationship events touch both endpoints.
func Touched(e Event) []string {
	switch ev := e.(type) {
	case AddRelationshipEvent:
		return []string{ev.ID, ev.StartID, ev.EndID}
	case RemoveRelationshipEvent:
		return []string{ev.ID, ev.StartID, ev.EndID}
	default:
		return []string{e.Meta().ID}
	}
}
