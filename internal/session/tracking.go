package session

import (
	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
)

// State is the net effect a session had on one element.
type State uint8

const (
	StateUnknown State = iota
	StateAdded
	StateRemoved
	StateUpdated
)

func (s State) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateRemoved:
		return "removed"
	case StateUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// PropertyChange is the accumulated diff of one property. Old is the value
// before the session first touched it; New and Version are the latest.
type PropertyChange struct {
	Old     any
	New     any
	Version uint64
}

// TrackedElement is the per-element record kept by TrackingData.
type TrackedElement struct {
	ID         string
	SchemaID   string
	State      State
	Properties map[string]PropertyChange
}

// TrackingData records every element a session touched.
type TrackingData struct {
	order []string
	items map[string]*TrackedElement
}

func newTrackingData() *TrackingData {
	return &TrackingData{items: make(map[string]*TrackedElement)}
}

func (t *TrackingData) entry(id, schemaID string) *TrackedElement {
	el, ok := t.items[id]
	if !ok {
		el = &TrackedElement{ID: id, SchemaID: schemaID}
		t.items[id] = el
		t.order = append(t.order, id)
	}
	if el.SchemaID == "" {
		el.SchemaID = schemaID
	}
	return el
}

// Track folds one event into the record.
func (t *TrackingData) Track(e event.Event) {
	h := e.Meta()
	switch ev := e.(type) {
	case event.AddEntityEvent:
		t.added(h)
	case event.AddRelationshipEvent:
		t.added(h)
		t.touch(ev.StartID, ev.StartSchemaID)
		t.touch(ev.EndID, ev.EndSchemaID)
	case event.RemoveEntityEvent:
		t.entry(h.ID, h.SchemaID).State = StateRemoved
	case event.RemoveRelationshipEvent:
		t.entry(h.ID, h.SchemaID).State = StateRemoved
		t.touch(ev.StartID, ev.StartSchemaID)
		t.touch(ev.EndID, ev.EndSchemaID)
	case event.ChangePropertyValueEvent:
		t.changed(h, ev.PropertyName, ev.OldValue, ev.Value)
	case event.RemovePropertyEvent:
		t.changed(h, ev.PropertyName, ev.Value, nil)
	}
}

func (t *TrackingData) added(h event.Header) {
	el := t.entry(h.ID, h.SchemaID)
	if el.State == StateRemoved {
		el.State = StateUpdated
		return
	}
	el.State = StateAdded
}

// touch records an element affected through a relationship without being
// the subject of the event.
func (t *TrackingData) touch(id, schemaID string) {
	if id == "" {
		return
	}
	t.entry(id, schemaID)
}

func (t *TrackingData) changed(h event.Header, name string, before, after any) {
	el := t.entry(h.ID, h.SchemaID)
	if el.State == StateUnknown {
		el.State = StateUpdated
	}
	if el.State == StateRemoved {
		return
	}
	if el.Properties == nil {
		el.Properties = make(map[string]PropertyChange)
	}
	pc, seen := el.Properties[name]
	if !seen {
		pc.Old = before
	}
	pc.New = after
	pc.Version = h.Version
	el.Properties[name] = pc
}

// Get returns the record of id.
func (t *TrackingData) Get(id string) (TrackedElement, bool) {
	el, ok := t.items[id]
	if !ok {
		return TrackedElement{}, false
	}
	return *el, true
}

// IDs returns every tracked id in first-touch order.
func (t *TrackingData) IDs() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of tracked elements.
func (t *TrackingData) Len() int {
	return len(t.order)
}

// Prepare resolves the touched elements that still exist, in first-touch
// order, for constraint checking.
func (t *TrackingData) Prepare(resolve func(id string) constraint.Element) []constraint.Element {
	out := make([]constraint.Element, 0, len(t.order))
	for _, id := range t.order {
		if t.items[id].State == StateRemoved {
			continue
		}
		if el := resolve(id); el != nil {
			out = append(out, el)
		}
	}
	return out
}
