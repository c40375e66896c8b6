package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
)

func TestTrackingData_States(t *testing.T) {
	td := newTrackingData()
	td.Track(addEntity("lib:1", 1))
	td.Track(event.ChangePropertyValueEvent{
		Header: event.Header{ID: "lib:2", SchemaID: "Book", Version: 2}, PropertyName: "title", Value: "Dune",
	})
	td.Track(event.RemoveEntityEvent{Header: event.Header{ID: "lib:3", SchemaID: "Book"}})
	td.Track(event.AddRelationshipEvent{
		Header:  event.Header{ID: "lib:r", SchemaID: "Contains"},
		StartID: "lib:4", StartSchemaID: "Library",
		EndID: "lib:1", EndSchemaID: "Book",
	})

	assert.Equal(t, []string{"lib:1", "lib:2", "lib:3", "lib:r", "lib:4"}, td.IDs())

	states := map[string]State{}
	for _, id := range td.IDs() {
		el, ok := td.Get(id)
		require.True(t, ok)
		states[id] = el.State
	}
	assert.Equal(t, map[string]State{
		"lib:1": StateAdded,
		"lib:2": StateUpdated,
		"lib:3": StateRemoved,
		"lib:r": StateAdded,
		"lib:4": StateUnknown,
	}, states)

	el, _ := td.Get("lib:4")
	assert.Equal(t, "Library", el.SchemaID)
}

func TestTrackingData_PropertyDiffKeepsFirstOldValue(t *testing.T) {
	td := newTrackingData()
	h := event.Header{ID: "lib:1", SchemaID: "Book"}
	h.Version = 2
	td.Track(event.ChangePropertyValueEvent{Header: h, PropertyName: "title", Value: "B", OldValue: "A"})
	h.Version = 3
	td.Track(event.ChangePropertyValueEvent{Header: h, PropertyName: "title", Value: "C", OldValue: "B"})
	h.Version = 4
	td.Track(event.RemovePropertyEvent{Header: h, PropertyName: "year", Value: 1965})

	el, ok := td.Get("lib:1")
	require.True(t, ok)
	assert.Equal(t, StateUpdated, el.State)
	assert.Equal(t, PropertyChange{Old: "A", New: "C", Version: 3}, el.Properties["title"])
	assert.Equal(t, PropertyChange{Old: 1965, New: nil, Version: 4}, el.Properties["year"])
}

func TestTrackingData_RemovedThenAddedIsUpdated(t *testing.T) {
	td := newTrackingData()
	td.Track(event.RemoveEntityEvent{Header: event.Header{ID: "lib:1"}})
	td.Track(addEntity("lib:1", 2))

	el, _ := td.Get("lib:1")
	assert.Equal(t, StateUpdated, el.State)
	assert.Equal(t, 1, td.Len())
}

func TestTrackingData_PrepareSkipsRemovedAndMissing(t *testing.T) {
	td := newTrackingData()
	td.Track(addEntity("lib:1", 1))
	td.Track(addEntity("lib:2", 1))
	td.Track(event.RemoveEntityEvent{Header: event.Header{ID: "lib:3"}})

	els := td.Prepare(func(id string) constraint.Element {
		if id == "lib:2" {
			return nil
		}
		return fakeElement{id: id}
	})
	require.Len(t, els, 1)
	assert.Equal(t, "lib:1", els[0].ID())
}
