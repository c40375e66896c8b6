package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/cursor"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/graph"
	"github.com/roach88/hypergraph/internal/schema"
	"github.com/roach88/hypergraph/internal/session"
)

// Domain is one namespace of elements. Ids are "<name>:<local>".
type Domain struct {
	store  *Store
	name   string
	graph  graph.Graph
	parent *Domain

	// seq is the last auto-assigned local id. It advances past every
	// numeric local id seen, including replayed ones.
	seq uint64

	cache       map[string]*Element
	subscribers []func(session.Result)
}

func newDomain(s *Store, name string, parent *Domain) *Domain {
	d := &Domain{
		store:  s,
		name:   name,
		parent: parent,
		cache:  make(map[string]*Element),
	}
	var opts []graph.Option
	if s.schema != nil {
		opts = append(opts, graph.WithSchema(s.schema))
	}
	if parent != nil {
		d.graph = graph.NewOverlay(name, parent.graph, opts...)
	} else {
		d.graph = graph.NewStore(name, opts...)
	}
	return d
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Parent returns the domain a scope was created from, or nil.
func (d *Domain) Parent() *Domain { return d.parent }

// Graph returns the underlying graph. Mutating it directly bypasses
// sessions and events.
func (d *Domain) Graph() graph.Graph { return d.graph }

// Store returns the owning store.
func (d *Domain) Store() *Store { return d.store }

// CreateScope creates a domain whose graph overlays this one. Changes in
// the scope never reach this domain.
func (d *Domain) CreateScope(name string) (*Domain, error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, fmt.Errorf("invalid scope name %q", name)
	}
	if _, ok := d.store.domains[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDomain, name)
	}
	scope := newDomain(d.store, name, d)
	d.store.register(scope)
	return scope, nil
}

// OnSessionCompleted subscribes fn to sessions that recorded events for
// this domain.
func (d *Domain) OnSessionCompleted(fn func(session.Result)) {
	d.subscribers = append(d.subscribers, fn)
}

// NewID returns the id for local, or the next sequence id when local is
// empty. A local id already carrying this domain's prefix is kept.
func (d *Domain) NewID(local string) string {
	if local == "" {
		d.seq++
		return d.qualify(strconv.FormatUint(d.seq, 10))
	}
	id := local
	if !strings.HasPrefix(local, d.name+":") {
		id = d.qualify(local)
	}
	d.observeID(id)
	return id
}

func (d *Domain) qualify(local string) string {
	return d.name + ":" + local
}

// observeID advances the sequence past a numeric id of this domain.
func (d *Domain) observeID(id string) {
	local, ok := strings.CutPrefix(id, d.name+":")
	if !ok {
		return
	}
	if n, err := strconv.ParseUint(local, 10, 64); err == nil && n > d.seq {
		d.seq = n
	}
}

func (d *Domain) header(sess *session.Session, id, schemaID string, version uint64) event.Header {
	return event.Header{
		Domain:        d.name,
		ID:            id,
		SchemaID:      schemaID,
		CorrelationID: sess.CorrelationID(),
		Version:       version,
		TopLevel:      true,
	}
}

func (d *Domain) run(fn func(*session.Session) error) error {
	_, err := d.store.InSession(session.Config{}, fn)
	return err
}

// Create adds an entity. An empty localID takes the next sequence id.
// Creating an id that is live, or removed but not yet compacted, fails
// with ErrDuplicateElement.
func (d *Domain) Create(schemaID, localID string) (*Element, error) {
	if p := d.store.schema; p != nil && p.IsRelationship(schemaID) {
		return nil, schemaKindError(schemaID, "an entity schema")
	}
	var el *Element
	err := d.run(func(sess *session.Session) error {
		id := d.NewID(localID)
		if d.graph.IsTombstoned(id) {
			return duplicateElement(id, schemaID)
		}
		n, err := d.graph.AddNode(id, schemaID, d.store.clock.Next())
		if err != nil {
			return err
		}
		if err := d.store.record(d, event.AddEntityEvent{Header: d.header(sess, n.ID, n.SchemaID, n.Version)}); err != nil {
			return err
		}
		el = d.handle(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return el, nil
}

// CreateRelationship adds a relationship from startID to endID. The start
// must exist; the end may appear later.
func (d *Domain) CreateRelationship(schemaID, startID, endID, localID string) (*Element, error) {
	p := d.store.schema
	if p != nil {
		if _, known := p.Lookup(schemaID); known && !p.IsRelationship(schemaID) {
			return nil, schemaKindError(schemaID, "a relationship schema")
		}
	}
	var el *Element
	err := d.run(func(sess *session.Session) error {
		id := d.NewID(localID)
		if d.graph.IsTombstoned(id) {
			return duplicateElement(id, schemaID)
		}
		ends := graph.Endpoints{StartID: startID, EndID: endID}
		if start := d.graph.GetNode(startID); start != nil {
			ends.StartSchemaID = start.SchemaID
		}
		if end := d.graph.GetNode(endID); end != nil {
			ends.EndSchemaID = end.SchemaID
		} else if p != nil {
			if def, ok := p.Lookup(schemaID); ok {
				ends.EndSchemaID = def.End
			}
		}
		n, err := d.graph.AddRelationship(id, schemaID, ends, d.store.clock.Next())
		if err != nil {
			return err
		}
		e := event.AddRelationshipEvent{
			Header:        d.header(sess, n.ID, n.SchemaID, n.Version),
			StartID:       n.StartID,
			StartSchemaID: n.StartSchemaID,
			EndID:         n.EndID,
			EndSchemaID:   n.EndSchemaID,
		}
		if err := d.store.record(d, e); err != nil {
			return err
		}
		el = d.handle(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return el, nil
}

// Remove deletes id with its cascade and returns the recorded events.
// Removing an absent id is a no-op. Cascades are suppressed while the
// session rolls back or replays undo/redo.
func (d *Domain) Remove(id string) ([]event.Event, error) {
	if d.graph.GetNode(id) == nil {
		return nil, nil
	}
	var events []event.Event
	err := d.run(func(sess *session.Session) error {
		events = d.graph.RemoveNode(id, graph.RemoveOptions{
			Domain:        d.name,
			CorrelationID: sess.CorrelationID(),
			Version:       d.store.clock.Next(),
			NoCascade:     sess.Mode().Has(session.ModeRollback | session.ModeUndo | session.ModeRedo),
		})
		return d.recordRemoval(events)
	})
	return events, err
}

func (d *Domain) recordRemoval(events []event.Event) error {
	for _, e := range events {
		switch e.(type) {
		case event.RemoveEntityEvent, event.RemoveRelationshipEvent:
			d.dispose(e.Meta().ID)
		}
		if err := d.store.record(d, e); err != nil {
			return err
		}
	}
	return nil
}

// SetPropertyValue assigns a property of id. A nil value unsets it.
func (d *Domain) SetPropertyValue(id, name string, value any) error {
	owner := d.graph.GetNode(id)
	if owner == nil {
		return invalidElement(id)
	}
	return d.run(func(sess *session.Session) error {
		e := event.ChangePropertyValueEvent{
			Header:       d.header(sess, id, owner.SchemaID, d.store.clock.Next()),
			PropertyName: name,
			Value:        value,
		}
		if old := d.graph.GetPropertyNode(id, name); old != nil {
			e.OldValue, e.OldVersion = old.Value, old.Version
		}
		if value == nil {
			d.graph.RemovePropertyNode(id, name, graph.RemoveOptions{Domain: d.name})
		} else {
			d.graph.AddPropertyNode(id, name, d.propertySchema(owner.SchemaID, name), value, e.Version)
		}
		return d.store.record(d, e)
	})
}

// RemovePropertyValue deletes a stored property value. The event it records
// has no reverse, so a rollback does not restore the value.
func (d *Domain) RemovePropertyValue(id, name string) error {
	if d.graph.GetNode(id) == nil {
		return invalidElement(id)
	}
	if d.graph.GetPropertyNode(id, name) == nil {
		return nil
	}
	return d.run(func(sess *session.Session) error {
		e, ok := d.graph.RemovePropertyNode(id, name, graph.RemoveOptions{
			Domain:        d.name,
			CorrelationID: sess.CorrelationID(),
			Version:       d.store.clock.Next(),
		})
		if !ok {
			return nil
		}
		return d.store.record(d, e)
	})
}

type propertyLookup interface {
	Property(schemaID, name string) (schema.Property, bool)
}

func (d *Domain) propertySchema(ownerSchema, name string) string {
	if p, ok := d.store.schema.(propertyLookup); ok {
		if prop, ok := p.Property(ownerSchema, name); ok {
			return prop.Type
		}
	}
	return ""
}

// GetPropertyValue returns a property of id, or nil when unset.
func (d *Domain) GetPropertyValue(id, name string) (any, error) {
	if d.graph.GetNode(id) == nil {
		return nil, invalidElement(id)
	}
	if p := d.graph.GetPropertyNode(id, name); p != nil {
		return p.Value, nil
	}
	return nil, nil
}

// ElementExists reports whether id is live.
func (d *Domain) ElementExists(id string) bool {
	return d.graph.GetNode(id) != nil
}

// Get returns the handle of id, or nil. Repeated calls return the same
// handle while the element lives.
func (d *Domain) Get(id string) *Element {
	n := d.graph.GetNode(id)
	if n == nil {
		return nil
	}
	return d.handle(n)
}

func (d *Domain) handle(n *graph.Node) *Element {
	if el, ok := d.cache[n.ID]; ok && !el.disposed {
		return el
	}
	el := &Element{
		domain:   d,
		id:       n.ID,
		schemaID: n.SchemaID,
		kind:     n.Kind,
		startID:  n.StartID,
		endID:    n.EndID,
	}
	d.cache[n.ID] = el
	return el
}

func (d *Domain) dispose(id string) {
	if el, ok := d.cache[id]; ok {
		el.disposed = true
		delete(d.cache, id)
	}
}

// GetEntities returns the live entities, optionally of one schema.
func (d *Domain) GetEntities(schemaID string) cursor.Cursor[*Element] {
	return cursor.Map(d.graph.GetNodes(graph.KindEntity, schemaID), d.handle)
}

// GetRelationships returns the live relationships, optionally filtered by
// schema, start and end. Empty filters match everything.
func (d *Domain) GetRelationships(schemaID, startID, endID string) cursor.Cursor[*Element] {
	rels := cursor.Filter(d.graph.GetNodes(graph.KindRelationship, schemaID), func(n *graph.Node) bool {
		return (startID == "" || n.StartID == startID) && (endID == "" || n.EndID == endID)
	})
	return cursor.Map(rels, d.handle)
}

// Traverse returns the live elements across id's relationships in dir,
// optionally limited to one relationship schema.
func (d *Domain) Traverse(id string, dir graph.Direction, schemaID string) cursor.Cursor[*Element] {
	edges := cursor.Filter(d.graph.GetEdges(id, dir), func(e graph.EdgeInfo) bool {
		return (schemaID == "" || e.SchemaID == schemaID) && d.graph.GetNode(e.EndID) != nil
	})
	return cursor.Map(edges, func(e graph.EdgeInfo) *Element {
		return d.Get(e.EndID)
	})
}

// Validate runs the validate-kind constraints over every live element.
func (d *Domain) Validate() []constraint.Diagnostic {
	checker := d.store.checker
	if checker == nil {
		return nil
	}
	els := cursor.Collect(cursor.Map(d.graph.GetNodes(graph.KindAll, ""), func(n *graph.Node) constraint.Element {
		return d.handle(n)
	}))
	return checker.Check(els, constraint.KindValidate)
}

// apply is the default dispatcher for events of this domain. It revives
// tombstoned ids, never cascades and re-records the event in the active
// session.
func (d *Domain) apply(e event.Event) error {
	h := e.Meta()
	switch ev := e.(type) {
	case event.AddEntityEvent:
		if _, err := d.graph.AddNode(h.ID, h.SchemaID, h.Version); err != nil {
			return err
		}
	case event.AddRelationshipEvent:
		_, err := d.graph.AddRelationship(h.ID, h.SchemaID, graph.Endpoints{
			StartID:       ev.StartID,
			StartSchemaID: ev.StartSchemaID,
			EndID:         ev.EndID,
			EndSchemaID:   ev.EndSchemaID,
		}, h.Version)
		if err != nil {
			return err
		}
	case event.RemoveEntityEvent, event.RemoveRelationshipEvent:
		d.graph.RemoveNode(h.ID, graph.RemoveOptions{
			Domain:        d.name,
			CorrelationID: h.CorrelationID,
			Version:       h.Version,
			NoCascade:     true,
		})
		d.dispose(h.ID)
	case event.ChangePropertyValueEvent:
		owner := d.graph.GetNode(h.ID)
		if owner == nil {
			return invalidElement(h.ID)
		}
		if ev.Value == nil {
			d.graph.RemovePropertyNode(h.ID, ev.PropertyName, graph.RemoveOptions{Domain: d.name})
		} else {
			d.graph.AddPropertyNode(h.ID, ev.PropertyName, d.propertySchema(owner.SchemaID, ev.PropertyName), ev.Value, h.Version)
		}
	case event.RemovePropertyEvent:
		d.graph.RemovePropertyNode(h.ID, ev.PropertyName, graph.RemoveOptions{Domain: d.name})
	default:
		return errors.New("unsupported event")
	}
	d.observeID(h.ID)
	d.store.clock.Observe(h.Version)
	return d.store.record(d, e)
}
