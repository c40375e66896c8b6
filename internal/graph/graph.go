// Package graph implements the hypergraph that stores one domain: entity,
// relationship and property nodes, adjacency, cascading removal and the
// copy-on-write overlay used by scopes.
//
// Relationships are nodes. Both endpoints of a relationship carry an EdgeInfo
// naming it, so a relationship can itself be the start or end of another
// relationship. Property values are nodes too, kept in a separate map keyed
// by PropertyID and deleted outright with their owner.
//
// Store and Overlay both satisfy Graph. All cascade and edge bookkeeping is
// written once against the unexported backend interface.
package graph

import (
	"sort"

	"github.com/roach88/hypergraph/internal/cursor"
	"github.com/roach88/hypergraph/internal/event"
)

// SchemaInfo answers the schema questions the graph needs during removal.
type SchemaInfo interface {
	// IsEmbedded reports whether a relationship schema owns its end element.
	IsEmbedded(schemaID string) bool
	// PropertiesOf lists the declared property names of a schema, inherited
	// ones first.
	PropertiesOf(schemaID string) []string
}

type noSchema struct{}

func (noSchema) IsEmbedded(string) bool       { return false }
func (noSchema) PropertiesOf(string) []string { return nil }

// Endpoints names the start and end of a relationship.
type Endpoints struct {
	StartID       string
	StartSchemaID string
	EndID         string
	EndSchemaID   string
}

// RemoveOptions stamps the events produced by a removal.
type RemoveOptions struct {
	Domain        string
	CorrelationID string
	// Version stamps the remove events. Zero uses each node's own version.
	Version uint64
	// NoCascade removes only the target. Set while rolling back or replaying
	// undo/redo, where the forward session already recorded the cascade.
	NoCascade bool
}

// Graph is the node/edge store of one domain.
type Graph interface {
	Name() string
	Schema() SchemaInfo

	AddNode(id, schemaID string, version uint64) (*Node, error)
	AddRelationship(id, schemaID string, ends Endpoints, version uint64) (*Node, error)
	AddPropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node
	UpdatePropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node

	GetNode(id string) *Node
	GetPropertyNode(ownerID, name string) *Node
	PropertyNames(ownerID string) []string
	IsTombstoned(id string) bool

	RemoveNode(id string, opts RemoveOptions) []event.Event
	RemovePropertyNode(ownerID, name string, opts RemoveOptions) (event.RemovePropertyEvent, bool)

	GetNodes(mask Kind, schemaID string) cursor.Cursor[*Node]
	GetEdges(id string, dir Direction) cursor.Cursor[EdgeInfo]

	// pendingIncoming lists incoming edges recorded for an end id that was
	// not live when its relationship was created.
	pendingIncoming(endID string) []EdgeInfo
}

// backend is the storage-specific half of a Graph. Node lookups go through
// the Graph methods; the methods here touch local storage only.
type backend interface {
	Graph

	// promote stores an overlay clone locally before it is mutated.
	promote(n *Node)
	insertNode(n *Node)
	deleteNode(id string)
	deleteProperties(ownerID string, names []string)
	addPending(endID string, e EdgeInfo)
	dropPending(endID, relID string)
	takePending(endID string) []EdgeInfo
	compact()
}

func matches(n *Node, mask Kind, schemaID string) bool {
	if n == nil || n.Kind&mask == 0 {
		return false
	}
	return schemaID == "" || n.SchemaID == schemaID
}

func addNode(b backend, id, schemaID string, version uint64) (*Node, error) {
	if b.GetNode(id) != nil {
		return nil, duplicateError(id, schemaID)
	}
	n := newElementNode(id, schemaID, KindEntity, version)
	b.insertNode(n)
	attachPending(b, n)
	return n, nil
}

// attachPending wires incoming edges recorded before n existed.
func attachPending(b backend, n *Node) {
	for _, e := range b.takePending(n.ID) {
		if b.GetNode(e.ID) == nil {
			continue
		}
		n.incoming.Set(e.ID, e)
	}
}

func addRelationship(b backend, id, schemaID string, ends Endpoints, version uint64) (*Node, error) {
	start := b.GetNode(ends.StartID)
	if start == nil {
		return nil, invalidStartError(ends.StartID, ends.StartSchemaID)
	}
	if b.GetNode(id) != nil {
		return nil, duplicateError(id, schemaID)
	}

	rel := newElementNode(id, schemaID, KindRelationship, version)
	rel.StartID, rel.StartSchemaID = ends.StartID, ends.StartSchemaID
	rel.EndID, rel.EndSchemaID = ends.EndID, ends.EndSchemaID
	b.insertNode(rel)
	attachPending(b, rel)

	out := EdgeInfo{ID: id, SchemaID: schemaID, EndID: ends.EndID, EndSchemaID: ends.EndSchemaID}
	b.promote(start)
	if ends.StartID == ends.EndID {
		out.Bidirectional = true
		start.outgoing.Set(id, out)
		return rel, nil
	}
	start.outgoing.Set(id, out)

	in := EdgeInfo{ID: id, SchemaID: schemaID, EndID: ends.StartID, EndSchemaID: ends.StartSchemaID}
	if end := b.GetNode(ends.EndID); end != nil {
		b.promote(end)
		end.incoming.Set(id, in)
	} else {
		b.addPending(ends.EndID, in)
	}
	return rel, nil
}

func removeHeader(n *Node, opts RemoveOptions, topLevel bool) event.Header {
	version := opts.Version
	if version == 0 {
		version = n.Version
	}
	return event.Header{
		Domain:        opts.Domain,
		ID:            n.ID,
		SchemaID:      n.SchemaID,
		CorrelationID: opts.CorrelationID,
		Version:       version,
		TopLevel:      topLevel,
	}
}

func removeEvent(n *Node, opts RemoveOptions, topLevel bool) event.Event {
	h := removeHeader(n, opts, topLevel)
	if n.Kind == KindRelationship {
		return event.RemoveRelationshipEvent{
			Header:        h,
			StartID:       n.StartID,
			StartSchemaID: n.StartSchemaID,
			EndID:         n.EndID,
			EndSchemaID:   n.EndSchemaID,
		}
	}
	return event.RemoveEntityEvent{Header: h}
}

// removeNode runs the cascade with an explicit stack. The returned events
// list relationships first, then entities, then one RemovePropertyEvent per
// stored property of each removed node. Reversing the list re-creates every
// entity before any relationship that needs it as a start.
func removeNode(b backend, id string, opts RemoveOptions) []event.Event {
	target := b.GetNode(id)
	if target == nil {
		return nil
	}

	schema := b.Schema()
	seen := map[string]struct{}{id: {}}
	stack := []*Node{target}
	var collected []*Node

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		collected = append(collected, n)
		if opts.NoCascade {
			continue
		}

		push := func(nid string) {
			if _, ok := seen[nid]; ok {
				return
			}
			seen[nid] = struct{}{}
			if m := b.GetNode(nid); m != nil {
				stack = append(stack, m)
			}
		}
		for c := n.Outgoing(); c.HasNext(); {
			push(c.Next().ID)
		}
		for c := n.Incoming(); c.HasNext(); {
			push(c.Next().ID)
		}
		if n.Kind == KindRelationship && schema.IsEmbedded(n.SchemaID) {
			push(n.EndID)
		}
	}

	ordered := removalOrder(collected)
	events := make([]event.Event, 0, len(ordered))
	for _, n := range ordered {
		events = append(events, removeEvent(n, opts, n.ID == id))
	}

	var propEvents []event.Event
	for _, n := range ordered {
		detach(b, n)
		names := orderedProperties(b, schema, n)
		for _, name := range names {
			p := b.GetPropertyNode(n.ID, name)
			if p == nil {
				continue
			}
			propEvents = append(propEvents, event.RemovePropertyEvent{
				Header:       removeHeader(n, opts, false),
				PropertyName: name,
				Value:        p.Value,
				OldVersion:   p.Version,
			})
		}
		b.deleteProperties(n.ID, names)
		b.deleteNode(n.ID)
	}
	b.compact()

	return append(events, propEvents...)
}

// removalOrder puts relationships before entities. A relationship that
// starts on another removed relationship precedes it, so the reverse order
// re-creates starts first. Ties keep visit order.
func removalOrder(collected []*Node) []*Node {
	rels := make(map[string]*Node)
	for _, n := range collected {
		if n.Kind == KindRelationship {
			rels[n.ID] = n
		}
	}
	depthOf := func(n *Node) int {
		d := 0
		for cur := n; d < len(rels); d++ {
			start, ok := rels[cur.StartID]
			if !ok || start == cur {
				break
			}
			cur = start
		}
		return d
	}
	depth := make(map[string]int, len(rels))

	var relOrder, entOrder []*Node
	for _, n := range collected {
		if n.Kind == KindRelationship {
			depth[n.ID] = depthOf(n)
			relOrder = append(relOrder, n)
		} else {
			entOrder = append(entOrder, n)
		}
	}
	sort.SliceStable(relOrder, func(i, j int) bool {
		return depth[relOrder[i].ID] > depth[relOrder[j].ID]
	})
	return append(relOrder, entOrder...)
}

// detach removes a relationship's edge entries from its endpoints.
// Edges an element holds as an endpoint belong to relationship nodes,
// which the cascade removes on their own.
func detach(b backend, n *Node) {
	if n.Kind != KindRelationship {
		return
	}
	if s := b.GetNode(n.StartID); s != nil && s.outgoing.Has(n.ID) {
		b.promote(s)
		s.outgoing.Remove(n.ID)
		s.outgoing.Compact()
	}
	if n.StartID == n.EndID {
		return
	}
	e := b.GetNode(n.EndID)
	if e == nil {
		b.dropPending(n.EndID, n.ID)
		return
	}
	if e.incoming.Has(n.ID) {
		b.promote(e)
		e.incoming.Remove(n.ID)
		e.incoming.Compact()
	}
}

// orderedProperties lists the stored property names of n: schema order
// first, then undeclared names in the order they were first set.
func orderedProperties(g Graph, schema SchemaInfo, n *Node) []string {
	stored := g.PropertyNames(n.ID)
	if len(stored) == 0 {
		return nil
	}
	present := make(map[string]bool, len(stored))
	for _, name := range stored {
		present[name] = true
	}
	out := make([]string, 0, len(stored))
	for _, name := range schema.PropertiesOf(n.SchemaID) {
		if present[name] {
			out = append(out, name)
			delete(present, name)
		}
	}
	for _, name := range stored {
		if present[name] {
			out = append(out, name)
		}
	}
	return out
}

func removeProperty(b backend, ownerID, name string, opts RemoveOptions) (event.RemovePropertyEvent, bool) {
	p := b.GetPropertyNode(ownerID, name)
	if p == nil {
		return event.RemovePropertyEvent{}, false
	}
	owner := &Node{ID: ownerID, Version: p.Version}
	if o := b.GetNode(ownerID); o != nil {
		owner.SchemaID = o.SchemaID
	}
	ev := event.RemovePropertyEvent{
		Header:       removeHeader(owner, opts, true),
		PropertyName: name,
		Value:        p.Value,
		OldVersion:   p.Version,
	}
	b.deleteProperties(ownerID, []string{name})
	return ev, true
}

func edges(g Graph, id string, dir Direction) cursor.Cursor[EdgeInfo] {
	n := g.GetNode(id)
	if n == nil {
		return cursor.Empty[EdgeInfo]()
	}
	return n.Edges(dir)
}
