package graph

import (
	"github.com/roach88/hypergraph/internal/cursor"
	"github.com/roach88/hypergraph/internal/event"
)

// Overlay is a copy-on-write graph layered over a base Graph.
//
// Reads check local storage first. A node found only in the base is handed
// out as a shallow copy with needsUpdate set, without being stored. Its
// adjacency tables are copied only when a mutation promotes it into local
// storage, so the base is never written and reads stay cheap. Removing a
// base node or property hides it locally.
type Overlay struct {
	base  Graph
	local *Store

	// hidden and hiddenProps mask base content removed through the overlay.
	// They survive local compaction.
	hidden      map[string]struct{}
	hiddenProps map[string]struct{}
}

// NewOverlay creates an overlay over base. Without WithSchema the overlay
// shares the base schema.
func NewOverlay(name string, base Graph, opts ...Option) *Overlay {
	cfg := config{schema: base.Schema()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Overlay{
		base:        base,
		local:       newStore(name, cfg.schema),
		hidden:      make(map[string]struct{}),
		hiddenProps: make(map[string]struct{}),
	}
}

// Base returns the graph the overlay reads through to.
func (o *Overlay) Base() Graph { return o.base }

// Name returns the overlay name.
func (o *Overlay) Name() string { return o.local.name }

// Schema returns the schema consulted during removal.
func (o *Overlay) Schema() SchemaInfo { return o.local.schema }

// LocalLen returns the number of nodes promoted or created locally.
func (o *Overlay) LocalLen() int { return o.local.Len() }

// AddNode creates an entity node in local storage.
func (o *Overlay) AddNode(id, schemaID string, version uint64) (*Node, error) {
	return addNode(o, id, schemaID, version)
}

// AddRelationship creates a relationship node in local storage, promoting
// the endpoints it touches.
func (o *Overlay) AddRelationship(id, schemaID string, ends Endpoints, version uint64) (*Node, error) {
	return addRelationship(o, id, schemaID, ends, version)
}

// AddPropertyNode sets a property value locally.
func (o *Overlay) AddPropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node {
	pid := PropertyID(ownerID, name)
	delete(o.hiddenProps, pid)
	return o.local.AddPropertyNode(ownerID, name, schemaID, value, version)
}

// UpdatePropertyNode is AddPropertyNode.
func (o *Overlay) UpdatePropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node {
	return o.AddPropertyNode(ownerID, name, schemaID, value, version)
}

// GetNode resolves id locally, then in the base. A base node is returned as
// an unpromoted copy sharing the base adjacency tables.
func (o *Overlay) GetNode(id string) *Node {
	if n := o.local.GetNode(id); n != nil {
		return n
	}
	if _, ok := o.hidden[id]; ok {
		return nil
	}
	if n := o.base.GetNode(id); n != nil {
		return n.clone()
	}
	return nil
}

// GetPropertyNode resolves a property locally, then in the base.
func (o *Overlay) GetPropertyNode(ownerID, name string) *Node {
	if p := o.local.GetPropertyNode(ownerID, name); p != nil {
		return p
	}
	if _, ok := o.hiddenProps[PropertyID(ownerID, name)]; ok {
		return nil
	}
	if p := o.base.GetPropertyNode(ownerID, name); p != nil {
		c := *p
		return &c
	}
	return nil
}

// PropertyNames lists base names still visible, then local-only names.
func (o *Overlay) PropertyNames(ownerID string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range o.base.PropertyNames(ownerID) {
		if _, ok := o.hiddenProps[PropertyID(ownerID, name)]; ok {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range o.local.PropertyNames(ownerID) {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

// IsTombstoned reports whether id was removed locally or in the base and is
// not live in the overlay.
func (o *Overlay) IsTombstoned(id string) bool {
	if o.local.GetNode(id) != nil {
		return false
	}
	if _, ok := o.hidden[id]; ok {
		return true
	}
	return o.local.IsTombstoned(id) || o.base.IsTombstoned(id)
}

// RemoveNode removes id from the overlay view. Base nodes are hidden, never
// modified.
func (o *Overlay) RemoveNode(id string, opts RemoveOptions) []event.Event {
	return removeNode(o, id, opts)
}

// RemovePropertyNode deletes or hides one property value.
func (o *Overlay) RemovePropertyNode(ownerID, name string, opts RemoveOptions) (event.RemovePropertyEvent, bool) {
	return removeProperty(o, ownerID, name, opts)
}

// GetNodes yields local live nodes followed by base nodes that are neither
// stored nor hidden locally. Base nodes arrive as unpromoted clones.
func (o *Overlay) GetNodes(mask Kind, schemaID string) cursor.Cursor[*Node] {
	local := o.local.GetNodes(mask, schemaID)
	base := cursor.Filter(o.base.GetNodes(mask, schemaID), func(n *Node) bool {
		if _, ok := o.hidden[n.ID]; ok {
			return false
		}
		return o.local.GetNode(n.ID) == nil
	})
	return cursor.Concat(local, cursor.Map(base, (*Node).clone))
}

// GetEdges returns the edges of id as seen through the overlay.
func (o *Overlay) GetEdges(id string, dir Direction) cursor.Cursor[EdgeInfo] {
	return edges(o, id, dir)
}

func (o *Overlay) pendingIncoming(endID string) []EdgeInfo {
	out := o.local.pendingIncoming(endID)
	if _, ok := o.hidden[endID]; ok {
		return out
	}
	for _, e := range o.base.pendingIncoming(endID) {
		if _, ok := o.hidden[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (o *Overlay) promote(n *Node) {
	if !n.needsUpdate {
		return
	}
	n.ownTables()
	n.needsUpdate = false
	o.local.insertNode(n)
}

func (o *Overlay) insertNode(n *Node) {
	if n.needsUpdate {
		n.ownTables()
		n.needsUpdate = false
	}
	delete(o.hidden, n.ID)
	o.local.insertNode(n)
}

func (o *Overlay) deleteNode(id string) {
	o.local.deleteNode(id)
	if o.base.GetNode(id) != nil {
		o.hidden[id] = struct{}{}
	}
}

func (o *Overlay) deleteProperties(ownerID string, names []string) {
	o.local.deleteProperties(ownerID, names)
	for _, name := range names {
		if o.base.GetPropertyNode(ownerID, name) != nil {
			o.hiddenProps[PropertyID(ownerID, name)] = struct{}{}
		}
	}
}

func (o *Overlay) addPending(endID string, e EdgeInfo) {
	o.local.addPending(endID, e)
}

func (o *Overlay) dropPending(endID, relID string) {
	o.local.dropPending(endID, relID)
}

func (o *Overlay) takePending(endID string) []EdgeInfo {
	out := o.pendingIncoming(endID)
	delete(o.local.pending, endID)
	return out
}

func (o *Overlay) compact() {
	o.local.compact()
}
