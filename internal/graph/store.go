package graph

import (
	"log/slog"

	"github.com/roach88/hypergraph/internal/cursor"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/metrics"
	"github.com/roach88/hypergraph/internal/table"
)

// Store is the hypergraph of one domain.
//
// Store is not safe for concurrent use.
type Store struct {
	name   string
	schema SchemaInfo

	nodes *table.Table[string, *Node]
	props map[string]*Node
	// names keeps each owner's property names in first-set order.
	names   map[string][]string
	pending map[string]*table.Table[string, EdgeInfo]
}

// Option configures a Store or Overlay.
type Option func(*config)

type config struct {
	schema SchemaInfo
}

// WithSchema sets the schema consulted during removal.
func WithSchema(s SchemaInfo) Option {
	return func(c *config) {
		if s != nil {
			c.schema = s
		}
	}
}

// NewStore creates an empty graph. The name labels logs and metrics.
func NewStore(name string, opts ...Option) *Store {
	cfg := config{schema: noSchema{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newStore(name, cfg.schema)
}

func newStore(name string, schema SchemaInfo) *Store {
	s := &Store{
		name:    name,
		schema:  schema,
		nodes:   table.New[string, *Node](),
		props:   make(map[string]*Node),
		names:   make(map[string][]string),
		pending: make(map[string]*table.Table[string, EdgeInfo]),
	}
	s.nodes.OnShrink = func(reclaimed int) {
		metrics.Compacted(name)
		slog.Debug("graph compacted",
			"graph", name,
			"reclaimed", reclaimed,
			"live", s.nodes.Len())
	}
	return s
}

// Name returns the graph name.
func (s *Store) Name() string { return s.name }

// Schema returns the schema consulted during removal.
func (s *Store) Schema() SchemaInfo { return s.schema }

// Len returns the number of live entity and relationship nodes.
func (s *Store) Len() int { return s.nodes.Len() }

// Tombstones returns the number of removed ids still remembered.
func (s *Store) Tombstones() int { return s.nodes.Tombstones() }

// Compactions returns how many times the node table has been rebuilt.
func (s *Store) Compactions() int { return s.nodes.Shrinks() }

// AddNode creates an entity node. It fails with ErrDuplicateElement when id
// is live. A tombstoned id is revived.
func (s *Store) AddNode(id, schemaID string, version uint64) (*Node, error) {
	return addNode(s, id, schemaID, version)
}

// AddRelationship creates a relationship node and registers its edges. It
// fails with ErrInvalidStartElement when the start is not live. The end may
// be absent; its incoming edge is attached once it is created.
func (s *Store) AddRelationship(id, schemaID string, ends Endpoints, version uint64) (*Node, error) {
	return addRelationship(s, id, schemaID, ends, version)
}

// AddPropertyNode sets a property value, replacing any previous one.
func (s *Store) AddPropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node {
	pid := PropertyID(ownerID, name)
	p, ok := s.props[pid]
	if !ok {
		p = &Node{ID: pid, Kind: KindProperty, OwnerID: ownerID, Name: name}
		s.props[pid] = p
		s.names[ownerID] = append(s.names[ownerID], name)
	}
	p.SchemaID = schemaID
	p.Value = value
	p.Version = version
	return p
}

// UpdatePropertyNode is AddPropertyNode.
func (s *Store) UpdatePropertyNode(ownerID, name, schemaID string, value any, version uint64) *Node {
	return s.AddPropertyNode(ownerID, name, schemaID, value, version)
}

// GetNode returns the live node for id, or nil.
func (s *Store) GetNode(id string) *Node {
	n, ok := s.nodes.Get(id)
	if !ok {
		return nil
	}
	return n
}

// GetPropertyNode returns the property node of owner, or nil.
func (s *Store) GetPropertyNode(ownerID, name string) *Node {
	return s.props[PropertyID(ownerID, name)]
}

// PropertyNames returns the names of owner's stored properties.
func (s *Store) PropertyNames(ownerID string) []string {
	return append([]string(nil), s.names[ownerID]...)
}

// IsTombstoned reports whether id was removed and not yet compacted away
// or revived.
func (s *Store) IsTombstoned(id string) bool {
	return s.nodes.IsTombstoned(id)
}

// RemoveNode removes id and, unless opts.NoCascade, everything its lifetime
// owns. Removing an absent id returns no events.
func (s *Store) RemoveNode(id string, opts RemoveOptions) []event.Event {
	return removeNode(s, id, opts)
}

// RemovePropertyNode deletes one property value.
func (s *Store) RemovePropertyNode(ownerID, name string, opts RemoveOptions) (event.RemovePropertyEvent, bool) {
	return removeProperty(s, ownerID, name, opts)
}

// GetNodes lazily filters live nodes by kind mask and, when schemaID is not
// empty, by schema.
func (s *Store) GetNodes(mask Kind, schemaID string) cursor.Cursor[*Node] {
	return cursor.Filter[*Node](s.nodes.Values(), func(n *Node) bool {
		return matches(n, mask, schemaID)
	})
}

// GetEdges returns the edges of id in the given direction.
func (s *Store) GetEdges(id string, dir Direction) cursor.Cursor[EdgeInfo] {
	return edges(s, id, dir)
}

func (s *Store) pendingIncoming(endID string) []EdgeInfo {
	t, ok := s.pending[endID]
	if !ok {
		return nil
	}
	return cursor.Collect[EdgeInfo](t.Values())
}

func (s *Store) promote(*Node) {}

func (s *Store) insertNode(n *Node) {
	s.nodes.Set(n.ID, n)
}

func (s *Store) deleteNode(id string) {
	s.nodes.Remove(id)
}

func (s *Store) deleteProperties(ownerID string, names []string) {
	for _, name := range names {
		delete(s.props, PropertyID(ownerID, name))
	}
	kept := s.names[ownerID][:0]
	for _, name := range s.names[ownerID] {
		if _, ok := s.props[PropertyID(ownerID, name)]; ok {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		delete(s.names, ownerID)
		return
	}
	s.names[ownerID] = kept
}

func (s *Store) addPending(endID string, e EdgeInfo) {
	t, ok := s.pending[endID]
	if !ok {
		t = table.New[string, EdgeInfo]()
		s.pending[endID] = t
	}
	t.Set(e.ID, e)
}

func (s *Store) dropPending(endID, relID string) {
	t, ok := s.pending[endID]
	if !ok {
		return
	}
	t.Remove(relID)
	if t.Len() == 0 {
		delete(s.pending, endID)
	}
}

func (s *Store) takePending(endID string) []EdgeInfo {
	out := s.pendingIncoming(endID)
	delete(s.pending, endID)
	return out
}

func (s *Store) compact() {
	s.nodes.Compact()
}
