package graph

import (
	"github.com/roach88/hypergraph/internal/cursor"
	"github.com/roach88/hypergraph/internal/table"
)

// Kind classifies a node. Values are bit flags so they can be combined into
// a mask for GetNodes.
type Kind uint8

const (
	KindEntity Kind = 1 << iota
	KindRelationship
	KindProperty
)

// KindAll matches entities and relationships.
const KindAll = KindEntity | KindRelationship

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindRelationship:
		return "relationship"
	case KindProperty:
		return "property"
	case KindAll:
		return "entity|relationship"
	default:
		return "unknown"
	}
}

// Direction selects adjacency tables.
type Direction uint8

const (
	DirectionOutgoing Direction = 1 << iota
	DirectionIncoming
)

// DirectionBoth selects outgoing then incoming edges.
const DirectionBoth = DirectionOutgoing | DirectionIncoming

// EdgeInfo is the denormalized pointer stored on both endpoints of a
// relationship. EndID and EndSchemaID name the opposite endpoint: the
// relationship's end on the start node, its start on the end node.
type EdgeInfo struct {
	ID            string
	SchemaID      string
	EndID         string
	EndSchemaID   string
	Bidirectional bool
}

// Node is the stored unit of the graph. Nodes returned by a Graph must be
// treated as read-only; all mutation goes through the Graph.
type Node struct {
	ID       string
	SchemaID string
	Kind     Kind
	Version  uint64

	// Relationship endpoints.
	StartID       string
	StartSchemaID string
	EndID         string
	EndSchemaID   string

	// Property payload.
	OwnerID string
	Name    string
	Value   any

	outgoing *table.Table[string, EdgeInfo]
	incoming *table.Table[string, EdgeInfo]

	// needsUpdate marks a clone of a base node that an overlay handed out
	// but has not yet stored locally. Its tables still belong to the base.
	needsUpdate bool
}

func newElementNode(id, schemaID string, kind Kind, version uint64) *Node {
	return &Node{
		ID:       id,
		SchemaID: schemaID,
		Kind:     kind,
		Version:  version,
		outgoing: table.New[string, EdgeInfo](),
		incoming: table.New[string, EdgeInfo](),
	}
}

// PropertyID derives the id of a property node.
func PropertyID(ownerID, name string) string {
	return ownerID + "." + name
}

// Outgoing returns the edges whose start is this node.
func (n *Node) Outgoing() cursor.Cursor[EdgeInfo] {
	if n.outgoing == nil {
		return cursor.Empty[EdgeInfo]()
	}
	return n.outgoing.Values()
}

// Incoming returns the edges whose end is this node. A self-loop is only
// listed in Outgoing, flagged Bidirectional.
func (n *Node) Incoming() cursor.Cursor[EdgeInfo] {
	if n.incoming == nil {
		return cursor.Empty[EdgeInfo]()
	}
	return n.incoming.Values()
}

// Edges returns the adjacency selected by dir.
func (n *Node) Edges(dir Direction) cursor.Cursor[EdgeInfo] {
	switch dir {
	case DirectionOutgoing:
		return n.Outgoing()
	case DirectionIncoming:
		return n.Incoming()
	default:
		return cursor.Concat(n.Outgoing(), n.Incoming())
	}
}

// Degree returns the number of outgoing and incoming edges.
func (n *Node) Degree() (out, in int) {
	if n.outgoing != nil {
		out = n.outgoing.Len()
	}
	if n.incoming != nil {
		in = n.incoming.Len()
	}
	return out, in
}

// Shadowed reports whether n is an overlay clone that has not been promoted
// into local storage.
func (n *Node) Shadowed() bool {
	return n.needsUpdate
}

// clone copies n for an overlay read. The copy shares the adjacency tables
// with n until ownTables runs, so it must not be mutated before promotion.
func (n *Node) clone() *Node {
	c := *n
	c.needsUpdate = true
	return &c
}

// ownTables replaces shared adjacency tables with private copies.
func (n *Node) ownTables() {
	if n.outgoing != nil {
		n.outgoing = n.outgoing.Clone()
	}
	if n.incoming != nil {
		n.incoming = n.incoming.Clone()
	}
}
