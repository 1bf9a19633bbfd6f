package aggregates

import (
	"fmt"

	"graphboard/domain/core/valueobjects"
)

// DefaultTitle is the title of a document nobody has named yet.
const DefaultTitle = "Untitled Graph"

// GraphDocument is the canonical in-memory diagram of one editor session.
//
// A GraphDocument is immutable: every mutation returns a new document and
// leaves the receiver untouched, so a pointer taken at any instant is a
// stable snapshot. Edge endpoints are expected to name existing nodes but
// this is not enforced here.
type GraphDocument struct {
	id       string
	ownerID  string
	title    string
	nodes    []Node
	edges    []Edge
	viewport *valueobjects.Viewport

	// unknown top-level keys of the stored payload, and of its viewport
	extra         rawObject
	viewportExtra rawObject
}

// NewDocument returns an empty, never-persisted document.
func NewDocument() *GraphDocument {
	return &GraphDocument{title: DefaultTitle}
}

// ID returns the persisted identifier, or "" before the first save.
func (d *GraphDocument) ID() string { return d.id }

// IsNew reports whether the document has never been persisted.
func (d *GraphDocument) IsNew() bool { return d.id == "" }

func (d *GraphDocument) OwnerID() string { return d.ownerID }
func (d *GraphDocument) Title() string   { return d.title }
func (d *GraphDocument) NodeCount() int  { return len(d.nodes) }
func (d *GraphDocument) EdgeCount() int  { return len(d.edges) }

// Nodes returns a copy of the nodes in z-order.
func (d *GraphDocument) Nodes() []Node {
	out := make([]Node, len(d.nodes))
	for i := range d.nodes {
		out[i] = d.nodes[i].clone()
	}
	return out
}

// Edges returns a copy of the edges.
func (d *GraphDocument) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	for i := range d.edges {
		out[i] = d.edges[i].clone()
	}
	return out
}

// Node looks up a node by id.
func (d *GraphDocument) Node(id string) (Node, bool) {
	if i := d.nodeIndex(id); i >= 0 {
		return d.nodes[i].clone(), true
	}
	return Node{}, false
}

// Edge looks up an edge by id.
func (d *GraphDocument) Edge(id string) (Edge, bool) {
	if i := d.edgeIndex(id); i >= 0 {
		return d.edges[i].clone(), true
	}
	return Edge{}, false
}

// HasNode reports whether a node with id exists.
func (d *GraphDocument) HasNode(id string) bool {
	return d.nodeIndex(id) >= 0
}

// Viewport returns the camera state if one has been recorded.
func (d *GraphDocument) Viewport() (valueobjects.Viewport, bool) {
	if d.viewport == nil {
		return valueobjects.Viewport{}, false
	}
	return *d.viewport, true
}

func (d *GraphDocument) nodeIndex(id string) int {
	for i := range d.nodes {
		if d.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *GraphDocument) edgeIndex(id string) int {
	for i := range d.edges {
		if d.edges[i].ID == id {
			return i
		}
	}
	return -1
}

// copy returns a shallow copy with private slices. Node and edge values are
// shared until modified; modifications always replace maps rather than
// writing into them.
func (d *GraphDocument) copy() *GraphDocument {
	c := *d
	c.nodes = append([]Node(nil), d.nodes...)
	c.edges = append([]Edge(nil), d.edges...)
	if d.viewport != nil {
		v := *d.viewport
		c.viewport = &v
	}
	return &c
}

// WithID binds the persisted identifier. Binding is one-shot: rebinding to a
// different id is an error.
func (d *GraphDocument) WithID(id string) (*GraphDocument, error) {
	if id == "" {
		return nil, fmt.Errorf("graph id must not be empty")
	}
	if d.id != "" && d.id != id {
		return nil, fmt.Errorf("graph already bound to %s", d.id)
	}
	c := d.copy()
	c.id = id
	return c, nil
}

// WithOwner stamps the owning user.
func (d *GraphDocument) WithOwner(ownerID string) *GraphDocument {
	c := d.copy()
	c.ownerID = ownerID
	return c
}

// WithTitle renames the document.
func (d *GraphDocument) WithTitle(title string) *GraphDocument {
	c := d.copy()
	c.title = title
	return c
}

// WithViewport records the camera state.
func (d *GraphDocument) WithViewport(v valueobjects.Viewport) *GraphDocument {
	c := d.copy()
	c.viewport = &v
	if _, ok := c.extra["viewport"]; ok {
		c.extra = cloneRaw(c.extra)
		delete(c.extra, "viewport")
	}
	return c
}

// WithContents replaces all nodes and edges. Later duplicates of an id are
// dropped.
func (d *GraphDocument) WithContents(nodes []Node, edges []Edge) *GraphDocument {
	c := d.copy()
	c.nodes = c.nodes[:0]
	c.edges = c.edges[:0]
	for _, n := range nodes {
		if c.nodeIndex(n.ID) < 0 {
			c.nodes = append(c.nodes, n.clone())
		}
	}
	for _, e := range edges {
		if c.edgeIndex(e.ID) < 0 {
			c.edges = append(c.edges, e.clone())
		}
	}
	return c
}

// AddNode appends n on top of the z-order. A node whose id is taken is
// ignored.
func (d *GraphDocument) AddNode(n Node) *GraphDocument {
	if n.ID == "" || d.HasNode(n.ID) {
		return d
	}
	c := d.copy()
	c.nodes = append(c.nodes, n.clone())
	return c
}

// Clear removes every node and edge. Title and viewport are kept.
func (d *GraphDocument) Clear() *GraphDocument {
	c := d.copy()
	c.nodes = nil
	c.edges = nil
	return c
}

// DeleteSelected removes selected nodes, selected edges and every edge left
// without an endpoint by the node removal.
func (d *GraphDocument) DeleteSelected() *GraphDocument {
	c := d.copy()
	removed := make(map[string]struct{})
	nodes := c.nodes[:0]
	for _, n := range d.nodes {
		if n.Selected {
			removed[n.ID] = struct{}{}
			continue
		}
		nodes = append(nodes, n)
	}
	c.nodes = nodes

	edges := c.edges[:0]
	for _, e := range d.edges {
		if e.Selected {
			continue
		}
		if _, ok := removed[e.Source]; ok {
			continue
		}
		if _, ok := removed[e.Target]; ok {
			continue
		}
		edges = append(edges, e)
	}
	c.edges = edges
	return c
}

// HasSelection reports whether any node or edge is selected.
func (d *GraphDocument) HasSelection() bool {
	for _, n := range d.nodes {
		if n.Selected {
			return true
		}
	}
	for _, e := range d.edges {
		if e.Selected {
			return true
		}
	}
	return false
}
