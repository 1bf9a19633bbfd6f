package aggregates

import (
	"graphboard/domain/core/valueobjects"
)

// NodeChangeType names a canvas node change.
type NodeChangeType string

const (
	NodeChangeAdd        NodeChangeType = "add"
	NodeChangeRemove     NodeChangeType = "remove"
	NodeChangeReset      NodeChangeType = "reset"
	NodeChangePosition   NodeChangeType = "position"
	NodeChangeDimensions NodeChangeType = "dimensions"
	NodeChangeSelect     NodeChangeType = "select"
	// NodeChangeData replaces a node's data bag. It is how label edits
	// reach the document; nodes are never edited in place.
	NodeChangeData NodeChangeType = "data"
)

// Dimensions is a measured node size.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeChange is one entry of a canvas node change batch.
type NodeChange struct {
	Type       NodeChangeType         `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Item       *Node                  `json:"item,omitempty"`
	Position   *valueobjects.Position `json:"position,omitempty"`
	Dragging   *bool                  `json:"dragging,omitempty"`
	Dimensions *Dimensions            `json:"dimensions,omitempty"`
	Selected   *bool                  `json:"selected,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Persistent reports whether applying c can alter the persisted payload.
// Selection and drag-state changes cannot.
func (c NodeChange) Persistent() bool {
	switch c.Type {
	case NodeChangeSelect:
		return false
	case NodeChangePosition:
		return c.Position != nil
	}
	return true
}

// EdgeChangeType names a canvas edge change.
type EdgeChangeType string

const (
	EdgeChangeAdd    EdgeChangeType = "add"
	EdgeChangeRemove EdgeChangeType = "remove"
	EdgeChangeReset  EdgeChangeType = "reset"
	EdgeChangeSelect EdgeChangeType = "select"
)

// EdgeChange is one entry of a canvas edge change batch.
type EdgeChange struct {
	Type     EdgeChangeType `json:"type"`
	ID       string         `json:"id,omitempty"`
	Item     *Edge          `json:"item,omitempty"`
	Selected *bool          `json:"selected,omitempty"`
}

// Persistent reports whether applying c can alter the persisted payload.
func (c EdgeChange) Persistent() bool {
	return c.Type != EdgeChangeSelect
}

// ApplyNodeChanges applies a batch in order and returns the new document.
// Changes naming unknown nodes are ignored. Removing a node does not remove
// its edges; the canvas reports those as separate edge changes.
func (d *GraphDocument) ApplyNodeChanges(changes []NodeChange) *GraphDocument {
	if len(changes) == 0 {
		return d
	}
	c := d.copy()
	for _, ch := range changes {
		switch ch.Type {
		case NodeChangeAdd:
			if ch.Item != nil && ch.Item.ID != "" && c.nodeIndex(ch.Item.ID) < 0 {
				c.nodes = append(c.nodes, ch.Item.clone())
			}
		case NodeChangeRemove:
			if i := c.nodeIndex(ch.ID); i >= 0 {
				c.nodes = append(c.nodes[:i:i], c.nodes[i+1:]...)
			}
		case NodeChangeReset:
			if ch.Item == nil {
				continue
			}
			id := ch.ID
			if id == "" {
				id = ch.Item.ID
			}
			if i := c.nodeIndex(id); i >= 0 {
				c.nodes[i] = ch.Item.clone()
			}
		default:
			i := c.nodeIndex(ch.ID)
			if i < 0 {
				continue
			}
			c.nodes[i] = applyNodeUpdate(c.nodes[i], ch)
		}
	}
	return c
}

func applyNodeUpdate(n Node, ch NodeChange) Node {
	switch ch.Type {
	case NodeChangePosition:
		if ch.Position != nil {
			n = n.moveTo(*ch.Position)
		}
		if ch.Dragging != nil {
			n.Dragging = *ch.Dragging
		}
	case NodeChangeDimensions:
		if ch.Dimensions != nil {
			n.Width = ch.Dimensions.Width
			n.Height = ch.Dimensions.Height
		}
	case NodeChangeSelect:
		if ch.Selected != nil {
			n.Selected = *ch.Selected
		}
	case NodeChangeData:
		n.Data = cloneBag(ch.Data)
	}
	return n
}

// ApplyEdgeChanges applies a batch in order and returns the new document.
func (d *GraphDocument) ApplyEdgeChanges(changes []EdgeChange) *GraphDocument {
	if len(changes) == 0 {
		return d
	}
	c := d.copy()
	for _, ch := range changes {
		switch ch.Type {
		case EdgeChangeAdd:
			if ch.Item != nil && ch.Item.ID != "" && c.edgeIndex(ch.Item.ID) < 0 {
				c.edges = append(c.edges, ch.Item.clone())
			}
		case EdgeChangeRemove:
			if i := c.edgeIndex(ch.ID); i >= 0 {
				c.edges = append(c.edges[:i:i], c.edges[i+1:]...)
			}
		case EdgeChangeReset:
			if ch.Item == nil {
				continue
			}
			id := ch.ID
			if id == "" {
				id = ch.Item.ID
			}
			if i := c.edgeIndex(id); i >= 0 {
				c.edges[i] = ch.Item.clone()
			}
		case EdgeChangeSelect:
			if i := c.edgeIndex(ch.ID); i >= 0 && ch.Selected != nil {
				c.edges[i].Selected = *ch.Selected
			}
		}
	}
	return c
}
