package aggregates

// Connection is a request to join two nodes, optionally at specific handles.
type Connection struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// EdgeID is the id given to the edge created for c.
func (c Connection) EdgeID() string {
	return "edge-" + c.Source + c.SourceHandle + "-" + c.Target + c.TargetHandle
}

// Connect adds an edge for c. It is a silent no-op, returning the receiver
// and false, when either endpoint is not a node of the document or an edge
// with the same endpoints and handles already exists.
func (d *GraphDocument) Connect(c Connection) (*GraphDocument, bool) {
	if !d.HasNode(c.Source) || !d.HasNode(c.Target) {
		return d, false
	}
	for _, e := range d.edges {
		if e.sameConnection(c) {
			return d, false
		}
	}

	edge := Edge{
		ID:           c.EdgeID(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
	}
	if d.edgeIndex(edge.ID) >= 0 {
		return d, false
	}

	out := d.copy()
	out.edges = append(out.edges, edge)
	return out, true
}
