package aggregates

import (
	"bytes"
	"encoding/json"
	"fmt"

	"graphboard/domain/core/entities"
	"graphboard/domain/core/valueobjects"
	pkgerrors "graphboard/pkg/errors"
)

// Load hydrates a document from a persisted graph row.
//
// The data payload must be an object whose nodes and edges, when present,
// are arrays of objects carrying their ids (and, for edges, endpoints).
// Anything else is a MalformedDocument error. Missing or mistyped optional
// fields are treated as absent; transient UI state is dropped.
func Load(record *entities.Graph) (*GraphDocument, error) {
	if record == nil {
		return nil, pkgerrors.NewMalformedDocumentError("no record")
	}

	doc, err := DecodeData(record.Data)
	if err != nil {
		return nil, err
	}
	doc.id = record.ID
	doc.ownerID = record.OwnerID
	doc.title = record.Title
	return doc, nil
}

// DecodeData parses a bare data payload ({nodes, edges, viewport?}), as
// stored in graphs.data and shared_graphs.graph_data_snapshot.
func DecodeData(data json.RawMessage) (*GraphDocument, error) {
	doc := NewDocument()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return doc, nil
	}

	obj, ok := decodeObject(trimmed)
	if !ok {
		return nil, pkgerrors.NewMalformedDocumentError("data is not an object")
	}

	nodes, err := decodeArray(obj, "nodes")
	if err != nil {
		return nil, err
	}
	for i, raw := range nodes {
		n, err := decodeNode(raw)
		if err != nil {
			return nil, pkgerrors.NewMalformedDocumentError(fmt.Sprintf("nodes[%d]: %v", i, err))
		}
		n.Selected, n.Dragging = false, false
		if doc.nodeIndex(n.ID) >= 0 {
			continue
		}
		doc.nodes = append(doc.nodes, n)
	}

	edges, err := decodeArray(obj, "edges")
	if err != nil {
		return nil, err
	}
	for i, raw := range edges {
		e, err := decodeEdge(raw)
		if err != nil {
			return nil, pkgerrors.NewMalformedDocumentError(fmt.Sprintf("edges[%d]: %v", i, err))
		}
		e.Selected = false
		if doc.edgeIndex(e.ID) >= 0 {
			continue
		}
		doc.edges = append(doc.edges, e)
	}

	obj.take("viewport", func(raw json.RawMessage) bool {
		vobj, ok := decodeObject(raw)
		if !ok {
			return false
		}
		var coords [3]float64
		for i, key := range [...]string{"x", "y", "zoom"} {
			v, ok := vobj[key]
			if !ok || isNull(v) || json.Unmarshal(v, &coords[i]) != nil {
				return false
			}
		}
		vp, err := valueobjects.NewViewport(coords[0], coords[1], coords[2])
		if err != nil {
			return false
		}
		vobj.drop("x", "y", "zoom")
		doc.viewport = &vp
		if len(vobj) > 0 {
			doc.viewportExtra = vobj
		}
		return true
	})

	if len(obj) > 0 {
		doc.extra = obj
	}
	return doc, nil
}

// decodeArray removes key from obj and splits it into raw elements. An
// absent or null key is an empty array; a null stays in obj so it is
// written back while the array stays empty.
func decodeArray(obj rawObject, key string) ([]json.RawMessage, error) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	delete(obj, key)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, pkgerrors.NewMalformedDocumentError(key + " is not an array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, pkgerrors.NewMalformedDocumentError(key + " is not an array").WithCause(err)
	}
	return items, nil
}

// ToPersistable serializes the document's data payload. Transient UI state
// (selected, dragging) is never written; viewport is omitted when absent.
func ToPersistable(doc *GraphDocument) (json.RawMessage, error) {
	nodes := make([]json.RawMessage, 0, len(doc.nodes))
	for _, n := range doc.nodes {
		b, err := encodeObject(n.extra, n.fields(false))
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		nodes = append(nodes, b)
	}

	edges := make([]json.RawMessage, 0, len(doc.edges))
	for _, e := range doc.edges {
		b, err := encodeObject(e.extra, e.fields(false))
		if err != nil {
			return nil, fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		edges = append(edges, b)
	}

	fields := map[string]interface{}{}
	if _, null := doc.extra["nodes"]; len(nodes) > 0 || !null {
		fields["nodes"] = nodes
	}
	if _, null := doc.extra["edges"]; len(edges) > 0 || !null {
		fields["edges"] = edges
	}
	if doc.viewport != nil {
		vp, err := encodeObject(doc.viewportExtra, map[string]interface{}{
			"x":    doc.viewport.X,
			"y":    doc.viewport.Y,
			"zoom": doc.viewport.Zoom,
		})
		if err != nil {
			return nil, fmt.Errorf("encode viewport: %w", err)
		}
		fields["viewport"] = json.RawMessage(vp)
	}

	b, err := encodeObject(doc.extra, fields)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ToInsert builds the create payload for a never-persisted document.
func ToInsert(doc *GraphDocument) (*entities.GraphInsert, error) {
	data, err := ToPersistable(doc)
	if err != nil {
		return nil, err
	}
	return &entities.GraphInsert{
		OwnerID: doc.ownerID,
		Title:   doc.title,
		Data:    data,
	}, nil
}

// ToUpdate builds the update payload for a persisted document.
func ToUpdate(doc *GraphDocument) (*entities.GraphUpdate, error) {
	data, err := ToPersistable(doc)
	if err != nil {
		return nil, err
	}
	title := doc.title
	return &entities.GraphUpdate{
		Title: &title,
		Data:  data,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
