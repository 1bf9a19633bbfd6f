package aggregates

import (
	"fmt"

	"graphboard/domain/core/valueobjects"
)

// NewNode builds a node of type t labelled "<Type> <ordinal>".
func NewNode(id string, t valueobjects.NodeType, pos valueobjects.Position, ordinal int) Node {
	if t == "" {
		t = valueobjects.NodeTypeDefault
	}
	return Node{
		ID:       id,
		Position: pos,
		Data:     map[string]interface{}{"label": fmt.Sprintf("%s %d", t.Label(), ordinal)},
		Type:     t,
	}
}

// SampleContents is the three-node demo pipeline offered by the toolbar.
func SampleContents() ([]Node, []Edge) {
	nodes := []Node{
		{ID: "1", Position: valueobjects.Position{X: 100, Y: 100}, Data: map[string]interface{}{"label": "Start Node"}},
		{ID: "2", Position: valueobjects.Position{X: 300, Y: 100}, Data: map[string]interface{}{"label": "Process Node"}},
		{ID: "3", Position: valueobjects.Position{X: 500, Y: 100}, Data: map[string]interface{}{"label": "End Node"}},
	}
	edges := []Edge{
		{ID: "e1-2", Source: "1", Target: "2", Animated: true},
		{ID: "e2-3", Source: "2", Target: "3", Animated: true},
	}
	return nodes, edges
}
