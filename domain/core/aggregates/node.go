package aggregates

import (
	"encoding/json"
	"fmt"

	"graphboard/domain/core/valueobjects"
)

// Node is a vertex of the diagram in the canvas library's shape.
//
// Optional fields use their zero value for "absent". Keys the model does not
// understand, and values of the wrong type, are preserved in extra and
// written back unchanged.
type Node struct {
	ID             string
	Position       valueobjects.Position
	Data           map[string]interface{}
	Type           valueobjects.NodeType
	Style          map[string]interface{}
	ClassName      string
	SourcePosition valueobjects.HandlePosition
	TargetPosition valueobjects.HandlePosition
	Hidden         bool
	Width          float64
	Height         float64

	// UI-only state, never persisted.
	Selected bool
	Dragging bool

	// unplaced marks a stored node that had no usable position. Its stored
	// form is written back as it was until the canvas moves it.
	unplaced bool
	extra    rawObject
}

// Label returns the node's display label.
func (n Node) Label() string {
	if n.Data == nil {
		return ""
	}
	label, _ := n.Data["label"].(string)
	return label
}

func (n Node) clone() Node {
	c := n
	c.Data = cloneBag(n.Data)
	c.Style = cloneBag(n.Style)
	c.extra = cloneRaw(n.extra)
	return c
}

// moveTo sets the position, replacing whatever unusable value was stored.
func (n Node) moveTo(p valueobjects.Position) Node {
	n.Position = p
	if n.unplaced {
		n.unplaced = false
		if _, ok := n.extra["position"]; ok {
			n.extra = cloneRaw(n.extra)
			delete(n.extra, "position")
		}
	}
	return n
}

func decodeNode(raw json.RawMessage) (Node, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return Node{}, fmt.Errorf("node is not an object")
	}

	var n Node
	obj.take("id", stringField(&n.ID))
	if n.ID == "" {
		return Node{}, fmt.Errorf("node has no id")
	}

	n.unplaced = true
	obj.take("position", func(raw json.RawMessage) bool {
		var p struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if json.Unmarshal(raw, &p) != nil || p.X == nil || p.Y == nil {
			return false
		}
		pos, err := valueobjects.NewPosition(*p.X, *p.Y)
		if err != nil {
			return false
		}
		n.Position, n.unplaced = pos, false
		return true
	})

	obj.take("data", bagField(&n.Data))
	obj.take("style", bagField(&n.Style))
	obj.take("className", stringField(&n.ClassName))
	obj.take("hidden", boolField(&n.Hidden))
	obj.take("width", floatField(&n.Width))
	obj.take("height", floatField(&n.Height))
	obj.take("type", func(raw json.RawMessage) bool {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return false
		}
		t, err := valueobjects.ParseNodeType(s)
		if err != nil || s == "" {
			return false
		}
		n.Type = t
		return true
	})
	obj.take("sourcePosition", handleField(&n.SourcePosition))
	obj.take("targetPosition", handleField(&n.TargetPosition))

	obj.take("selected", boolField(&n.Selected))
	obj.take("dragging", boolField(&n.Dragging))
	obj.drop("selected", "dragging")

	if len(obj) > 0 {
		n.extra = obj
	}
	return n, nil
}

func handleField(dst *valueobjects.HandlePosition) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return false
		}
		p := valueobjects.HandlePosition(s)
		if !p.Valid() {
			return false
		}
		*dst = p
		return true
	}
}

func (n Node) fields(transient bool) map[string]interface{} {
	f := map[string]interface{}{"id": n.ID}
	if transient || !n.unplaced {
		f["position"] = n.Position
	}
	if n.Data != nil {
		f["data"] = n.Data
	}
	if n.Type != "" {
		f["type"] = n.Type
	}
	if n.Style != nil {
		f["style"] = n.Style
	}
	if n.ClassName != "" {
		f["className"] = n.ClassName
	}
	if n.SourcePosition != "" {
		f["sourcePosition"] = n.SourcePosition
	}
	if n.TargetPosition != "" {
		f["targetPosition"] = n.TargetPosition
	}
	if n.Hidden {
		f["hidden"] = true
	}
	if n.Width != 0 {
		f["width"] = n.Width
	}
	if n.Height != 0 {
		f["height"] = n.Height
	}
	if transient {
		if n.Selected {
			f["selected"] = true
		}
		if n.Dragging {
			f["dragging"] = true
		}
	}
	return f
}

// MarshalJSON renders the node for the canvas, transient state included.
func (n Node) MarshalJSON() ([]byte, error) {
	return encodeObject(n.extra, n.fields(true))
}

// UnmarshalJSON accepts a canvas node. The id is required.
func (n *Node) UnmarshalJSON(data []byte) error {
	decoded, err := decodeNode(data)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}
