package valueobjects

import (
	"fmt"
	"strings"
)

// NodeType selects the rendering and behaviour variant of a node.
type NodeType string

const (
	NodeTypeDefault NodeType = "default"
	NodeTypeInput   NodeType = "input"
	NodeTypeOutput  NodeType = "output"
	NodeTypeProcess NodeType = "process"
)

// NodeTypes lists the supported node types in toolbar order.
var NodeTypes = []NodeType{NodeTypeDefault, NodeTypeInput, NodeTypeOutput, NodeTypeProcess}

// ParseNodeType accepts one of the supported node types. The empty string
// maps to NodeTypeDefault.
func ParseNodeType(s string) (NodeType, error) {
	if s == "" {
		return NodeTypeDefault, nil
	}
	for _, t := range NodeTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown node type %q", s)
}

// Label is the capitalised name used for generated node labels.
func (t NodeType) Label() string {
	if t == "" {
		return "Default"
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// HandlePosition is the side of a node a handle sits on.
type HandlePosition string

const (
	HandleTop    HandlePosition = "top"
	HandleRight  HandlePosition = "right"
	HandleBottom HandlePosition = "bottom"
	HandleLeft   HandlePosition = "left"
)

// Valid reports whether p is one of the four sides.
func (p HandlePosition) Valid() bool {
	switch p {
	case HandleTop, HandleRight, HandleBottom, HandleLeft:
		return true
	}
	return false
}
