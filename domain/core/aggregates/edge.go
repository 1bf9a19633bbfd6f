package aggregates

import (
	"encoding/json"
	"fmt"
)

// Edge is a directed connection between two node ids.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	Type         string
	Animated     bool
	Label        string
	Data         map[string]interface{}
	Style        map[string]interface{}
	ClassName    string
	Hidden       bool

	// UI-only state, never persisted.
	Selected bool

	extra rawObject
}

func (e Edge) clone() Edge {
	c := e
	c.Data = cloneBag(e.Data)
	c.Style = cloneBag(e.Style)
	c.extra = cloneRaw(e.extra)
	return c
}

// sameConnection reports whether e joins the same endpoints and handles as c.
func (e Edge) sameConnection(c Connection) bool {
	return e.Source == c.Source && e.Target == c.Target &&
		e.SourceHandle == c.SourceHandle && e.TargetHandle == c.TargetHandle
}

func decodeEdge(raw json.RawMessage) (Edge, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return Edge{}, fmt.Errorf("edge is not an object")
	}

	var e Edge
	obj.take("id", stringField(&e.ID))
	obj.take("source", stringField(&e.Source))
	obj.take("target", stringField(&e.Target))
	switch {
	case e.ID == "":
		return Edge{}, fmt.Errorf("edge has no id")
	case e.Source == "" || e.Target == "":
		return Edge{}, fmt.Errorf("edge %q has no source or target", e.ID)
	}

	obj.take("sourceHandle", stringField(&e.SourceHandle))
	obj.take("targetHandle", stringField(&e.TargetHandle))
	obj.take("type", stringField(&e.Type))
	obj.take("animated", boolField(&e.Animated))
	obj.take("label", stringField(&e.Label))
	obj.take("data", bagField(&e.Data))
	obj.take("style", bagField(&e.Style))
	obj.take("className", stringField(&e.ClassName))
	obj.take("hidden", boolField(&e.Hidden))

	obj.take("selected", boolField(&e.Selected))
	obj.drop("selected")

	if len(obj) > 0 {
		e.extra = obj
	}
	return e, nil
}

func (e Edge) fields(transient bool) map[string]interface{} {
	f := map[string]interface{}{
		"id":     e.ID,
		"source": e.Source,
		"target": e.Target,
	}
	if e.SourceHandle != "" {
		f["sourceHandle"] = e.SourceHandle
	}
	if e.TargetHandle != "" {
		f["targetHandle"] = e.TargetHandle
	}
	if e.Type != "" {
		f["type"] = e.Type
	}
	if e.Animated {
		f["animated"] = true
	}
	if e.Label != "" {
		f["label"] = e.Label
	}
	if e.Data != nil {
		f["data"] = e.Data
	}
	if e.Style != nil {
		f["style"] = e.Style
	}
	if e.ClassName != "" {
		f["className"] = e.ClassName
	}
	if e.Hidden {
		f["hidden"] = true
	}
	if transient && e.Selected {
		f["selected"] = true
	}
	return f
}

// MarshalJSON renders the edge for the canvas, transient state included.
func (e Edge) MarshalJSON() ([]byte, error) {
	return encodeObject(e.extra, e.fields(true))
}

// UnmarshalJSON accepts a canvas edge. id, source and target are required.
func (e *Edge) UnmarshalJSON(data []byte) error {
	decoded, err := decodeEdge(data)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
