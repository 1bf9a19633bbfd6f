package aggregates

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphboard/domain/core/entities"
	"graphboard/domain/core/valueobjects"
	pkgerrors "graphboard/pkg/errors"
)

const wellFormed = `{
	"nodes": [
		{"id": "1", "position": {"x": 100, "y": 50.5}, "data": {"label": "Start", "weight": 3}, "type": "input",
		 "sourcePosition": "right", "width": 150, "height": 40, "positionAbsolute": {"x": 100, "y": 50.5}},
		{"id": "2", "position": {"x": 300, "y": 100}, "data": {"label": "End"}, "style": {"background": "#fff"}, "className": "big"}
	],
	"edges": [
		{"id": "e1-2", "source": "1", "target": "2", "animated": true, "sourceHandle": "a", "data": {"kind": "flow"}, "markerEnd": {"type": "arrow"}}
	],
	"viewport": {"x": 10, "y": -20, "zoom": 1.25}
}`

func record(data string) *entities.Graph {
	return &entities.Graph{ID: "g-1", OwnerID: "u-1", Title: "Pipeline", Data: json.RawMessage(data)}
}

func TestLoad_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "full document", data: wellFormed},
		{name: "empty arrays", data: `{"nodes": [], "edges": []}`},
		{name: "unknown top-level keys", data: `{"nodes": [], "edges": [], "version": 2}`},
		{name: "null handles and false flags", data: `{"nodes": [{"id": "a", "position": {"x": 0, "y": 0}, "data": {"label": "A"}, "hidden": false}],
			"edges": [{"id": "x", "source": "a", "target": "a", "sourceHandle": null, "animated": false}]}`},
		{name: "partial position", data: `{"nodes": [{"id": "1", "position": {"x": 5}}], "edges": []}`},
		{name: "position of the wrong type", data: `{"nodes": [{"id": "1", "position": "top"}], "edges": []}`},
		{name: "node without position", data: `{"nodes": [{"id": "1", "data": {"label": "A"}}], "edges": []}`},
		{name: "viewport with extra keys", data: `{"nodes": [], "edges": [], "viewport": {"k": 3, "x": 1, "y": 2, "zoom": 1}}`},
		{name: "viewport with a null coordinate", data: `{"nodes": [], "edges": [], "viewport": {"x": null, "y": 2, "zoom": 1}}`},
		{name: "null arrays", data: `{"nodes": null, "edges": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(record(tt.data))
			require.NoError(t, err)

			out, err := ToPersistable(doc)
			require.NoError(t, err)
			assert.JSONEq(t, tt.data, string(out))
		})
	}
}

func TestLoad_Fields(t *testing.T) {
	doc, err := Load(record(wellFormed))
	require.NoError(t, err)

	assert.Equal(t, "g-1", doc.ID())
	assert.Equal(t, "u-1", doc.OwnerID())
	assert.Equal(t, "Pipeline", doc.Title())
	assert.False(t, doc.IsNew())
	require.Equal(t, 2, doc.NodeCount())
	require.Equal(t, 1, doc.EdgeCount())

	n, ok := doc.Node("1")
	require.True(t, ok)
	assert.Equal(t, "Start", n.Label())
	assert.Equal(t, "input", string(n.Type))
	assert.Equal(t, 50.5, n.Position.Y)
	assert.Equal(t, float64(150), n.Width)

	e, ok := doc.Edge("e1-2")
	require.True(t, ok)
	assert.True(t, e.Animated)
	assert.Equal(t, "a", e.SourceHandle)

	vp, ok := doc.Viewport()
	require.True(t, ok)
	assert.Equal(t, 1.25, vp.Zoom)
}

func TestToPersistable_DropsTransientFields(t *testing.T) {
	data := `{"nodes": [{"id": "1", "position": {"x": 1, "y": 2}, "data": {"label": "A"}, "selected": true, "dragging": true}],
		"edges": [{"id": "e", "source": "1", "target": "1", "selected": true}]}`

	doc, err := Load(record(data))
	require.NoError(t, err)

	doc = doc.ApplyNodeChanges([]NodeChange{{Type: NodeChangeSelect, ID: "1", Selected: boolPtr(true)}})
	out, err := ToPersistable(doc)
	require.NoError(t, err)

	assert.JSONEq(t, `{"nodes": [{"id": "1", "position": {"x": 1, "y": 2}, "data": {"label": "A"}}],
		"edges": [{"id": "e", "source": "1", "target": "1"}]}`, string(out))
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "data is an array", data: `[]`},
		{name: "data is a string", data: `"nodes"`},
		{name: "nodes not an array", data: `{"nodes": {"id": "1"}, "edges": []}`},
		{name: "edges not an array", data: `{"nodes": [], "edges": 5}`},
		{name: "node not an object", data: `{"nodes": ["1"], "edges": []}`},
		{name: "node without id", data: `{"nodes": [{"position": {"x": 0, "y": 0}}]}`},
		{name: "edge without target", data: `{"nodes": [], "edges": [{"id": "e", "source": "1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(record(tt.data))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsMalformedDocument(err), "got %v", err)
		})
	}
}

func TestLoad_MissingOptionalFieldsAreAbsent(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		nodes int
		edges int
	}{
		{name: "null data", data: `null`},
		{name: "empty object", data: `{}`},
		{name: "null arrays", data: `{"nodes": null, "edges": null}`},
		{name: "bare node", data: `{"nodes": [{"id": "1"}]}`, nodes: 1},
		{name: "mistyped optionals", data: `{"nodes": [{"id": "1", "type": 7, "data": "x", "width": "wide"}],
			"edges": [{"id": "e", "source": "1", "target": "1", "animated": "yes"}], "viewport": "far"}`, nodes: 1, edges: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(record(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.nodes, doc.NodeCount())
			assert.Equal(t, tt.edges, doc.EdgeCount())
			_, hasViewport := doc.Viewport()
			assert.False(t, hasViewport)
		})
	}
}

func TestLoad_MistypedOptionalsSurviveRoundTrip(t *testing.T) {
	data := `{"nodes": [{"id": "1", "position": {"x": 0, "y": 0}, "type": 7, "width": "wide"}], "edges": [], "viewport": "far"}`
	doc, err := Load(record(data))
	require.NoError(t, err)

	n, _ := doc.Node("1")
	assert.Empty(t, n.Type)
	assert.Zero(t, n.Width)

	out, err := ToPersistable(doc)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))
}

func TestLoad_UnplacedNodeTakesCanvasPosition(t *testing.T) {
	doc, err := Load(record(`{"nodes": [{"id": "1", "position": {"x": 5}}], "edges": []}`))
	require.NoError(t, err)

	n, _ := doc.Node("1")
	rendered, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "1", "position": {"x": 0, "y": 0}}`, string(rendered), "the canvas always gets a position")

	moved := doc.ApplyNodeChanges([]NodeChange{{Type: NodeChangePosition, ID: "1", Position: &valueobjects.Position{X: 7, Y: 8}}})
	out, err := ToPersistable(moved)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": [{"id": "1", "position": {"x": 7, "y": 8}}], "edges": []}`, string(out))

	out, err = ToPersistable(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": [{"id": "1", "position": {"x": 5}}], "edges": []}`, string(out), "the original is untouched")
}

func TestLoad_ViewportExtrasSurviveCameraMoves(t *testing.T) {
	doc, err := Load(record(`{"nodes": [], "edges": [], "viewport": {"k": 3, "x": 1, "y": 2, "zoom": 1}}`))
	require.NoError(t, err)

	vp, ok := doc.Viewport()
	require.True(t, ok)
	assert.Equal(t, valueobjects.Viewport{X: 1, Y: 2, Zoom: 1}, vp)

	out, err := ToPersistable(doc.WithViewport(valueobjects.Viewport{X: -4, Y: 0, Zoom: 2}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": [], "edges": [], "viewport": {"k": 3, "x": -4, "y": 0, "zoom": 2}}`, string(out))
}

func TestLoad_NullArraysFillWithContent(t *testing.T) {
	doc, err := Load(record(`{"nodes": null, "edges": null}`))
	require.NoError(t, err)

	out, err := ToPersistable(doc.AddNode(Node{ID: "1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": [{"id": "1", "position": {"x": 0, "y": 0}}], "edges": null}`, string(out))
}

func TestLoad_DuplicateIDsKeepFirst(t *testing.T) {
	doc, err := Load(record(`{"nodes": [{"id": "1", "data": {"label": "first"}}, {"id": "1", "data": {"label": "second"}}], "edges": []}`))
	require.NoError(t, err)

	require.Equal(t, 1, doc.NodeCount())
	n, _ := doc.Node("1")
	assert.Equal(t, "first", n.Label())
}

func TestToInsertAndUpdate(t *testing.T) {
	doc := NewDocument().WithOwner("u-1").AddNode(Node{ID: "1", Data: map[string]interface{}{"label": "A"}})

	ins, err := ToInsert(doc)
	require.NoError(t, err)
	assert.Equal(t, "u-1", ins.OwnerID)
	assert.Equal(t, DefaultTitle, ins.Title)
	assert.JSONEq(t, `{"nodes": [{"id": "1", "position": {"x": 0, "y": 0}, "data": {"label": "A"}}], "edges": []}`, string(ins.Data))

	upd, err := ToUpdate(doc.WithTitle("Renamed"))
	require.NoError(t, err)
	require.NotNil(t, upd.Title)
	assert.Equal(t, "Renamed", *upd.Title)
}

func boolPtr(b bool) *bool { return &b }
