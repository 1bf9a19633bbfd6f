// Package editor hosts server-side editing sessions. An editor session owns
// one graph document, applies canvas operations to it and leaves persistence
// to its auto-save controller.
package editor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"graphboard/application/autosave"
	"graphboard/domain/config"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/valueobjects"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// ErrReadOnly is returned when a read-only session is asked to mutate.
var ErrReadOnly = pkgerrors.NewValidationError("editor session is read-only")

// Source says where a session's document came from.
type Source string

const (
	SourceNew    Source = "new"
	SourceGraph  Source = "graph"
	SourceShared Source = "shared"
)

// View is what a client needs to render a session.
type View struct {
	ID       string                 `json:"id"`
	Source   Source                 `json:"source"`
	ReadOnly bool                   `json:"readOnly"`
	GraphID  string                 `json:"graphId,omitempty"`
	Title    string                 `json:"title"`
	Nodes    []aggregates.Node      `json:"nodes"`
	Edges    []aggregates.Edge      `json:"edges"`
	Viewport *valueobjects.Viewport `json:"viewport,omitempty"`
	Status   autosave.Status        `json:"status"`
}

// Session is one open editor. Writable sessions route every mutation
// through their controller; read-only sessions hold a fixed document.
type Session struct {
	id       string
	userID   string
	source   Source
	readOnly bool
	rules    *config.DomainConfig
	clock    utils.Clock
	random   func() float64

	ctrl *autosave.Controller
	doc  *aggregates.GraphDocument // read-only sessions only

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }
func (s *Session) ReadOnly() bool { return s.readOnly }
func (s *Session) Source() Source { return s.source }

// Document returns the current document.
func (s *Session) Document() *aggregates.GraphDocument {
	if s.readOnly {
		return s.doc
	}
	return s.ctrl.Document()
}

// Status returns the auto-save indicator. Read-only sessions are always
// clean.
func (s *Session) Status() autosave.Status {
	if s.readOnly {
		return autosave.Status{State: autosave.Clean, GraphID: s.doc.ID()}
	}
	return s.ctrl.Status()
}

// Snapshot returns a renderable copy of the session.
func (s *Session) Snapshot() View {
	doc := s.Document()
	v := View{
		ID:       s.id,
		Source:   s.source,
		ReadOnly: s.readOnly,
		GraphID:  doc.ID(),
		Title:    doc.Title(),
		Nodes:    doc.Nodes(),
		Edges:    doc.Edges(),
		Status:   s.Status(),
	}
	if vp, ok := doc.Viewport(); ok {
		v.Viewport = &vp
	}
	return v
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// update applies fn through the controller. fn reports whether its change
// reaches the persisted payload.
func (s *Session) update(fn func(*aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error)) (*aggregates.GraphDocument, error) {
	if s.readOnly {
		return s.doc, ErrReadOnly
	}
	s.touch()

	var fnErr error
	doc, err := s.ctrl.Update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool) {
		next, persistent, err := fn(d)
		if err != nil {
			fnErr = err
			return d, false
		}
		return next, persistent
	})
	if fnErr != nil {
		return doc, fnErr
	}
	return doc, err
}

// AddNode places a new node of type t at a random point of the spawn area,
// labelled after its type and the resulting node count.
func (s *Session) AddNode(t valueobjects.NodeType) (aggregates.Node, error) {
	var added aggregates.Node
	_, err := s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		if d.NodeCount() >= s.rules.MaxNodesPerGraph {
			return nil, false, pkgerrors.NewValidationError(
				fmt.Sprintf("a graph holds at most %d nodes", s.rules.MaxNodesPerGraph))
		}
		pos := valueobjects.Position{
			X: s.random() * s.rules.NewNodeSpread,
			Y: s.random() * s.rules.NewNodeSpread,
		}
		added = aggregates.NewNode(s.nextNodeID(d), t, pos, d.NodeCount()+1)
		return d.AddNode(added), true, nil
	})
	return added, err
}

// nextNodeID derives an id from the clock, stepping past ids in use.
func (s *Session) nextNodeID(d *aggregates.GraphDocument) string {
	ms := s.clock.Now().UnixMilli()
	for {
		id := fmt.Sprintf("node_%d", ms)
		if !d.HasNode(id) {
			return id
		}
		ms++
	}
}

// ApplyNodeChanges applies a canvas node change batch. Batches made only of
// selection or drag-state changes do not schedule a save.
func (s *Session) ApplyNodeChanges(changes []aggregates.NodeChange) (*aggregates.GraphDocument, error) {
	return s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		persistent := false
		added := 0
		for _, ch := range changes {
			persistent = persistent || ch.Persistent()
			if ch.Type == aggregates.NodeChangeAdd {
				added++
			}
		}
		if added > 0 && d.NodeCount()+added > s.rules.MaxNodesPerGraph {
			return nil, false, pkgerrors.NewValidationError(
				fmt.Sprintf("a graph holds at most %d nodes", s.rules.MaxNodesPerGraph))
		}
		return d.ApplyNodeChanges(changes), persistent, nil
	})
}

// ApplyEdgeChanges applies a canvas edge change batch.
func (s *Session) ApplyEdgeChanges(changes []aggregates.EdgeChange) (*aggregates.GraphDocument, error) {
	return s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		persistent := false
		for _, ch := range changes {
			persistent = persistent || ch.Persistent()
		}
		return d.ApplyEdgeChanges(changes), persistent, nil
	})
}

// Connect joins two nodes. Connections naming missing nodes, and duplicate
// connections, are dropped silently and reported as not connected.
func (s *Session) Connect(c aggregates.Connection) (bool, error) {
	var connected bool
	_, err := s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		if d.EdgeCount() >= s.rules.MaxEdgesPerGraph {
			return nil, false, pkgerrors.NewValidationError(
				fmt.Sprintf("a graph holds at most %d edges", s.rules.MaxEdgesPerGraph))
		}
		next, ok := d.Connect(c)
		connected = ok
		return next, ok, nil
	})
	return connected, err
}

// SetTitle renames the document.
func (s *Session) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return pkgerrors.NewValidationError("title is required")
	}
	if len(title) > s.rules.MaxTitleLength {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("title must be at most %d characters", s.rules.MaxTitleLength))
	}
	_, err := s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		if d.Title() == title {
			return d, false, nil
		}
		return d.WithTitle(title), true, nil
	})
	return err
}

// SetViewport records the camera. Panning alone does not schedule a save;
// the viewport goes out with the next one.
func (s *Session) SetViewport(v valueobjects.Viewport) error {
	if _, err := valueobjects.NewViewport(v.X, v.Y, v.Zoom); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	_, err := s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		return d.WithViewport(v), false, nil
	})
	return err
}

// DeleteSelected removes selected nodes and edges, plus edges attached to
// removed nodes.
func (s *Session) DeleteSelected() (*aggregates.GraphDocument, error) {
	return s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		if !d.HasSelection() {
			return d, false, nil
		}
		return d.DeleteSelected(), true, nil
	})
}

// Clear removes every node and edge.
func (s *Session) Clear() (*aggregates.GraphDocument, error) {
	return s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		return d.Clear(), true, nil
	})
}

// GenerateSample replaces the contents with the sample pipeline.
func (s *Session) GenerateSample() (*aggregates.GraphDocument, error) {
	return s.update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool, error) {
		return d.WithContents(aggregates.SampleContents()), true, nil
	})
}

// Save persists now and waits for the result.
func (s *Session) Save(ctx context.Context) (autosave.Status, error) {
	if s.readOnly {
		return s.Status(), ErrReadOnly
	}
	s.touch()
	return s.ctrl.Save(ctx)
}

// Close stops the session's controller.
func (s *Session) Close(ctx context.Context) error {
	if s.readOnly {
		return nil
	}
	return s.ctrl.Close(ctx)
}

func defaultRandom() float64 { return rand.Float64() }
