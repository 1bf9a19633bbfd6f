package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/valueobjects"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

// EditorHandler drives server-side editor sessions. Every mutation answers
// with the session's view, including the auto-save status.
type EditorHandler struct {
	registry *editor.Registry
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewEditorHandler creates a new editor handler
func NewEditorHandler(registry *editor.Registry, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *EditorHandler {
	return &EditorHandler{registry: registry, errors: errs, logger: logger}
}

// OpenSessionRequest opens a stored graph, or a new document when GraphID
// is empty.
type OpenSessionRequest struct {
	GraphID string `json:"graph_id,omitempty"`
}

type AddNodeRequest struct {
	Type string `json:"type,omitempty"`
}

type NodeChangesRequest struct {
	Changes []aggregates.NodeChange `json:"changes" validate:"required"`
}

type EdgeChangesRequest struct {
	Changes []aggregates.EdgeChange `json:"changes" validate:"required"`
}

type SetTitleRequest struct {
	Title string `json:"title" validate:"required"`
}

// ConnectResponse reports whether a connection produced an edge.
type ConnectResponse struct {
	Connected bool        `json:"connected"`
	Session   editor.View `json:"session"`
}

// AddNodeResponse carries the created node next to the session view.
type AddNodeResponse struct {
	Node    aggregates.Node `json:"node"`
	Session editor.View     `json:"session"`
}

// Open handles POST /editor/sessions
func (h *EditorHandler) Open(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	var req OpenSessionRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	sess, err := h.registry.Open(r.Context(), id, req.GraphID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, sess.Snapshot())
}

// Get handles GET /editor/sessions/{sessionID}
func (h *EditorHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

// Close handles DELETE /editor/sessions/{sessionID}
func (h *EditorHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := h.registry.Close(r.Context(), id.UserID, chi.URLParam(r, "sessionID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNode handles POST /editor/sessions/{sessionID}/nodes
func (h *EditorHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AddNodeRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	nodeType, err := valueobjects.ParseNodeType(req.Type)
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	node, err := sess.AddNode(nodeType)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, AddNodeResponse{Node: node, Session: sess.Snapshot()})
}

// NodeChanges handles POST /editor/sessions/{sessionID}/nodes/changes
func (h *EditorHandler) NodeChanges(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req NodeChangesRequest
	if err := decodeLenient(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respond(w, r, sess, func() error {
		_, err := sess.ApplyNodeChanges(req.Changes)
		return err
	})
}

// EdgeChanges handles POST /editor/sessions/{sessionID}/edges/changes
func (h *EditorHandler) EdgeChanges(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req EdgeChangesRequest
	if err := decodeLenient(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respond(w, r, sess, func() error {
		_, err := sess.ApplyEdgeChanges(req.Changes)
		return err
	})
}

// Connect handles POST /editor/sessions/{sessionID}/connect
func (h *EditorHandler) Connect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req aggregates.Connection
	if err := decodeLenient(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	connected, err := sess.Connect(req)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, ConnectResponse{Connected: connected, Session: sess.Snapshot()})
}

// SetTitle handles POST /editor/sessions/{sessionID}/title
func (h *EditorHandler) SetTitle(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetTitleRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respond(w, r, sess, func() error { return sess.SetTitle(req.Title) })
}

// SetViewport handles POST /editor/sessions/{sessionID}/viewport
func (h *EditorHandler) SetViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req valueobjects.Viewport
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respond(w, r, sess, func() error { return sess.SetViewport(req) })
}

// DeleteSelected handles POST /editor/sessions/{sessionID}/delete-selected
func (h *EditorHandler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, func() error {
		_, err := sess.DeleteSelected()
		return err
	})
}

// Clear handles POST /editor/sessions/{sessionID}/clear
func (h *EditorHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, func() error {
		_, err := sess.Clear()
		return err
	})
}

// Sample handles POST /editor/sessions/{sessionID}/sample
func (h *EditorHandler) Sample(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, func() error {
		_, err := sess.GenerateSample()
		return err
	})
}

// Save handles POST /editor/sessions/{sessionID}/save. A failed save keeps
// the changes in the session; its status carries the error.
func (h *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Save(r.Context()); err != nil {
		h.logger.Info("Manual save failed",
			zap.String("editorSessionID", sess.ID()),
			zap.Error(err))
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *EditorHandler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	id, err := caller(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return nil, false
	}
	sess, err := h.registry.Get(id.UserID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *EditorHandler) respond(w http.ResponseWriter, r *http.Request, sess *editor.Session, mutate func() error) {
	if err := mutate(); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, sess.Snapshot())
}
