package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphboard/application/services"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

// GraphHandler handles graph-related HTTP requests
type GraphHandler struct {
	graphs  *services.GraphService
	sharing *services.SharingService
	errors  *pkgerrors.ErrorHandler
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(graphs *services.GraphService, sharing *services.SharingService, errs *pkgerrors.ErrorHandler) *GraphHandler {
	return &GraphHandler{graphs: graphs, sharing: sharing, errors: errs}
}

// CreateGraphRequest represents the request body for creating a graph.
// Data is a serialized document; omitted, the graph starts empty.
type CreateGraphRequest struct {
	Title string          `json:"title" validate:"max=200"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RenameGraphRequest represents the request body for renaming a graph
type RenameGraphRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// ShareGraphRequest names the contact a snapshot is shared with.
type ShareGraphRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

// ListGraphs handles GET /graphs
func (h *GraphHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := h.graphs.ListGraphs(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondList(w, graphs)
}

// GetGraph handles GET /graphs/{graphID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.graphs.GetGraph(r.Context(), chi.URLParam(r, "graphID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, graph)
}

// CreateGraph handles POST /graphs
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	graph, err := h.graphs.CreateGraph(r.Context(), req.Title, req.Data)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, graph)
}

// RenameGraph handles PATCH /graphs/{graphID}
func (h *GraphHandler) RenameGraph(w http.ResponseWriter, r *http.Request) {
	var req RenameGraphRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	graph, err := h.graphs.RenameGraph(r.Context(), chi.URLParam(r, "graphID"), req.Title)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, graph)
}

// DeleteGraph handles DELETE /graphs/{graphID}
func (h *GraphHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.graphs.DeleteGraph(r.Context(), chi.URLParam(r, "graphID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareGraph handles POST /graphs/{graphID}/share
func (h *GraphHandler) ShareGraph(w http.ResponseWriter, r *http.Request) {
	var req ShareGraphRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	share, err := h.sharing.ShareGraph(r.Context(), chi.URLParam(r, "graphID"), req.RecipientID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, share)
}
