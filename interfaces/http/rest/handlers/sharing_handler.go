package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphboard/application/services"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

// SharingHandler serves the snapshots shared with and by the caller.
type SharingHandler struct {
	sharing *services.SharingService
	errors  *pkgerrors.ErrorHandler
}

func NewSharingHandler(sharing *services.SharingService, errs *pkgerrors.ErrorHandler) *SharingHandler {
	return &SharingHandler{sharing: sharing, errors: errs}
}

// ListReceived handles GET /shared/received
func (h *SharingHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	shares, err := h.sharing.ListReceived(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondList(w, shares)
}

// ListSent handles GET /shared/sent
func (h *SharingHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	shares, err := h.sharing.ListSent(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondList(w, shares)
}

// RemoveShare handles DELETE /shared/{sharedID}
func (h *SharingHandler) RemoveShare(w http.ResponseWriter, r *http.Request) {
	if err := h.sharing.RemoveShare(r.Context(), chi.URLParam(r, "sharedID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenShared handles POST /shared/{sharedID}/open. The snapshot opens in a
// read-only editor session.
func (h *SharingHandler) OpenShared(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sharing.OpenShared(r.Context(), chi.URLParam(r, "sharedID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, sess.Snapshot())
}
