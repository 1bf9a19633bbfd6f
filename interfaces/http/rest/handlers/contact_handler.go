package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphboard/application/services"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

type ContactHandler struct {
	contacts *services.ContactService
	errors   *pkgerrors.ErrorHandler
}

func NewContactHandler(contacts *services.ContactService, errs *pkgerrors.ErrorHandler) *ContactHandler {
	return &ContactHandler{contacts: contacts, errors: errs}
}

type AddContactRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
}

// ListContacts handles GET /contacts
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.ListContacts(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondList(w, contacts)
}

// AddContact handles POST /contacts
func (h *ContactHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	contact, err := h.contacts.AddContact(r.Context(), req.ContactID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, contact)
}

// RemoveContact handles DELETE /contacts/{contactID}
func (h *ContactHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.RemoveContact(r.Context(), chi.URLParam(r, "contactID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
