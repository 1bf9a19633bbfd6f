package handlers

import (
	"net/http"

	"graphboard/application/services"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

// ProfileHandler serves the caller's profile and username search.
type ProfileHandler struct {
	profiles *services.ProfileService
	errors   *pkgerrors.ErrorHandler
}

func NewProfileHandler(profiles *services.ProfileService, errs *pkgerrors.ErrorHandler) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, errors: errs}
}

type UpdateProfileRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// GetProfile handles GET /profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.CurrentProfile(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, profile)
}

// UpdateProfile handles PATCH /profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	profile, err := h.profiles.UpdateUsername(r.Context(), req.Username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, profile)
}

// SearchProfiles handles GET /profiles/search?q=
func (h *ProfileHandler) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.SearchProfiles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondList(w, profiles)
}
