package handlers

import (
	"net/http"

	"graphboard/application/services"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

type AdminHandler struct {
	admin  *services.AdminService
	errors *pkgerrors.ErrorHandler
}

func NewAdminHandler(admin *services.AdminService, errs *pkgerrors.ErrorHandler) *AdminHandler {
	return &AdminHandler{admin: admin, errors: errs}
}

// Status handles GET /admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	isAdmin, err := h.admin.IsAdmin(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]bool{"is_admin": isAdmin})
}

// CreateUser handles POST /admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUserRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	user, err := h.admin.CreateUser(r.Context(), req)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, user)
}
