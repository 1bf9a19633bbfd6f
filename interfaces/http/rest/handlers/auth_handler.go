package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
)

// AuthHandler handles sign-up, sign-in, sign-out and token refresh.
type AuthHandler struct {
	authn    ports.Authenticator
	registry *editor.Registry
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authn ports.Authenticator, registry *editor.Registry, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authn:    authn,
		registry: registry,
		errors:   errs,
		logger:   logger,
	}
}

// SignUpRequest represents the request body for registering an account
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"required,max=64"`
}

// SignInRequest represents the request body for signing in
type SignInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token issued at sign-in.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserResponse is the account part of a session response.
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// SessionResponse is returned when a session is issued.
type SessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	User         UserResponse `json:"user"`
}

// PendingConfirmationResponse is returned by sign-up when the backend wants
// the address confirmed first.
type PendingConfirmationResponse struct {
	ConfirmationRequired bool   `json:"confirmation_required"`
	Email                string `json:"email"`
}

func sessionResponse(id session.Identity) SessionResponse {
	resp := SessionResponse{
		AccessToken:  id.AccessToken,
		RefreshToken: id.RefreshToken,
		User: UserResponse{
			ID:       id.UserID,
			Email:    id.Email,
			Username: id.Username,
			Role:     id.Role,
		},
	}
	if !id.ExpiresAt.IsZero() {
		t := id.ExpiresAt
		resp.ExpiresAt = &t
	}
	return resp
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id, err := session.New(h.authn, h.logger).SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if id == nil {
		common.RespondJSON(w, http.StatusAccepted, PendingConfirmationResponse{
			ConfirmationRequired: true,
			Email:                req.Email,
		})
		return
	}

	h.registry.Identity(*id)
	common.RespondJSON(w, http.StatusCreated, sessionResponse(*id))
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id, err := session.New(h.authn, h.logger).SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.registry.Identity(id)
	common.RespondJSON(w, http.StatusOK, sessionResponse(id))
}

// SignOut handles POST /auth/signout. Auto-save of the caller's open editor
// sessions is suspended until the user signs in again.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.registry.Identity(id).SignOut(r.Context()); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	sess := session.New(h.authn, h.logger)
	sess.Establish(session.Identity{RefreshToken: req.RefreshToken})
	id, err := sess.Refresh(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.registry.Identity(id)
	common.RespondJSON(w, http.StatusOK, sessionResponse(id))
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, UserResponse{
		ID:       id.UserID,
		Email:    id.Email,
		Username: id.Username,
		Role:     id.Role,
	})
}
