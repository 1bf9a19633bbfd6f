package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	"graphboard/domain/events"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// CreateUserRequest is what an administrator supplies for a new account.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=6"`
	Username string `json:"username" validate:"omitempty,max=64"`
}

// CreatedUser describes an account created by an administrator.
type CreatedUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// AdminService holds operations reserved to administrators.
type AdminService struct {
	base
	authn ports.Authenticator
}

// NewAdminService creates a new admin service
func NewAdminService(store ports.Store, authn ports.Authenticator, publisher ports.EventPublisher, logger *zap.Logger, opts ...Option) *AdminService {
	return &AdminService{base: newBase(store, publisher, logger, opts), authn: authn}
}

// IsAdmin reports whether the caller holds administrator rights.
func (s *AdminService) IsAdmin(ctx context.Context) (bool, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return false, err
	}
	return s.store.IsAdmin(ctx, userID)
}

// CreateUser creates a confirmed account and sets its username. Failing to
// set the username does not undo the account; it is logged.
func (s *AdminService) CreateUser(ctx context.Context, req CreateUserRequest) (*CreatedUser, error) {
	adminID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	isAdmin, err := s.store.IsAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, pkgerrors.NewForbiddenError("Access denied. Admin privileges required.")
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		return nil, pkgerrors.NewValidationError("Email, password, and username are required")
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, err
	}

	user, err := s.authn.AdminCreateUser(ctx, req.Email, req.Password, map[string]interface{}{
		"username": req.Username,
	})
	if err != nil {
		return nil, err
	}

	s.setUsername(ctx, user.ID, req.Username)

	s.logger.Info("User created by administrator",
		zap.String("userID", user.ID),
		zap.String("adminID", adminID))
	s.publish(ctx, events.NewUserCreated(user.ID, adminID, user.Email, req.Username, s.clock.Now()))
	return &CreatedUser{ID: user.ID, Email: user.Email, Username: req.Username}, nil
}

// setUsername writes the username onto the profile the backend created for
// the account, creating the profile if it is not there yet.
func (s *AdminService) setUsername(ctx context.Context, userID, username string) {
	ctx = auth.WithServiceRole(ctx)
	_, err := s.store.Profiles().Update(ctx, userID, &entities.ProfileUpdate{Username: &username})
	if pkgerrors.IsNotFound(err) {
		_, err = s.store.Profiles().Create(ctx, &entities.ProfileInsert{ID: userID, Username: username})
	}
	if err != nil {
		s.logger.Error("Failed to set username of created user",
			zap.String("userID", userID),
			zap.Error(err))
	}
}
