package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/config"
	"graphboard/domain/core/entities"
	pkgerrors "graphboard/pkg/errors"
)

// ProfileService reads and edits public profiles.
type ProfileService struct {
	base
	rules *config.DomainConfig
}

// NewProfileService creates a new profile service
func NewProfileService(store ports.Store, rules *config.DomainConfig, logger *zap.Logger, opts ...Option) *ProfileService {
	if rules == nil {
		rules = config.DefaultDomainConfig()
	}
	return &ProfileService{base: newBase(store, nil, logger, opts), rules: rules}
}

// CurrentProfile returns the caller's profile.
func (s *ProfileService) CurrentProfile(ctx context.Context) (*entities.Profile, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Profiles().Get(ctx, userID)
}

// UpdateUsername renames the caller.
func (s *ProfileService) UpdateUsername(ctx context.Context, username string) (*entities.Profile, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	username, err = s.checkUsername(username)
	if err != nil {
		return nil, err
	}
	return s.store.Profiles().Update(ctx, userID, &entities.ProfileUpdate{Username: &username})
}

// SearchProfiles finds profiles whose username contains query, ignoring
// case. An empty query matches nothing.
func (s *ProfileService) SearchProfiles(ctx context.Context, query string) ([]*entities.Profile, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []*entities.Profile{}, nil
	}
	return s.store.Profiles().List(ctx, ports.ListOptions{
		Filters:   []ports.Filter{ports.Ilike("username", "%"+query+"%")},
		OrderBy:   "username",
		Ascending: true,
		Limit:     s.rules.ProfileSearchLimit,
	})
}

func (s *ProfileService) checkUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", pkgerrors.NewValidationError("username is required")
	}
	if utf8.RuneCountInString(username) > s.rules.MaxUsernameLength {
		return "", pkgerrors.NewValidationError("username is too long").
			WithDetail("max", s.rules.MaxUsernameLength)
	}
	return username, nil
}
