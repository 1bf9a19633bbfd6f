package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	"graphboard/domain/events"
	pkgerrors "graphboard/pkg/errors"
)

// ContactService manages the caller's contact list. Contacts are directed:
// adding someone does not add the caller to their list.
type ContactService struct {
	base
}

// NewContactService creates a new contact service
func NewContactService(store ports.Store, publisher ports.EventPublisher, logger *zap.Logger, opts ...Option) *ContactService {
	return &ContactService{base: newBase(store, publisher, logger, opts)}
}

// ListContacts returns the caller's contacts with their profiles, most
// recently added first.
func (s *ContactService) ListContacts(ctx context.Context) ([]*entities.ContactWithProfile, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Contacts().ListWithProfiles(ctx, ports.ListOptions{
		Filters: []ports.Filter{ports.Eq("user_id", userID)},
		OrderBy: "created_at",
	})
}

// AddContact lists contactID as one of the caller's contacts.
func (s *ContactService) AddContact(ctx context.Context, contactID string) (*entities.Contact, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, pkgerrors.NewValidationError("contact is required")
	}
	if contactID == userID {
		return nil, pkgerrors.NewValidationError("cannot add yourself as a contact")
	}
	if _, err := s.store.Profiles().Get(ctx, contactID); err != nil {
		return nil, err
	}

	contact, err := s.store.Contacts().Create(ctx, &entities.ContactInsert{UserID: userID, ContactID: contactID})
	if isUniqueViolation(err) {
		return nil, pkgerrors.NewConflictError("already in your contacts").WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ContactsAdded.Inc()
	}
	s.logger.Info("Contact added", zap.String("userID", userID), zap.String("contactID", contactID))
	s.publish(ctx, events.NewContactAdded(userID, contactID, s.clock.Now()))
	return contact, nil
}

// RemoveContact drops contactID from the caller's contacts. Snapshots
// already shared either way are kept.
func (s *ContactService) RemoveContact(ctx context.Context, contactID string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	return s.store.Contacts().Delete(ctx, entities.ContactKey{UserID: userID, ContactID: contactID})
}

func isUniqueViolation(err error) bool {
	appErr := pkgerrors.GetAppError(err)
	return appErr != nil && appErr.Code == ports.CodeUniqueViolation
}
