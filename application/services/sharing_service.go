package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/domain/config"
	"graphboard/domain/core/entities"
	"graphboard/domain/events"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
)

// SharingService shares snapshots of graphs between contacts.
type SharingService struct {
	base
	rules   *config.DomainConfig
	editors *editor.Registry
}

// NewSharingService creates a sharing service. editors may be nil when
// shared snapshots are never opened in an editor.
func NewSharingService(store ports.Store, publisher ports.EventPublisher, editors *editor.Registry, rules *config.DomainConfig, logger *zap.Logger, opts ...Option) *SharingService {
	if rules == nil {
		rules = config.DefaultDomainConfig()
	}
	return &SharingService{base: newBase(store, publisher, logger, opts), rules: rules, editors: editors}
}

// ShareGraph copies the graph's current data into a snapshot addressed to
// recipientID. Later edits of the graph never reach the snapshot.
func (s *SharingService) ShareGraph(ctx context.Context, graphID, recipientID string) (*entities.SharedGraph, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, pkgerrors.NewValidationError("recipient is required")
	}
	if recipientID == userID {
		return nil, pkgerrors.NewValidationError("cannot share a graph with yourself")
	}
	if s.rules.RequireContactForSharing {
		_, err := s.store.Contacts().Get(ctx, entities.ContactKey{UserID: userID, ContactID: recipientID})
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewValidationError("recipient is not one of your contacts").
				WithDetail("recipient_id", recipientID)
		}
		if err != nil {
			return nil, err
		}
	}

	graph, err := s.store.Graphs().Get(ctx, graphID)
	if err != nil {
		return nil, err
	}
	snapshot := graph.Data
	if len(snapshot) == 0 {
		snapshot = []byte(`{}`)
	}

	share, err := s.store.SharedGraphs().Create(ctx, &entities.SharedGraphInsert{
		GraphID:           graph.ID,
		OwnerID:           userID,
		RecipientID:       recipientID,
		GraphDataSnapshot: snapshot,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.GraphsShared.Inc()
	}
	s.logger.Info("Graph shared",
		zap.String("graphID", graph.ID),
		zap.String("sharedGraphID", share.ID),
		zap.String("userID", userID),
		zap.String("recipientID", recipientID))
	s.publish(ctx, events.NewGraphShared(graph.ID, share.ID, userID, recipientID, s.clock.Now()))
	return share, nil
}

// ListReceived returns the snapshots shared with the caller, newest first.
func (s *SharingService) ListReceived(ctx context.Context) ([]*entities.SharedGraphWithDetails, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, ports.Eq("recipient_id", userID))
}

// ListSent returns the snapshots the caller has shared, newest first.
func (s *SharingService) ListSent(ctx context.Context) ([]*entities.SharedGraphWithDetails, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, ports.Eq("owner_id", userID))
}

func (s *SharingService) list(ctx context.Context, filter ports.Filter) ([]*entities.SharedGraphWithDetails, error) {
	shares, err := s.store.SharedGraphs().ListWithDetails(ctx, ports.ListOptions{
		Filters: []ports.Filter{filter},
		OrderBy: "shared_at",
	})
	if err != nil {
		return nil, err
	}
	for _, share := range shares {
		if share.GraphTitle == "" {
			share.GraphTitle = entities.DefaultSharedTitle
		}
	}
	return shares, nil
}

// RemoveShare deletes a snapshot. Owner and recipient may both remove it.
func (s *SharingService) RemoveShare(ctx context.Context, id string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	if err := s.store.SharedGraphs().Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.NewShareRemoved(id, userID, s.clock.Now()))
	return nil
}

// OpenShared opens a snapshot shared with or by the caller in a read-only
// editor session.
func (s *SharingService) OpenShared(ctx context.Context, id string) (*editor.Session, error) {
	if s.editors == nil {
		return nil, pkgerrors.NewUnavailableError("editor")
	}
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, pkgerrors.NewUnauthorizedError("authentication required")
	}
	return s.editors.OpenShared(ctx, session.FromUserContext(user), id)
}
