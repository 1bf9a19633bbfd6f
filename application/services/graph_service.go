package services

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/config"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/entities"
	"graphboard/domain/events"
	pkgerrors "graphboard/pkg/errors"
)

// GraphService manages the caller's own graphs.
type GraphService struct {
	base
	rules *config.DomainConfig
}

// NewGraphService creates a new graph service
func NewGraphService(store ports.Store, publisher ports.EventPublisher, rules *config.DomainConfig, logger *zap.Logger, opts ...Option) *GraphService {
	if rules == nil {
		rules = config.DefaultDomainConfig()
	}
	return &GraphService{base: newBase(store, publisher, logger, opts), rules: rules}
}

// ListGraphs returns the caller's graphs, most recently updated first.
func (s *GraphService) ListGraphs(ctx context.Context) ([]*entities.Graph, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Graphs().List(ctx, ports.ListOptions{
		Filters: []ports.Filter{ports.Eq("owner_id", userID)},
		OrderBy: "updated_at",
	})
}

// GetGraph returns one of the caller's graphs.
func (s *GraphService) GetGraph(ctx context.Context, id string) (*entities.Graph, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	return s.store.Graphs().Get(ctx, id)
}

// CreateGraph persists a graph owned by the caller. An empty title falls
// back to the default; empty data becomes an empty document. Data that is
// not a valid document is rejected with MalformedDocument and is stored
// without transient keys otherwise.
func (s *GraphService) CreateGraph(ctx context.Context, title string, data json.RawMessage) (*entities.Graph, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = s.rules.DefaultGraphTitle
	}
	if err := s.checkTitle(title); err != nil {
		return nil, err
	}

	doc := aggregates.NewDocument()
	if len(data) > 0 {
		if doc, err = aggregates.DecodeData(data); err != nil {
			return nil, err
		}
	}
	payload, err := aggregates.ToPersistable(doc)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to encode graph").WithCause(err)
	}

	graph, err := s.store.Graphs().Create(ctx, &entities.GraphInsert{OwnerID: userID, Title: title, Data: payload})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Graph created", zap.String("graphID", graph.ID), zap.String("userID", userID))
	s.publish(ctx, events.NewGraphCreated(graph.ID, userID, graph.Title, s.clock.Now()))
	return graph, nil
}

// RenameGraph changes a graph's title.
func (s *GraphService) RenameGraph(ctx context.Context, id, title string) (*entities.Graph, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, pkgerrors.NewValidationError("title is required")
	}
	if err := s.checkTitle(title); err != nil {
		return nil, err
	}
	return s.store.Graphs().Update(ctx, id, &entities.GraphUpdate{Title: &title})
}

// DeleteGraph removes a graph. Snapshots already shared from it are kept.
func (s *GraphService) DeleteGraph(ctx context.Context, id string) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Graphs().Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Graph deleted", zap.String("graphID", id), zap.String("userID", userID))
	s.publish(ctx, events.NewGraphDeleted(id, userID, s.clock.Now()))
	return nil
}

func (s *GraphService) checkTitle(title string) error {
	if utf8.RuneCountInString(title) > s.rules.MaxTitleLength {
		return pkgerrors.NewValidationError("title is too long").
			WithDetail("max", s.rules.MaxTitleLength)
	}
	return nil
}
