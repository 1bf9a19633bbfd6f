// Package services implements the dashboard's operations on graphs, shares,
// contacts and profiles, plus administrator account creation. Every method
// acts for the caller attached to its context; row visibility is left to the
// store.
package services

import (
	"context"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/events"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

// Option configures a service.
type Option func(*base)

// WithClock replaces the clock stamping published events.
func WithClock(clock utils.Clock) Option {
	return func(b *base) { b.clock = clock }
}

// WithMetrics counts shares and contacts on collector.
func WithMetrics(collector *observability.Collector) Option {
	return func(b *base) { b.metrics = collector }
}

type base struct {
	store     ports.Store
	publisher ports.EventPublisher
	logger    *zap.Logger
	clock     utils.Clock
	metrics   *observability.Collector
}

func newBase(store ports.Store, publisher ports.EventPublisher, logger *zap.Logger, opts []Option) base {
	b := base{
		store:     store,
		publisher: publisher,
		logger:    logger,
		clock:     utils.RealClock{},
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// callerID returns the user the request acts for.
func callerID(ctx context.Context) (string, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil || user.UserID == "" {
		return "", pkgerrors.NewUnauthorizedError("authentication required")
	}
	return user.UserID, nil
}

// publish ships evts without failing the operation that raised them.
func (b *base) publish(ctx context.Context, evts ...events.DomainEvent) {
	if b.publisher == nil || len(evts) == 0 {
		return
	}
	if err := b.publisher.Publish(ctx, evts...); err != nil {
		b.logger.Warn("Failed to publish domain events",
			zap.String("eventType", evts[0].GetEventType()),
			zap.Int("count", len(evts)),
			zap.Error(err))
	}
}
