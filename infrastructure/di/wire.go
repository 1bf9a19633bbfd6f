//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"graphboard/infrastructure/config"
	"graphboard/interfaces/http/rest"
	"graphboard/interfaces/http/rest/handlers"
)

// InfrastructureSet provides logging, telemetry, the backend and events.
var InfrastructureSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracing,
	ProvideBackend,
	ProvideStore,
	ProvideAuthenticator,
	ProvidePublisher,
	ProvideConfigWatcher,
)

// ApplicationSet provides the domain rules, editor registry and services.
var ApplicationSet = wire.NewSet(
	ProvideDomainConfig,
	ProvideRegistry,
	ProvideGraphService,
	ProvideSharingService,
	ProvideContactService,
	ProvideProfileService,
	ProvideAdminService,
)

// HTTPSet provides the handlers, middleware and router.
var HTTPSet = wire.NewSet(
	ProvideErrorHandler,
	ProvideLimiters,
	ProvideAuthMiddleware,
	handlers.NewAuthHandler,
	handlers.NewGraphHandler,
	handlers.NewSharingHandler,
	handlers.NewContactHandler,
	handlers.NewProfileHandler,
	handlers.NewAdminHandler,
	handlers.NewEditorHandler,
	wire.Struct(new(rest.Handlers), "*"),
	ProvideRouter,
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	InfrastructureSet,
	ApplicationSet,
	HTTPSet,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup closes
// editor sessions, flushes events and traces, and stops the config watcher.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
