package di

import (
	"context"
	"time"

	"go.uber.org/zap"

	"graphboard/application/editor"
	"graphboard/application/ports"
	"graphboard/infrastructure/config"
	"graphboard/interfaces/http/rest"
	"graphboard/pkg/observability"
)

// limiterSweepInterval is how often idle rate limiter buckets are dropped.
const limiterSweepInterval = 10 * time.Minute

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Tracer    *observability.TracerProvider
	Backend   *Backend
	Store     ports.Store
	Publisher ports.EventPublisher
	Registry  *editor.Registry
	Limiters  *Limiters
	Router    *rest.Router
	Watcher   *config.Watcher
}

// Start launches the background loops: idle editor session reaping, store
// client eviction and rate limiter sweeping. They stop when ctx is done.
func (c *Container) Start(ctx context.Context) {
	go c.Registry.Run(ctx, c.Config.Editor.ReapInterval)
	if c.Backend.run != nil {
		go c.Backend.run(ctx)
	}
	go c.Limiters.User.Run(ctx, limiterSweepInterval)
	go c.Limiters.Public.Run(ctx, limiterSweepInterval)
}
