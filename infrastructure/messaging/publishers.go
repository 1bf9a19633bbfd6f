package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/events"
	pkgerrors "graphboard/pkg/errors"
)

// LogPublisher writes events to the log instead of a bus. Local runs use it.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, evts ...events.DomainEvent) error {
	for _, evt := range evts {
		p.logger.Info("Domain event",
			zap.String("event_type", evt.GetEventType()),
			zap.String("event_id", evt.GetEventID()),
			zap.String("aggregate_id", evt.GetAggregateID()),
			zap.String("user_id", evt.GetUserID()),
			zap.Time("at", evt.GetTimestamp()))
	}
	return nil
}

// AsyncPublisher queues events and hands them to the next publisher from a
// background worker, in batches of up to batchSize or every flushInterval.
// Publish never blocks on the bus; a full queue is reported as an error.
type AsyncPublisher struct {
	next          ports.EventPublisher
	queue         chan events.DomainEvent
	batchSize     int
	flushInterval time.Duration
	timeout       time.Duration
	logger        *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewAsyncPublisher starts the worker. Close must be called to flush the
// queue and stop it.
func NewAsyncPublisher(next ports.EventPublisher, queueSize int, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AsyncPublisher{
		next:          next,
		queue:         make(chan events.DomainEvent, queueSize),
		batchSize:     maxBatch,
		flushInterval: 100 * time.Millisecond,
		timeout:       5 * time.Second,
		logger:        logger.Named("events"),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go p.worker()
	return p
}

func (p *AsyncPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	for _, evt := range evts {
		select {
		case <-p.done:
			return pkgerrors.NewUnavailableError("event publisher")
		default:
		}
		select {
		case p.queue <- evt:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return pkgerrors.NewUnavailableError("event queue")
		}
	}
	return nil
}

// Close stops accepting events, publishes what is queued and waits for the
// worker, or for ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncPublisher) worker() {
	defer close(p.stopped)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]events.DomainEvent, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.next.Publish(ctx, batch...); err != nil {
			p.logger.Error("Failed to publish events", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]events.DomainEvent, 0, p.batchSize)
	}

	for {
		select {
		case evt := <-p.queue:
			batch = append(batch, evt)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.done:
			for {
				select {
				case evt := <-p.queue:
					batch = append(batch, evt)
					if len(batch) >= p.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
