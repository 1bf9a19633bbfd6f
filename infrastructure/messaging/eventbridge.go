// Package messaging ships domain events to an external bus.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/events"
	pkgerrors "graphboard/pkg/errors"
)

// maxBatch is the PutEvents entry limit.
const maxBatch = 10

// PutEventsAPI is the part of the EventBridge client the publisher needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts domain events on an EventBridge bus.
type EventBridgePublisher struct {
	client   PutEventsAPI
	eventBus string
	source   string
	logger   *zap.Logger
	now      func() time.Time
}

var _ ports.EventPublisher = (*EventBridgePublisher)(nil)

func NewEventBridgePublisher(client PutEventsAPI, eventBus, source string, logger *zap.Logger) *EventBridgePublisher {
	if eventBus == "" {
		eventBus = "default"
	}
	if source == "" {
		source = "graphboard"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:   client,
		eventBus: eventBus,
		source:   source,
		logger:   logger.Named("events"),
		now:      time.Now,
	}
}

// Publish sends evts in batches. It stops at the first batch that fails,
// so a caller may see earlier batches delivered.
func (p *EventBridgePublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	for start := 0; start < len(evts); start += maxBatch {
		end := min(start+maxBatch, len(evts))
		if err := p.publishBatch(ctx, evts[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, batch []events.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, evt := range batch {
		entry, err := p.entry(evt)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return pkgerrors.NewExternalError("eventbridge", err)
	}
	if out.FailedEntryCount > 0 {
		for i, e := range out.Entries {
			if e.ErrorCode != nil {
				p.logger.Error("Event rejected",
					zap.String("event_type", batch[i].GetEventType()),
					zap.String("event_id", batch[i].GetEventID()),
					zap.String("code", aws.ToString(e.ErrorCode)),
					zap.String("message", aws.ToString(e.ErrorMessage)))
			}
		}
		return pkgerrors.NewExternalError("eventbridge",
			fmt.Errorf("%d of %d events failed to publish", out.FailedEntryCount, len(entries)))
	}

	p.logger.Debug("Published events", zap.Int("count", len(entries)), zap.String("bus", p.eventBus))
	return nil
}

// entry builds the bus entry for evt. The detail is the event's own JSON;
// its base fields (event_id, event_type, user_id, ...) sit at the top level
// for rule matching.
func (p *EventBridgePublisher) entry(evt events.DomainEvent) (types.PutEventsRequestEntry, error) {
	detail, err := json.Marshal(evt)
	if err != nil {
		return types.PutEventsRequestEntry{}, pkgerrors.NewInternalError("failed to encode event").WithCause(err)
	}
	return types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBus),
		Source:       aws.String(p.source),
		DetailType:   aws.String(evt.GetEventType()),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(evt.GetTimestamp()),
		Resources:    []string{evt.GetAggregateID()},
	}, nil
}
