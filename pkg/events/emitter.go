// Package events publishes ledger changes to downstream consumers
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher writes wire events to the output topic
type Publisher interface {
	PublishResolutionEvent(ctx context.Context, event *kafka.ResolutionEvent) error
}

// Emitter is the Observer that publishes ledger events to Kafka
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Observe(ctx context.Context, event Event) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Observe")
	defer span.End()

	wire, err := toWire(event)
	if err != nil {
		return err
	}

	if err := e.publisher.PublishResolutionEvent(ctx, wire); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.Type)
		return err
	}
	return nil
}

func toWire(event Event) (*kafka.ResolutionEvent, error) {
	wire := &kafka.ResolutionEvent{
		EventType:     string(event.Type),
		SchemaVersion: SchemaVersion,
		Timestamp:     event.OccurredAt,
		EntityID:      event.EntityID,
	}

	var payload any
	switch event.Type {
	case EventTypeEntityMinted:
		if event.Entity == nil {
			return nil, fmt.Errorf("%s event without entity", event.Type)
		}
		wire.EntityID = event.Entity.ID
		wire.EntityType = string(event.Entity.Kind)
		payload = map[string]any{"entity": event.Entity, "alias": event.Alias}
	case EventTypeAliasCreated, EventTypeAliasClosed:
		if event.Alias == nil {
			return nil, fmt.Errorf("%s event without alias", event.Type)
		}
		wire.EntityID = event.Alias.CanonicalEntityID
		wire.EntityType = string(event.Alias.EntityKind)
		payload = event.Alias
	case EventTypeMatchPending, EventTypeMatchResolved:
		if event.PendingMatch == nil {
			return nil, fmt.Errorf("%s event without pending match", event.Type)
		}
		wire.EntityType = string(event.PendingMatch.EntityType)
		wire.PendingMatchID = event.PendingMatch.ID
		if event.PendingMatch.ResolvedEntityID != nil {
			wire.EntityID = *event.PendingMatch.ResolvedEntityID
		}
		payload = event.PendingMatch
	case EventTypeEntityDeleted:
		if wire.EntityID == "" {
			return nil, fmt.Errorf("%s event without entity id", event.Type)
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event.Type, err)
		}
		wire.Data = data
	}
	return wire, nil
}
