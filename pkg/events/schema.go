package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeEntityMinted  EventType = "entity.minted"
	EventTypeEntityDeleted EventType = "entity.deleted"
	EventTypeAliasCreated  EventType = "alias.created"
	EventTypeAliasClosed   EventType = "alias.closed"
	EventTypeMatchPending  EventType = "match.pending"
	EventTypeMatchResolved EventType = "match.resolved"
)

// Event describes one committed change to the ledger. Only the fields relevant to Type are set.
type Event struct {
	Type         EventType
	OccurredAt   time.Time
	Entity       *models.CanonicalEntity
	Alias        *models.Alias
	PendingMatch *models.PendingMatch
	EntityID     string
}

// Observer receives events after the change they describe has been committed
type Observer interface {
	Observe(ctx context.Context, event Event) error
}

// Observers fans events out to every observer. Failures are logged and never
// propagate: the ledger write has already committed.
type Observers []Observer

func (o Observers) Notify(ctx context.Context, logger ectologger.Logger, events ...Event) {
	for _, event := range events {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}
		for _, observer := range o {
			if err := observer.Observe(ctx, event); err != nil {
				metrics.RecordEvent(string(event.Type), "failed")
				logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"event_type": event.Type,
				}).Warn("Observer failed to handle event")
				continue
			}
			metrics.RecordEvent(string(event.Type), "ok")
		}
	}
}
