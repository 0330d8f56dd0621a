package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingPublisher struct {
	events []*kafka.ResolutionEvent
	err    error
}

func (p *recordingPublisher) PublishResolutionEvent(_ context.Context, event *kafka.ResolutionEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestEmitterPublishesMintedEntity(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewEmitter(pub, testLogger())

	entity := &models.CanonicalEntity{ID: "d1", Kind: models.EntityKindDriver, Name: "Max Verstappen", Slug: "max-verstappen"}
	alias := &models.Alias{ID: "a1", CanonicalEntityID: "d1", EntityKind: models.EntityKindDriver, AliasName: "Max Verstappen", AliasSlug: "max-verstappen", Source: "openf1"}

	err := emitter.Observe(context.Background(), Event{Type: EventTypeEntityMinted, Entity: entity, Alias: alias, OccurredAt: time.Unix(0, 0)})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	got := pub.events[0]
	assert.Equal(t, "entity.minted", got.EventType)
	assert.Equal(t, "d1", got.EntityID)
	assert.Equal(t, "driver", got.EntityType)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
	assert.Contains(t, string(got.Data), "max-verstappen")
}

func TestEmitterRejectsIncompleteEvents(t *testing.T) {
	emitter := NewEmitter(&recordingPublisher{}, testLogger())
	assert.Error(t, emitter.Observe(context.Background(), Event{Type: EventTypeAliasCreated}))
	assert.Error(t, emitter.Observe(context.Background(), Event{Type: "bogus"}))
}

type failingObserver struct{ calls int }

func (o *failingObserver) Observe(context.Context, Event) error {
	o.calls++
	return errors.New("unavailable")
}

func TestObserversNotifySwallowsFailures(t *testing.T) {
	first := &failingObserver{}
	pub := &recordingPublisher{}
	observers := Observers{first, NewEmitter(pub, testLogger())}

	pm := &models.PendingMatch{ID: "pm1", EntityType: models.EntityKindDriver, Status: models.PendingMatchStatusPending}
	observers.Notify(context.Background(), testLogger(), Event{Type: EventTypeMatchPending, PendingMatch: pm})

	assert.Equal(t, 1, first.calls)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "pm1", pub.events[0].PendingMatchID)
	assert.False(t, pub.events[0].Timestamp.IsZero())
}
