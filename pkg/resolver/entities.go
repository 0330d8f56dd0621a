package resolver

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// GetEntity returns a canonical entity with every alias it is known by
func (r *Resolver) GetEntity(ctx context.Context, id string) (*models.CanonicalEntity, []models.Alias, error) {
	entity, err := r.entities.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	aliases, err := r.aliases.ListByEntity(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return entity, aliases, nil
}

// DeleteEntity removes a canonical entity and its aliases
func (r *Resolver) DeleteEntity(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.DeleteEntity")
	defer span.End()

	var entity *models.CanonicalEntity
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if entity, err = r.entities.Get(ctx, id); err != nil {
			return err
		}
		return r.entities.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":   entity.ID,
		"entity_type": entity.Kind,
	}).Info("Deleted canonical entity")

	r.observers.Notify(ctx, r.logger, events.Event{Type: events.EventTypeEntityDeleted, Entity: entity, EntityID: entity.ID})
	return nil
}

// SupersedeAlias closes the open alias priorID the day before next begins and records next
// in its place. Fields of next left empty are taken from the prior alias.
func (r *Resolver) SupersedeAlias(ctx context.Context, priorID string, next *models.Alias) (*models.Alias, error) {
	prior, err := r.aliases.Supersede(ctx, priorID, next)
	if err != nil {
		return nil, err
	}
	r.observers.Notify(ctx, r.logger,
		events.Event{Type: events.EventTypeAliasClosed, Alias: prior},
		events.Event{Type: events.EventTypeAliasCreated, Alias: next},
	)
	return prior, nil
}

// LookupAlias returns the single alias a name resolves to exactly, or nil
func (r *Resolver) LookupAlias(ctx context.Context, kind models.EntityKind, name, scope string, era models.Era) (*models.Alias, error) {
	normalized, err := r.Validate(models.IncomingRecord{EntityType: kind, Name: name, Era: era, Scope: scope, Source: "lookup"})
	if err != nil {
		return nil, err
	}
	return r.aliases.LookupExact(ctx, kind, normalized.Slug, scope, era.EffectiveDate())
}
