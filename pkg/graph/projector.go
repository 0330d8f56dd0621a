package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Statement is one parameterised Cypher statement
type Statement struct {
	Cypher string
	Params map[string]any
}

// Writer executes statements atomically
type Writer interface {
	Write(ctx context.Context, statements ...Statement) error
}

// Projector mirrors ledger events into the graph:
//
//	(:Entity:<Kind> {id})<-[:ALIAS_OF]-(:Alias {id})
//	(:Entity)<-[:RESOLVED_TO]-(:Mention {pending_match_id})
//
// It is an events.Observer; every statement is a MERGE so replays are harmless.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{writer: writer, logger: logger}
}

func (p *Projector) Observe(ctx context.Context, event events.Event) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Observe")
	defer span.End()

	statements, err := Project(event)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		return nil
	}

	if err := p.writer.Write(ctx, statements...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Error("Failed to project event into graph")
		return fmt.Errorf("failed to project %s: %w", event.Type, err)
	}
	return nil
}

// Project returns the statements that apply event to the graph. Events with no
// graph meaning, such as a match entering review, produce none.
func Project(event events.Event) ([]Statement, error) {
	switch event.Type {
	case events.EventTypeEntityMinted:
		if event.Entity == nil {
			return nil, fmt.Errorf("%s event without entity", event.Type)
		}
		statements := []Statement{mergeEntity(event.Entity)}
		if event.Alias != nil {
			statements = append(statements, mergeAlias(event.Alias))
		}
		return statements, nil
	case events.EventTypeAliasCreated, events.EventTypeAliasClosed:
		if event.Alias == nil {
			return nil, fmt.Errorf("%s event without alias", event.Type)
		}
		return []Statement{mergeAlias(event.Alias)}, nil
	case events.EventTypeMatchResolved:
		if event.PendingMatch == nil {
			return nil, fmt.Errorf("%s event without pending match", event.Type)
		}
		if event.PendingMatch.ResolvedEntityID == nil {
			return nil, nil
		}
		return []Statement{mergeMention(event.PendingMatch)}, nil
	case events.EventTypeEntityDeleted:
		if event.EntityID == "" {
			return nil, fmt.Errorf("%s event without entity id", event.Type)
		}
		return []Statement{{
			Cypher: `MATCH (e:Entity {id: $id})
OPTIONAL MATCH (n)-[:ALIAS_OF|RESOLVED_TO]->(e)
DETACH DELETE n, e`,
			Params: map[string]any{"id": event.EntityID},
		}}, nil
	case events.EventTypeMatchPending:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown event type %q", event.Type)
}

func mergeEntity(entity *models.CanonicalEntity) Statement {
	props := map[string]any{
		"id":         entity.ID,
		"kind":       string(entity.Kind),
		"name":       entity.Name,
		"slug":       entity.Slug,
		"created_at": entity.CreatedAt.UTC().Format(time.RFC3339),
	}
	if entity.ActiveFromYear != nil {
		props["active_from_year"] = int64(*entity.ActiveFromYear)
	}
	if entity.ActiveUntilYear != nil {
		props["active_until_year"] = int64(*entity.ActiveUntilYear)
	}

	return Statement{
		Cypher: fmt.Sprintf(`MERGE (e:Entity {id: $id})
SET e:%s, e += $props`, kindLabel(entity.Kind)),
		Params: map[string]any{"id": entity.ID, "props": props},
	}
}

func mergeAlias(alias *models.Alias) Statement {
	props := map[string]any{
		"id":          alias.ID,
		"name":        alias.AliasName,
		"slug":        alias.AliasSlug,
		"scope":       alias.Scope,
		"source":      alias.Source,
		"valid_from":  formatDate(alias.ValidFrom),
		"valid_until": formatDate(alias.ValidUntil),
	}

	return Statement{
		Cypher: `MERGE (e:Entity {id: $entity_id})
MERGE (a:Alias {id: $id})
SET a += $props
MERGE (a)-[:ALIAS_OF]->(e)`,
		Params: map[string]any{"id": alias.ID, "entity_id": alias.CanonicalEntityID, "props": props},
	}
}

func mergeMention(match *models.PendingMatch) Statement {
	props := map[string]any{
		"pending_match_id": match.ID,
		"name":             match.IncomingName,
		"source":           match.Source,
		"scope":            match.Scope,
		"score":            match.MatchScore,
		"policy_version":   match.PolicyVersion,
	}
	rel := map[string]any{}
	if match.Resolution != nil {
		rel["resolution"] = string(*match.Resolution)
	}
	if match.ResolvedBy != nil {
		rel["resolved_by"] = *match.ResolvedBy
	}
	if match.ResolvedAt != nil {
		rel["resolved_at"] = match.ResolvedAt.UTC().Format(time.RFC3339)
	}

	return Statement{
		Cypher: `MERGE (e:Entity {id: $entity_id})
MERGE (m:Mention {pending_match_id: $id})
SET m += $props
MERGE (m)-[r:RESOLVED_TO]->(e)
SET r += $rel`,
		Params: map[string]any{"id": match.ID, "entity_id": *match.ResolvedEntityID, "props": props, "rel": rel},
	}
}

// kindLabel turns an entity kind into a node label; kinds are a closed set so the
// label never needs escaping.
func kindLabel(kind models.EntityKind) string {
	if !kind.Valid() {
		return "Unknown"
	}
	s := string(kind)
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
