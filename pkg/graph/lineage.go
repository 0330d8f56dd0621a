package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Reader runs read-only queries
type Reader interface {
	Read(ctx context.Context, stmt Statement) ([]*neo4j.Record, error)
}

// Lineage is every name an entity has been known by and every mention resolved to it
type Lineage struct {
	Entity   NodeResult   `json:"entity"`
	Aliases  []NodeResult `json:"aliases"`
	Mentions []NodeResult `json:"mentions"`
}

// NodeResult represents a node from query results
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type LineageService struct {
	reader Reader
	logger ectologger.Logger
}

func NewLineageService(reader Reader, logger ectologger.Logger) *LineageService {
	return &LineageService{reader: reader, logger: logger}
}

// Get returns the lineage of entityID, or a NotFound error when it has not been projected
func (s *LineageService) Get(ctx context.Context, entityID string) (*Lineage, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.Get")
	defer span.End()

	records, err := s.reader.Read(ctx, Statement{
		Cypher: `MATCH (e:Entity {id: $id})
OPTIONAL MATCH (n)-[:ALIAS_OF|RESOLVED_TO]->(e)
RETURN e, n`,
		Params: map[string]any{"id": entityID},
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("Failed to read lineage")
		return nil, fmt.Errorf("failed to read lineage: %w", err)
	}
	if len(records) == 0 {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "entity %s not found in graph", entityID)
	}

	lineage := &Lineage{Aliases: []NodeResult{}, Mentions: []NodeResult{}}
	for i, record := range records {
		if i == 0 {
			if e, ok := record.Values[0].(neo4j.Node); ok {
				lineage.Entity = toNodeResult(e, "id")
			}
		}
		n, ok := record.Values[1].(neo4j.Node)
		if !ok {
			continue
		}
		switch {
		case hasLabel(n, "Alias"):
			lineage.Aliases = append(lineage.Aliases, toNodeResult(n, "id"))
		case hasLabel(n, "Mention"):
			lineage.Mentions = append(lineage.Mentions, toNodeResult(n, "pending_match_id"))
		}
	}
	return lineage, nil
}

func toNodeResult(n neo4j.Node, idProp string) NodeResult {
	return NodeResult{
		ID:         fmt.Sprintf("%v", n.Props[idProp]),
		Labels:     n.Labels,
		Properties: n.Props,
	}
}

func hasLabel(n neo4j.Node, label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}
