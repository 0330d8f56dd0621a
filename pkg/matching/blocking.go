package matching

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const DefaultMaxCandidates = 50

// CandidateStore is the read side of the entity store used for blocking
type CandidateStore interface {
	// ListByBlockingKey returns entities of kind whose blocking key equals key or is empty
	ListByBlockingKey(ctx context.Context, kind models.EntityKind, key string, limit int) ([]models.CanonicalEntity, error)
	// ListByActiveYears returns entities of kind whose active period overlaps [from, until] or is
	// unknown. A period that is still open matches any earlier range.
	ListByActiveYears(ctx context.Context, kind models.EntityKind, from, until int, limit int) ([]models.CanonicalEntity, error)
	// ListRecentlyActive returns entities of kind, most recently active first
	ListRecentlyActive(ctx context.Context, kind models.EntityKind, limit int) ([]models.CanonicalEntity, error)
}

// AliasLister loads the aliases candidates are already known by
type AliasLister interface {
	// ListByEntities returns aliases grouped by canonical entity id
	ListByEntities(ctx context.Context, entityIDs []string) (map[string][]models.Alias, error)
}

// BlockingConfig bounds candidate generation
type BlockingConfig struct {
	MaxCandidates int
	// EraToleranceYears widens era-overlap blocking for teams and series
	EraToleranceYears int
}

func DefaultBlockingConfig() BlockingConfig {
	return BlockingConfig{MaxCandidates: DefaultMaxCandidates, EraToleranceYears: 1}
}

// Generator narrows the entities of a kind to a bounded candidate set
type Generator struct {
	store   CandidateStore
	aliases AliasLister
	logger  ectologger.Logger
	config  BlockingConfig
}

func NewGenerator(store CandidateStore, aliases AliasLister, logger ectologger.Logger, config BlockingConfig) *Generator {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultMaxCandidates
	}
	return &Generator{store: store, aliases: aliases, logger: logger, config: config}
}

// BlockingKey is the coarse key an entity of the attributes' kind is indexed by.
// Drivers block on nationality and circuits on country; teams and series block on era instead.
func BlockingKey(attrs models.Attributes) string {
	switch a := attrs.(type) {
	case models.DriverAttributes:
		return normalizers.Nationality(a.Nationality)
	case models.CircuitAttributes:
		return normalizers.Country(a.Country)
	}
	return ""
}

// Generate returns at most MaxCandidates candidates with their aliases loaded.
// Records that lack their blocking key fall back to the most recently active entities.
func (g *Generator) Generate(ctx context.Context, record models.IncomingRecord) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Generator.Generate")
	defer span.End()

	log := g.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": record.EntityType,
		"source":      record.Source,
	})

	limit := g.config.MaxCandidates
	var (
		entities []models.CanonicalEntity
		err      error
		strategy string
	)

	switch record.EntityType {
	case models.EntityKindDriver, models.EntityKindCircuit:
		if key := BlockingKey(record.AttributesOrEmpty()); key != "" {
			strategy = "blocking_key"
			entities, err = g.store.ListByBlockingKey(ctx, record.EntityType, key, limit)
		}
	case models.EntityKindTeam, models.EntityKindSeries:
		if record.Era.Known() {
			strategy = "active_years"
			from, until := record.Era.Bounds()
			tol := g.config.EraToleranceYears
			entities, err = g.store.ListByActiveYears(ctx, record.EntityType, from-tol, until+tol, limit)
		}
	}
	if err != nil {
		return nil, err
	}

	if strategy == "" {
		strategy = "recently_active"
		entities, err = g.store.ListRecentlyActive(ctx, record.EntityType, limit)
		if err != nil {
			return nil, err
		}
	}

	if len(entities) > limit {
		entities = entities[:limit]
	}

	candidates, err := g.withAliases(ctx, entities)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"strategy":   strategy,
		"candidates": len(candidates),
	}).Debug("Generated candidates")

	return candidates, nil
}

func (g *Generator) withAliases(ctx context.Context, entities []models.CanonicalEntity) ([]Candidate, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	aliases, err := g.aliases.ListByEntities(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(entities))
	for i, e := range entities {
		candidates[i] = Candidate{Entity: e, Aliases: aliases[e.ID]}
	}
	return candidates, nil
}
