package alias

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "aliases"

const constraintNoOverlap = "aliases_no_overlap"

var columns = []string{
	"id", "canonical_entity_id", "entity_kind", "alias_name", "alias_slug", "scope",
	"valid_from", "valid_until", "source", "created_at",
}

// Repository stores alias windows in postgres. Overlapping windows of one entity are
// rejected by the aliases_no_overlap exclusion constraint.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Insert(ctx context.Context, alias *models.Alias) error {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.Insert")
	defer span.End()

	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(alias.ID, alias.CanonicalEntityID, alias.EntityKind, alias.AliasName, alias.AliasSlug, alias.Scope,
		alias.ValidFrom, alias.ValidUntil, alias.Source, alias.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		log := r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id":  alias.CanonicalEntityID,
			"alias_slug": alias.AliasSlug,
			"scope":      alias.Scope,
		})
		if database.ConstraintName(err) == constraintNoOverlap {
			log.Info("Alias window collided with a concurrent write")
		} else {
			log.Warn("Failed to insert alias")
		}
		return database.TranslateError(err, fmt.Sprintf("insert alias %q", alias.AliasSlug))
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "alias %s not found", id)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var alias models.Alias
	if err := r.db.Conn(ctx).GetContext(ctx, &alias, query, args...); err != nil {
		return nil, database.TranslateError(err, fmt.Sprintf("alias %s not found", id))
	}
	return &alias, nil
}

// CloseWindow ends an open window. An alias closed since it was read is a ConcurrentWriteConflict.
func (r *Repository) CloseWindow(ctx context.Context, id string, until time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.CloseWindow")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return domainerrors.Newf(domainerrors.CodeNotFound, "alias %s not found", id)
	}

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("valid_until", models.TruncateDay(until)))
	ub.Where(ub.Equal("id", id), ub.IsNull("valid_until"))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return database.TranslateError(err, "close alias window")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.TranslateError(err, "close alias window")
	}
	if n > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict, "alias %s was closed concurrently", id)
}

// FindBySlug returns every claim of slug within kind and scope, across entities
func (r *Repository) FindBySlug(ctx context.Context, kind models.EntityKind, slug, scope string) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.FindBySlug")
	defer span.End()

	sb := listBuilder()
	sb.Where(
		sb.Equal("entity_kind", kind),
		sb.Equal("alias_slug", slug),
		sb.Equal("scope", scope),
	)
	return r.selectAliases(ctx, sb)
}

func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.ListByEntity")
	defer span.End()

	if _, err := uuid.Parse(entityID); err != nil {
		return nil, nil
	}

	sb := listBuilder()
	sb.Where(sb.Equal("canonical_entity_id", entityID))
	return r.selectAliases(ctx, sb)
}

// ListByEntities returns aliases grouped by canonical entity id
func (r *Repository) ListByEntities(ctx context.Context, entityIDs []string) (map[string][]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "AliasRepository.ListByEntities")
	defer span.End()

	ids := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	out := make(map[string][]models.Alias, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sb := listBuilder()
	sb.Where(fmt.Sprintf("canonical_entity_id = ANY(%s)", sb.Var(pq.Array(ids))))
	aliases, err := r.selectAliases(ctx, sb)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		out[a.CanonicalEntityID] = append(out[a.CanonicalEntityID], a)
	}
	return out, nil
}

// listBuilder orders aliases by window start, unbounded starts first
func listBuilder() *sqlbuilder.SelectBuilder {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.OrderBy("valid_from ASC NULLS FIRST", "created_at", "id")
	return sb
}

func (r *Repository) selectAliases(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Alias, error) {
	query, args := sb.Build()

	var aliases []models.Alias
	if err := r.db.Conn(ctx).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases")
		return nil, database.TranslateError(err, "list aliases")
	}
	return aliases, nil
}
