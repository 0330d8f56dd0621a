package canonicalentity

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

const tableName = "canonical_entities"

var columns = []string{
	"id", "kind", "name", "slug", "attributes", "blocking_key",
	"active_from_year", "active_until_year", "created_at",
}

// row is the stored shape of a canonical entity; attributes stay encoded until read
type row struct {
	ID              string    `db:"id"`
	Kind            string    `db:"kind"`
	Name            string    `db:"name"`
	Slug            string    `db:"slug"`
	Attributes      []byte    `db:"attributes"`
	BlockingKey     string    `db:"blocking_key"`
	ActiveFromYear  *int      `db:"active_from_year"`
	ActiveUntilYear *int      `db:"active_until_year"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r row) toModel() (models.CanonicalEntity, error) {
	kind := models.EntityKind(r.Kind)
	attrs, err := models.DecodeAttributes(kind, r.Attributes)
	if err != nil {
		return models.CanonicalEntity{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "stored attributes are unreadable")
	}
	return models.CanonicalEntity{
		ID:              r.ID,
		Kind:            kind,
		Name:            r.Name,
		Slug:            r.Slug,
		Attributes:      attrs,
		BlockingKey:     r.BlockingKey,
		ActiveFromYear:  r.ActiveFromYear,
		ActiveUntilYear: r.ActiveUntilYear,
		CreatedAt:       r.CreatedAt,
	}, nil
}

// Repository stores canonical entities in postgres
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

// Create inserts entity. A taken (kind, slug) is a ConcurrentWriteConflict.
func (r *Repository) Create(ctx context.Context, entity *models.CanonicalEntity) error {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.Create")
	defer span.End()

	attrs, err := models.EncodeAttributes(entity.Attributes)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeValidation, "encode attributes")
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(entity.ID, entity.Kind, entity.Name, entity.Slug, string(attrs), entity.BlockingKey,
		entity.ActiveFromYear, entity.ActiveUntilYear, entity.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"kind": entity.Kind,
			"slug": entity.Slug,
		}).Warn("Failed to create canonical entity")
		return database.TranslateError(err, fmt.Sprintf("create %s %q", entity.Kind, entity.Slug))
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var found row
	if err := r.db.Conn(ctx).GetContext(ctx, &found, query, args...); err != nil {
		return nil, database.TranslateError(err, fmt.Sprintf("canonical entity %s not found", id))
	}
	entity, err := found.toModel()
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetMany returns the entities that exist, in the order of ids
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.GetMany")
	defer span.End()

	valid := validIDs(ids)
	if len(valid) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(fmt.Sprintf("id = ANY(%s)", sb.Var(pq.Array(valid))))

	entities, err := r.selectEntities(ctx, sb)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.CanonicalEntity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	out := make([]models.CanonicalEntity, 0, len(entities))
	for _, id := range valid {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repository) SlugExists(ctx context.Context, kind models.EntityKind, slug string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.SlugExists")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("1")
	sb.From(tableName)
	sb.Where(sb.Equal("kind", kind), sb.Equal("slug", slug))
	inner, args := sb.Build()

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (%s)", inner)
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, args...); err != nil {
		return false, database.TranslateError(err, "check slug")
	}
	return exists, nil
}

// WidenActivePeriod extends the active years to cover [from, until]. An entity with no
// known period takes the range as is; an open-ended period stays open.
func (r *Repository) WidenActivePeriod(ctx context.Context, id string, from, until int) error {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.WidenActivePeriod")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
	}

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	fromVar, untilVar := ub.Var(from), ub.Var(until)
	ub.Set(
		fmt.Sprintf("active_from_year = LEAST(COALESCE(active_from_year, %s), %s)", fromVar, fromVar),
		fmt.Sprintf("active_until_year = CASE WHEN active_from_year IS NULL THEN %s WHEN active_until_year IS NULL THEN NULL ELSE GREATEST(active_until_year, %s) END",
			untilVar, untilVar),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return database.TranslateError(err, "widen active period")
	}
	return requireRow(result, id)
}

// Delete removes the entity. Aliases cascade and pending matches lose their reference.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(tableName)
	del.Where(del.Equal("id", id))

	query, args := del.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return database.TranslateError(err, "delete canonical entity")
	}
	if err := requireRow(result, id); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithField("entity_id", id).Info("Deleted canonical entity")
	return nil
}

func (r *Repository) ListByBlockingKey(ctx context.Context, kind models.EntityKind, key string, limit int) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.ListByBlockingKey")
	defer span.End()

	sb := r.listBuilder(kind, limit)
	sb.Where(sb.Or(sb.Equal("blocking_key", key), sb.Equal("blocking_key", "")))
	return r.selectEntities(ctx, sb)
}

func (r *Repository) ListByActiveYears(ctx context.Context, kind models.EntityKind, from, until int, limit int) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.ListByActiveYears")
	defer span.End()

	sb := r.listBuilder(kind, limit)
	sb.Where(
		sb.Or(sb.IsNull("active_until_year"), sb.IsNull("active_from_year"), sb.LessEqualThan("active_from_year", until)),
		sb.Or(sb.IsNull("active_until_year"), sb.GreaterEqualThan("active_until_year", from)),
	)
	return r.selectEntities(ctx, sb)
}

func (r *Repository) ListRecentlyActive(ctx context.Context, kind models.EntityKind, limit int) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "CanonicalEntityRepository.ListRecentlyActive")
	defer span.End()

	return r.selectEntities(ctx, r.listBuilder(kind, limit))
}

// listBuilder orders entities most recently active first
func (r *Repository) listBuilder(kind models.EntityKind, limit int) *sqlbuilder.SelectBuilder {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("kind", kind))
	sb.OrderBy("active_until_year DESC NULLS FIRST", "created_at DESC", "id")
	if limit > 0 {
		sb.Limit(limit)
	}
	return sb
}

func (r *Repository) selectEntities(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.CanonicalEntity, error) {
	query, args := sb.Build()

	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list canonical entities")
		return nil, database.TranslateError(err, "list canonical entities")
	}

	entities := make([]models.CanonicalEntity, 0, len(rows))
	for _, found := range rows {
		entity, err := found.toModel()
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func requireRow(result interface{ RowsAffected() (int64, error) }, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return database.TranslateError(err, "rows affected")
	}
	if n == 0 {
		return domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
	}
	return nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
