package pendingmatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "pending_matches"

// openKey is the partial unique index allowing one open review per record key
var openKey = []string{"entity_type", "source", "incoming_name", "scope"}

const openPredicate = "status = 'pending'"

var columns = []string{
	"id", "entity_type", "incoming_name", "incoming_slug", "incoming_data", "scope",
	"era_start_year", "era_end_year", "candidate_entity_id", "candidate_entity_name",
	"match_score", "signals", "source", "status", "resolution", "resolution_notes",
	"resolved_at", "resolved_by", "resolved_entity_id", "policy_version", "created_at", "updated_at",
}

// refreshed are the columns a repeated pending decision overwrites
var refreshed = []string{
	"incoming_slug", "incoming_data", "era_start_year", "era_end_year",
	"candidate_entity_id", "candidate_entity_name", "match_score", "signals", "policy_version", "updated_at",
}

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

// GetPendingByKey returns the open pending match for key, or nil
func (r *Repository) GetPendingByKey(ctx context.Context, key models.PendingMatchKey) (*models.PendingMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.GetPendingByKey")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("entity_type", key.EntityType),
		sb.Equal("source", key.Source),
		sb.Equal("incoming_name", key.IncomingName),
		sb.Equal("scope", key.Scope),
		sb.Equal("status", models.PendingMatchStatusPending),
	)

	matches, err := r.selectMatches(ctx, sb)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

// Upsert inserts match, or refreshes the open row with the same key in place.
// match.ID and CreatedAt are set to the stored row's values.
func (r *Repository) Upsert(ctx context.Context, match *models.PendingMatch) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	match.Status = models.PendingMatchStatusPending
	match.UpdatedAt = now
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}

	assignments := make([]string, len(refreshed))
	for i, col := range refreshed {
		assignments[i] = fmt.Sprintf("%s = %s", col, database.Excluded(col))
	}

	ib := r.insertBuilder(match)
	ib.OnConflictUpdate(openKey, openPredicate, assignments...)
	ib.SQL("RETURNING id, created_at, (xmax = 0) AS created")

	query, args := ib.Build()

	var stored struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		Created   bool      `db:"created"`
	}
	if err := r.db.Conn(ctx).GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("incoming_name", match.IncomingName).Error("Failed to upsert pending match")
		return false, database.TranslateError(err, "upsert pending match")
	}

	match.ID, match.CreatedAt = stored.ID, stored.CreatedAt
	return stored.Created, nil
}

// InsertTerminal records an already-decided match for audit
func (r *Repository) InsertTerminal(ctx context.Context, match *models.PendingMatch) error {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.InsertTerminal")
	defer span.End()

	if !match.Status.Terminal() {
		return domainerrors.Newf(domainerrors.CodeValidation, "audit row must be terminal, got %q", match.Status)
	}
	now := time.Now().UTC()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	query, args := r.insertBuilder(match).Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("status", match.Status).Error("Failed to record resolution audit row")
		return database.TranslateError(err, "insert audit row")
	}
	return nil
}

// Complete moves a pending match to a terminal status. The status guard in the WHERE
// clause makes completion one-shot: a row that is no longer pending is a StaleResolution.
func (r *Repository) Complete(ctx context.Context, id string, completion models.PendingMatchCompletion) (*models.PendingMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.Complete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "pending match %s not found", id)
	}
	if completion.ResolvedAt.IsZero() {
		completion.ResolvedAt = time.Now().UTC()
	}

	var applied models.PendingMatch
	completion.Apply(&applied)

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", applied.Status),
		ub.Assign("resolution", applied.Resolution),
		ub.Assign("resolution_notes", applied.ResolutionNotes),
		ub.Assign("resolved_by", applied.ResolvedBy),
		ub.Assign("resolved_entity_id", applied.ResolvedEntityID),
		ub.Assign("resolved_at", applied.ResolvedAt),
		ub.Assign("updated_at", applied.UpdatedAt),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", models.PendingMatchStatusPending))
	ub.SQL("RETURNING " + strings.Join(columns, ", "))

	query, args := ub.Build()

	var completed []models.PendingMatch
	if err := r.db.Conn(ctx).SelectContext(ctx, &completed, query, args...); err != nil {
		return nil, database.TranslateError(err, "complete pending match")
	}
	if len(completed) == 1 {
		return &completed[0], nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, domainerrors.Newf(domainerrors.CodeStaleResolution, "pending match %s is already %s", id, current.Status)
}

func (r *Repository) Get(ctx context.Context, id string) (*models.PendingMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "pending match %s not found", id)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var match models.PendingMatch
	if err := r.db.Conn(ctx).GetContext(ctx, &match, query, args...); err != nil {
		return nil, database.TranslateError(err, fmt.Sprintf("pending match %s not found", id))
	}
	return &match, nil
}

// List pages through matches. Score sort is highest first; created_at sort is newest first.
func (r *Repository) List(ctx context.Context, filter models.PendingMatchFilter) (*models.PendingMatchPage, error) {
	ctx, span := tracing.StartSpan(ctx, "PendingMatchRepository.List")
	defer span.End()

	filter.Normalize()

	where := func(sb *sqlbuilder.SelectBuilder) {
		var conds []string
		if filter.EntityType != nil {
			conds = append(conds, sb.Equal("entity_type", *filter.EntityType))
		}
		if filter.Status != nil {
			conds = append(conds, sb.Equal("status", *filter.Status))
		}
		if len(conds) > 0 {
			sb.Where(conds...)
		}
	}

	cb := database.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From(tableName)
	where(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.Conn(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, database.TranslateError(err, "count pending matches")
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	where(sb)
	if filter.SortBy == models.PendingMatchSortScore {
		sb.OrderBy("match_score DESC", "created_at DESC", "id")
	} else {
		sb.OrderBy("created_at DESC", "id")
	}
	sb.Limit(filter.PageSize)
	sb.Offset(filter.Offset())

	items, err := r.selectMatches(ctx, sb)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.PendingMatch{}
	}

	return &models.PendingMatchPage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (r *Repository) insertBuilder(match *models.PendingMatch) *database.InsertBuilder {
	data := string(match.IncomingData)
	if data == "" {
		data = "{}"
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(
		match.ID, match.EntityType, match.IncomingName, match.IncomingSlug, data, match.Scope,
		match.EraStartYear, match.EraEndYear, match.CandidateEntityID, match.CandidateEntityName,
		match.MatchScore, match.Signals, match.Source, match.Status, match.Resolution, match.ResolutionNotes,
		match.ResolvedAt, match.ResolvedBy, match.ResolvedEntityID, match.PolicyVersion, match.CreatedAt, match.UpdatedAt,
	)
	return ib
}

func (r *Repository) selectMatches(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.PendingMatch, error) {
	query, args := sb.Build()

	var matches []models.PendingMatch
	if err := r.db.Conn(ctx).SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending matches")
		return nil, database.TranslateError(err, "list pending matches")
	}
	return matches, nil
}
