package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type matchRow struct {
	match models.PendingMatch
}

type PendingMatchRepository struct {
	store *Store
}

func (r *PendingMatchRepository) GetPendingByKey(_ context.Context, key models.PendingMatchKey) (*models.PendingMatch, error) {
	var found *models.PendingMatch
	r.store.read(func() {
		if row, ok := r.findPending(key); ok {
			found = &row.match
		}
	})
	return found, nil
}

// findPending must be called with the store lock held
func (r *PendingMatchRepository) findPending(key models.PendingMatchKey) (matchRow, bool) {
	for _, row := range r.store.matches {
		if row.match.Status == models.PendingMatchStatusPending && row.match.Key() == key {
			return row, true
		}
	}
	return matchRow{}, false
}

// Upsert inserts match, or refreshes the pending row with the same key in place
func (r *PendingMatchRepository) Upsert(ctx context.Context, match *models.PendingMatch) (bool, error) {
	created := false
	err := r.store.write(ctx, func() error {
		now := r.store.now()
		match.UpdatedAt = now
		match.Status = models.PendingMatchStatusPending

		if existing, ok := r.findPending(match.Key()); ok {
			match.ID = existing.match.ID
			match.CreatedAt = existing.match.CreatedAt
			r.store.matches[match.ID] = matchRow{match: *match}
			return nil
		}

		if match.CreatedAt.IsZero() {
			match.CreatedAt = now
		}
		r.store.matches[match.ID] = matchRow{match: *match}
		created = true
		return nil
	})
	return created, err
}

func (r *PendingMatchRepository) InsertTerminal(ctx context.Context, match *models.PendingMatch) error {
	if !match.Status.Terminal() {
		return domainerrors.Newf(domainerrors.CodeValidation, "audit row must be terminal, got %q", match.Status)
	}
	return r.store.write(ctx, func() error {
		if _, ok := r.store.matches[match.ID]; ok {
			return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict, "pending match %s already exists", match.ID)
		}
		now := r.store.now()
		if match.CreatedAt.IsZero() {
			match.CreatedAt = now
		}
		match.UpdatedAt = now
		r.store.matches[match.ID] = matchRow{match: *match}
		return nil
	})
}

func (r *PendingMatchRepository) Complete(ctx context.Context, id string, completion models.PendingMatchCompletion) (*models.PendingMatch, error) {
	var completed models.PendingMatch
	err := r.store.write(ctx, func() error {
		row, ok := r.store.matches[id]
		if !ok {
			return domainerrors.Newf(domainerrors.CodeNotFound, "pending match %s not found", id)
		}
		if row.match.Status != models.PendingMatchStatusPending {
			return domainerrors.Newf(domainerrors.CodeStaleResolution, "pending match %s is already %s", id, row.match.Status)
		}
		completed = row.match
		if completion.ResolvedAt.IsZero() {
			completion.ResolvedAt = r.store.now()
		}
		completion.Apply(&completed)
		r.store.matches[id] = matchRow{match: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &completed, nil
}

func (r *PendingMatchRepository) Get(_ context.Context, id string) (*models.PendingMatch, error) {
	var (
		row matchRow
		ok  bool
	)
	r.store.read(func() { row, ok = r.store.matches[id] })
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "pending match %s not found", id)
	}
	return &row.match, nil
}

// List pages through matches. Score sort is highest first; created_at sort is newest first.
func (r *PendingMatchRepository) List(_ context.Context, filter models.PendingMatchFilter) (*models.PendingMatchPage, error) {
	filter.Normalize()

	var items []models.PendingMatch
	r.store.read(func() {
		for _, row := range r.store.matches {
			m := row.match
			if filter.EntityType != nil && m.EntityType != *filter.EntityType {
				continue
			}
			if filter.Status != nil && m.Status != *filter.Status {
				continue
			}
			items = append(items, m)
		}
	})

	slices.SortFunc(items, func(a, b models.PendingMatch) int {
		if filter.SortBy == models.PendingMatchSortScore {
			if c := cmp.Compare(b.MatchScore, a.MatchScore); c != 0 {
				return c
			}
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	page := &models.PendingMatchPage{Total: len(items), Page: filter.Page, PageSize: filter.PageSize, Items: []models.PendingMatch{}}
	if start := filter.Offset(); start < len(items) {
		end := min(start+filter.PageSize, len(items))
		page.Items = items[start:end]
	}
	return page, nil
}
