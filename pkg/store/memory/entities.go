package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type entityRow struct {
	entity models.CanonicalEntity
}

type EntityRepository struct {
	store *Store
}

func (r *EntityRepository) Create(ctx context.Context, entity *models.CanonicalEntity) error {
	return r.store.write(ctx, func() error {
		if _, ok := r.store.entities[entity.ID]; ok {
			return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict, "entity %s already exists", entity.ID)
		}
		for _, row := range r.store.entities {
			if row.entity.Kind == entity.Kind && row.entity.Slug == entity.Slug {
				return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict, "%s slug %q is taken", entity.Kind, entity.Slug)
			}
		}
		if entity.CreatedAt.IsZero() {
			entity.CreatedAt = r.store.now()
		}
		r.store.entities[entity.ID] = entityRow{entity: *entity}
		return nil
	})
}

func (r *EntityRepository) Get(_ context.Context, id string) (*models.CanonicalEntity, error) {
	var (
		row entityRow
		ok  bool
	)
	r.store.read(func() { row, ok = r.store.entities[id] })
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
	}
	return &row.entity, nil
}

// GetMany returns the entities that exist, in the order of ids
func (r *EntityRepository) GetMany(_ context.Context, ids []string) ([]models.CanonicalEntity, error) {
	out := make([]models.CanonicalEntity, 0, len(ids))
	r.store.read(func() {
		for _, id := range ids {
			if row, ok := r.store.entities[id]; ok {
				out = append(out, row.entity)
			}
		}
	})
	return out, nil
}

func (r *EntityRepository) SlugExists(_ context.Context, kind models.EntityKind, slug string) (bool, error) {
	exists := false
	r.store.read(func() {
		for _, row := range r.store.entities {
			if row.entity.Kind == kind && row.entity.Slug == slug {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

// WidenActivePeriod extends the active years to cover [from, until]. An entity with no
// known period takes the range as is; an open-ended period stays open.
func (r *EntityRepository) WidenActivePeriod(ctx context.Context, id string, from, until int) error {
	return r.store.write(ctx, func() error {
		row, ok := r.store.entities[id]
		if !ok {
			return domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
		}
		e := row.entity
		switch {
		case e.ActiveFromYear == nil:
			e.ActiveUntilYear = utils.Ptr(until)
		case e.ActiveUntilYear != nil:
			e.ActiveUntilYear = utils.Ptr(max(*e.ActiveUntilYear, until))
		}
		if e.ActiveFromYear == nil {
			e.ActiveFromYear = utils.Ptr(from)
		} else {
			e.ActiveFromYear = utils.Ptr(min(*e.ActiveFromYear, from))
		}
		r.store.entities[id] = entityRow{entity: e}
		return nil
	})
}

// Delete removes an entity with its aliases. Pending matches keep their rows and lose the reference.
func (r *EntityRepository) Delete(ctx context.Context, id string) error {
	return r.store.write(ctx, func() error {
		if _, ok := r.store.entities[id]; !ok {
			return domainerrors.Newf(domainerrors.CodeNotFound, "canonical entity %s not found", id)
		}
		delete(r.store.entities, id)
		for aliasID, row := range r.store.aliases {
			if row.alias.CanonicalEntityID == id {
				delete(r.store.aliases, aliasID)
			}
		}
		for matchID, row := range r.store.matches {
			m := row.match
			changed := false
			if m.CandidateEntityID != nil && *m.CandidateEntityID == id {
				m.CandidateEntityID = nil
				changed = true
			}
			if m.ResolvedEntityID != nil && *m.ResolvedEntityID == id {
				m.ResolvedEntityID = nil
				changed = true
			}
			if changed {
				r.store.matches[matchID] = matchRow{match: m}
			}
		}
		return nil
	})
}

func (r *EntityRepository) ListByBlockingKey(_ context.Context, kind models.EntityKind, key string, limit int) ([]models.CanonicalEntity, error) {
	return r.list(kind, limit, func(e models.CanonicalEntity) bool {
		return e.BlockingKey == key || e.BlockingKey == ""
	}), nil
}

func (r *EntityRepository) ListByActiveYears(_ context.Context, kind models.EntityKind, from, until int, limit int) ([]models.CanonicalEntity, error) {
	return r.list(kind, limit, func(e models.CanonicalEntity) bool {
		return (e.ActiveUntilYear == nil || e.ActiveFromYear == nil || *e.ActiveFromYear <= until) &&
			(e.ActiveUntilYear == nil || *e.ActiveUntilYear >= from)
	}), nil
}

func (r *EntityRepository) ListRecentlyActive(_ context.Context, kind models.EntityKind, limit int) ([]models.CanonicalEntity, error) {
	return r.list(kind, limit, func(models.CanonicalEntity) bool { return true }), nil
}

// list orders entities most recently active first: open or unknown periods, then by last
// active year, then newest, then id.
func (r *EntityRepository) list(kind models.EntityKind, limit int, keep func(models.CanonicalEntity) bool) []models.CanonicalEntity {
	var out []models.CanonicalEntity
	r.store.read(func() {
		for _, row := range r.store.entities {
			if row.entity.Kind == kind && keep(row.entity) {
				out = append(out, row.entity)
			}
		}
	})

	slices.SortFunc(out, func(a, b models.CanonicalEntity) int {
		switch {
		case a.ActiveUntilYear == nil && b.ActiveUntilYear != nil:
			return -1
		case a.ActiveUntilYear != nil && b.ActiveUntilYear == nil:
			return 1
		case a.ActiveUntilYear != nil && *a.ActiveUntilYear != *b.ActiveUntilYear:
			return cmp.Compare(*b.ActiveUntilYear, *a.ActiveUntilYear)
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
