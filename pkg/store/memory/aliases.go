package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type aliasRow struct {
	alias models.Alias
}

type AliasRepository struct {
	store *Store
}

// Insert stores an alias. A window overlapping another claim of the same entity, slug and
// scope is rejected as a ConcurrentWriteConflict, mirroring the exclusion constraint.
func (r *AliasRepository) Insert(ctx context.Context, alias *models.Alias) error {
	return r.store.write(ctx, func() error {
		if _, ok := r.store.entities[alias.CanonicalEntityID]; !ok {
			return domainerrors.Newf(domainerrors.CodeValidation, "canonical entity %s does not exist", alias.CanonicalEntityID)
		}
		for _, row := range r.store.aliases {
			other := row.alias
			if other.CanonicalEntityID != alias.CanonicalEntityID || other.EntityKind != alias.EntityKind ||
				other.AliasSlug != alias.AliasSlug || other.Scope != alias.Scope {
				continue
			}
			if other.Window().Overlaps(alias.Window()) {
				return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict,
					"alias %q of entity %s overlaps alias %s", alias.AliasSlug, alias.CanonicalEntityID, other.ID)
			}
		}
		if alias.CreatedAt.IsZero() {
			alias.CreatedAt = r.store.now()
		}
		r.store.aliases[alias.ID] = aliasRow{alias: *alias}
		return nil
	})
}

func (r *AliasRepository) Get(_ context.Context, id string) (*models.Alias, error) {
	var (
		row aliasRow
		ok  bool
	)
	r.store.read(func() { row, ok = r.store.aliases[id] })
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "alias %s not found", id)
	}
	return &row.alias, nil
}

// CloseWindow ends an open window. An alias closed since it was read is a ConcurrentWriteConflict.
func (r *AliasRepository) CloseWindow(ctx context.Context, id string, until time.Time) error {
	return r.store.write(ctx, func() error {
		row, ok := r.store.aliases[id]
		if !ok {
			return domainerrors.Newf(domainerrors.CodeNotFound, "alias %s not found", id)
		}
		if row.alias.ValidUntil != nil {
			return domainerrors.Newf(domainerrors.CodeConcurrentWriteConflict, "alias %s was closed concurrently", id)
		}
		a := row.alias
		until = models.TruncateDay(until)
		a.ValidUntil = &until
		r.store.aliases[id] = aliasRow{alias: a}
		return nil
	})
}

func (r *AliasRepository) FindBySlug(_ context.Context, kind models.EntityKind, slug, scope string) ([]models.Alias, error) {
	return r.list(func(a models.Alias) bool {
		return a.EntityKind == kind && a.AliasSlug == slug && a.Scope == scope
	}), nil
}

func (r *AliasRepository) ListByEntity(_ context.Context, entityID string) ([]models.Alias, error) {
	return r.list(func(a models.Alias) bool { return a.CanonicalEntityID == entityID }), nil
}

func (r *AliasRepository) ListByEntities(_ context.Context, entityIDs []string) (map[string][]models.Alias, error) {
	out := make(map[string][]models.Alias, len(entityIDs))
	for _, a := range r.list(func(a models.Alias) bool { return slices.Contains(entityIDs, a.CanonicalEntityID) }) {
		out[a.CanonicalEntityID] = append(out[a.CanonicalEntityID], a)
	}
	return out, nil
}

// list orders aliases by window start, unbounded starts first, then creation time and id
func (r *AliasRepository) list(keep func(models.Alias) bool) []models.Alias {
	var out []models.Alias
	r.store.read(func() {
		for _, row := range r.store.aliases {
			if keep(row.alias) {
				out = append(out, row.alias)
			}
		}
	})

	slices.SortFunc(out, func(a, b models.Alias) int {
		switch {
		case a.ValidFrom == nil && b.ValidFrom != nil:
			return -1
		case a.ValidFrom != nil && b.ValidFrom == nil:
			return 1
		case a.ValidFrom != nil:
			if c := a.ValidFrom.Compare(*b.ValidFrom); c != 0 {
				return c
			}
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
