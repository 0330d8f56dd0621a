// Package ledger is the temporal alias store: the exact-match fast path and the
// only writer of alias rows.
package ledger

import (
	"context"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AliasRepository persists alias rows. Implementations must reject an insert that
// overlaps an existing window of the same (entity, slug, scope) even under concurrency,
// reporting the collision as ConcurrentWriteConflict.
type AliasRepository interface {
	Insert(ctx context.Context, alias *models.Alias) error
	Get(ctx context.Context, id string) (*models.Alias, error)
	// CloseWindow sets valid_until on an alias that is still open-ended
	CloseWindow(ctx context.Context, id string, until time.Time) error
	// FindBySlug returns every claim of a slug within kind and scope, across entities
	FindBySlug(ctx context.Context, kind models.EntityKind, slug, scope string) ([]models.Alias, error)
	ListByEntity(ctx context.Context, entityID string) ([]models.Alias, error)
	ListByEntities(ctx context.Context, entityIDs []string) (map[string][]models.Alias, error)
}

// Transactor runs fn in one atomic unit of work
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   AliasRepository
	tx     Transactor
	logger ectologger.Logger
}

func NewService(repo AliasRepository, tx Transactor, logger ectologger.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger}
}

// LookupClaims returns the aliases of slug whose window contains at. A nil at matches
// the current claims: open-ended windows, or the latest-ending window of an entity
// that has no open one.
func (s *Service) LookupClaims(ctx context.Context, kind models.EntityKind, slug, scope string, at *time.Time) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.LookupClaims")
	defer span.End()

	aliases, err := s.repo.FindBySlug(ctx, kind, slug, scope)
	if err != nil {
		return nil, err
	}
	if at != nil {
		return slices.DeleteFunc(aliases, func(a models.Alias) bool { return !a.Window().Contains(at) }), nil
	}

	current := make(map[string]models.Alias)
	order := make([]string, 0)
	for _, a := range aliases {
		prev, seen := current[a.CanonicalEntityID]
		if !seen {
			order = append(order, a.CanonicalEntityID)
			current[a.CanonicalEntityID] = a
			continue
		}
		if laterEnding(a, prev) {
			current[a.CanonicalEntityID] = a
		}
	}

	claims := make([]models.Alias, 0, len(order))
	for _, id := range order {
		claims = append(claims, current[id])
	}
	return claims, nil
}

// LookupExact returns the single alias matching slug, scope and date, or nil when there
// is no claim or more than one entity claims it.
func (s *Service) LookupExact(ctx context.Context, kind models.EntityKind, slug, scope string, at *time.Time) (*models.Alias, error) {
	claims, err := s.LookupClaims(ctx, kind, slug, scope, at)
	if err != nil {
		return nil, err
	}
	if len(claims) != 1 {
		return nil, nil
	}
	return &claims[0], nil
}

// Write inserts an alias after deriving its slug and checking the no-overlap invariant.
// An overlapping window is a ValidationError; losing a race to a concurrent writer
// surfaces from the repository as ConcurrentWriteConflict.
func (s *Service) Write(ctx context.Context, alias *models.Alias) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.Write")
	defer span.End()

	if err := s.prepare(alias); err != nil {
		return err
	}

	existing, err := s.repo.FindBySlug(ctx, alias.EntityKind, alias.AliasSlug, alias.Scope)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.CanonicalEntityID != alias.CanonicalEntityID {
			continue
		}
		if other.Window().Overlaps(alias.Window()) {
			return domainerrors.Newf(domainerrors.CodeValidation,
				"alias %q overlaps existing alias %s of entity %s", alias.AliasSlug, other.ID, other.CanonicalEntityID)
		}
	}

	if err := s.repo.Insert(ctx, alias); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"alias_id":  alias.ID,
		"entity_id": alias.CanonicalEntityID,
		"slug":      alias.AliasSlug,
		"source":    alias.Source,
	}).Debug("Wrote alias")
	return nil
}

// Attach binds name to entity for the given era, inferring the window: it starts at the
// era and runs until the day before the entity's next claim of the same slug. When an
// existing claim of the entity already covers the era, that claim is returned and
// nothing is written.
func (s *Service) Attach(ctx context.Context, entityID string, kind models.EntityKind, name, scope string, era models.Era, source string) (alias *models.Alias, created bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.Attach")
	defer span.End()

	slug := normalizers.Slug(name)
	if slug == "" {
		return nil, false, domainerrors.Newf(domainerrors.CodeInvalidRecord, "alias name %q has no comparable characters", name)
	}

	claims, err := s.repo.FindBySlug(ctx, kind, slug, scope)
	if err != nil {
		return nil, false, err
	}
	own := slices.DeleteFunc(claims, func(a models.Alias) bool { return a.CanonicalEntityID != entityID })

	from := era.EffectiveDate()
	if covering := coveringClaim(own, from); covering != nil {
		return covering, false, nil
	}

	alias = &models.Alias{
		CanonicalEntityID: entityID,
		EntityKind:        kind,
		AliasName:         name,
		Scope:             scope,
		ValidFrom:         from,
		Source:            source,
	}
	if next := nextClaimStart(own, from); next != nil {
		until := models.DayBefore(*next)
		alias.ValidUntil = &until
	}

	if err := s.Write(ctx, alias); err != nil {
		return nil, false, err
	}
	return alias, true, nil
}

// Supersede closes the open window of prior the day before next begins and writes next,
// as one atomic unit.
func (s *Service) Supersede(ctx context.Context, priorID string, next *models.Alias) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Service.Supersede")
	defer span.End()

	if next.ValidFrom == nil {
		return nil, domainerrors.New(domainerrors.CodeValidation, "successor alias needs valid_from")
	}

	var prior *models.Alias
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		prior, err = s.repo.Get(ctx, priorID)
		if err != nil {
			return err
		}
		if !prior.IsOpenEnded() {
			return domainerrors.Newf(domainerrors.CodeValidation, "alias %s is already closed", priorID)
		}

		until := models.DayBefore(*next.ValidFrom)
		if prior.ValidFrom != nil && until.Before(models.TruncateDay(*prior.ValidFrom)) {
			return domainerrors.Newf(domainerrors.CodeValidation,
				"successor starts %s, before alias %s begins", next.ValidFrom.Format(time.DateOnly), priorID)
		}
		if err := s.repo.CloseWindow(ctx, prior.ID, until); err != nil {
			return err
		}
		prior.ValidUntil = &until

		if next.CanonicalEntityID == "" {
			next.CanonicalEntityID = prior.CanonicalEntityID
		}
		if next.EntityKind == "" {
			next.EntityKind = prior.EntityKind
		}
		if next.Scope == "" {
			next.Scope = prior.Scope
		}
		return s.Write(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"prior_alias_id": prior.ID,
		"alias_id":       next.ID,
	}).Info("Superseded alias")
	return prior, nil
}

func (s *Service) ListByEntity(ctx context.Context, entityID string) ([]models.Alias, error) {
	return s.repo.ListByEntity(ctx, entityID)
}

func (s *Service) ListByEntities(ctx context.Context, entityIDs []string) (map[string][]models.Alias, error) {
	return s.repo.ListByEntities(ctx, entityIDs)
}

func (s *Service) prepare(alias *models.Alias) error {
	if alias.CanonicalEntityID == "" {
		return domainerrors.New(domainerrors.CodeValidation, "alias must reference a canonical entity")
	}
	if !alias.EntityKind.Valid() {
		return domainerrors.Newf(domainerrors.CodeValidation, "alias has unknown entity kind %q", alias.EntityKind)
	}
	if alias.Source == "" {
		return domainerrors.New(domainerrors.CodeValidation, "alias must carry a source")
	}

	alias.AliasSlug = normalizers.Slug(alias.AliasName)
	if alias.AliasSlug == "" {
		return domainerrors.Newf(domainerrors.CodeInvalidRecord, "alias name %q has no comparable characters", alias.AliasName)
	}
	if alias.ValidFrom != nil {
		from := models.TruncateDay(*alias.ValidFrom)
		alias.ValidFrom = &from
	}
	if alias.ValidUntil != nil {
		until := models.TruncateDay(*alias.ValidUntil)
		alias.ValidUntil = &until
	}
	if err := alias.Window().Validate(); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid alias window")
	}

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}
	return nil
}

func coveringClaim(claims []models.Alias, at *time.Time) *models.Alias {
	if at == nil {
		if len(claims) == 0 {
			return nil
		}
		latest := claims[0]
		for _, c := range claims[1:] {
			if laterEnding(c, latest) {
				latest = c
			}
		}
		return &latest
	}
	for i := range claims {
		if claims[i].Window().Contains(at) {
			return &claims[i]
		}
	}
	return nil
}

// nextClaimStart is the earliest start among claims beginning after from
func nextClaimStart(claims []models.Alias, from *time.Time) *time.Time {
	var next *time.Time
	for _, c := range claims {
		if c.ValidFrom == nil {
			continue
		}
		if from != nil && !c.ValidFrom.After(*from) {
			continue
		}
		if next == nil || c.ValidFrom.Before(*next) {
			next = c.ValidFrom
		}
	}
	return next
}

// laterEnding orders open windows after closed ones, then by end date, then by start date
func laterEnding(a, b models.Alias) bool {
	switch {
	case a.ValidUntil == nil && b.ValidUntil != nil:
		return true
	case a.ValidUntil != nil && b.ValidUntil == nil:
		return false
	case a.ValidUntil != nil && !a.ValidUntil.Equal(*b.ValidUntil):
		return a.ValidUntil.After(*b.ValidUntil)
	}
	if a.ValidFrom == nil || b.ValidFrom == nil {
		return b.ValidFrom == nil && a.ValidFrom != nil
	}
	return a.ValidFrom.After(*b.ValidFrom)
}
