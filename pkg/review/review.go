// Package review is the human side of the resolution workflow: listing pending matches
// and applying a reviewer's decision to one.
package review

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EntityWriter creates and extends canonical entities on a reviewer's behalf.
// Both calls join the caller's unit of work.
type EntityWriter interface {
	Mint(ctx context.Context, record models.IncomingRecord) (*models.CanonicalEntity, *models.Alias, error)
	Attach(ctx context.Context, entityID string, record models.IncomingRecord) (*models.Alias, bool, error)
}

// Request is one reviewer decision
type Request struct {
	PendingMatchID      string            `json:"-" validate:"required"`
	Resolution          models.Resolution `json:"resolution" validate:"required,oneof=merged_with_candidate created_new marked_duplicate ignored"`
	Notes               string            `json:"notes,omitempty" validate:"max=2000"`
	OverrideCandidateID string            `json:"override_candidate_id,omitempty"`
	ResolvedBy          string            `json:"-" validate:"required"`
}

// Result is the completed match and the entity the record was assigned to, if any
type Result struct {
	PendingMatch *models.PendingMatch `json:"pending_match"`
	EntityID     string               `json:"entity_id,omitempty"`
	AliasID      string               `json:"alias_id,omitempty"`
}

type Service struct {
	pending   resolver.PendingRepository
	entities  resolver.EntityRepository
	writer    EntityWriter
	tx        resolver.Transactor
	observers events.Observers
	logger    ectologger.Logger
}

func NewService(
	pending resolver.PendingRepository,
	entities resolver.EntityRepository,
	writer EntityWriter,
	tx resolver.Transactor,
	logger ectologger.Logger,
	observers ...events.Observer,
) *Service {
	return &Service{
		pending:   pending,
		entities:  entities,
		writer:    writer,
		tx:        tx,
		observers: observers,
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context, filter models.PendingMatchFilter) (*models.PendingMatchPage, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.List")
	defer span.End()

	if filter.EntityType != nil && !filter.EntityType.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown entity type %q", *filter.EntityType)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown status %q", *filter.Status)
	}
	filter.Normalize()
	return s.pending.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (*models.PendingMatch, error) {
	return s.pending.Get(ctx, id)
}

// Resolve applies a reviewer decision. The entity writes and the status change commit
// together; a match that is no longer pending is a StaleResolution and nothing is written.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Resolve")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"pending_match_id": req.PendingMatchID,
		"resolution":       req.Resolution,
		"resolved_by":      req.ResolvedBy,
	})

	if !req.Resolution.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown resolution %q", req.Resolution)
	}
	if req.ResolvedBy == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "resolved_by is required")
	}

	result := &Result{}
	var evts []events.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		match, err := s.pending.Get(ctx, req.PendingMatchID)
		if err != nil {
			return err
		}
		if match.Status.Terminal() {
			return domainerrors.Newf(domainerrors.CodeStaleResolution, "pending match %s is already %s", match.ID, match.Status)
		}

		record, err := match.Record()
		if err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeValidation, "stored record is unreadable")
		}
		record.Source = models.SourceManualReview

		target, err := s.target(ctx, req, match)
		if err != nil {
			return err
		}

		switch req.Resolution {
		case models.ResolutionMergedWithCandidate, models.ResolutionMarkedDuplicate:
			alias, created, err := s.writer.Attach(ctx, target, record)
			if err != nil {
				return err
			}
			result.EntityID, result.AliasID = target, alias.ID
			if created {
				evts = append(evts, events.Event{Type: events.EventTypeAliasCreated, Alias: alias})
			}
		case models.ResolutionCreatedNew:
			entity, alias, err := s.writer.Mint(ctx, record)
			if err != nil {
				return err
			}
			result.EntityID, result.AliasID = entity.ID, alias.ID
			evts = append(evts,
				events.Event{Type: events.EventTypeEntityMinted, Entity: entity},
				events.Event{Type: events.EventTypeAliasCreated, Alias: alias},
			)
		}

		completed, err := s.pending.Complete(ctx, match.ID, models.PendingMatchCompletion{
			Status:           models.PendingMatchStatusResolved,
			Resolution:       req.Resolution,
			Notes:            req.Notes,
			ResolvedBy:       req.ResolvedBy,
			ResolvedEntityID: result.EntityID,
			ResolvedAt:       time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		result.PendingMatch = completed
		evts = append(evts, events.Event{Type: events.EventTypeMatchResolved, PendingMatch: completed})
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to resolve pending match")
		return nil, err
	}

	metrics.RecordReview(string(req.Resolution))
	s.observers.Notify(ctx, s.logger, evts...)

	log.WithField("entity_id", result.EntityID).Info("Resolved pending match")
	return result, nil
}

// target returns the entity the record is assigned to for merge and duplicate resolutions
func (s *Service) target(ctx context.Context, req Request, match *models.PendingMatch) (string, error) {
	suggested := ""
	if match.CandidateEntityID != nil {
		suggested = *match.CandidateEntityID
	}

	switch req.Resolution {
	case models.ResolutionMergedWithCandidate:
		if req.OverrideCandidateID != "" && req.OverrideCandidateID != suggested {
			return "", domainerrors.New(domainerrors.CodeValidation,
				"merged_with_candidate takes the suggested candidate; use marked_duplicate to pick another entity")
		}
		if suggested == "" {
			return "", domainerrors.Newf(domainerrors.CodeValidation, "pending match %s no longer has a candidate", match.ID)
		}
		return suggested, nil

	case models.ResolutionMarkedDuplicate:
		if req.OverrideCandidateID == "" {
			return "", domainerrors.New(domainerrors.CodeValidation, "marked_duplicate requires override_candidate_id")
		}
		if req.OverrideCandidateID == suggested {
			return "", domainerrors.New(domainerrors.CodeValidation,
				"override_candidate_id is the suggested candidate; use merged_with_candidate")
		}
		entity, err := s.entities.Get(ctx, req.OverrideCandidateID)
		if err != nil {
			if domainerrors.HasCode(err, domainerrors.CodeNotFound) {
				return "", domainerrors.Wrap(err, domainerrors.CodeValidation, "override candidate does not exist")
			}
			return "", err
		}
		if entity.Kind != match.EntityType {
			return "", domainerrors.Newf(domainerrors.CodeValidation,
				"override candidate is a %s, the record is a %s", entity.Kind, match.EntityType)
		}
		return entity.ID, nil
	}

	if req.OverrideCandidateID != "" {
		return "", domainerrors.Newf(domainerrors.CodeValidation, "%s does not take an override candidate", req.Resolution)
	}
	return "", nil
}
