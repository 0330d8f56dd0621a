// Package resolver decides, for each incoming record, whether it names an existing
// canonical entity, a new one, or needs a reviewer.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// maxSlugSuffix bounds the search for a free slug among homonyms
const maxSlugSuffix = 1000

type Resolver struct {
	entities  EntityRepository
	pending   PendingRepository
	aliases   *ledger.Service
	generator *matching.Generator
	scorer    *matching.Scorer
	tx        Transactor
	observers events.Observers
	logger    ectologger.Logger
}

func New(
	entities EntityRepository,
	pending PendingRepository,
	aliases *ledger.Service,
	generator *matching.Generator,
	tx Transactor,
	logger ectologger.Logger,
	observers ...events.Observer,
) *Resolver {
	return &Resolver{
		entities:  entities,
		pending:   pending,
		aliases:   aliases,
		generator: generator,
		scorer:    matching.NewScorer(),
		tx:        tx,
		observers: observers,
		logger:    logger,
	}
}

// resolution is the outcome of one attempt plus the events to publish once it commits
type resolution struct {
	result *models.ResolveResult
	events []events.Event
}

// Resolve resolves one record under policy. A concurrent write conflict is retried once
// from the exact-match lookup; a second conflict is reported as a ValidationError.
func (r *Resolver) Resolve(ctx context.Context, policy Policy, record models.IncomingRecord) (*models.ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	start := time.Now()
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":    record.EntityType,
		"source":         record.Source,
		"policy_version": policy.Version,
	})

	if err := policy.Validate(); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid policy")
	}

	normalized, err := r.Validate(record)
	if err != nil {
		metrics.RecordResolutionError(string(domainerrors.CodeOf(err)))
		return nil, err
	}

	res, err := r.resolveOnce(ctx, policy, record, normalized)
	if domainerrors.HasCode(err, domainerrors.CodeConcurrentWriteConflict) {
		metrics.ConflictRetries.Inc()
		log.WithError(err).Warn("Concurrent write conflict, retrying resolution")
		res, err = r.resolveOnce(ctx, policy, record, normalized)
		if domainerrors.HasCode(err, domainerrors.CodeConcurrentWriteConflict) {
			err = domainerrors.Wrap(err, domainerrors.CodeValidation, "resolution conflicted with a concurrent write twice")
		}
	}
	if err != nil {
		metrics.RecordResolutionError(string(domainerrors.CodeOf(err)))
		log.WithError(err).Error("Failed to resolve record")
		return nil, err
	}

	r.observers.Notify(ctx, r.logger, res.events...)
	metrics.RecordResolution(string(record.EntityType), string(res.result.Outcome), time.Since(start).Seconds())

	log.WithFields(map[string]any{
		"outcome":          res.result.Outcome,
		"entity_id":        res.result.EntityID,
		"pending_match_id": res.result.PendingMatchID,
		"score":            res.result.Score,
	}).Debug("Resolved record")

	return res.result, nil
}

// Validate checks a record's shape and returns its normalized name. Every failure is an InvalidRecord.
func (r *Resolver) Validate(record models.IncomingRecord) (normalizers.NormalizedRecord, error) {
	if _, err := utils.Validate(record); err != nil {
		return normalizers.NormalizedRecord{}, domainerrors.Wrap(err, domainerrors.CodeInvalidRecord, "invalid record")
	}
	if err := record.Era.Validate(); err != nil {
		return normalizers.NormalizedRecord{}, domainerrors.Wrap(err, domainerrors.CodeInvalidRecord, "invalid record era")
	}
	if record.Attributes != nil && record.Attributes.Kind() != record.EntityType {
		return normalizers.NormalizedRecord{}, domainerrors.Newf(domainerrors.CodeInvalidRecord,
			"%s attributes given for a %s record", record.Attributes.Kind(), record.EntityType)
	}
	return normalizers.Normalize(record.Name, record.EntityType)
}

// resolveOnce is one attempt. Two concurrent mints of the same name collide on its slug,
// and the retry finds the winner's alias.
func (r *Resolver) resolveOnce(ctx context.Context, policy Policy, record models.IncomingRecord, normalized normalizers.NormalizedRecord) (*resolution, error) {
	hit, claimants, err := r.exactMatch(ctx, record, normalized)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return r.applyExactHit(ctx, policy, record, hit)
	}

	candidates, err := r.generator.Generate(ctx, record)
	if err != nil {
		return nil, err
	}
	candidates, err = r.withClaimants(ctx, candidates, claimants)
	if err != nil {
		return nil, err
	}
	metrics.RecordCandidates(string(record.EntityType), len(candidates))

	scored := r.scorer.ScoreAll(policy.Weights, record, normalized, candidates)
	decision := policy.Decide(scored)
	switch decision.Action {
	case ActionAccept:
		return r.applyAccept(ctx, policy, record, normalized, decision)
	case ActionReview:
		return r.applyReview(ctx, policy, record, normalized, decision)
	default:
		return r.applyMint(ctx, policy, record, normalized, decision)
	}
}

type exactHit struct {
	entity models.CanonicalEntity
	alias  models.Alias
}

// exactMatch looks the slug up in the alias ledger at the record's era. Claimants whose
// hard identifiers contradict the record are discarded; exactly one survivor is a hit.
// Several survivors are returned so they can be scored. When nobody holds the name at the
// era, its holders from other eras are returned as claimants, never as a hit.
func (r *Resolver) exactMatch(ctx context.Context, record models.IncomingRecord, normalized normalizers.NormalizedRecord) (hit *exactHit, claimants []models.CanonicalEntity, err error) {
	at := record.Era.EffectiveDate()
	claims, err := r.aliases.LookupClaims(ctx, record.EntityType, normalized.Slug, record.Scope, at)
	if err != nil {
		return nil, nil, err
	}
	inEra := len(claims) > 0
	if !inEra && at != nil {
		if claims, err = r.aliases.LookupClaims(ctx, record.EntityType, normalized.Slug, record.Scope, nil); err != nil {
			return nil, nil, err
		}
	}
	if len(claims) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		if !slices.Contains(ids, c.CanonicalEntityID) {
			ids = append(ids, c.CanonicalEntityID)
		}
	}
	entities, err := r.entities.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	attrs := record.AttributesOrEmpty()
	plausible := make([]models.CanonicalEntity, 0, len(entities))
	for _, e := range entities {
		if reason, conflict := matching.IdentityConflict(attrs, e.Attributes); conflict {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"entity_id": e.ID,
				"reason":    reason,
			}).Debug("Alias claimant rejected by identity guard")
			continue
		}
		plausible = append(plausible, e)
	}

	if !inEra || len(plausible) != 1 {
		return nil, plausible, nil
	}
	for _, c := range claims {
		if c.CanonicalEntityID == plausible[0].ID {
			return &exactHit{entity: plausible[0], alias: c}, nil, nil
		}
	}
	return nil, plausible, nil
}

// withClaimants adds alias claimants that blocking did not surface
func (r *Resolver) withClaimants(ctx context.Context, candidates []matching.Candidate, claimants []models.CanonicalEntity) ([]matching.Candidate, error) {
	missing := make([]models.CanonicalEntity, 0, len(claimants))
	for _, e := range claimants {
		if !slices.ContainsFunc(candidates, func(c matching.Candidate) bool { return c.Entity.ID == e.ID }) {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return candidates, nil
	}

	ids := make([]string, len(missing))
	for i, e := range missing {
		ids[i] = e.ID
	}
	aliases, err := r.aliases.ListByEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range missing {
		candidates = append(candidates, matching.Candidate{Entity: e, Aliases: aliases[e.ID]})
	}
	return candidates, nil
}

func (r *Resolver) applyExactHit(ctx context.Context, policy Policy, record models.IncomingRecord, hit *exactHit) (*resolution, error) {
	res := &resolution{result: &models.ResolveResult{
		Outcome:       models.OutcomeExactHit,
		EntityID:      hit.entity.ID,
		AliasID:       hit.alias.ID,
		Score:         1,
		PolicyVersion: policy.Version,
	}}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		completed, err := r.completeOpen(ctx, policy, record, models.ResolutionMergedWithCandidate, hit.entity.ID, "exact alias match")
		if err != nil || completed == nil {
			return err
		}
		res.result.PendingMatchID = completed.ID
		res.events = append(res.events, events.Event{Type: events.EventTypeMatchResolved, PendingMatch: completed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) applyMint(ctx context.Context, policy Policy, record models.IncomingRecord, normalized normalizers.NormalizedRecord, decision Decision) (*resolution, error) {
	res := &resolution{result: &models.ResolveResult{
		Outcome:       models.OutcomeCreatedNew,
		PolicyVersion: policy.Version,
	}}
	if decision.Best != nil {
		res.result.Score = decision.Best.Score
		res.result.Signals = decision.Best.Signals
	}

	status := models.PendingMatchStatusAutoResolved
	if decision.Reason == ReasonBelowLow {
		status = models.PendingMatchStatusRejected
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		entity, alias, err := r.mint(ctx, record, normalized)
		if err != nil {
			return err
		}
		res.result.EntityID = entity.ID
		res.result.AliasID = alias.ID
		res.events = append(res.events,
			events.Event{Type: events.EventTypeEntityMinted, Entity: entity},
			events.Event{Type: events.EventTypeAliasCreated, Alias: alias},
		)

		audit, completed, err := r.audit(ctx, policy, record, normalized, decision, status, models.ResolutionCreatedNew, entity.ID)
		if err != nil {
			return err
		}
		res.result.PendingMatchID = audit.ID
		if completed {
			res.events = append(res.events, events.Event{Type: events.EventTypeMatchResolved, PendingMatch: audit})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) applyAccept(ctx context.Context, policy Policy, record models.IncomingRecord, normalized normalizers.NormalizedRecord, decision Decision) (*resolution, error) {
	best := decision.Best
	res := &resolution{result: &models.ResolveResult{
		Outcome:       models.OutcomeAutoAccepted,
		EntityID:      best.Candidate.Entity.ID,
		Score:         best.Score,
		Signals:       best.Signals,
		PolicyVersion: policy.Version,
	}}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		alias, created, err := r.Attach(ctx, best.Candidate.Entity.ID, record)
		if err != nil {
			return err
		}
		res.result.AliasID = alias.ID
		if created {
			res.events = append(res.events, events.Event{Type: events.EventTypeAliasCreated, Alias: alias})
		}

		audit, completed, err := r.audit(ctx, policy, record, normalized, decision,
			models.PendingMatchStatusAutoResolved, models.ResolutionMergedWithCandidate, best.Candidate.Entity.ID)
		if err != nil {
			return err
		}
		res.result.PendingMatchID = audit.ID
		if completed {
			res.events = append(res.events, events.Event{Type: events.EventTypeMatchResolved, PendingMatch: audit})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) applyReview(ctx context.Context, policy Policy, record models.IncomingRecord, normalized normalizers.NormalizedRecord, decision Decision) (*resolution, error) {
	match, err := r.newMatch(policy, record, normalized, decision)
	if err != nil {
		return nil, err
	}
	match.Status = models.PendingMatchStatusPending
	match.Signals = decision.ReviewSignals()

	created, err := r.pending.Upsert(ctx, match)
	if err != nil {
		return nil, err
	}

	res := &resolution{result: &models.ResolveResult{
		Outcome:        models.OutcomePending,
		PendingMatchID: match.ID,
		Score:          decision.Best.Score,
		Signals:        match.Signals,
		PolicyVersion:  policy.Version,
	}}
	if created {
		res.events = append(res.events, events.Event{Type: events.EventTypeMatchPending, PendingMatch: match})
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"pending_match_id": match.ID,
		"candidate_id":     decision.Best.Candidate.Entity.ID,
		"score":            decision.Best.Score,
		"reason":           decision.Reason,
		"created":          created,
	}).Info("Record queued for review")
	return res, nil
}

// audit completes the open pending match for the record when there is one, and
// otherwise inserts an already-terminal row recording the decision.
func (r *Resolver) audit(
	ctx context.Context,
	policy Policy,
	record models.IncomingRecord,
	normalized normalizers.NormalizedRecord,
	decision Decision,
	status models.PendingMatchStatus,
	resolution models.Resolution,
	entityID string,
) (*models.PendingMatch, bool, error) {
	completed, err := r.completeOpen(ctx, policy, record, resolution, entityID, string(decision.Reason))
	if err != nil {
		return nil, false, err
	}
	if completed != nil {
		return completed, true, nil
	}

	match, err := r.newMatch(policy, record, normalized, decision)
	if err != nil {
		return nil, false, err
	}
	models.PendingMatchCompletion{
		Status:           status,
		Resolution:       resolution,
		Notes:            string(decision.Reason),
		ResolvedBy:       policy.ResolvedBy(),
		ResolvedEntityID: entityID,
		ResolvedAt:       time.Now().UTC(),
	}.Apply(match)

	if err := r.pending.InsertTerminal(ctx, match); err != nil {
		return nil, false, err
	}
	return match, false, nil
}

// completeOpen closes the record's open pending match, if any, as decided by the policy
func (r *Resolver) completeOpen(ctx context.Context, policy Policy, record models.IncomingRecord, resolution models.Resolution, entityID, notes string) (*models.PendingMatch, error) {
	open, err := r.pending.GetPendingByKey(ctx, record.PendingKey())
	if err != nil || open == nil {
		return nil, err
	}
	completed, err := r.pending.Complete(ctx, open.ID, models.PendingMatchCompletion{
		Status:           models.PendingMatchStatusAutoResolved,
		Resolution:       resolution,
		Notes:            notes,
		ResolvedBy:       policy.ResolvedBy(),
		ResolvedEntityID: entityID,
		ResolvedAt:       time.Now().UTC(),
	})
	if domainerrors.HasCode(err, domainerrors.CodeStaleResolution) {
		// closed by a concurrent resolution or reviewer since it was read
		return nil, domainerrors.Wrap(err, domainerrors.CodeConcurrentWriteConflict, "pending match changed concurrently")
	}
	return completed, err
}

func (r *Resolver) newMatch(policy Policy, record models.IncomingRecord, normalized normalizers.NormalizedRecord, decision Decision) (*models.PendingMatch, error) {
	data, err := models.EncodeAttributes(record.Attributes)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidRecord, "encode record attributes")
	}

	now := time.Now().UTC()
	match := &models.PendingMatch{
		ID:            uuid.New().String(),
		EntityType:    record.EntityType,
		IncomingName:  record.Name,
		IncomingSlug:  normalized.Slug,
		IncomingData:  data,
		Scope:         record.Scope,
		Source:        record.Source,
		PolicyVersion: policy.Version,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if record.Era.StartYear != 0 {
		match.EraStartYear = utils.Ptr(record.Era.StartYear)
	}
	if record.Era.EndYear != 0 {
		match.EraEndYear = utils.Ptr(record.Era.EndYear)
	}
	if decision.Best != nil {
		match.CandidateEntityID = utils.Ptr(decision.Best.Candidate.Entity.ID)
		match.CandidateEntityName = utils.Ptr(decision.Best.Candidate.Entity.Name)
		match.MatchScore = decision.Best.Score
		match.Signals = decision.Best.Signals
	}
	return match, nil
}

// Mint creates a canonical entity for record together with its first alias. Homonyms of
// an existing entity get a numbered slug. It joins the caller's unit of work.
func (r *Resolver) Mint(ctx context.Context, record models.IncomingRecord) (*models.CanonicalEntity, *models.Alias, error) {
	normalized, err := r.Validate(record)
	if err != nil {
		return nil, nil, err
	}
	return r.mint(ctx, record, normalized)
}

func (r *Resolver) mint(ctx context.Context, record models.IncomingRecord, normalized normalizers.NormalizedRecord) (*models.CanonicalEntity, *models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.mint")
	defer span.End()

	slug, err := r.allocateSlug(ctx, record.EntityType, normalized.Slug)
	if err != nil {
		return nil, nil, err
	}

	attrs := record.AttributesOrEmpty()
	entity := &models.CanonicalEntity{
		ID:          uuid.New().String(),
		Kind:        record.EntityType,
		Name:        strings.TrimSpace(record.Name),
		Slug:        slug,
		Attributes:  attrs,
		BlockingKey: matching.BlockingKey(attrs),
		CreatedAt:   time.Now().UTC(),
	}
	if record.Era.Known() {
		entity.ActiveFromYear = utils.Ptr(record.Era.StartYear)
		if record.Era.EndYear != 0 {
			entity.ActiveUntilYear = utils.Ptr(record.Era.EndYear)
		}
	}

	if err := r.entities.Create(ctx, entity); err != nil {
		return nil, nil, err
	}

	alias, _, err := r.aliases.Attach(ctx, entity.ID, entity.Kind, entity.Name, record.Scope, record.Era, record.Source)
	if err != nil {
		return nil, nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":   entity.ID,
		"entity_type": entity.Kind,
		"slug":        entity.Slug,
	}).Info("Minted canonical entity")
	return entity, alias, nil
}

// Attach binds record's name to an existing entity for the record's era and widens the
// entity's active period to cover it. It joins the caller's unit of work.
func (r *Resolver) Attach(ctx context.Context, entityID string, record models.IncomingRecord) (*models.Alias, bool, error) {
	entity, err := r.entities.Get(ctx, entityID)
	if err != nil {
		return nil, false, err
	}
	if entity.Kind != record.EntityType {
		return nil, false, domainerrors.Newf(domainerrors.CodeValidation,
			"cannot attach a %s record to %s entity %s", record.EntityType, entity.Kind, entity.ID)
	}

	alias, created, err := r.aliases.Attach(ctx, entity.ID, entity.Kind, strings.TrimSpace(record.Name), record.Scope, record.Era, record.Source)
	if err != nil {
		return nil, false, err
	}

	if record.Era.Known() {
		from, until := record.Era.Bounds()
		if err := r.entities.WidenActivePeriod(ctx, entity.ID, from, until); err != nil {
			return nil, false, err
		}
	}
	return alias, created, nil
}

func (r *Resolver) allocateSlug(ctx context.Context, kind models.EntityKind, base string) (string, error) {
	slug := base
	for n := 2; n <= maxSlugSuffix; n++ {
		taken, err := r.entities.SlugExists(ctx, kind, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	return "", domainerrors.Newf(domainerrors.CodeValidation, "no free slug for %s %q", kind, base)
}
