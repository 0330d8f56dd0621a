package review

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/suite"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/store/memory"
)

type ReviewSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	resolver *resolver.Resolver
	service  *Service
	aliases  *ledger.Service

	ayrton models.CanonicalEntity
	bruno  models.CanonicalEntity
	record models.IncomingRecord
}

func TestReviewSuite(t *testing.T) {
	suite.Run(t, new(ReviewSuite))
}

func (s *ReviewSuite) SetupTest() {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s.ctx = context.Background()
	s.store = memory.New()
	s.aliases = ledger.NewService(s.store.Aliases(), s.store, logger)
	generator := matching.NewGenerator(s.store.Entities(), s.aliases, logger, matching.DefaultBlockingConfig())
	s.resolver = resolver.New(s.store.Entities(), s.store.PendingMatches(), s.aliases, generator, s.store, logger)
	s.service = NewService(s.store.PendingMatches(), s.store.Entities(), s.resolver, s.store, logger)

	s.ayrton = s.seedDriver("d-ayrton", "Ayrton Senna", "ayrton-senna")
	s.bruno = s.seedDriver("d-bruno", "Bruno Senna", "bruno-senna")
	s.record = models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       "A. Senna",
		Era:        models.Era{StartYear: 1990},
		Source:     "wikipedia",
	}
}

func (s *ReviewSuite) seedDriver(id, name, slug string) models.CanonicalEntity {
	attrs := models.DriverAttributes{Nationality: "Brazilian"}
	entity := models.CanonicalEntity{ID: id, Kind: models.EntityKindDriver, Name: name, Slug: slug, Attributes: attrs, BlockingKey: matching.BlockingKey(attrs)}
	s.Require().NoError(s.store.Entities().Create(s.ctx, &entity))
	s.Require().NoError(s.aliases.Write(s.ctx, &models.Alias{CanonicalEntityID: id, EntityKind: models.EntityKindDriver, AliasName: name, Source: "seed"}))
	return entity
}

func (s *ReviewSuite) queue() *models.ResolveResult {
	result, err := s.resolver.Resolve(s.ctx, resolver.DefaultPolicy(), s.record)
	s.Require().NoError(err)
	s.Require().Equal(models.OutcomePending, result.Outcome)
	return result
}

func (s *ReviewSuite) TestMarkedDuplicateAssignsOverride() {
	pending := s.queue()

	result, err := s.service.Resolve(s.ctx, Request{
		PendingMatchID:      pending.PendingMatchID,
		Resolution:          models.ResolutionMarkedDuplicate,
		OverrideCandidateID: s.bruno.ID,
		Notes:               "initial belongs to Bruno",
		ResolvedBy:          "reviewer@example.com",
	})
	s.Require().NoError(err)
	s.Equal(s.bruno.ID, result.EntityID)

	match := result.PendingMatch
	s.Equal(models.PendingMatchStatusResolved, match.Status)
	s.Equal(models.ResolutionMarkedDuplicate, *match.Resolution)
	s.Equal(s.ayrton.ID, *match.CandidateEntityID)
	s.Equal(s.bruno.ID, *match.ResolvedEntityID)
	s.Equal("reviewer@example.com", *match.ResolvedBy)
	s.Equal("initial belongs to Bruno", *match.ResolutionNotes)
	s.NotNil(match.ResolvedAt)

	alias, err := s.store.Aliases().Get(s.ctx, result.AliasID)
	s.Require().NoError(err)
	s.Equal(s.bruno.ID, alias.CanonicalEntityID)
	s.Equal(models.SourceManualReview, alias.Source)

	again, err := s.resolver.Resolve(s.ctx, resolver.DefaultPolicy(), s.record)
	s.Require().NoError(err)
	s.Equal(models.OutcomeExactHit, again.Outcome)
	s.Equal(s.bruno.ID, again.EntityID)
}

func (s *ReviewSuite) TestMergedWithCandidate() {
	pending := s.queue()

	result, err := s.service.Resolve(s.ctx, Request{
		PendingMatchID: pending.PendingMatchID,
		Resolution:     models.ResolutionMergedWithCandidate,
		ResolvedBy:     "reviewer",
	})
	s.Require().NoError(err)
	s.Equal(s.ayrton.ID, result.EntityID)
	s.Equal(s.ayrton.ID, *result.PendingMatch.ResolvedEntityID)
}

func (s *ReviewSuite) TestCreatedNewMintsEntity() {
	pending := s.queue()

	result, err := s.service.Resolve(s.ctx, Request{
		PendingMatchID: pending.PendingMatchID,
		Resolution:     models.ResolutionCreatedNew,
		ResolvedBy:     "reviewer",
	})
	s.Require().NoError(err)
	s.NotEqual(s.ayrton.ID, result.EntityID)
	s.NotEqual(s.bruno.ID, result.EntityID)

	entity, err := s.store.Entities().Get(s.ctx, result.EntityID)
	s.Require().NoError(err)
	s.Equal("a-senna", entity.Slug)
	s.Equal("A. Senna", entity.Name)
}

func (s *ReviewSuite) TestIgnoredWritesNothing() {
	pending := s.queue()

	result, err := s.service.Resolve(s.ctx, Request{
		PendingMatchID: pending.PendingMatchID,
		Resolution:     models.ResolutionIgnored,
		ResolvedBy:     "reviewer",
	})
	s.Require().NoError(err)
	s.Empty(result.EntityID)
	s.Nil(result.PendingMatch.ResolvedEntityID)

	for _, id := range []string{s.ayrton.ID, s.bruno.ID} {
		aliases, err := s.store.Aliases().ListByEntity(s.ctx, id)
		s.Require().NoError(err)
		s.Len(aliases, 1)
	}
}

func (s *ReviewSuite) TestResolvingTwiceIsStale() {
	pending := s.queue()
	req := Request{PendingMatchID: pending.PendingMatchID, Resolution: models.ResolutionMergedWithCandidate, ResolvedBy: "reviewer"}

	_, err := s.service.Resolve(s.ctx, req)
	s.Require().NoError(err)

	req.Resolution = models.ResolutionCreatedNew
	_, err = s.service.Resolve(s.ctx, req)
	s.Require().Error(err)
	s.ErrorIs(err, domainerrors.ErrStaleResolution)

	drivers, err := s.store.Entities().ListRecentlyActive(s.ctx, models.EntityKindDriver, 0)
	s.Require().NoError(err)
	s.Len(drivers, 2)
}

func (s *ReviewSuite) TestOverrideValidation() {
	circuit := models.CanonicalEntity{ID: "c-monza", Kind: models.EntityKindCircuit, Name: "Monza", Slug: "monza"}
	s.Require().NoError(s.store.Entities().Create(s.ctx, &circuit))
	pending := s.queue()

	tests := []struct {
		name string
		req  Request
		code domainerrors.Code
	}{
		{
			name: "duplicate without override",
			req:  Request{Resolution: models.ResolutionMarkedDuplicate},
			code: domainerrors.CodeValidation,
		},
		{
			name: "duplicate of the suggestion",
			req:  Request{Resolution: models.ResolutionMarkedDuplicate, OverrideCandidateID: s.ayrton.ID},
			code: domainerrors.CodeValidation,
		},
		{
			name: "duplicate of unknown entity",
			req:  Request{Resolution: models.ResolutionMarkedDuplicate, OverrideCandidateID: "missing"},
			code: domainerrors.CodeValidation,
		},
		{
			name: "duplicate of another kind",
			req:  Request{Resolution: models.ResolutionMarkedDuplicate, OverrideCandidateID: circuit.ID},
			code: domainerrors.CodeValidation,
		},
		{
			name: "merge with a different entity",
			req:  Request{Resolution: models.ResolutionMergedWithCandidate, OverrideCandidateID: s.bruno.ID},
			code: domainerrors.CodeValidation,
		},
		{
			name: "created new with override",
			req:  Request{Resolution: models.ResolutionCreatedNew, OverrideCandidateID: s.bruno.ID},
			code: domainerrors.CodeValidation,
		},
		{
			name: "unknown resolution",
			req:  Request{Resolution: "merge"},
			code: domainerrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := tt.req
			req.PendingMatchID = pending.PendingMatchID
			req.ResolvedBy = "reviewer"
			_, err := s.service.Resolve(s.ctx, req)
			s.Require().Error(err)
			s.Equal(tt.code, domainerrors.CodeOf(err))
		})
	}

	match, err := s.service.Get(s.ctx, pending.PendingMatchID)
	s.Require().NoError(err)
	s.Equal(models.PendingMatchStatusPending, match.Status)
}

func (s *ReviewSuite) TestUnknownPendingMatch() {
	_, err := s.service.Resolve(s.ctx, Request{PendingMatchID: "missing", Resolution: models.ResolutionIgnored, ResolvedBy: "reviewer"})
	s.ErrorIs(err, domainerrors.ErrNotFound)
}

func (s *ReviewSuite) TestList() {
	s.queue()
	other := s.record
	other.Name = "B. Senna"
	_, err := s.resolver.Resolve(s.ctx, resolver.DefaultPolicy(), other)
	s.Require().NoError(err)

	pending := models.PendingMatchStatusPending
	page, err := s.service.List(s.ctx, models.PendingMatchFilter{Status: &pending, PageSize: 1})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Len(page.Items, 1)
	s.Equal(1, page.Page)

	kind := models.EntityKindTeam
	page, err = s.service.List(s.ctx, models.PendingMatchFilter{EntityType: &kind})
	s.Require().NoError(err)
	s.Zero(page.Total)

	bogus := models.PendingMatchStatus("open")
	_, err = s.service.List(s.ctx, models.PendingMatchFilter{Status: &bogus})
	s.True(domainerrors.HasCode(err, domainerrors.CodeValidation))
}
