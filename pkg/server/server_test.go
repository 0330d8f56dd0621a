package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/routes/alias"
	"github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/pendingmatch"
	"github.com/Ramsey-B/fern/pkg/routes/resolve"
	"github.com/Ramsey-B/fern/pkg/service"
	"github.com/Ramsey-B/fern/pkg/store/memory"
)

type APISuite struct {
	suite.Suite
	ctx     context.Context
	core    *service.Core
	checker *health.Checker
	e       *echo.Echo
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s.ctx = context.Background()
	s.core = service.NewCore(service.MemoryStores(memory.New()), service.Options{BatchConcurrency: 2}, logger)
	s.checker = health.NewChecker("test")

	s.e = NewEcho("fern", nil, nil, Handlers{
		Health:       s.checker,
		Resolve:      resolve.NewHandler(s.core.Resolver, s.core.Runner, resolver.DefaultPolicy()),
		PendingMatch: pendingmatch.NewHandler(s.core.Review),
		Alias:        alias.NewHandler(s.core.Resolver),
		Entity:       entity.NewHandler(s.core.Resolver),
		Graph:        graph.NewHandler(nil),
	}, logger)
}

func (s *APISuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *APISuite, rec *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *APISuite) seedDriver(name string) *models.CanonicalEntity {
	entity, _, err := s.core.Resolver.Mint(s.ctx, models.IncomingRecord{
		EntityType: models.EntityKindDriver,
		Name:       name,
		Attributes: models.DriverAttributes{Nationality: "Brazilian"},
		Source:     "seed",
	})
	s.Require().NoError(err)
	return entity
}

func (s *APISuite) TestResolveCreatesThenHits() {
	record := map[string]any{
		"entity_type": "driver",
		"name":        "Max Verstappen",
		"era":         map[string]any{"start_year": 2015},
		"attributes":  map[string]any{"nationality": "Dutch"},
		"source":      "ergast",
	}

	rec := s.do(http.MethodPost, "/api/v1/resolve", record)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ResolveResult](s, rec)
	s.Equal(models.OutcomeCreatedNew, created.Outcome)
	s.NotEmpty(rec.Header().Get(echo.HeaderXRequestID))

	rec = s.do(http.MethodPost, "/api/v1/resolve", record)
	s.Require().Equal(http.StatusOK, rec.Code)
	hit := decode[models.ResolveResult](s, rec)
	s.Equal(models.OutcomeExactHit, hit.Outcome)
	s.Equal(created.EntityID, hit.EntityID)
}

func (s *APISuite) TestResolveRejectsInvalidRecord() {
	rec := s.do(http.MethodPost, "/api/v1/resolve", map[string]any{"entity_type": "driver", "name": "", "source": "ergast"})
	s.Equal(http.StatusBadRequest, rec.Code)
	resp := decode[middleware.ErrorResponse](s, rec)
	s.Equal("invalid_record", resp.Code)
	s.NotEmpty(resp.RequestID)
}

func (s *APISuite) TestResolveBatch() {
	rec := s.do(http.MethodPost, "/api/v1/resolve/batch", map[string]any{"records": []map[string]any{
		{"entity_type": "circuit", "name": "Circuit de Spa-Francorchamps", "source": "ergast"},
		{"entity_type": "circuit", "name": "", "source": "ergast"},
		{"entity_type": "circuit", "name": "Circuit de Spa-Francorchamps", "source": "ergast"},
	}})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Outcomes []struct {
			Status      string `json:"status"`
			DuplicateOf int    `json:"duplicate_of"`
		} `json:"outcomes"`
		Failed int `json:"failed"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &report))
	s.Require().Len(report.Outcomes, 3)
	s.Equal("resolved", report.Outcomes[0].Status)
	s.Equal("failed", report.Outcomes[1].Status)
	s.Equal(0, report.Outcomes[2].DuplicateOf)
	s.Equal(1, report.Failed)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/resolve/batch", map[string]any{"records": []any{}}).Code)
}

func (s *APISuite) TestReviewFlow() {
	s.seedDriver("Ayrton Senna")
	bruno := s.seedDriver("Bruno Senna")

	rec := s.do(http.MethodPost, "/api/v1/resolve", map[string]any{
		"entity_type": "driver",
		"name":        "A. Senna",
		"era":         map[string]any{"start_year": 1990},
		"source":      "wikipedia",
	})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	pending := decode[models.ResolveResult](s, rec)
	s.Require().NotEmpty(pending.PendingMatchID)

	rec = s.do(http.MethodGet, "/api/v1/pending-matches?entity_type=driver", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	page := decode[models.PendingMatchPage](s, rec)
	s.Equal(1, page.Total)
	s.Equal(pending.PendingMatchID, page.Items[0].ID)

	path := "/api/v1/pending-matches/" + pending.PendingMatchID + "/resolve"
	body := map[string]any{"resolution": "marked_duplicate", "override_candidate_id": bruno.ID}

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, path, body).Code)

	rec = s.do(http.MethodPost, path, body, middleware.HeaderUserID, "reviewer@example.com")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	result := decode[review.Result](s, rec)
	s.Equal(bruno.ID, result.EntityID)
	s.Equal("reviewer@example.com", *result.PendingMatch.ResolvedBy)

	rec = s.do(http.MethodPost, path, body, middleware.HeaderUserID, "reviewer@example.com")
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("stale_resolution", decode[middleware.ErrorResponse](s, rec).Code)

	rec = s.do(http.MethodGet, "/api/v1/aliases/lookup?entity_type=driver&name=A.%20Senna&year=1990", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(bruno.ID, decode[models.Alias](s, rec).CanonicalEntityID)

	rec = s.do(http.MethodGet, "/api/v1/pending-matches?status=pending", nil)
	s.Equal(0, decode[models.PendingMatchPage](s, rec).Total)
}

func (s *APISuite) TestReviewValidation() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/pending-matches/missing", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/pending-matches?page=two", nil).Code)
	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodGet, "/api/v1/pending-matches?status=maybe", nil).Code)

	rec := s.do(http.MethodPost, "/api/v1/pending-matches/missing/resolve", map[string]any{}, middleware.HeaderUserID, "reviewer")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestSupersedeAlias() {
	rec := s.do(http.MethodPost, "/api/v1/resolve", map[string]any{
		"entity_type": "team",
		"name":        "Toro Rosso",
		"era":         map[string]any{"start_year": 2006},
		"source":      "ergast",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ResolveResult](s, rec)

	rec = s.do(http.MethodPost, "/api/v1/aliases/"+created.AliasID+"/supersede", map[string]any{
		"alias_name": "AlphaTauri",
		"valid_from": "2020-01-01",
		"source":     "fia",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[alias.SupersedeResponse](s, rec)
	s.Equal("2019-12-31", resp.Prior.ValidUntil.Format("2006-01-02"))
	s.Equal(created.EntityID, resp.Successor.CanonicalEntityID)

	rec = s.do(http.MethodGet, "/api/v1/entities/"+created.EntityID+"/aliases", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[[]models.Alias](s, rec), 2)

	// the prior window is closed now
	rec = s.do(http.MethodPost, "/api/v1/aliases/"+created.AliasID+"/supersede", map[string]any{
		"alias_name": "RB", "valid_from": "2024-01-01", "source": "fia",
	})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/aliases/"+created.AliasID+"/supersede", map[string]any{"alias_name": "RB"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestAliasLookupMisses() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/aliases/lookup?entity_type=boat&name=x", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/aliases/lookup?entity_type=driver", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/aliases/lookup?entity_type=driver&name=Nobody", nil).Code)
}

func (s *APISuite) TestEntityGetAndDelete() {
	driver := s.seedDriver("Rubens Barrichello")

	rec := s.do(http.MethodGet, "/api/v1/entities/"+driver.ID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	got := decode[entity.EntityResponse](s, rec)
	s.Equal("rubens-barrichello", got.Slug)
	s.Len(got.Aliases, 1)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/entities/"+driver.ID, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/entities/"+driver.ID, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/entities/"+driver.ID, nil).Code)
}

func (s *APISuite) TestLineageWithoutGraph() {
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/entities/x/lineage", nil).Code)
}

func (s *APISuite) TestHealthAndMetrics() {
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/health/ready", nil).Code)
	s.checker.SetReady(true)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/health/ready", nil).Code)

	s.checker.AddCheck("postgres", func(context.Context) error { return nil })
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil).Code)

	s.checker.AddCheck("graph", func(context.Context) error { return errors.New("bolt: connection refused") })
	rec := s.do(http.MethodGet, "/api/v1/health", nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	status := decode[health.HealthStatus](s, rec)
	s.Equal("healthy", status.Checks["postgres"].Status)
	s.Equal("unhealthy", status.Checks["graph"].Status)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", nil).Code)
}
