package resolve

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MaxBatchRecords bounds a synchronous batch request; larger loads go through backfill
const MaxBatchRecords = 1000

type Resolver interface {
	Resolve(ctx context.Context, policy resolver.Policy, record models.IncomingRecord) (*models.ResolveResult, error)
}

type BatchRunner interface {
	Run(ctx context.Context, policy resolver.Policy, records []models.IncomingRecord) *batch.Report
}

type Handler struct {
	resolver Resolver
	runner   BatchRunner
	policy   resolver.Policy
}

func NewHandler(r Resolver, runner BatchRunner, policy resolver.Policy) *Handler {
	return &Handler{resolver: r, runner: runner, policy: policy}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/resolve", h.Resolve)
	g.POST("/resolve/batch", h.ResolveBatch)
}

// Resolve resolves one incoming record
func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolve_handler.Resolve")
	defer span.End()

	var record models.IncomingRecord
	if err := c.Bind(&record); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid record: %s", err.Error())
	}

	result, err := h.resolver.Resolve(ctx, h.policy, record)
	if err != nil {
		return err
	}

	status := http.StatusOK
	switch result.Outcome {
	case models.OutcomeCreatedNew:
		status = http.StatusCreated
	case models.OutcomePending:
		status = http.StatusAccepted
	}
	return c.JSON(status, result)
}

type BatchRequest struct {
	Records []models.IncomingRecord `json:"records"`
}

// ResolveBatch resolves every record and reports one outcome per record in input order
func (h *Handler) ResolveBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolve_handler.ResolveBatch")
	defer span.End()

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid batch: %s", err.Error())
	}
	if len(req.Records) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "records is required")
	}
	if len(req.Records) > MaxBatchRecords {
		return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "at most %d records per batch", MaxBatchRecords)
	}

	return c.JSON(http.StatusOK, h.runner.Run(ctx, h.policy, req.Records))
}
