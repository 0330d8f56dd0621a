package pendingmatch

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type ReviewService interface {
	List(ctx context.Context, filter models.PendingMatchFilter) (*models.PendingMatchPage, error)
	Get(ctx context.Context, id string) (*models.PendingMatch, error)
	Resolve(ctx context.Context, req review.Request) (*review.Result, error)
}

type Handler struct {
	review ReviewService
}

func NewHandler(service ReviewService) *Handler {
	return &Handler{review: service}
}

// Register registers the review queue routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
}

// List returns a page of the review queue, highest score first unless sort=created_at
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "pendingmatch_handler.List")
	defer span.End()

	filter := models.PendingMatchFilter{
		SortBy: models.PendingMatchSort(c.QueryParam("sort")),
	}
	if v := c.QueryParam("entity_type"); v != "" {
		filter.EntityType = utils.Ptr(models.EntityKind(v))
	}
	// status defaults to the open queue; status=all lists every row
	switch v := c.QueryParam("status"); v {
	case "":
		filter.Status = utils.Ptr(models.PendingMatchStatusPending)
	case "all":
	default:
		filter.Status = utils.Ptr(models.PendingMatchStatus(v))
	}

	var err error
	if filter.Page, err = intParam(c, "page"); err != nil {
		return err
	}
	if filter.PageSize, err = intParam(c, "page_size"); err != nil {
		return err
	}

	page, err := h.review.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns a single pending match, including terminal ones
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "pendingmatch_handler.Get")
	defer span.End()

	match, err := h.review.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, match)
}

type ResolveRequest struct {
	Resolution          models.Resolution `json:"resolution" validate:"required"`
	Notes               string            `json:"notes,omitempty" validate:"max=2000"`
	OverrideCandidateID string            `json:"override_candidate_id,omitempty"`
}

// Resolve applies the reviewer's decision. The reviewer is identified by the X-User-ID header.
func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "pendingmatch_handler.Resolve")
	defer span.End()

	reviewer := ctxmiddleware.GetUserID(ctx)
	if reviewer == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}

	req, err := utils.BindRequest[ResolveRequest](c)
	if err != nil {
		return err
	}

	result, err := h.review.Resolve(ctx, review.Request{
		PendingMatchID:      c.Param("id"),
		Resolution:          req.Resolution,
		Notes:               req.Notes,
		OverrideCandidateID: req.OverrideCandidateID,
		ResolvedBy:          reviewer,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be an integer", name)
	}
	return v, nil
}
