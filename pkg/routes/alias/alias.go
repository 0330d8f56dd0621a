package alias

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type AliasService interface {
	LookupAlias(ctx context.Context, kind models.EntityKind, name, scope string, era models.Era) (*models.Alias, error)
	SupersedeAlias(ctx context.Context, priorID string, next *models.Alias) (*models.Alias, error)
}

type Handler struct {
	aliases AliasService
}

func NewHandler(aliases AliasService) *Handler {
	return &Handler{aliases: aliases}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/lookup", h.Lookup)
	g.POST("/:id/supersede", h.Supersede)
}

// Lookup answers "which entity does this name mean in this year". Only an unambiguous
// exact alias is returned; anything else is a 404.
func (h *Handler) Lookup(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "alias_handler.Lookup")
	defer span.End()

	kind, err := models.ParseEntityKind(c.QueryParam("entity_type"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name := c.QueryParam("name")
	if name == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	var era models.Era
	if raw := c.QueryParam("year"); raw != "" {
		if era.StartYear, err = strconv.Atoi(raw); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "year must be an integer")
		}
	}

	alias, err := h.aliases.LookupAlias(ctx, kind, name, c.QueryParam("scope"), era)
	if err != nil {
		return err
	}
	if alias == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no unambiguous %s alias for %q", kind, name)
	}
	return c.JSON(http.StatusOK, alias)
}

type SupersedeRequest struct {
	AliasName  string       `json:"alias_name" validate:"required,max=512"`
	ValidFrom  models.Date  `json:"valid_from" validate:"required"`
	ValidUntil *models.Date `json:"valid_until,omitempty"`
	Scope      string       `json:"scope,omitempty" validate:"max=128"`
	Source     string       `json:"source" validate:"required,max=64"`
}

type SupersedeResponse struct {
	Prior     *models.Alias `json:"prior"`
	Successor *models.Alias `json:"successor"`
}

// Supersede closes an open alias the day before the successor starts, e.g. a team rename
func (h *Handler) Supersede(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "alias_handler.Supersede")
	defer span.End()

	req, err := utils.BindRequest[SupersedeRequest](c)
	if err != nil {
		return err
	}
	if req.ValidFrom.IsZero() {
		return httperror.NewHTTPError(http.StatusBadRequest, "valid_from is required")
	}

	next := &models.Alias{
		AliasName: req.AliasName,
		Scope:     req.Scope,
		Source:    req.Source,
		ValidFrom: utils.Ptr(req.ValidFrom.Time),
	}
	if req.ValidUntil.IsSet() {
		next.ValidUntil = utils.Ptr(req.ValidUntil.Time)
	}

	prior, err := h.aliases.SupersedeAlias(ctx, c.Param("id"), next)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SupersedeResponse{Prior: prior, Successor: next})
}
