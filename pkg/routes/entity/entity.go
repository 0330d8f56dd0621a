package entity

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type EntityService interface {
	GetEntity(ctx context.Context, id string) (*models.CanonicalEntity, []models.Alias, error)
	DeleteEntity(ctx context.Context, id string) error
}

type Handler struct {
	entities EntityService
}

func NewHandler(entities EntityService) *Handler {
	return &Handler{entities: entities}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.Get)
	g.GET("/:id/aliases", h.ListAliases)
	g.DELETE("/:id", h.Delete)
}

type EntityResponse struct {
	models.CanonicalEntity
	Aliases []models.Alias `json:"aliases"`
}

// Get returns a canonical entity with all of its aliases
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "entity_handler.Get")
	defer span.End()

	entity, aliases, err := h.entities.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EntityResponse{CanonicalEntity: *entity, Aliases: nonNil(aliases)})
}

// ListAliases returns the alias history of an entity, oldest window first
func (h *Handler) ListAliases(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "entity_handler.ListAliases")
	defer span.End()

	_, aliases, err := h.entities.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(aliases))
}

// Delete removes a canonical entity; its aliases go with it
func (h *Handler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "entity_handler.Delete")
	defer span.End()

	if err := h.entities.DeleteEntity(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func nonNil(aliases []models.Alias) []models.Alias {
	if aliases == nil {
		return []models.Alias{}
	}
	return aliases
}
