package graph

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	graphpkg "github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type LineageReader interface {
	Get(ctx context.Context, entityID string) (*graphpkg.Lineage, error)
}

// Handler serves the alias lineage projection. The graph is optional; without it the
// route answers 503.
type Handler struct {
	lineage LineageReader
}

func NewHandler(lineage LineageReader) *Handler {
	return &Handler{lineage: lineage}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id/lineage", h.Lineage)
}

func (h *Handler) Lineage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graph_handler.Lineage")
	defer span.End()

	if h.lineage == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph projection is disabled")
	}

	lineage, err := h.lineage.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lineage)
}
