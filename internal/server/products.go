package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/dealwatch/internal/registry"
)

// ProductsHandler exposes the registry read-only over HTTP. Writes go
// exclusively through the merge path; this surface never mutates.
type ProductsHandler struct {
	Store *registry.Store
}

func (h *ProductsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:key", h.get)
}

func (h *ProductsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Store.List())
}

func (h *ProductsHandler) get(c echo.Context) error {
	rec, ok := h.Store.Get(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}
	return c.JSON(http.StatusOK, rec)
}
