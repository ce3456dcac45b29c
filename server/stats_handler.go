package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func (h *handlers) health(c echo.Context) error {
	ctx := c.Request().Context()

	docCount := int64(-1)
	if h.deps.Documents != nil {
		if n, err := h.deps.Documents.Count(ctx); err == nil {
			docCount = n
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"models":         len(h.deps.Models.List()),
		"document_count": docCount,
	})
}

func (h *handlers) listModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"models":  h.deps.Models.List(),
		"default": h.deps.Models.DefaultID(),
	})
}

func (h *handlers) stats(c echo.Context) error {
	ctx := c.Request().Context()

	queryStats, err := h.deps.QueryLogs.Stats(ctx)
	if err != nil {
		h.deps.Logger.Error("stats query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})
	}

	docCount := int64(0)
	if h.deps.Documents != nil {
		docCount, _ = h.deps.Documents.Count(ctx)
	}
	indexed := int64(0)
	if h.deps.Vectors != nil {
		indexed, _ = h.deps.Vectors.Count(ctx)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"queries":           queryStats,
		"document_count":    docCount,
		"indexed_documents": indexed,
	})
}

func (h *handlers) recentQueries(c echo.Context) error {
	limit := intQueryParam(c, "limit", 50)
	offset := intQueryParam(c, "offset", 0)

	rows, err := h.deps.QueryLogs.ListRecent(c.Request().Context(), limit, offset)
	if err != nil {
		h.deps.Logger.Error("query history read failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "history unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"queries": rows,
		"limit":   limit,
		"offset":  offset,
	})
}

func intQueryParam(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
