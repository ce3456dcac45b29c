package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ragchat/rag"
)

const previewLength = 200

type searchRequest struct {
	Query               string   `json:"query"`
	TopK                *int     `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

type searchResult struct {
	DocumentID      string  `json:"document_id"`
	DisplayName     string  `json:"display_name"`
	ContentPreview  string  `json:"content_preview"`
	SimilarityScore float64 `json:"similarity_score"`
}

// search runs the retrieval step on its own and returns ranked previews.
func (h *handlers) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "query is required"})
	}

	ctx := c.Request().Context()
	results, err := h.deps.RAG.Search(ctx, req.Query, rag.RetrievalOptions{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		h.deps.Logger.Error("search failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "search failed"})
	}

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.DocumentID
	}
	docs, err := h.deps.Documents.GetByFileNames(ctx, names)
	if err != nil {
		h.deps.Logger.Error("loading search results failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "search failed"})
	}

	previews := make(map[string]string, len(docs))
	for _, d := range docs {
		previews[d.ID] = preview(d.Content)
	}

	out := make([]searchResult, len(results))
	for i, r := range results {
		out[i] = searchResult{
			DocumentID:      r.DocumentID,
			DisplayName:     r.DisplayName,
			ContentPreview:  previews[r.DocumentID],
			SimilarityScore: r.Score,
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": out,
	})
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
