package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/eargollo/ppfinder/internal/criteria"
	"github.com/eargollo/ppfinder/internal/search"
)

// SearchHandler handles POST /api/search and the criteria schema.
type SearchHandler struct {
	Searcher *search.Searcher
}

// Search validates a {criteria, page} body and returns one page of results.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read body")
		return
	}

	req, err := criteria.Validate(body)
	if err != nil {
		if errors.Is(err, criteria.ErrInvalidCriteria) {
			writeError(w, http.StatusBadRequest, "INVALID_CRITERIA", err.Error())
			return
		}
		slog.Error("search: validate", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate criteria")
		return
	}

	res, err := h.Searcher.Search(r.Context(), req.Criteria, req.Page)
	if err != nil {
		slog.Error("search: query", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Schema handles GET /api/search/schema.
func (h *SearchHandler) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"criteria": criteria.CriteriaSchema(),
		"sortKeys": criteria.SortKeys,
	})
}
