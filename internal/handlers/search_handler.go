package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
)

// SearchHandler exposes hybrid search over stored issues plus embedding
// backfill for rows an interrupted job left without vectors.
type SearchHandler struct {
	search  interfaces.SearchService
	crawler interfaces.CrawlerService
	issues  interfaces.IssueStorage
	logger  arbor.ILogger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(search interfaces.SearchService, crawler interfaces.CrawlerService, issues interfaces.IssueStorage, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		search:  search,
		crawler: crawler,
		issues:  issues,
		logger:  logger,
	}
}

// SearchHandler handles GET /api/search?user_id=&q=&limit=.
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	userID := r.URL.Query().Get("user_id")
	query := r.URL.Query().Get("q")
	if userID == "" || query == "" {
		WriteError(w, http.StatusBadRequest, "user_id and q are required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	results, err := h.search.Hybrid(r.Context(), userID, query, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// IssuesHandler handles GET /api/issues?user_id=&limit=, listing stored
// issues newest crawl first.
func (h *SearchHandler) IssuesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	issues, err := h.issues.FindByUserID(r.Context(), userID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.issues.CountByUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"issues": issues,
	})
}

// BackfillHandler handles POST /api/embeddings/backfill, embedding stored
// issues that have no vector yet.
func (h *SearchHandler) BackfillHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	count, err := h.crawler.BackfillEmbeddings(r.Context(), req.UserID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"backfilled": count})
}
