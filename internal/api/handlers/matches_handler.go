package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/reciprocity/matchloop/internal/api/response"
	"github.com/reciprocity/matchloop/internal/api/validation"
	"github.com/reciprocity/matchloop/internal/models"
)

// MatchService serves cached matches.
type MatchService interface {
	FindMatches(ctx context.Context, userID string, forceRefresh bool) models.FindMatchesResult
	InvalidateOnProfileUpdate(ctx context.Context, userID string) bool
	Stats(ctx context.Context) models.CacheStats
}

// MatchesHandler handles /v1/matches requests.
type MatchesHandler struct {
	service MatchService
}

// NewMatchesHandler creates a MatchesHandler.
func NewMatchesHandler(service MatchService) *MatchesHandler {
	return &MatchesHandler{service: service}
}

// Get handles GET /v1/matches/{user_id}?refresh=true.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var filters models.FindMatchesFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	res := h.service.FindMatches(r.Context(), userID, filters.Refresh)
	if !res.Success {
		slog.ErrorContext(r.Context(), "matches: find failed", "user_id", userID, "error", res.Error)
		response.RespondServiceUnavailable(w, "Matches are temporarily unavailable")

		return
	}

	response.RespondJSON(w, http.StatusOK, res)
}

// Invalidate handles DELETE /v1/matches/{user_id}, called after the user's profile changed.
func (h *MatchesHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateOnProfileUpdate(r.Context(), r.PathValue("user_id"))
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /v1/matches/stats.
func (h *MatchesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.service.Stats(r.Context()))
}
