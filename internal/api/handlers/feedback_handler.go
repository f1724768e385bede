// Package handlers implements the HTTP handlers of the feedback loop and match cache.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reciprocity/matchloop/internal/api/response"
	"github.com/reciprocity/matchloop/internal/api/validation"
	"github.com/reciprocity/matchloop/internal/models"
)

const unexpectedError = "An unexpected error occurred"

// FeedbackLoopService is the feedback loop as seen by the HTTP layer.
type FeedbackLoopService interface {
	SubmitMatchFeedback(ctx context.Context, req *models.SubmitMatchFeedbackRequest) models.SubmitResult
	SubmitOutcomeFeedback(ctx context.Context, req *models.SubmitOutcomeFeedbackRequest) models.SubmitResult
	SubmitDimensionFeedback(ctx context.Context, req *models.SubmitDimensionFeedbackRequest) models.DimensionSubmitResult
	SubmitSuggestion(ctx context.Context, req *models.SubmitTextFeedbackRequest) models.SubmitResult
	SubmitComplaint(ctx context.Context, req *models.SubmitTextFeedbackRequest) models.SubmitResult
	GetUserFeedbackHistory(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error)
	GetFeedbackForMatch(ctx context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error)
	GetAnalytics(ctx context.Context, days int) (*models.FeedbackAnalytics, error)
	GetImprovementRecommendations(ctx context.Context) ([]models.Recommendation, error)
	CloseLoop(ctx context.Context) (*models.CloseLoopReport, error)
}

// AdjustmentReader exposes the learner's per-user adjustment history.
type AdjustmentReader interface {
	AdjustmentHistory(userID string) []models.AdjustmentRecord
	AdjustmentStats(userID string) models.AdjustmentStats
}

// WeightLister lists the stored dimension weights.
type WeightLister interface {
	ListWeights(ctx context.Context) ([]models.DimensionWeight, error)
}

// FeedbackHandler handles /v1/feedback requests.
type FeedbackHandler struct {
	loop        FeedbackLoopService
	adjustments AdjustmentReader
	weights     WeightLister
}

// NewFeedbackHandler creates a FeedbackHandler. weights may be nil when no weight store is configured.
func NewFeedbackHandler(loop FeedbackLoopService, adjustments AdjustmentReader, weights WeightLister) *FeedbackHandler {
	return &FeedbackHandler{loop: loop, adjustments: adjustments, weights: weights}
}

// decodeBody decodes and validates a JSON body, writing the 400 response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validation.DecodeJSON(r, dst)
	if err == nil {
		return true
	}

	if errors.Is(err, validation.ErrInvalidBody) {
		response.RespondBadRequest(w, "Invalid request body")
	} else {
		validation.RespondValidationError(w, err)
	}

	return false
}

func respondSubmit(w http.ResponseWriter, r *http.Request, kind string, res models.SubmitResult) {
	if !res.Success {
		slog.ErrorContext(r.Context(), "feedback: submit failed", "kind", kind, "error", res.Message)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	response.RespondJSON(w, http.StatusCreated, res)
}

// SubmitMatch handles POST /v1/feedback/match.
func (h *FeedbackHandler) SubmitMatch(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitMatchFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondSubmit(w, r, "match", h.loop.SubmitMatchFeedback(r.Context(), &req))
}

// SubmitOutcome handles POST /v1/feedback/outcome.
func (h *FeedbackHandler) SubmitOutcome(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitOutcomeFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondSubmit(w, r, "outcome", h.loop.SubmitOutcomeFeedback(r.Context(), &req))
}

// SubmitDimensions handles POST /v1/feedback/dimensions.
func (h *FeedbackHandler) SubmitDimensions(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitDimensionFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res := h.loop.SubmitDimensionFeedback(r.Context(), &req)
	if !res.Success {
		slog.ErrorContext(r.Context(), "feedback: submit failed", "kind", "dimensions", "error", res.Message)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	response.RespondJSON(w, http.StatusCreated, res)
}

// SubmitSuggestion handles POST /v1/feedback/suggestion.
func (h *FeedbackHandler) SubmitSuggestion(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitTextFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondSubmit(w, r, "suggestion", h.loop.SubmitSuggestion(r.Context(), &req))
}

// SubmitComplaint handles POST /v1/feedback/complaint.
func (h *FeedbackHandler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitTextFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondSubmit(w, r, "complaint", h.loop.SubmitComplaint(r.Context(), &req))
}

// Analytics handles GET /v1/feedback/analytics?days=N.
func (h *FeedbackHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	var filters models.AnalyticsFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	a, err := h.loop.GetAnalytics(r.Context(), filters.Days)
	if err != nil {
		slog.ErrorContext(r.Context(), "feedback: analytics failed", "error", err)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	response.RespondJSON(w, http.StatusOK, a)
}

// Recommendations handles GET /v1/feedback/recommendations.
func (h *FeedbackHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.loop.GetImprovementRecommendations(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "feedback: recommendations failed", "error", err)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	response.RespondJSON(w, http.StatusOK, models.RecommendationsResponse{Recommendations: recs, Count: len(recs)})
}

// CloseLoop handles POST /v1/feedback/close-loop.
func (h *FeedbackHandler) CloseLoop(w http.ResponseWriter, r *http.Request) {
	report, err := h.loop.CloseLoop(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "feedback: close loop failed", "error", err)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	response.RespondJSON(w, http.StatusOK, report)
}

// UserHistory handles GET /v1/feedback/user/{user_id}?limit=N.
func (h *FeedbackHandler) UserHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var filters models.UserFeedbackFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	records, err := h.loop.GetUserFeedbackHistory(r.Context(), userID, filters.Limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "feedback: list user feedback failed", "user_id", userID, "error", err)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	if records == nil {
		records = []models.FeedbackRecord{}
	}

	response.RespondJSON(w, http.StatusOK, models.UserFeedbackResponse{UserID: userID, Data: records, Count: len(records)})
}

// MatchHistory handles GET /v1/feedback/user/{user_id}/match/{match_user_id}.
func (h *FeedbackHandler) MatchHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	matchUserID := r.PathValue("match_user_id")

	records, err := h.loop.GetFeedbackForMatch(r.Context(), userID, matchUserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "feedback: list match feedback failed",
			"user_id", userID, "match_user_id", matchUserID, "error", err)
		response.RespondInternalServerError(w, unexpectedError)

		return
	}

	if records == nil {
		records = []models.FeedbackRecord{}
	}

	response.RespondJSON(w, http.StatusOK, models.MatchFeedbackResponse{
		UserID:      userID,
		MatchUserID: matchUserID,
		Data:        records,
		Count:       len(records),
	})
}

// Adjustments handles GET /v1/feedback/user/{user_id}/adjustments.
func (h *FeedbackHandler) Adjustments(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	history := h.adjustments.AdjustmentHistory(userID)
	if history == nil {
		history = []models.AdjustmentRecord{}
	}

	response.RespondJSON(w, http.StatusOK, models.AdjustmentsResponse{
		Stats:   h.adjustments.AdjustmentStats(userID),
		History: history,
	})
}

// Weights handles GET /v1/feedback/weights.
func (h *FeedbackHandler) Weights(w http.ResponseWriter, r *http.Request) {
	weights := []models.DimensionWeight{}

	if h.weights != nil {
		list, err := h.weights.ListWeights(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "feedback: list weights failed", "error", err)
			response.RespondInternalServerError(w, unexpectedError)

			return
		}

		if list != nil {
			weights = list
		}
	}

	response.RespondJSON(w, http.StatusOK, models.DimensionWeightsResponse{Data: weights, Count: len(weights)})
}
