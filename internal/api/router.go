// Package api assembles the HTTP routes.
package api

import (
	"net/http"

	"github.com/reciprocity/matchloop/internal/api/handlers"
	"github.com/reciprocity/matchloop/internal/api/middleware"
)

// RouterParams holds the handlers and settings of the HTTP surface.
type RouterParams struct {
	Health   *handlers.HealthHandler
	Feedback *handlers.FeedbackHandler
	Matches  *handlers.MatchesHandler
	Metrics  http.Handler // optional; serves /metrics when set
	APIKey   string
}

// NewRouter registers the routes: /health and /metrics are public, everything under /v1/ requires the API key.
func NewRouter(p RouterParams) http.Handler {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", p.Health.Check)

	if p.Metrics != nil {
		public.Handle("GET /metrics", p.Metrics)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/feedback/match", p.Feedback.SubmitMatch)
	protected.HandleFunc("POST /v1/feedback/outcome", p.Feedback.SubmitOutcome)
	protected.HandleFunc("POST /v1/feedback/dimensions", p.Feedback.SubmitDimensions)
	protected.HandleFunc("POST /v1/feedback/suggestion", p.Feedback.SubmitSuggestion)
	protected.HandleFunc("POST /v1/feedback/complaint", p.Feedback.SubmitComplaint)
	protected.HandleFunc("GET /v1/feedback/analytics", p.Feedback.Analytics)
	protected.HandleFunc("GET /v1/feedback/recommendations", p.Feedback.Recommendations)
	protected.HandleFunc("POST /v1/feedback/close-loop", p.Feedback.CloseLoop)
	protected.HandleFunc("GET /v1/feedback/weights", p.Feedback.Weights)
	protected.HandleFunc("GET /v1/feedback/user/{user_id}", p.Feedback.UserHistory)
	protected.HandleFunc("GET /v1/feedback/user/{user_id}/adjustments", p.Feedback.Adjustments)
	protected.HandleFunc("GET /v1/feedback/user/{user_id}/match/{match_user_id}", p.Feedback.MatchHistory)

	protected.HandleFunc("GET /v1/matches/stats", p.Matches.Stats)
	protected.HandleFunc("GET /v1/matches/{user_id}", p.Matches.Get)
	protected.HandleFunc("DELETE /v1/matches/{user_id}", p.Matches.Invalidate)

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.Auth(p.APIKey)(protected))
	mux.Handle("/", public)

	return mux
}
