package models

// LearnRequest asks the learner to adjust a user's embeddings from free-text feedback.
type LearnRequest struct {
	UserID       string         `json:"user_id"`
	FeedbackText string         `json:"feedback_text"`
	FeedbackType string         `json:"feedback_type"`
	MatchContext map[string]any `json:"match_context,omitempty"`
}

// LearningResult reports the outcome of one learning pass. Failures are reported here
// rather than as errors.
type LearningResult struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Analysis *FeedbackAnalysis `json:"analysis,omitempty"`
	Updates  []EmbeddingUpdate `json:"updates"`

	// CacheInvalidationFailed is set when vectors were stored but the user's cached
	// matches could not be dropped.
	CacheInvalidationFailed bool `json:"cache_invalidation_failed,omitempty"`
}
