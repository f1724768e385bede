package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// FeedbackType discriminates the payload carried by a FeedbackRecord.
type FeedbackType string

// Feedback types.
const (
	FeedbackMatchRating       FeedbackType = "match_rating"
	FeedbackConnectionOutcome FeedbackType = "connection_outcome"
	FeedbackDimension         FeedbackType = "dimension_feedback"
	FeedbackSuggestion        FeedbackType = "suggestion"
	FeedbackComplaint         FeedbackType = "complaint"
)

// ConnectionOutcome is what happened after two matched users connected.
type ConnectionOutcome string

// Connection outcomes.
const (
	OutcomeSuccessfulDeal       ConnectionOutcome = "successful_deal"
	OutcomeOngoingRelationship  ConnectionOutcome = "ongoing_relationship"
	OutcomeValuableConversation ConnectionOutcome = "valuable_conversation"
	OutcomeNoResponse           ConnectionOutcome = "no_response"
	OutcomeMutualPass           ConnectionOutcome = "mutual_pass"
	OutcomeNegativeExperience   ConnectionOutcome = "negative_experience"
)

var knownOutcomes = []ConnectionOutcome{
	OutcomeSuccessfulDeal,
	OutcomeOngoingRelationship,
	OutcomeValuableConversation,
	OutcomeNoResponse,
	OutcomeMutualPass,
	OutcomeNegativeExperience,
}

// ParseConnectionOutcome returns the outcome for s, or nil when s is not a known outcome.
func ParseConnectionOutcome(s string) *ConnectionOutcome {
	o := ConnectionOutcome(s)
	if !slices.Contains(knownOutcomes, o) {
		return nil
	}

	return &o
}

// IsPositive reports whether the outcome counts toward a tier's positive outcome rate.
func (o ConnectionOutcome) IsPositive() bool {
	switch o {
	case OutcomeSuccessfulDeal, OutcomeOngoingRelationship, OutcomeValuableConversation:
		return true
	default:
		return false
	}
}

// MatchTier is the quality band a match was presented in.
type MatchTier string

// Match tiers.
const (
	TierPerfect        MatchTier = "perfect"
	TierStrong         MatchTier = "strong"
	TierWorthExploring MatchTier = "worth_exploring"
	TierLow            MatchTier = "low"
)

// IsValid reports whether t is one of the known tiers.
func (t MatchTier) IsValid() bool {
	switch t {
	case TierPerfect, TierStrong, TierWorthExploring, TierLow:
		return true
	default:
		return false
	}
}

// Rating bounds. Out-of-range input is clamped, never rejected.
const (
	MinRating = 1
	MaxRating = 5
)

// ClampRating limits r to [MinRating, MaxRating].
func ClampRating(r int) int {
	return min(max(r, MinRating), MaxRating)
}

// FeedbackRecord is one immutable feedback event. Exactly one payload field is set,
// chosen by Type: Rating (match_rating), Outcome (connection_outcome, nil when the
// submitted outcome was not recognised), DimensionRatings (dimension_feedback).
// Suggestions and complaints carry FreeText only.
// Build records with the New* constructors.
type FeedbackRecord struct {
	ID          uuid.UUID    `json:"feedback_id"`
	UserID      string       `json:"user_id"`
	MatchUserID string       `json:"match_user_id"`
	Type        FeedbackType `json:"feedback_type"`
	FreeText    *string      `json:"free_text,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	MatchTier   *MatchTier   `json:"match_tier,omitempty"`
	MatchScore  *float64     `json:"match_score,omitempty"`

	Rating           *int               `json:"rating,omitempty"`
	Outcome          *ConnectionOutcome `json:"outcome,omitempty"`
	DimensionRatings map[string]int     `json:"dimension_ratings,omitempty"`
}

func newRecord(userID, matchUserID string, t FeedbackType, freeText *string, now time.Time) FeedbackRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return FeedbackRecord{
		ID:          id,
		UserID:      userID,
		MatchUserID: matchUserID,
		Type:        t,
		FreeText:    nonEmpty(freeText),
		Timestamp:   now.UTC(),
	}
}

// NewMatchRating builds a match_rating record. The rating is clamped to [1,5].
func NewMatchRating(
	userID, matchUserID string, rating int, comment *string, tier *MatchTier, score *float64, now time.Time,
) FeedbackRecord {
	rec := newRecord(userID, matchUserID, FeedbackMatchRating, comment, now)
	r := ClampRating(rating)
	rec.Rating = &r
	rec.MatchTier = tier
	rec.MatchScore = score

	return rec
}

// NewConnectionOutcome builds a connection_outcome record. Unknown outcomes are stored as nil.
func NewConnectionOutcome(userID, matchUserID, outcome string, details *string, now time.Time) FeedbackRecord {
	rec := newRecord(userID, matchUserID, FeedbackConnectionOutcome, details, now)
	rec.Outcome = ParseConnectionOutcome(outcome)

	return rec
}

// NewDimensionFeedback builds a dimension_feedback record with each rating clamped to [1,5].
func NewDimensionFeedback(
	userID, matchUserID string, ratings map[string]int, comment *string, now time.Time,
) FeedbackRecord {
	rec := newRecord(userID, matchUserID, FeedbackDimension, comment, now)

	rec.DimensionRatings = make(map[string]int, len(ratings))
	for dim, r := range ratings {
		rec.DimensionRatings[dim] = ClampRating(r)
	}

	return rec
}

// NewSuggestion builds a suggestion record.
func NewSuggestion(userID, matchUserID, text string, now time.Time) FeedbackRecord {
	return newRecord(userID, matchUserID, FeedbackSuggestion, &text, now)
}

// NewComplaint builds a complaint record.
func NewComplaint(userID, matchUserID, text string, now time.Time) FeedbackRecord {
	return newRecord(userID, matchUserID, FeedbackComplaint, &text, now)
}

// RatedDimensions returns the dimension names of a dimension_feedback record, sorted.
func (r FeedbackRecord) RatedDimensions() []string {
	dims := make([]string, 0, len(r.DimensionRatings))
	for d := range r.DimensionRatings {
		dims = append(dims, d)
	}

	slices.Sort(dims)

	return dims
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}

	v := *s

	return &v
}

// SubmitMatchFeedbackRequest is the body of POST /v1/feedback/match.
// Rating is not range-validated; the collector clamps it.
type SubmitMatchFeedbackRequest struct {
	UserID      string     `json:"user_id" validate:"required,min=1,max=255,no_null_bytes"`
	MatchUserID string     `json:"match_user_id" validate:"required,min=1,max=255,no_null_bytes"`
	Rating      *int       `json:"rating" validate:"required"`
	Comment     *string    `json:"comment,omitempty" validate:"omitempty,max=5000,no_null_bytes"`
	MatchTier   *MatchTier `json:"match_tier,omitempty" validate:"omitempty,match_tier"`
	MatchScore  *float64   `json:"match_score,omitempty"`
}

// SubmitOutcomeFeedbackRequest is the body of POST /v1/feedback/outcome.
type SubmitOutcomeFeedbackRequest struct {
	UserID      string  `json:"user_id" validate:"required,min=1,max=255,no_null_bytes"`
	MatchUserID string  `json:"match_user_id" validate:"required,min=1,max=255,no_null_bytes"`
	Outcome     string  `json:"outcome" validate:"required,max=100,no_null_bytes"`
	Details     *string `json:"details,omitempty" validate:"omitempty,max=5000,no_null_bytes"`
}

// SubmitDimensionFeedbackRequest is the body of POST /v1/feedback/dimensions.
type SubmitDimensionFeedbackRequest struct {
	UserID           string         `json:"user_id" validate:"required,min=1,max=255,no_null_bytes"`
	MatchUserID      string         `json:"match_user_id" validate:"required,min=1,max=255,no_null_bytes"`
	DimensionRatings map[string]int `json:"dimension_ratings" validate:"required,min=1,dive,keys,min=1,max=100,no_null_bytes,endkeys"`
	Comment          *string        `json:"comment,omitempty" validate:"omitempty,max=5000,no_null_bytes"`
}

// SubmitTextFeedbackRequest is the body of POST /v1/feedback/suggestion and /v1/feedback/complaint.
type SubmitTextFeedbackRequest struct {
	UserID      string `json:"user_id" validate:"required,min=1,max=255,no_null_bytes"`
	MatchUserID string `json:"match_user_id,omitempty" validate:"omitempty,max=255,no_null_bytes"`
	Text        string `json:"text" validate:"required,min=1,max=5000,no_null_bytes"`
}

// SubmitResult is returned by the match and outcome submission operations.
type SubmitResult struct {
	Success         bool      `json:"success"`
	FeedbackID      uuid.UUID `json:"feedback_id"`
	AppliedLearning bool      `json:"applied_learning"`
	Message         string    `json:"message,omitempty"`
}

// DimensionSubmitResult is returned by dimension feedback submission.
type DimensionSubmitResult struct {
	Success         bool      `json:"success"`
	FeedbackID      uuid.UUID `json:"feedback_id"`
	DimensionsRated []string  `json:"dimensions_rated"`
	Message         string    `json:"message,omitempty"`
}

// UserFeedbackFilters are the query parameters of GET /v1/feedback/user/{user_id}.
type UserFeedbackFilters struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=1000"`
}

// UserFeedbackResponse lists a user's recent feedback records.
type UserFeedbackResponse struct {
	UserID string           `json:"user_id"`
	Data   []FeedbackRecord `json:"data"`
	Count  int              `json:"count"`
}

// MatchFeedbackResponse lists what a user said about one match.
type MatchFeedbackResponse struct {
	UserID      string           `json:"user_id"`
	MatchUserID string           `json:"match_user_id"`
	Data        []FeedbackRecord `json:"data"`
	Count       int              `json:"count"`
}
