package models

import "time"

// PatternType names a systemic issue detected across many feedback records.
type PatternType string

// Pattern types.
const (
	PatternLowDimensionSatisfaction PatternType = "low_dimension_satisfaction"
	PatternTierMismatch             PatternType = "tier_mismatch"
	PatternHighNoResponse           PatternType = "high_no_response"
)

// FeedbackPattern is a heuristic finding over an analytics window.
type FeedbackPattern struct {
	PatternType       PatternType `json:"pattern_type"`
	Description       string      `json:"description"`
	Frequency         int         `json:"frequency"`
	Confidence        float64     `json:"confidence"`
	AffectedDimension string      `json:"affected_dimension,omitempty"`
	Recommendation    string      `json:"recommendation,omitempty"`
}

// SignalDirection is the suggested change to a dimension's matching weight.
type SignalDirection string

// Signal directions.
const (
	DirectionIncrease SignalDirection = "increase_weight"
	DirectionDecrease SignalDirection = "decrease_weight"
	DirectionNoChange SignalDirection = "no_change"
)

// SignalTypeWeightAdjustment is the only signal type produced today.
const SignalTypeWeightAdjustment = "weight_adjustment"

// LearningSignal is derived per analytics run and never persisted.
type LearningSignal struct {
	SignalType    string          `json:"signal_type"`
	Dimension     string          `json:"dimension"`
	Direction     SignalDirection `json:"direction"`
	Magnitude     float64         `json:"magnitude"`
	EvidenceCount int             `json:"evidence_count"`
	Confidence    float64         `json:"confidence"`
}

// TierPerformance aggregates ratings and outcomes for one match tier.
type TierPerformance struct {
	MatchCount          int     `json:"match_count"`
	AvgRating           float64 `json:"avg_rating"`
	PositiveOutcomeRate float64 `json:"positive_outcome_rate"`
	FeedbackCount       int     `json:"feedback_count"`
}

// FeedbackAnalytics is the aggregate report over [PeriodStart, PeriodEnd].
type FeedbackAnalytics struct {
	PeriodStart         time.Time                     `json:"period_start"`
	PeriodEnd           time.Time                     `json:"period_end"`
	TotalFeedback       int                           `json:"total_feedback"`
	AvgRating           float64                       `json:"avg_rating"`
	RatingDistribution  map[int]int                   `json:"rating_distribution"`
	OutcomeDistribution map[string]int                `json:"outcome_distribution"`
	Patterns            []FeedbackPattern             `json:"patterns"`
	Signals             []LearningSignal              `json:"learning_signals"`
	TierPerformance     map[MatchTier]TierPerformance `json:"tier_performance"`
}

// Priority orders recommendations for human review.
type Priority string

// Priorities, highest first.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sort key where lower means more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation types.
const (
	RecommendationPatternBased     = "pattern_based"
	RecommendationWeightAdjustment = "weight_adjustment"
)

// Recommendation is a tuning suggestion merged from patterns and signals.
type Recommendation struct {
	Type           string          `json:"type"`
	Priority       Priority        `json:"priority"`
	Issue          string          `json:"issue,omitempty"`
	Dimension      string          `json:"dimension,omitempty"`
	Direction      SignalDirection `json:"direction,omitempty"`
	Magnitude      float64         `json:"magnitude,omitempty"`
	Recommendation string          `json:"recommendation"`
	Confidence     float64         `json:"confidence"`
}

// RecommendationsResponse wraps the recommendation list.
type RecommendationsResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
	Count           int              `json:"count"`
}

// AppliedChange is one signal acted on by a close-loop run.
type AppliedChange struct {
	Dimension  string          `json:"dimension"`
	Change     SignalDirection `json:"change"`
	Magnitude  float64         `json:"magnitude"`
	Applied    bool            `json:"applied"`
	NewWeight  *float64        `json:"new_weight,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// CloseLoopReport summarises one close-loop run.
type CloseLoopReport struct {
	LoopClosed             bool            `json:"loop_closed"`
	Timestamp              time.Time       `json:"timestamp"`
	ChangesApplied         int             `json:"changes_applied"`
	Changes                []AppliedChange `json:"changes"`
	TotalFeedbackProcessed int             `json:"total_feedback_processed"`
}

// AnalyticsFilters are the query parameters of GET /v1/feedback/analytics.
type AnalyticsFilters struct {
	Days int `form:"days" validate:"omitempty,min=1,max=365"`
}

// DimensionWeight is the matching weight of one dimension, adjusted by close-loop runs.
type DimensionWeight struct {
	Dimension     string     `json:"dimension"`
	Weight        float64    `json:"weight"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastAppliedAt *time.Time `json:"last_applied_at,omitempty"`
}

// AdjustmentRecord is one entry of a user's adjustment history.
type AdjustmentRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	FeedbackType     string    `json:"feedback_type"`
	Sentiment        Sentiment `json:"sentiment"`
	AdjustmentFactor float64   `json:"adjustment_factor"`
	LearningRate     float64   `json:"learning_rate"`
	Dimensions       []string  `json:"dimensions"`
}

// AdjustmentStats summarises a user's adjustment history.
type AdjustmentStats struct {
	UserID              string            `json:"user_id"`
	TotalAdjustments    int               `json:"total_adjustments"`
	PositiveAdjustments int               `json:"positive_adjustments"`
	NegativeAdjustments int               `json:"negative_adjustments"`
	AvgFactorDelta      float64           `json:"avg_factor_delta"`
	LastAdjustment      *AdjustmentRecord `json:"last_adjustment,omitempty"`
}

// AdjustmentsResponse is the body of GET /v1/feedback/user/{user_id}/adjustments.
type AdjustmentsResponse struct {
	Stats   AdjustmentStats    `json:"stats"`
	History []AdjustmentRecord `json:"history"`
}

// DimensionWeightsResponse lists the stored dimension weights.
type DimensionWeightsResponse struct {
	Data  []DimensionWeight `json:"data"`
	Count int               `json:"count"`
}
