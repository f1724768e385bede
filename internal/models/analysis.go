package models

// Sentiment is the coarse polarity assigned to a piece of feedback text.
type Sentiment string

// Sentiment values, most positive first.
const (
	SentimentVeryPositive Sentiment = "very_positive"
	SentimentPositive     Sentiment = "positive"
	SentimentNeutral      Sentiment = "neutral"
	SentimentNegative     Sentiment = "negative"
	SentimentVeryNegative Sentiment = "very_negative"
)

// Dimension is a facet of matching that feedback can refer to.
type Dimension string

// Matching dimensions. DimensionOverall is used when no specific facet is mentioned.
const (
	DimensionIndustry        Dimension = "industry"
	DimensionStage           Dimension = "stage"
	DimensionGeography       Dimension = "geography"
	DimensionEngagementStyle Dimension = "engagement_style"
	DimensionExpertise       Dimension = "expertise"
	DimensionDealbreakers    Dimension = "dealbreakers"
	DimensionOverall         Dimension = "overall"
)

// FeedbackAnalysis is the structured reading of one feedback text.
type FeedbackAnalysis struct {
	Sentiment           Sentiment             `json:"sentiment"`
	Confidence          float64               `json:"confidence"`
	AffectedDimensions  []Dimension           `json:"affected_dimensions"`
	DimensionSentiments map[Dimension]float64 `json:"dimension_sentiments"`
	KeyPhrases          []string              `json:"key_phrases"`
	SentimentScore      float64               `json:"sentiment_score"`
	SuggestedAdjustment float64               `json:"suggested_adjustment"`
}

// DimensionNames returns the affected dimensions as plain strings.
func (a FeedbackAnalysis) DimensionNames() []string {
	out := make([]string, len(a.AffectedDimensions))
	for i, d := range a.AffectedDimensions {
		out[i] = string(d)
	}

	return out
}
