package service

import (
	"math"
	"slices"
	"strings"

	"github.com/reciprocity/matchloop/internal/models"
)

type weightedKeyword struct {
	keyword string
	weight  float64
}

type sentimentTable struct {
	sentiment models.Sentiment
	keywords  []weightedKeyword
}

// sentimentTables are scanned in this order; a later table only wins with a strictly larger |weight|.
var sentimentTables = []sentimentTable{
	{models.SentimentVeryPositive, []weightedKeyword{
		{"perfect", 1.0}, {"excellent", 0.95}, {"amazing", 0.95}, {"love", 0.9},
		{"fantastic", 0.9}, {"exactly what", 0.85}, {"ideal", 0.85},
	}},
	{models.SentimentPositive, []weightedKeyword{
		{"good", 0.7}, {"great", 0.75}, {"helpful", 0.7}, {"nice", 0.65},
		{"useful", 0.65}, {"interested", 0.6}, {"relevant", 0.7},
	}},
	{models.SentimentNeutral, []weightedKeyword{
		{"okay", 0.5}, {"fine", 0.5}, {"acceptable", 0.5}, {"alright", 0.5},
		{"not sure", 0.5}, {"maybe", 0.5},
	}},
	{models.SentimentNegative, []weightedKeyword{
		{"not great", -0.6}, {"could be better", -0.5}, {"not quite", -0.5},
		{"mismatch", -0.6}, {"not interested", -0.65}, {"wrong", -0.7},
	}},
	{models.SentimentVeryNegative, []weightedKeyword{
		{"terrible", -0.9}, {"awful", -0.9}, {"completely wrong", -0.95},
		{"waste of time", -0.85}, {"not at all", -0.8}, {"never", -0.75},
	}},
}

type dimensionTable struct {
	dimension models.Dimension
	keywords  []string
}

var dimensionTables = []dimensionTable{
	{models.DimensionIndustry, []string{
		"industry", "sector", "market", "field", "domain", "vertical",
		"fintech", "healthtech", "saas", "b2b", "b2c", "tech", "technology",
	}},
	{models.DimensionStage, []string{
		"stage", "seed", "series", "pre-seed", "growth", "early", "mature",
		"funding", "round", "investment size",
	}},
	{models.DimensionGeography, []string{
		"location", "geography", "region", "country", "city", "local",
		"remote", "uk", "us", "europe", "asia", "based in",
	}},
	{models.DimensionEngagementStyle, []string{
		"communication", "style", "approach", "responsive", "hands-on",
		"hands-off", "mentor", "advisor", "active", "passive",
	}},
	{models.DimensionExpertise, []string{
		"experience", "expertise", "background", "skills", "knowledge",
		"understanding", "familiar with", "specialist",
	}},
	{models.DimensionDealbreakers, []string{
		"deal breaker", "dealbreaker", "absolute", "must have", "required",
		"non-negotiable", "exclude", "avoid", "never",
	}},
}

const (
	baseConfidence     = 0.5
	confidencePerMatch = 0.15
	maxConfidence      = 0.95
	maxKeyPhrases      = 5
	phraseWindowBefore = 2
	phraseWindowAfter  = 3
)

// FeedbackAnalyzer classifies free-text feedback with keyword tables.
// It holds no state and is safe for concurrent use.
type FeedbackAnalyzer struct {
	phraseKeywords map[string]struct{}
}

// NewFeedbackAnalyzer creates a FeedbackAnalyzer.
func NewFeedbackAnalyzer() *FeedbackAnalyzer {
	kw := make(map[string]struct{})

	for _, table := range dimensionTables {
		for _, k := range table.keywords {
			kw[k] = struct{}{}
		}
	}

	return &FeedbackAnalyzer{phraseKeywords: kw}
}

// Analyze reads sentiment, affected dimensions and key phrases from text.
// matchContext is accepted for callers that carry it; classification is text-only.
func (a *FeedbackAnalyzer) Analyze(text string, _ map[string]any) models.FeedbackAnalysis {
	lower := strings.ToLower(text)

	sentiment, score, confidence := analyzeSentiment(lower)
	dims, dimSentiments := identifyDimensions(lower, score)

	return models.FeedbackAnalysis{
		Sentiment:           sentiment,
		Confidence:          confidence,
		AffectedDimensions:  dims,
		DimensionSentiments: dimSentiments,
		KeyPhrases:          a.extractKeyPhrases(text),
		SentimentScore:      score,
		SuggestedAdjustment: score * confidence,
	}
}

func analyzeSentiment(lower string) (models.Sentiment, float64, float64) {
	best := models.SentimentNeutral
	bestScore := 0.0
	matches := 0

	for _, table := range sentimentTables {
		for _, kw := range table.keywords {
			if !strings.Contains(lower, kw.keyword) {
				continue
			}

			matches++

			if math.Abs(kw.weight) > math.Abs(bestScore) {
				bestScore = kw.weight
				best = table.sentiment
			}
		}
	}

	confidence := math.Min(maxConfidence, baseConfidence+confidencePerMatch*float64(matches))

	return best, bestScore, confidence
}

func identifyDimensions(lower string, score float64) ([]models.Dimension, map[models.Dimension]float64) {
	var affected []models.Dimension

	sentiments := make(map[models.Dimension]float64)

	for _, table := range dimensionTables {
		if slices.ContainsFunc(table.keywords, func(k string) bool { return strings.Contains(lower, k) }) {
			affected = append(affected, table.dimension)
			sentiments[table.dimension] = score
		}
	}

	if len(affected) == 0 {
		affected = []models.Dimension{models.DimensionOverall}
		sentiments[models.DimensionOverall] = score
	}

	return affected, sentiments
}

// extractKeyPhrases returns up to five short word windows around dimension keywords,
// taken from the original (not lower-cased) text.
func (a *FeedbackAnalyzer) extractKeyPhrases(text string) []string {
	words := strings.Fields(text)
	phrases := []string{}

	for i, word := range words {
		w := strings.Trim(strings.ToLower(word), ".,!?")
		if _, ok := a.phraseKeywords[w]; !ok {
			continue
		}

		start := max(0, i-phraseWindowBefore)
		end := min(len(words), i+phraseWindowAfter)

		phrase := strings.Join(words[start:end], " ")
		if phrase != "" && !slices.Contains(phrases, phrase) {
			phrases = append(phrases, phrase)
		}
	}

	if len(phrases) > maxKeyPhrases {
		phrases = phrases[:maxKeyPhrases]
	}

	return phrases
}
