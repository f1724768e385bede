package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/reciprocity/matchloop/internal/models"
)

// Pattern and signal thresholds.
const (
	minPatternSamples        = 5
	lowDimensionAvgThreshold = 3.0
	lowDimensionConfidence   = 0.7
	tierMismatchAvgThreshold = 3.5
	tierMismatchConfidence   = 0.8
	noResponseRateThreshold  = 0.3
	noResponseConfidence     = 0.75
	poorRatingBelow          = 3

	minSignalSamples       = 3
	increaseAvgThreshold   = 4.0
	decreaseAvgThreshold   = 2.0
	signalBaseConfidence   = 0.5
	signalConfidenceStep   = 0.05
	signalConfidenceMaxCap = 0.9
)

// FeedbackAnalyticsEngine derives aggregate statistics, patterns and learning signals
// from the feedback log. It never writes.
type FeedbackAnalyticsEngine struct {
	store FeedbackStore
	now   func() time.Time
}

// NewFeedbackAnalyticsEngine creates a FeedbackAnalyticsEngine.
func NewFeedbackAnalyticsEngine(store FeedbackStore) *FeedbackAnalyticsEngine {
	return &FeedbackAnalyticsEngine{store: store, now: time.Now}
}

// AnalyzePeriod analyzes every record submitted in the last days days.
func (e *FeedbackAnalyticsEngine) AnalyzePeriod(ctx context.Context, days int) (*models.FeedbackAnalytics, error) {
	end := e.now().UTC()
	start := end.AddDate(0, 0, -days)

	records, err := e.store.ListSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list feedback since %s: %w", start.Format(time.RFC3339), err)
	}

	a := Analyze(records, start, end)

	return &a, nil
}

// Analyze is the deterministic core of AnalyzePeriod. Records outside [start, end] are ignored.
func Analyze(records []models.FeedbackRecord, start, end time.Time) models.FeedbackAnalytics {
	recent := make([]models.FeedbackRecord, 0, len(records))

	for _, r := range records {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}

		recent = append(recent, r)
	}

	a := models.FeedbackAnalytics{
		PeriodStart:         start,
		PeriodEnd:           end,
		TotalFeedback:       len(recent),
		RatingDistribution:  map[int]int{},
		OutcomeDistribution: map[string]int{},
	}

	var ratingSum, ratingCount int

	for _, r := range recent {
		if r.Rating != nil {
			ratingSum += *r.Rating
			ratingCount++
			a.RatingDistribution[*r.Rating]++
		}

		if r.Outcome != nil {
			a.OutcomeDistribution[string(*r.Outcome)]++
		}
	}

	if ratingCount > 0 {
		a.AvgRating = float64(ratingSum) / float64(ratingCount)
	}

	dimRatings := collectDimensionRatings(recent)

	a.Patterns = detectPatterns(recent, dimRatings)
	a.Signals = extractSignals(dimRatings)
	a.TierPerformance = analyzeTiers(recent)

	return a
}

func collectDimensionRatings(records []models.FeedbackRecord) map[string][]int {
	out := make(map[string][]int)

	for _, r := range records {
		for dim, rating := range r.DimensionRatings {
			out[dim] = append(out[dim], rating)
		}
	}

	return out
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0
	for _, v := range values {
		sum += v
	}

	return float64(sum) / float64(len(values))
}

func countBelow(values []int, limit int) int {
	n := 0

	for _, v := range values {
		if v < limit {
			n++
		}
	}

	return n
}

func detectPatterns(records []models.FeedbackRecord, dimRatings map[string][]int) []models.FeedbackPattern {
	patterns := []models.FeedbackPattern{}

	for _, dim := range slices.Sorted(maps.Keys(dimRatings)) {
		ratings := dimRatings[dim]
		if len(ratings) < minPatternSamples || mean(ratings) >= lowDimensionAvgThreshold {
			continue
		}

		patterns = append(patterns, models.FeedbackPattern{
			PatternType:       models.PatternLowDimensionSatisfaction,
			Description:       fmt.Sprintf("Users consistently rate %s matching low", dim),
			Frequency:         countBelow(ratings, poorRatingBelow),
			Confidence:        lowDimensionConfidence,
			AffectedDimension: dim,
			Recommendation:    fmt.Sprintf("Review %s matching algorithm", dim),
		})
	}

	tierRatings := make(map[models.MatchTier][]int)

	for _, r := range records {
		if r.MatchTier != nil && r.Rating != nil {
			tierRatings[*r.MatchTier] = append(tierRatings[*r.MatchTier], *r.Rating)
		}
	}

	for _, tier := range []models.MatchTier{models.TierPerfect, models.TierStrong} {
		ratings := tierRatings[tier]
		if len(ratings) < minPatternSamples || mean(ratings) >= tierMismatchAvgThreshold {
			continue
		}

		name := string(tier)
		patterns = append(patterns, models.FeedbackPattern{
			PatternType:    models.PatternTierMismatch,
			Description:    fmt.Sprintf("%s tier matches receiving poor ratings", strings.ToUpper(name[:1])+name[1:]),
			Frequency:      countBelow(ratings, poorRatingBelow),
			Confidence:     tierMismatchConfidence,
			Recommendation: "Recalibrate tier thresholds",
		})
	}

	var outcomes, noResponse int

	for _, r := range records {
		if r.Outcome == nil {
			continue
		}

		outcomes++

		if *r.Outcome == models.OutcomeNoResponse {
			noResponse++
		}
	}

	if outcomes >= minPatternSamples {
		rate := float64(noResponse) / float64(outcomes)
		if rate > noResponseRateThreshold {
			patterns = append(patterns, models.FeedbackPattern{
				PatternType:    models.PatternHighNoResponse,
				Description:    "High rate of non-responses after matching",
				Frequency:      int(rate * 100),
				Confidence:     noResponseConfidence,
				Recommendation: "Consider improving ice breakers or timing",
			})
		}
	}

	return patterns
}

func extractSignals(dimRatings map[string][]int) []models.LearningSignal {
	signals := []models.LearningSignal{}

	for _, dim := range slices.Sorted(maps.Keys(dimRatings)) {
		ratings := dimRatings[dim]
		if len(ratings) < minSignalSamples {
			continue
		}

		avg := mean(ratings)

		var (
			direction models.SignalDirection
			magnitude float64
		)

		switch {
		case avg >= increaseAvgThreshold:
			direction, magnitude = models.DirectionIncrease, (avg-3)/2
		case avg <= decreaseAvgThreshold:
			direction, magnitude = models.DirectionDecrease, (3-avg)/2
		default:
			continue
		}

		signals = append(signals, models.LearningSignal{
			SignalType:    models.SignalTypeWeightAdjustment,
			Dimension:     dim,
			Direction:     direction,
			Magnitude:     magnitude,
			EvidenceCount: len(ratings),
			Confidence:    min(signalConfidenceMaxCap, signalBaseConfidence+float64(len(ratings))*signalConfidenceStep),
		})
	}

	return signals
}

func analyzeTiers(records []models.FeedbackRecord) map[models.MatchTier]models.TierPerformance {
	type tierData struct {
		count            int
		ratings          []int
		outcomes         int
		positiveOutcomes int
	}

	data := make(map[models.MatchTier]*tierData)

	for _, r := range records {
		if r.MatchTier == nil {
			continue
		}

		d, ok := data[*r.MatchTier]
		if !ok {
			d = &tierData{}
			data[*r.MatchTier] = d
		}

		d.count++

		if r.Rating != nil {
			d.ratings = append(d.ratings, *r.Rating)
		}

		if r.Outcome != nil {
			d.outcomes++

			if r.Outcome.IsPositive() {
				d.positiveOutcomes++
			}
		}
	}

	out := make(map[models.MatchTier]models.TierPerformance, len(data))

	for tier, d := range data {
		perf := models.TierPerformance{
			MatchCount:    d.count,
			AvgRating:     mean(d.ratings),
			FeedbackCount: len(d.ratings) + d.outcomes,
		}

		if d.outcomes > 0 {
			perf.PositiveOutcomeRate = float64(d.positiveOutcomes) / float64(d.outcomes)
		}

		out[tier] = perf
	}

	return out
}
