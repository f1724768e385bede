package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/repository"
)

var (
	analyticsEnd   = time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	analyticsStart = analyticsEnd.AddDate(0, 0, -30)
	inWindow       = analyticsEnd.Add(-24 * time.Hour)
)

func dimensionRecords(dim string, ratings ...int) []models.FeedbackRecord {
	out := make([]models.FeedbackRecord, len(ratings))
	for i, r := range ratings {
		out[i] = models.NewDimensionFeedback("u", "m", map[string]int{dim: r}, nil, inWindow)
	}

	return out
}

func tierRatings(tier models.MatchTier, ratings ...int) []models.FeedbackRecord {
	out := make([]models.FeedbackRecord, len(ratings))
	for i, r := range ratings {
		out[i] = models.NewMatchRating("u", "m", r, nil, tierPtr(tier), nil, inWindow)
	}

	return out
}

func outcomes(names ...string) []models.FeedbackRecord {
	out := make([]models.FeedbackRecord, len(names))
	for i, n := range names {
		out[i] = models.NewConnectionOutcome("u", "m", n, nil, inWindow)
	}

	return out
}

func patternsOfType(a models.FeedbackAnalytics, pt models.PatternType) []models.FeedbackPattern {
	var out []models.FeedbackPattern

	for _, p := range a.Patterns {
		if p.PatternType == pt {
			out = append(out, p)
		}
	}

	return out
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(nil, analyticsStart, analyticsEnd)

	assert.Equal(t, 0, a.TotalFeedback)
	assert.Zero(t, a.AvgRating)
	assert.NotNil(t, a.RatingDistribution)
	assert.NotNil(t, a.OutcomeDistribution)
	assert.NotNil(t, a.Patterns)
	assert.NotNil(t, a.Signals)
	assert.NotNil(t, a.TierPerformance)
	assert.Empty(t, a.Patterns)
}

func TestAnalyze_GeographySignal(t *testing.T) {
	a := Analyze(dimensionRecords("geography", 5, 4, 5, 4, 5, 4), analyticsStart, analyticsEnd)

	require.Len(t, a.Signals, 1)
	s := a.Signals[0]
	assert.Equal(t, "geography", s.Dimension)
	assert.Equal(t, models.DirectionIncrease, s.Direction)
	assert.InDelta(t, 0.75, s.Magnitude, 1e-12)
	assert.Equal(t, 6, s.EvidenceCount)
	assert.InDelta(t, 0.8, s.Confidence, 1e-12)
	assert.Equal(t, models.SignalTypeWeightAdjustment, s.SignalType)
}

func TestAnalyze_SignalThresholds(t *testing.T) {
	tests := []struct {
		name          string
		ratings       []int
		wantSignal    bool
		wantDirection models.SignalDirection
		wantMagnitude float64
	}{
		{name: "two ratings are not enough", ratings: []int{5, 5}},
		{name: "middling average", ratings: []int{3, 3, 4}},
		{name: "exactly four", ratings: []int{4, 4, 4}, wantSignal: true, wantDirection: models.DirectionIncrease, wantMagnitude: 0.5},
		{name: "exactly two", ratings: []int{2, 2, 2}, wantSignal: true, wantDirection: models.DirectionDecrease, wantMagnitude: 0.5},
		{name: "all ones", ratings: []int{1, 1, 1}, wantSignal: true, wantDirection: models.DirectionDecrease, wantMagnitude: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Analyze(dimensionRecords("stage", tt.ratings...), analyticsStart, analyticsEnd)

			if !tt.wantSignal {
				assert.Empty(t, a.Signals)

				return
			}

			require.Len(t, a.Signals, 1)
			assert.Equal(t, tt.wantDirection, a.Signals[0].Direction)
			assert.InDelta(t, tt.wantMagnitude, a.Signals[0].Magnitude, 1e-12)
		})
	}
}

func TestAnalyze_SignalConfidenceCapped(t *testing.T) {
	ratings := make([]int, 20)
	for i := range ratings {
		ratings[i] = 5
	}

	a := Analyze(dimensionRecords("expertise", ratings...), analyticsStart, analyticsEnd)

	require.Len(t, a.Signals, 1)
	assert.InDelta(t, 0.9, a.Signals[0].Confidence, 1e-12)
}

func TestAnalyze_LowDimensionSatisfactionThresholds(t *testing.T) {
	tests := []struct {
		name    string
		ratings []int
		want    bool
	}{
		{name: "four low ratings", ratings: []int{1, 1, 1, 1}, want: false},
		{name: "five averaging 2.8", ratings: []int{2, 3, 3, 3, 3}, want: true},
		{name: "ten averaging 2.9", ratings: []int{2, 3, 3, 3, 3, 3, 3, 3, 3, 3}, want: true},
		{name: "ten averaging 3.1", ratings: []int{4, 3, 3, 3, 3, 3, 3, 3, 3, 3}, want: false},
		{name: "five averaging 3.0", ratings: []int{3, 3, 3, 3, 3}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Analyze(dimensionRecords("industry", tt.ratings...), analyticsStart, analyticsEnd)
			found := patternsOfType(a, models.PatternLowDimensionSatisfaction)

			if !tt.want {
				assert.Empty(t, found)

				return
			}

			require.Len(t, found, 1)
			assert.Equal(t, "industry", found[0].AffectedDimension)
			assert.InDelta(t, 0.7, found[0].Confidence, 1e-12)
			assert.Equal(t, "Users consistently rate industry matching low", found[0].Description)
			assert.Equal(t, "Review industry matching algorithm", found[0].Recommendation)
			assert.Equal(t, countBelow(tt.ratings, 3), found[0].Frequency)
		})
	}
}

func TestAnalyze_TierMismatch(t *testing.T) {
	records := tierRatings(models.TierPerfect, 2, 3, 4, 3, 2)
	records = append(records, tierRatings(models.TierWorthExploring, 1, 1, 1, 1, 1)...)
	records = append(records, tierRatings(models.TierStrong, 4, 4, 3, 4, 4)...)

	a := Analyze(records, analyticsStart, analyticsEnd)
	found := patternsOfType(a, models.PatternTierMismatch)

	require.Len(t, found, 1)
	assert.Equal(t, "Perfect tier matches receiving poor ratings", found[0].Description)
	assert.Equal(t, 2, found[0].Frequency)
	assert.InDelta(t, 0.8, found[0].Confidence, 1e-12)
	assert.Equal(t, "Recalibrate tier thresholds", found[0].Recommendation)
}

func TestAnalyze_HighNoResponse(t *testing.T) {
	t.Run("needs five outcomes", func(t *testing.T) {
		a := Analyze(outcomes("no_response", "no_response", "no_response", "no_response"), analyticsStart, analyticsEnd)
		assert.Empty(t, patternsOfType(a, models.PatternHighNoResponse))
	})

	t.Run("rate above threshold", func(t *testing.T) {
		a := Analyze(outcomes("no_response", "no_response", "successful_deal", "mutual_pass", "mutual_pass"),
			analyticsStart, analyticsEnd)

		found := patternsOfType(a, models.PatternHighNoResponse)
		require.Len(t, found, 1)
		assert.Equal(t, 40, found[0].Frequency)
		assert.InDelta(t, 0.75, found[0].Confidence, 1e-12)
	})

	t.Run("rate at threshold", func(t *testing.T) {
		records := outcomes("no_response", "no_response", "no_response")
		records = append(records, outcomes("mutual_pass", "mutual_pass", "mutual_pass", "mutual_pass",
			"mutual_pass", "mutual_pass", "mutual_pass")...)

		a := Analyze(records, analyticsStart, analyticsEnd)
		assert.Empty(t, patternsOfType(a, models.PatternHighNoResponse))
	})
}

func TestAnalyze_DistributionsAndTiers(t *testing.T) {
	records := tierRatings(models.TierStrong, 5, 4)

	deal := models.NewConnectionOutcome("u", "m", "successful_deal", nil, inWindow)
	deal.MatchTier = tierPtr(models.TierStrong)
	pass := models.NewConnectionOutcome("u", "m", "mutual_pass", nil, inWindow)
	pass.MatchTier = tierPtr(models.TierStrong)

	records = append(records, deal, pass)
	records = append(records, models.NewMatchRating("u", "m", 1, nil, nil, nil, inWindow))
	records = append(records, models.NewMatchRating("u", "m", 5, nil, nil, nil, analyticsStart.Add(-time.Hour)))

	a := Analyze(records, analyticsStart, analyticsEnd)

	assert.Equal(t, 5, a.TotalFeedback)
	assert.InDelta(t, 10.0/3.0, a.AvgRating, 1e-12)
	assert.Equal(t, map[int]int{5: 1, 4: 1, 1: 1}, a.RatingDistribution)
	assert.Equal(t, map[string]int{"successful_deal": 1, "mutual_pass": 1}, a.OutcomeDistribution)

	require.Contains(t, a.TierPerformance, models.TierStrong)
	perf := a.TierPerformance[models.TierStrong]
	assert.Equal(t, 4, perf.MatchCount)
	assert.InDelta(t, 4.5, perf.AvgRating, 1e-12)
	assert.InDelta(t, 0.5, perf.PositiveOutcomeRate, 1e-12)
	assert.Equal(t, 4, perf.FeedbackCount)
}

func TestAnalyze_IsDeterministic(t *testing.T) {
	var records []models.FeedbackRecord
	for _, dim := range []string{"stage", "industry", "geography", "expertise"} {
		records = append(records, dimensionRecords(dim, 1, 1, 2, 1, 1)...)
	}

	first := Analyze(records, analyticsStart, analyticsEnd)
	for range 5 {
		assert.Equal(t, first, Analyze(records, analyticsStart, analyticsEnd))
	}

	require.Len(t, first.Signals, 4)
	assert.Equal(t, "expertise", first.Signals[0].Dimension)
	assert.Equal(t, "stage", first.Signals[3].Dimension)
}

func TestFeedbackAnalyticsEngine_AnalyzePeriod(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryFeedback()

	for _, r := range dimensionRecords("geography", 5, 4, 5, 4, 5, 4) {
		require.NoError(t, store.Append(ctx, &r))
	}

	old := models.NewMatchRating("u", "m", 1, nil, nil, nil, analyticsEnd.AddDate(0, 0, -40))
	require.NoError(t, store.Append(ctx, &old))

	engine := NewFeedbackAnalyticsEngine(store)
	engine.now = func() time.Time { return analyticsEnd }

	a, err := engine.AnalyzePeriod(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 6, a.TotalFeedback)
	assert.Equal(t, analyticsStart, a.PeriodStart)
	assert.Equal(t, analyticsEnd, a.PeriodEnd)
	require.Len(t, a.Signals, 1)
	assert.Equal(t, "geography", a.Signals[0].Dimension)
}
