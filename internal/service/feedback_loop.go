package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
)

// Analytics windows.
const (
	RecommendationWindowDays = 30
	CloseLoopWindowDays      = 7
	DefaultAnalyticsDays     = 30
)

const (
	recommendationMinConfidence = 0.7
	highPriorityConfidence      = 0.8
	recommendationMinMagnitude  = 0.5
	recommendationMinEvidence   = 5

	defaultDimensionWeight = 1.0

	recordedMessage = "Feedback recorded"
)

// FeedbackLoopParams wires a FeedbackLoop.
type FeedbackLoopParams struct {
	Collector *FeedbackCollector
	Learner   FeedbackProcessor
	Analytics *FeedbackAnalyticsEngine
	Weights   DimensionWeightStore // optional; nil keeps close-loop advisory
	Config    config.LoopConfig
	Metrics   observability.FeedbackMetrics // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

// FeedbackLoop records feedback, applies significant feedback to embeddings, and feeds
// aggregate signals back into the dimension weights.
type FeedbackLoop struct {
	collector *FeedbackCollector
	learner   FeedbackProcessor
	analytics *FeedbackAnalyticsEngine
	weights   DimensionWeightStore
	cfg       config.LoopConfig
	metrics   observability.FeedbackMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewFeedbackLoop creates a FeedbackLoop.
func NewFeedbackLoop(p FeedbackLoopParams) *FeedbackLoop {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &FeedbackLoop{
		collector: p.Collector,
		learner:   p.Learner,
		analytics: p.Analytics,
		weights:   p.Weights,
		cfg:       p.Config,
		metrics:   p.Metrics,
		logger:    logger,
		now:       now,
	}
}

// SubmitMatchFeedback records a match rating and learns from it when the clamped rating is
// decisive (at most 2 or at least 4).
func (l *FeedbackLoop) SubmitMatchFeedback(ctx context.Context, req *models.SubmitMatchFeedbackRequest) models.SubmitResult {
	rec, err := l.collector.CollectMatchRating(ctx, req)
	if err != nil {
		return models.SubmitResult{Success: false, Message: err.Error()}
	}

	rating := *rec.Rating
	if rating > 2 && rating < 4 {
		l.recordSkipped(ctx)

		return models.SubmitResult{Success: true, FeedbackID: rec.ID, Message: recordedMessage}
	}

	text := fmt.Sprintf("Match rated %d/5", rating)
	if rec.FreeText != nil {
		text = *rec.FreeText
	}

	matchContext := map[string]any{"match_user_id": rec.MatchUserID}
	if rec.MatchTier != nil {
		matchContext["tier"] = string(*rec.MatchTier)
	}

	return l.learn(ctx, rec, text, matchContext)
}

// SubmitOutcomeFeedback records a connection outcome and learns from definitive successes.
func (l *FeedbackLoop) SubmitOutcomeFeedback(ctx context.Context, req *models.SubmitOutcomeFeedbackRequest) models.SubmitResult {
	rec, err := l.collector.CollectConnectionOutcome(ctx, req)
	if err != nil {
		return models.SubmitResult{Success: false, Message: err.Error()}
	}

	if rec.Outcome == nil ||
		(*rec.Outcome != models.OutcomeSuccessfulDeal && *rec.Outcome != models.OutcomeOngoingRelationship) {
		l.recordSkipped(ctx)

		return models.SubmitResult{Success: true, FeedbackID: rec.ID, Message: recordedMessage}
	}

	outcome := string(*rec.Outcome)

	return l.learn(ctx, rec, "Successful outcome: "+outcome, map[string]any{"outcome": outcome})
}

func (l *FeedbackLoop) learn(
	ctx context.Context, rec *models.FeedbackRecord, text string, matchContext map[string]any,
) models.SubmitResult {
	result := l.learner.ProcessFeedback(ctx, models.LearnRequest{
		UserID:       rec.UserID,
		FeedbackText: text,
		FeedbackType: "match",
		MatchContext: matchContext,
	})

	return models.SubmitResult{
		Success:         true,
		FeedbackID:      rec.ID,
		AppliedLearning: result.Success,
		Message:         result.Message,
	}
}

func (l *FeedbackLoop) recordSkipped(ctx context.Context) {
	if l.metrics != nil {
		l.metrics.RecordLearningOutcome(ctx, "skipped")
	}
}

// SubmitDimensionFeedback records per-dimension ratings. It does not trigger learning;
// dimension ratings feed the analytics signals instead.
func (l *FeedbackLoop) SubmitDimensionFeedback(
	ctx context.Context, req *models.SubmitDimensionFeedbackRequest,
) models.DimensionSubmitResult {
	rec, err := l.collector.CollectDimensionFeedback(ctx, req)
	if err != nil {
		return models.DimensionSubmitResult{Success: false, DimensionsRated: []string{}, Message: err.Error()}
	}

	return models.DimensionSubmitResult{
		Success:         true,
		FeedbackID:      rec.ID,
		DimensionsRated: rec.RatedDimensions(),
		Message:         recordedMessage,
	}
}

// SubmitSuggestion records a free-text suggestion.
func (l *FeedbackLoop) SubmitSuggestion(ctx context.Context, req *models.SubmitTextFeedbackRequest) models.SubmitResult {
	return textResult(l.collector.CollectSuggestion(ctx, req))
}

// SubmitComplaint records a free-text complaint.
func (l *FeedbackLoop) SubmitComplaint(ctx context.Context, req *models.SubmitTextFeedbackRequest) models.SubmitResult {
	return textResult(l.collector.CollectComplaint(ctx, req))
}

func textResult(rec *models.FeedbackRecord, err error) models.SubmitResult {
	if err != nil {
		return models.SubmitResult{Success: false, Message: err.Error()}
	}

	return models.SubmitResult{Success: true, FeedbackID: rec.ID, Message: recordedMessage}
}

// GetUserFeedbackHistory returns userID's most recent limit records in submission order.
func (l *FeedbackLoop) GetUserFeedbackHistory(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error) {
	return l.collector.GetUserFeedback(ctx, userID, limit)
}

// GetFeedbackForMatch returns everything userID said about matchUserID.
func (l *FeedbackLoop) GetFeedbackForMatch(ctx context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error) {
	return l.collector.GetFeedbackForMatch(ctx, userID, matchUserID)
}

// GetAnalytics returns analytics over the last days days with averages, rates, magnitudes
// and confidences rounded to two decimals.
func (l *FeedbackLoop) GetAnalytics(ctx context.Context, days int) (*models.FeedbackAnalytics, error) {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}

	a, err := l.analytics.AnalyzePeriod(ctx, days)
	if err != nil {
		return nil, err
	}

	a.AvgRating = round2(a.AvgRating)

	for i := range a.Patterns {
		a.Patterns[i].Confidence = round2(a.Patterns[i].Confidence)
	}

	for i := range a.Signals {
		a.Signals[i].Magnitude = round2(a.Signals[i].Magnitude)
		a.Signals[i].Confidence = round2(a.Signals[i].Confidence)
	}

	for tier, perf := range a.TierPerformance {
		perf.AvgRating = round2(perf.AvgRating)
		perf.PositiveOutcomeRate = round2(perf.PositiveOutcomeRate)
		a.TierPerformance[tier] = perf
	}

	return a, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GetImprovementRecommendations turns the last 30 days of patterns and signals into
// recommendations, most urgent first.
func (l *FeedbackLoop) GetImprovementRecommendations(ctx context.Context) ([]models.Recommendation, error) {
	a, err := l.analytics.AnalyzePeriod(ctx, RecommendationWindowDays)
	if err != nil {
		return nil, err
	}

	return Recommend(*a), nil
}

// Recommend derives recommendations from one analytics report. Ordering is stable by priority.
func Recommend(a models.FeedbackAnalytics) []models.Recommendation {
	recs := []models.Recommendation{}

	for _, p := range a.Patterns {
		if p.Recommendation == "" || p.Confidence < recommendationMinConfidence {
			continue
		}

		priority := models.PriorityMedium
		if p.Confidence >= highPriorityConfidence {
			priority = models.PriorityHigh
		}

		recs = append(recs, models.Recommendation{
			Type:           models.RecommendationPatternBased,
			Priority:       priority,
			Issue:          p.Description,
			Recommendation: p.Recommendation,
			Confidence:     p.Confidence,
		})
	}

	for _, s := range a.Signals {
		if s.Magnitude < recommendationMinMagnitude || s.EvidenceCount < recommendationMinEvidence {
			continue
		}

		text := fmt.Sprintf("Consider %s for %s dimension", strings.ReplaceAll(string(s.Direction), "_", " "), s.Dimension)

		recs = append(recs, models.Recommendation{
			Type:           models.RecommendationWeightAdjustment,
			Priority:       models.PriorityMedium,
			Dimension:      s.Dimension,
			Direction:      s.Direction,
			Magnitude:      s.Magnitude,
			Recommendation: text,
			Confidence:     s.Confidence,
		})
	}

	slices.SortStableFunc(recs, func(a, b models.Recommendation) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})

	return recs
}

// CloseLoop analyzes the last 7 days and applies every signal with enough confidence and
// evidence to the dimension weight store. A dimension changed within MinInterval is left
// alone, so repeated runs over the same window apply each change once.
func (l *FeedbackLoop) CloseLoop(ctx context.Context) (*models.CloseLoopReport, error) {
	a, err := l.analytics.AnalyzePeriod(ctx, CloseLoopWindowDays)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	report := &models.CloseLoopReport{
		LoopClosed:             true,
		Timestamp:              now,
		Changes:                []models.AppliedChange{},
		TotalFeedbackProcessed: a.TotalFeedback,
	}

	for _, s := range a.Signals {
		if s.Confidence < l.cfg.AutoApplyThreshold || s.EvidenceCount < l.cfg.MinSamples {
			continue
		}

		change := models.AppliedChange{Dimension: s.Dimension, Change: s.Direction, Magnitude: s.Magnitude}

		if !l.cfg.ApplySignals || l.weights == nil {
			change.SkipReason = "advisory"
		} else if err := l.applySignal(ctx, s, now, &change); err != nil {
			return nil, err
		}

		if change.Applied {
			report.ChangesApplied++

			if l.metrics != nil {
				l.metrics.RecordCloseLoopChange(ctx, string(s.Direction))
			}
		}

		l.logger.Info("loop: signal processed",
			"dimension", s.Dimension,
			"direction", s.Direction,
			"magnitude", s.Magnitude,
			"applied", change.Applied,
			"skip_reason", change.SkipReason,
		)

		report.Changes = append(report.Changes, change)
	}

	return report, nil
}

func (l *FeedbackLoop) applySignal(
	ctx context.Context, s models.LearningSignal, now time.Time, change *models.AppliedChange,
) error {
	current, err := l.weights.GetWeight(ctx, s.Dimension)
	if err != nil {
		return fmt.Errorf("get %s weight: %w", s.Dimension, err)
	}

	weight := defaultDimensionWeight
	if current != nil {
		weight = current.Weight

		if current.LastAppliedAt != nil && now.Sub(*current.LastAppliedAt) < l.cfg.MinInterval {
			change.SkipReason = "applied within min interval"

			return nil
		}
	}

	step := l.cfg.WeightStep * s.Magnitude
	if s.Direction == models.DirectionDecrease {
		step = -step
	}

	newWeight := min(max(weight*(1+step), l.cfg.MinWeight), l.cfg.MaxWeight)

	if err := l.weights.SaveWeight(ctx, &models.DimensionWeight{
		Dimension:     s.Dimension,
		Weight:        newWeight,
		UpdatedAt:     now,
		LastAppliedAt: &now,
	}); err != nil {
		return fmt.Errorf("save %s weight: %w", s.Dimension, err)
	}

	change.Applied = true
	change.NewWeight = &newWeight

	return nil
}
