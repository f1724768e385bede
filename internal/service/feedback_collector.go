package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
)

const defaultUserFeedbackLimit = 50

// FeedbackCollector turns submissions into feedback records and appends them to the log.
// It never triggers learning; see FeedbackLoop.
type FeedbackCollector struct {
	store   FeedbackStore
	metrics observability.FeedbackMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewFeedbackCollector creates a FeedbackCollector. metrics may be nil.
func NewFeedbackCollector(store FeedbackStore, metrics observability.FeedbackMetrics, logger *slog.Logger) *FeedbackCollector {
	if logger == nil {
		logger = slog.Default()
	}

	return &FeedbackCollector{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// CollectMatchRating records a rating of a presented match. Out-of-range ratings are clamped.
func (c *FeedbackCollector) CollectMatchRating(
	ctx context.Context, req *models.SubmitMatchFeedbackRequest,
) (*models.FeedbackRecord, error) {
	rating := 0
	if req.Rating != nil {
		rating = *req.Rating
	}

	rec := models.NewMatchRating(req.UserID, req.MatchUserID, rating, req.Comment, req.MatchTier, req.MatchScore, c.now())

	return c.append(ctx, &rec)
}

// CollectConnectionOutcome records what happened after a connection. Unknown outcomes are stored as nil.
func (c *FeedbackCollector) CollectConnectionOutcome(
	ctx context.Context, req *models.SubmitOutcomeFeedbackRequest,
) (*models.FeedbackRecord, error) {
	rec := models.NewConnectionOutcome(req.UserID, req.MatchUserID, req.Outcome, req.Details, c.now())

	return c.append(ctx, &rec)
}

// CollectDimensionFeedback records per-dimension ratings of a match.
func (c *FeedbackCollector) CollectDimensionFeedback(
	ctx context.Context, req *models.SubmitDimensionFeedbackRequest,
) (*models.FeedbackRecord, error) {
	rec := models.NewDimensionFeedback(req.UserID, req.MatchUserID, req.DimensionRatings, req.Comment, c.now())

	return c.append(ctx, &rec)
}

// CollectSuggestion records a free-text suggestion.
func (c *FeedbackCollector) CollectSuggestion(
	ctx context.Context, req *models.SubmitTextFeedbackRequest,
) (*models.FeedbackRecord, error) {
	rec := models.NewSuggestion(req.UserID, req.MatchUserID, req.Text, c.now())

	return c.append(ctx, &rec)
}

// CollectComplaint records a free-text complaint.
func (c *FeedbackCollector) CollectComplaint(
	ctx context.Context, req *models.SubmitTextFeedbackRequest,
) (*models.FeedbackRecord, error) {
	rec := models.NewComplaint(req.UserID, req.MatchUserID, req.Text, c.now())

	return c.append(ctx, &rec)
}

func (c *FeedbackCollector) append(ctx context.Context, rec *models.FeedbackRecord) (*models.FeedbackRecord, error) {
	if err := c.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append %s feedback: %w", rec.Type, err)
	}

	if c.metrics != nil {
		c.metrics.RecordSubmitted(ctx, string(rec.Type))
	}

	c.logger.Debug("collector: feedback recorded",
		"feedback_id", rec.ID, "user_id", rec.UserID, "feedback_type", rec.Type)

	return rec, nil
}

// GetUserFeedback returns userID's most recent limit records in submission order.
// A non-positive limit means 50.
func (c *FeedbackCollector) GetUserFeedback(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error) {
	if limit <= 0 {
		limit = defaultUserFeedbackLimit
	}

	return c.store.ListByUser(ctx, userID, limit)
}

// GetFeedbackForMatch returns everything userID said about matchUserID.
func (c *FeedbackCollector) GetFeedbackForMatch(ctx context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error) {
	return c.store.ListForMatch(ctx, userID, matchUserID)
}
