package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/reciprocity/matchloop/internal/apperrors"
	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
	"github.com/reciprocity/matchloop/pkg/embeddings"
)

const (
	learnedMessage     = "Feedback processed successfully"
	noEmbeddingMessage = "no embeddings found for user"
)

var errNoEmbeddings = errors.New(noEmbeddingMessage)

// FeedbackLearnerParams configures a FeedbackLearner.
type FeedbackLearnerParams struct {
	Embeddings EmbeddingStore
	Cache      CacheInvalidator // optional
	Analyzer   *FeedbackAnalyzer
	Config     config.LearningConfig
	Metrics    observability.FeedbackMetrics // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

// FeedbackLearner nudges a user's stored embeddings in the direction of their feedback.
// Work for one user is serialized; stores use the embedding version so concurrent
// processes cannot overwrite each other's adjustments.
type FeedbackLearner struct {
	store    EmbeddingStore
	cache    CacheInvalidator
	analyzer *FeedbackAnalyzer
	cfg      config.LearningConfig
	metrics  observability.FeedbackMetrics
	logger   *slog.Logger
	now      func() time.Time
	locks    *userLocks

	historyMu sync.Mutex
	history   map[string][]models.AdjustmentRecord
}

// NewFeedbackLearner creates a FeedbackLearner.
func NewFeedbackLearner(p FeedbackLearnerParams) *FeedbackLearner {
	analyzer := p.Analyzer
	if analyzer == nil {
		analyzer = NewFeedbackAnalyzer()
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	cfg := p.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	return &FeedbackLearner{
		store:    p.Embeddings,
		cache:    p.Cache,
		analyzer: analyzer,
		cfg:      cfg,
		metrics:  p.Metrics,
		logger:   logger,
		now:      now,
		locks:    newUserLocks(),
		history:  make(map[string][]models.AdjustmentRecord),
	}
}

// EffectiveLearningRate scales the base rate by confidence when enabled and clamps the
// result to [MinLearningRate, MaxLearningRate].
func EffectiveLearningRate(cfg config.LearningConfig, confidence float64) float64 {
	rate := cfg.BaseLearningRate
	if cfg.ConfidenceScaling {
		rate *= confidence
	}

	return min(max(rate, cfg.MinLearningRate), cfg.MaxLearningRate)
}

func targetKinds(portion string) []models.EmbeddingKind {
	switch portion {
	case config.TargetOfferings:
		return []models.EmbeddingKind{models.KindOfferings}
	case config.TargetBoth:
		return []models.EmbeddingKind{models.KindRequirements, models.KindOfferings}
	default:
		return []models.EmbeddingKind{models.KindRequirements}
	}
}

// ProcessFeedback analyzes req.FeedbackText and applies the resulting adjustment to every
// embedding kind in the configured target portion. It never returns an error; failures are
// reported through Success and Message.
func (l *FeedbackLearner) ProcessFeedback(ctx context.Context, req models.LearnRequest) models.LearningResult {
	analysis := l.analyzer.Analyze(req.FeedbackText, req.MatchContext)
	rate := EffectiveLearningRate(l.cfg, analysis.Confidence)
	factor := 1 + rate*analysis.SuggestedAdjustment

	unlock := l.locks.lock(req.UserID)
	defer unlock()

	updates, err := l.adjustAll(ctx, req, analysis, rate, factor)

	var invalidationFailed bool
	if len(updates) > 0 {
		invalidationFailed = !l.invalidate(ctx, req.UserID)
	}

	if err != nil {
		status := "failed"
		if errors.Is(err, errNoEmbeddings) {
			status = "no_embeddings"
		}

		l.recordOutcome(ctx, status)
		l.logger.Warn("learner: feedback not applied",
			"user_id", req.UserID, "feedback_type", req.FeedbackType, "stored", len(updates), "error", err)

		if updates == nil {
			updates = []models.EmbeddingUpdate{}
		}

		return models.LearningResult{
			Success:                 false,
			Message:                 err.Error(),
			Analysis:                &analysis,
			Updates:                 updates,
			CacheInvalidationFailed: invalidationFailed,
		}
	}

	l.recordHistory(req, analysis, rate, factor)
	l.recordOutcome(ctx, "applied")

	if l.metrics != nil {
		l.metrics.RecordAdjustmentFactor(ctx, factor)
	}

	l.logger.Info("learner: feedback applied",
		"user_id", req.UserID,
		"feedback_type", req.FeedbackType,
		"sentiment", analysis.Sentiment,
		"factor", factor,
		"updates", len(updates),
	)

	return models.LearningResult{
		Success:                 true,
		Message:                 learnedMessage,
		Analysis:                &analysis,
		Updates:                 updates,
		CacheInvalidationFailed: invalidationFailed,
	}
}

// invalidate drops the user's cached matches, retrying once. It reports whether the cache
// was cleared (true when no cache is configured).
func (l *FeedbackLearner) invalidate(ctx context.Context, userID string) bool {
	if l.cache == nil {
		return true
	}

	if l.cache.InvalidateCache(ctx, userID) || l.cache.InvalidateCache(ctx, userID) {
		return true
	}

	l.logger.Warn("learner: cache invalidation failed, stale matches may be served until TTL",
		"user_id", userID)

	return false
}

// adjustAll reads and validates every target embedding before storing any, so a malformed
// vector leaves all kinds untouched. Updates stored before a later store failure are
// returned together with the error.
func (l *FeedbackLearner) adjustAll(
	ctx context.Context, req models.LearnRequest, analysis models.FeedbackAnalysis, rate, factor float64,
) ([]models.EmbeddingUpdate, error) {
	var current []*models.Embedding

	for _, kind := range targetKinds(l.cfg.TargetPortion) {
		emb, err := l.readValid(ctx, req.UserID, kind)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		current = append(current, emb)
	}

	if len(current) == 0 {
		return nil, errNoEmbeddings
	}

	var updates []models.EmbeddingUpdate

	for _, emb := range current {
		if err := l.adjustKind(ctx, req, emb, analysis, rate, factor); err != nil {
			return updates, err
		}

		updates = append(updates, models.EmbeddingUpdate{Kind: emb.Kind, Updated: true, Adjustment: factor})
	}

	return updates, nil
}

func (l *FeedbackLearner) readValid(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
	emb, err := l.getEmbedding(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	if err := embeddings.Validate(emb.Vector); err != nil {
		return nil, fmt.Errorf("%s embedding for user %s: %w", kind, userID, err)
	}

	emb.Kind = kind

	return emb, nil
}

// adjustKind adjusts and stores emb, re-reading after a version conflict.
func (l *FeedbackLearner) adjustKind(
	ctx context.Context,
	req models.LearnRequest,
	emb *models.Embedding,
	analysis models.FeedbackAnalysis,
	rate, factor float64,
) error {
	kind := emb.Kind

	var lastErr error

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			var err error

			emb, err = l.readValid(ctx, req.UserID, kind)
			if err != nil {
				return err
			}
		}

		emb.Vector = embeddings.AdjustAndNormalize(emb.Vector, factor, l.cfg.NormalizeVectors)
		emb.Metadata = models.EmbeddingMetadata{
			FeedbackAdjusted:   true,
			AdjustmentFactor:   factor,
			LearningRate:       rate,
			Sentiment:          analysis.Sentiment,
			Confidence:         analysis.Confidence,
			AffectedDimensions: analysis.DimensionNames(),
			FeedbackType:       req.FeedbackType,
			UpdatedAt:          l.now().UTC(),
		}

		err := l.storeEmbedding(ctx, emb)
		if err == nil {
			return nil
		}

		if !errors.Is(err, apperrors.ErrConflict) {
			return fmt.Errorf("store %s embedding: %w", kind, err)
		}

		lastErr = err

		if l.metrics != nil {
			l.metrics.RecordVersionConflict(ctx)
		}

		l.logger.Debug("learner: version conflict, retrying",
			"user_id", req.UserID, "kind", kind, "attempt", attempt)
	}

	return fmt.Errorf("store %s embedding after %d attempts: %w", kind, l.cfg.MaxAttempts, lastErr)
}

func (l *FeedbackLearner) getEmbedding(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
	ctx, cancel := l.storeContext(ctx)
	defer cancel()

	return l.store.GetEmbedding(ctx, userID, kind)
}

func (l *FeedbackLearner) storeEmbedding(ctx context.Context, emb *models.Embedding) error {
	ctx, cancel := l.storeContext(ctx)
	defer cancel()

	_, err := l.store.StoreEmbedding(ctx, emb, emb.Version)

	return err
}

func (l *FeedbackLearner) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, l.cfg.StoreTimeout)
}

func (l *FeedbackLearner) recordOutcome(ctx context.Context, status string) {
	if l.metrics != nil {
		l.metrics.RecordLearningOutcome(ctx, status)
	}
}

func (l *FeedbackLearner) recordHistory(req models.LearnRequest, analysis models.FeedbackAnalysis, rate, factor float64) {
	rec := models.AdjustmentRecord{
		Timestamp:        l.now().UTC(),
		FeedbackType:     req.FeedbackType,
		Sentiment:        analysis.Sentiment,
		AdjustmentFactor: factor,
		LearningRate:     rate,
		Dimensions:       analysis.DimensionNames(),
	}

	l.historyMu.Lock()
	defer l.historyMu.Unlock()

	h := append(l.history[req.UserID], rec)
	if l.cfg.MaxHistory > 0 && len(h) > l.cfg.MaxHistory {
		h = slices.Clone(h[len(h)-l.cfg.MaxHistory:])
	}

	l.history[req.UserID] = h
}

// AdjustmentHistory returns a copy of userID's adjustments, oldest first.
func (l *FeedbackLearner) AdjustmentHistory(userID string) []models.AdjustmentRecord {
	l.historyMu.Lock()
	defer l.historyMu.Unlock()

	return slices.Clone(l.history[userID])
}

// AdjustmentStats summarises userID's adjustment history.
func (l *FeedbackLearner) AdjustmentStats(userID string) models.AdjustmentStats {
	history := l.AdjustmentHistory(userID)
	stats := models.AdjustmentStats{UserID: userID, TotalAdjustments: len(history)}

	if len(history) == 0 {
		return stats
	}

	var deltaSum float64

	for _, h := range history {
		delta := h.AdjustmentFactor - 1
		deltaSum += delta

		switch {
		case delta > 0:
			stats.PositiveAdjustments++
		case delta < 0:
			stats.NegativeAdjustments++
		}
	}

	last := history[len(history)-1]
	stats.AvgFactorDelta = deltaSum / float64(len(history))
	stats.LastAdjustment = &last

	return stats
}
