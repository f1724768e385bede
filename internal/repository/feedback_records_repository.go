package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reciprocity/matchloop/internal/models"
)

const feedbackColumns = `id, user_id, match_user_id, feedback_type, rating, outcome,
	dimension_ratings, free_text, match_tier, match_score, created_at`

// feedbackFilter selects feedback rows. Zero fields are ignored.
type feedbackFilter struct {
	UserID      string
	MatchUserID string
	Since       *time.Time
	// NewestFirst with Limit returns the most recent rows; callers restore ascending order.
	NewestFirst bool
	Limit       int
}

// buildFeedbackQuery builds the SELECT for filter and its arguments.
func buildFeedbackQuery(filter feedbackFilter) (query string, args []any) {
	var conditions []string

	argCount := 1

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argCount))
		args = append(args, filter.UserID)
		argCount++
	}

	if filter.MatchUserID != "" {
		conditions = append(conditions, fmt.Sprintf("match_user_id = $%d", argCount))
		args = append(args, filter.MatchUserID)
		argCount++
	}

	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCount))
		args = append(args, *filter.Since)
		argCount++
	}

	query = "SELECT " + feedbackColumns + " FROM match_feedback"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if filter.NewestFirst {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, filter.Limit)
	}

	return query, args
}

// FeedbackRecordsRepository handles data access for the match_feedback table.
type FeedbackRecordsRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRecordsRepository creates a new feedback records repository.
func NewFeedbackRecordsRepository(db *pgxpool.Pool) *FeedbackRecordsRepository {
	return &FeedbackRecordsRepository{db: db}
}

// Append inserts rec. Records are never updated afterwards.
func (r *FeedbackRecordsRepository) Append(ctx context.Context, rec *models.FeedbackRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO match_feedback (`+feedbackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.UserID, rec.MatchUserID, string(rec.Type), rec.Rating, outcomeString(rec.Outcome),
		dimensionRatingsParam(rec.DimensionRatings), rec.FreeText, tierString(rec.MatchTier), rec.MatchScore,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback record: %w", err)
	}

	return nil
}

// ListByUser returns the user's most recent limit records, oldest first.
func (r *FeedbackRecordsRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error) {
	query, args := buildFeedbackQuery(feedbackFilter{UserID: userID, NewestFirst: true, Limit: limit})

	records, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	slices.Reverse(records)

	return records, nil
}

// ListSince returns every record with a timestamp at or after since, oldest first.
func (r *FeedbackRecordsRepository) ListSince(ctx context.Context, since time.Time) ([]models.FeedbackRecord, error) {
	query, args := buildFeedbackQuery(feedbackFilter{Since: &since})

	return r.query(ctx, query, args...)
}

// ListForMatch returns the records userID submitted about matchUserID, oldest first.
func (r *FeedbackRecordsRepository) ListForMatch(
	ctx context.Context, userID, matchUserID string,
) ([]models.FeedbackRecord, error) {
	query, args := buildFeedbackQuery(feedbackFilter{UserID: userID, MatchUserID: matchUserID})

	return r.query(ctx, query, args...)
}

func (r *FeedbackRecordsRepository) query(ctx context.Context, query string, args ...any) ([]models.FeedbackRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback records: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanFeedbackRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan feedback records: %w", err)
	}

	return records, nil
}

func scanFeedbackRecord(row pgx.CollectableRow) (models.FeedbackRecord, error) {
	var (
		rec      models.FeedbackRecord
		feedType string
		rating   *int16
		outcome  *string
		tier     *string
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.MatchUserID, &feedType, &rating, &outcome,
		&rec.DimensionRatings, &rec.FreeText, &tier, &rec.MatchScore, &rec.Timestamp,
	)
	if err != nil {
		return rec, err
	}

	rec.Type = models.FeedbackType(feedType)

	if rating != nil {
		v := int(*rating)
		rec.Rating = &v
	}

	if outcome != nil {
		rec.Outcome = models.ParseConnectionOutcome(*outcome)
	}

	if tier != nil {
		t := models.MatchTier(*tier)
		rec.MatchTier = &t
	}

	return rec, nil
}

func outcomeString(o *models.ConnectionOutcome) *string {
	if o == nil {
		return nil
	}

	s := string(*o)

	return &s
}

func tierString(t *models.MatchTier) *string {
	if t == nil {
		return nil
	}

	s := string(*t)

	return &s
}

// dimensionRatingsParam keeps nil maps as SQL NULL rather than 'null'::jsonb.
func dimensionRatingsParam(m map[string]int) any {
	if m == nil {
		return nil
	}

	return m
}
