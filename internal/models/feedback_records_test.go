package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatchRating_ClampsRating(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in, want int
	}{
		{in: 7, want: 5},
		{in: -3, want: 1},
		{in: 0, want: 1},
		{in: 3, want: 3},
		{in: 5, want: 5},
	}

	for _, tt := range tests {
		rec := NewMatchRating("u1", "u2", tt.in, nil, nil, nil, now)
		require.NotNil(t, rec.Rating)
		assert.Equal(t, tt.want, *rec.Rating, "rating %d", tt.in)
		assert.Equal(t, FeedbackMatchRating, rec.Type)
		assert.Nil(t, rec.Outcome)
		assert.Nil(t, rec.DimensionRatings)
	}
}

func TestNewMatchRating_ClampIsIdempotent(t *testing.T) {
	first := NewMatchRating("u1", "u2", 9, nil, nil, nil, time.Now())
	second := NewMatchRating("u1", "u2", *first.Rating, nil, nil, nil, time.Now())
	assert.Equal(t, *first.Rating, *second.Rating)
}

func TestNewConnectionOutcome(t *testing.T) {
	now := time.Now()

	rec := NewConnectionOutcome("u1", "u2", "successful_deal", nil, now)
	require.NotNil(t, rec.Outcome)
	assert.Equal(t, OutcomeSuccessfulDeal, *rec.Outcome)

	rec = NewConnectionOutcome("u1", "u2", "became_friends", nil, now)
	assert.Nil(t, rec.Outcome)
	assert.Equal(t, FeedbackConnectionOutcome, rec.Type)
	assert.Nil(t, rec.Rating)
}

func TestNewDimensionFeedback_ClampsEachRating(t *testing.T) {
	rec := NewDimensionFeedback("u1", "u2", map[string]int{"geography": 9, "stage": 0, "vibe": 4}, nil, time.Now())

	assert.Equal(t, map[string]int{"geography": 5, "stage": 1, "vibe": 4}, rec.DimensionRatings)
	assert.Equal(t, []string{"geography", "stage", "vibe"}, rec.RatedDimensions())
}

func TestNewRecord_IDsAndFreeText(t *testing.T) {
	empty := ""
	a := NewMatchRating("u1", "u2", 4, &empty, nil, nil, time.Now())
	b := NewSuggestion("u1", "", "more investors please", time.Now())

	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.FreeText)
	require.NotNil(t, b.FreeText)
	assert.Equal(t, "more investors please", *b.FreeText)
	assert.Equal(t, FeedbackSuggestion, b.Type)
	assert.Equal(t, FeedbackComplaint, NewComplaint("u1", "u2", "spam", time.Now()).Type)
}

func TestConnectionOutcome_IsPositive(t *testing.T) {
	assert.True(t, OutcomeSuccessfulDeal.IsPositive())
	assert.True(t, OutcomeValuableConversation.IsPositive())
	assert.False(t, OutcomeNoResponse.IsPositive())
	assert.False(t, OutcomeNegativeExperience.IsPositive())
}
