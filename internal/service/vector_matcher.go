package service

import (
	"context"

	"github.com/reciprocity/matchloop/internal/models"
)

// nearestUsersFinder is the vector search the matcher needs.
type nearestUsersFinder interface {
	NearestUsers(ctx context.Context, userID string, limit int, minScore float64) ([]models.MatchCandidate, error)
}

// VectorMatcher matches a user's requirements embedding against everyone else's offerings.
type VectorMatcher struct {
	finder   nearestUsersFinder
	minScore float64
}

// NewVectorMatcher creates a VectorMatcher that drops candidates scoring below minScore.
func NewVectorMatcher(finder nearestUsersFinder, minScore float64) *VectorMatcher {
	return &VectorMatcher{finder: finder, minScore: minScore}
}

// FindMatches returns up to limit candidates, best first, each tagged with its tier.
func (m *VectorMatcher) FindMatches(ctx context.Context, userID string, limit int) ([]models.MatchCandidate, error) {
	candidates, err := m.finder.NearestUsers(ctx, userID, limit, m.minScore)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		tier := models.TierForScore(candidates[i].Score)
		candidates[i].Tier = &tier
	}

	return candidates, nil
}
