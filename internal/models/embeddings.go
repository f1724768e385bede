package models

import (
	"time"
)

// EmbeddingKind identifies which side of a user's profile a vector describes.
type EmbeddingKind string

// Embedding kinds.
const (
	KindRequirements EmbeddingKind = "requirements"
	KindOfferings    EmbeddingKind = "offerings"
)

// Embedding is one stored vector per (user, kind). It is replaced wholesale on every store;
// Version increments each time so concurrent writers can detect lost updates.
type Embedding struct {
	UserID    string            `json:"user_id"`
	Kind      EmbeddingKind     `json:"kind"`
	Vector    []float32         `json:"vector"`
	Metadata  EmbeddingMetadata `json:"metadata"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// EmbeddingMetadata records the provenance of the most recent feedback adjustment.
// Zero value means the vector has never been adjusted.
type EmbeddingMetadata struct {
	FeedbackAdjusted   bool      `json:"feedback_adjusted"`
	AdjustmentFactor   float64   `json:"adjustment_factor,omitempty"`
	LearningRate       float64   `json:"learning_rate,omitempty"`
	Sentiment          Sentiment `json:"sentiment,omitempty"`
	Confidence         float64   `json:"confidence,omitempty"`
	AffectedDimensions []string  `json:"affected_dimensions,omitempty"`
	FeedbackType       string    `json:"feedback_type,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitzero"`
}

// EmbeddingUpdate describes one vector changed by a learning pass.
type EmbeddingUpdate struct {
	Kind       EmbeddingKind `json:"type"`
	Updated    bool          `json:"updated"`
	Adjustment float64       `json:"adjustment"`
}
