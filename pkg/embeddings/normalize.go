// Package embeddings provides utilities for embedding vectors (norms, scaling, similarity).
package embeddings

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedVector is returned when a stored vector cannot be used for arithmetic
// (empty, or containing NaN/Inf components).
var ErrMalformedVector = errors.New("malformed embedding vector")

// Norm returns the L2 norm of vector. Sums are accumulated in float64.
func Norm(vector []float32) float64 {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	return math.Sqrt(sumSquares)
}

// Validate reports ErrMalformedVector when vector is empty or has a non-finite component.
func Validate(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}

	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrMalformedVector, i)
		}
	}

	return nil
}

// ScaleToNorm rescales vector in place so its L2 norm equals target.
// A zero vector is left untouched.
func ScaleToNorm(vector []float32, target float64) {
	current := Norm(vector)
	if current == 0 {
		return
	}

	scale := target / current
	for i := range vector {
		vector[i] = float32(float64(vector[i]) * scale)
	}
}

// AdjustAndNormalize returns a new vector with every component multiplied by factor.
// When normalize is true the result is rescaled back to the norm of the input, so
// repeated adjustments cannot inflate or deflate the vector. The input is not modified.
func AdjustAndNormalize(vector []float32, factor float64, normalize bool) []float32 {
	original := Norm(vector)

	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(float64(v) * factor)
	}

	if normalize {
		ScaleToNorm(out, original)
	}

	return out
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (na * nb)
}
