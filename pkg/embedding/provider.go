package embedding

import (
	"context"
	"math"
)

// EmbeddingProvider turns text into fixed-dimension vectors. Every vector
// returned by one provider instance has the same length.
type EmbeddingProvider interface {
	// EmbedDocuments embeds a batch of texts; result i belongs to texts[i].
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// normalizeVector scales vec to unit length. Zero vectors are returned as-is.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
