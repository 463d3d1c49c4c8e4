package vectorizer

import (
	"context"
	"hash/fnv"
	"math"
)

// Static is a deterministic in-process embedder. It hashes the input
// text into a seed and expands it into a unit vector, so equal texts
// always embed identically. Used by tests and embedding-free local runs.
type Static struct {
	dimensions int
}

// NewStatic builds a static embedder with the given dimension.
func NewStatic(dimensions int) *Static {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Static{dimensions: dimensions}
}

// Embed generates a deterministic unit vector from the text hash.
func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float32, s.dimensions)
	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		vector[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vector), nil
}

// EmbedBatch embeds every text; static embedding cannot fail per item.
func (s *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i], _ = s.Embed(ctx, text)
	}
	return vectors, nil
}

// Ready always succeeds.
func (s *Static) Ready(context.Context) bool { return true }

// Dimensions returns the embedding size.
func (s *Static) Dimensions() int { return s.dimensions }

func normalize(vector []float32) []float32 {
	var norm float32
	for _, v := range vector {
		norm += v * v
	}
	if norm == 0 {
		return vector
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vector {
		vector[i] = v / norm
	}
	return vector
}
