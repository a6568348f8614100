package embedding

import (
	"context"
	"math"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus, and must be
// deterministic for a fixed model and corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Normalize scales vec to unit L2 length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float64) []float64 {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Dot is the inner product over the shared prefix of a and b.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
