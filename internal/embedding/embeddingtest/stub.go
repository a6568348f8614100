// Package embeddingtest provides a deterministic embedder for tests and fixtures.
package embeddingtest

import (
	"context"

	"safetyqa/internal/embedding"
)

// Stub returns a fixed vector per text. Texts without an entry get Default.
// Vectors are returned as copies and are not normalized.
type Stub struct {
	Vectors map[string][]float64
	Default []float64
	Dim     int
	Err     error
}

var _ embedding.Embedder = (*Stub)(nil)

func (s *Stub) Name() string          { return "stub" }
func (s *Stub) Prepare([]string) error { return nil }
func (s *Stub) Dimension() int        { return s.Dim }

func (s *Stub) Embed(_ context.Context, text string) ([]float64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	v, ok := s.Vectors[text]
	if !ok {
		v = s.Default
	}
	if v == nil {
		v = make([]float64, s.Dim)
	}
	return append([]float64(nil), v...), nil
}

func (s *Stub) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
