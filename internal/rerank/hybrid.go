// Package rerank rescores vector candidates with a keyword overlap signal.
package rerank

import (
	"context"
	"math"
	"sort"

	"safetyqa/internal/domain"
	"safetyqa/internal/lexical"
)

// Defaults used when a Hybrid is built with zero values.
const (
	DefaultAlpha      = 0.7
	DefaultOversample = 5
)

// Hybrid blends normalized vector similarity with keyword overlap:
//
//	final = alpha*vector_norm + (1-alpha)*keyword_norm
//
// It holds no mutable state and is safe for concurrent use.
type Hybrid struct {
	searcher   domain.Searcher
	alpha      float64
	oversample int
}

var _ domain.Reranker = (*Hybrid)(nil)

// NewHybrid builds a reranker over searcher. An oversample below 1 falls back to
// DefaultOversample. Alpha is used as given.
func NewHybrid(searcher domain.Searcher, alpha float64, oversample int) *Hybrid {
	if oversample < 1 {
		oversample = DefaultOversample
	}
	return &Hybrid{searcher: searcher, alpha: alpha, oversample: oversample}
}

// Alpha returns the vector-similarity weight.
func (h *Hybrid) Alpha() float64 { return h.alpha }

// Rerank over-fetches k*oversample candidates, rescores them and returns the
// best k by final score. Equal final scores keep the candidate order.
func (h *Hybrid) Rerank(ctx context.Context, query string, k int) ([]domain.RerankedResult, error) {
	if k <= 0 {
		return []domain.RerankedResult{}, nil
	}
	pool, err := h.searcher.Search(ctx, query, k*h.oversample)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []domain.RerankedResult{}, nil
	}

	vecNorm := normalizeScores(pool)
	tokens := lexical.Tokenize(query)

	out := make([]domain.RerankedResult, len(pool))
	for i, r := range pool {
		kw := KeywordScore(r.ChunkText, tokens)
		out[i] = domain.RerankedResult{
			ChunkID:          r.ChunkID,
			ChunkText:        r.ChunkText,
			SourceTitle:      r.SourceTitle,
			SourceURL:        r.SourceURL,
			VectorScore:      r.Score,
			VectorScoreNorm:  vecNorm[i],
			KeywordScoreNorm: kw,
			FinalScore:       h.alpha*vecNorm[i] + (1-h.alpha)*kw,
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// KeywordScore is the summed substring count of tokens in text divided by the
// number of tokens, capped at 1. It is a saturating count, not a proportion:
// one token repeated twice scores the same as two distinct tokens found once.
func KeywordScore(text string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	matches := lexical.CountOccurrences(text, tokens)
	return math.Min(1.0, float64(matches)/float64(len(tokens)))
}

// normalizeScores clips scores at zero and divides by the pool maximum.
// If nothing is positive every normalized score is zero.
func normalizeScores(pool []domain.SearchResult) []float64 {
	norm := make([]float64, len(pool))
	maxScore := 0.0
	for i, r := range pool {
		norm[i] = math.Max(0, r.Score)
		maxScore = math.Max(maxScore, norm[i])
	}
	if maxScore == 0 {
		return norm
	}
	for i := range norm {
		norm[i] /= maxScore
	}
	return norm
}
