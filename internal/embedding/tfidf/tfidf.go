package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"safetyqa/internal/embedding"
)

// ErrNotPrepared is returned by Embed before Prepare has been called.
var ErrNotPrepared = errors.New("tfidf embedder not prepared")

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Embedder implements a TF-IDF vectorizer over a sorted corpus vocabulary.
// Output vectors are L2-normalized, so inner product equals cosine similarity.
// After Prepare returns the embedder is read-only and safe for concurrent use.
type Embedder struct {
	vocabulary map[string]int
	idf        []float64
	prepared   bool
	stopwords  map[string]struct{}
}

var _ embedding.Embedder = (*Embedder)(nil)

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		stopwords:  defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and smoothed IDF values from the corpus.
// An empty corpus prepares a zero-dimension embedder whose vectors are empty.
func (e *Embedder) Prepare(corpus []string) error {
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(corpus) > 0 && len(df) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float64, len(terms))
	for i, term := range terms {
		e.vocabulary[term] = i
		e.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.prepared = true
	return nil
}

// Dimension returns the vocabulary size.
func (e *Embedder) Dimension() int { return len(e.idf) }

// Embed computes the normalized TF-IDF vector for text. Text without any
// vocabulary term yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if !e.prepared {
		return nil, ErrNotPrepared
	}
	vec := make([]float64, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx]
	}
	return embedding.Normalize(vec), nil
}

// EmbedBatch embeds every text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "when", "where", "why", "do", "does", "must", "any",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
