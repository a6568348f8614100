package domain

import (
	"context"
	"errors"
)

var (
	// ErrChunkNotFound is returned when a chunk id has no entry in the store.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Chunk is a slice of extracted document text with its source attribution.
// It is the unit of retrieval and is never mutated after ingestion.
type Chunk struct {
	ID          int64   `json:"id"`
	Text        string  `json:"chunk_text"`
	SourceTitle string  `json:"source_title"`
	SourceURL   *string `json:"source_url"`
}

// NewChunk is a chunk that has not been assigned an id yet.
type NewChunk struct {
	Text        string
	SourceTitle string
	SourceURL   *string
}

// SearchResult is a chunk matched by vector similarity.
type SearchResult struct {
	ChunkID     int64
	ChunkText   string
	SourceTitle string
	SourceURL   *string
	Score       float64
}

// RerankedResult is a candidate rescored by the hybrid reranker.
type RerankedResult struct {
	ChunkID          int64
	ChunkText        string
	SourceTitle      string
	SourceURL        *string
	VectorScore      float64
	VectorScoreNorm  float64
	KeywordScoreNorm float64
	FinalScore       float64
}

// ChunkReader gives read access to the persisted chunk collection.
type ChunkReader interface {
	All(ctx context.Context) ([]Chunk, error)
	Get(ctx context.Context, id int64) (Chunk, error)
	Count() (int, error)
}

// ChunkWriter appends freshly extracted chunks and returns their assigned ids.
type ChunkWriter interface {
	Append(ctx context.Context, chunks []NewChunk) ([]int64, error)
}

// Chunker splits extracted document text into retrievable pieces.
type Chunker interface {
	Chunk(text string) []string
}

// TextExtractor pulls plain text out of a raw document.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// Searcher is the vector search stage of the pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// Reranker is the hybrid rescoring stage of the pipeline.
type Reranker interface {
	Rerank(ctx context.Context, query string, k int) ([]RerankedResult, error)
}
