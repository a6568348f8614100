// Package search is the dense-vector baseline stage: it embeds the query, asks
// the nearest-neighbor index for the closest positions and joins the chunks back in.
package search

import (
	"context"
	"fmt"

	"safetyqa/internal/domain"
	"safetyqa/internal/embedding"
	"safetyqa/internal/index"
)

// Engine is immutable after New and safe for concurrent Search calls.
type Engine struct {
	embedder embedding.Embedder
	index    index.NearestNeighborIndex
	ids      index.IDMap
	chunks   map[int64]domain.Chunk
}

var _ domain.Searcher = (*Engine)(nil)

// New wires an engine over a loaded index. The id map must cover every index
// position, and every mapped id must resolve to one of chunks.
func New(emb embedding.Embedder, idx index.NearestNeighborIndex, ids index.IDMap, chunks []domain.Chunk) (*Engine, error) {
	if len(ids) != idx.Len() {
		return nil, fmt.Errorf("id map has %d entries but index has %d vectors", len(ids), idx.Len())
	}
	lookup := make(map[int64]domain.Chunk, len(chunks))
	for _, c := range chunks {
		lookup[c.ID] = c
	}
	for pos, id := range ids {
		if _, ok := lookup[id]; !ok {
			return nil, fmt.Errorf("%w: id %d at index position %d", domain.ErrChunkNotFound, id, pos)
		}
	}
	return &Engine{embedder: emb, index: idx, ids: ids, chunks: lookup}, nil
}

// Search returns at most k chunks ordered by descending cosine similarity.
// An empty index or a non-positive k yields no results.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 || e.index.Len() == 0 {
		return []domain.SearchResult{}, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := embedding.Normalize(append([]float64(nil), vec...))

	neighbors, err := e.index.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		id, err := e.ids.ChunkID(n.Position)
		if err != nil {
			return nil, err
		}
		c, ok := e.chunks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrChunkNotFound, id)
		}
		results = append(results, domain.SearchResult{
			ChunkID:     c.ID,
			ChunkText:   c.Text,
			SourceTitle: c.SourceTitle,
			SourceURL:   c.SourceURL,
			Score:       n.Score,
		})
	}
	return results, nil
}

// Size returns the number of indexed chunks.
func (e *Engine) Size() int { return e.index.Len() }
