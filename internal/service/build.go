package service

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"safetyqa/internal/config"
	"safetyqa/internal/domain"
	"safetyqa/internal/embedding"
	"safetyqa/internal/index"
	"safetyqa/internal/index/flat"
)

// BuildSummary reports the shape of a freshly built index.
type BuildSummary struct {
	Vectors   int
	Dimension int
}

// BuildIndex embeds every stored chunk and writes the configured index plus the
// position-to-id map. Position i always holds the i-th chunk in id order.
func BuildIndex(ctx context.Context, cfg *config.AppConfig, reader domain.ChunkReader, emb embedding.Embedder, logger arbor.ILogger) (BuildSummary, error) {
	chunks, err := reader.All(ctx)
	if err != nil {
		return BuildSummary{}, fmt.Errorf("read chunks: %w", err)
	}
	texts := chunkTexts(chunks)
	if err := emb.Prepare(texts); err != nil {
		return BuildSummary{}, fmt.Errorf("prepare %s embedder: %w", emb.Name(), err)
	}

	vectors, err := embedAll(ctx, emb, texts, embedBatchSize(cfg.Embedder), logger)
	if err != nil {
		return BuildSummary{}, err
	}
	dim := emb.Dimension()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	ids := make(index.IDMap, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	switch cfg.Index.Type {
	case "qdrant":
		q, err := openQdrant(ctx, cfg.Index)
		if err != nil {
			return BuildSummary{}, err
		}
		defer q.Close()
		if dim == 0 {
			return BuildSummary{}, fmt.Errorf("cannot create qdrant collection %s for an empty corpus", cfg.Index.Qdrant.Collection)
		}
		if err := q.Recreate(ctx, dim); err != nil {
			return BuildSummary{}, err
		}
		if err := addBatched(ctx, q, vectors, embedBatchSize(cfg.Embedder)); err != nil {
			return BuildSummary{}, err
		}
	default:
		f := flat.New(dim)
		if err := f.Add(ctx, vectors); err != nil {
			return BuildSummary{}, err
		}
		if err := f.Save(cfg.Index.Path); err != nil {
			return BuildSummary{}, fmt.Errorf("save index: %w", err)
		}
	}

	if err := index.SaveIDMap(cfg.Index.IDMapPath, ids); err != nil {
		return BuildSummary{}, fmt.Errorf("save id map: %w", err)
	}

	logger.Info().
		Int("vectors", len(vectors)).
		Int("dimension", dim).
		Str("index", indexType(cfg.Index)).
		Str("embedder", emb.Name()).
		Msg("Index built")
	return BuildSummary{Vectors: len(vectors), Dimension: dim}, nil
}

func embedAll(ctx context.Context, emb embedding.Embedder, texts []string, batchSize int, logger arbor.ILogger) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := emb.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		for _, v := range batch {
			vectors = append(vectors, embedding.Normalize(v))
		}
		logger.Debug().Int("done", end).Int("total", len(texts)).Msg("Embedded batch")
	}
	return vectors, nil
}

func addBatched(ctx context.Context, b index.Builder, vectors [][]float64, batchSize int) error {
	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))
		if err := b.Add(ctx, vectors[start:end]); err != nil {
			return err
		}
	}
	return nil
}
