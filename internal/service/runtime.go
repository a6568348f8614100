// Package service assembles the question-answering runtime and the offline
// ingestion and index-build jobs from configuration.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"

	"safetyqa/internal/answer"
	"safetyqa/internal/config"
	"safetyqa/internal/domain"
	"safetyqa/internal/embedding"
	"safetyqa/internal/index"
	"safetyqa/internal/index/flat"
	"safetyqa/internal/rerank"
	"safetyqa/internal/search"
	"safetyqa/internal/store"
)

// Stats summarizes what a runtime has loaded.
type Stats struct {
	Chunks    int    `json:"chunks"`
	IndexSize int    `json:"index_size"`
	Embedder  string `json:"embedder"`
}

// Runtime is the read-only context shared by every request. It is built once
// at startup and safe for concurrent use.
type Runtime struct {
	Config   *config.AppConfig
	Logger   arbor.ILogger
	Embedder embedding.Embedder
	Index    index.NearestNeighborIndex
	Engine   *search.Engine
	Reranker *rerank.Hybrid
	Answers  *answer.Service

	chunks  int
	closers []io.Closer
}

var _ domain.Asker = (*Runtime)(nil)

// Load reads the chunk store, prepares the embedder on its texts and opens the
// index built from them. Any failure here is a startup failure.
func Load(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) (*Runtime, error) {
	st, err := store.Open(cfg.Store.Path, store.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	chunks, err := st.All(ctx)
	st.Close()
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	if err := emb.Prepare(chunkTexts(chunks)); err != nil {
		return nil, fmt.Errorf("prepare %s embedder: %w", emb.Name(), err)
	}

	var (
		idx     index.NearestNeighborIndex
		closers []io.Closer
	)
	switch cfg.Index.Type {
	case "qdrant":
		q, err := openQdrant(ctx, cfg.Index)
		if err != nil {
			return nil, err
		}
		idx = q
		closers = append(closers, q)
	default:
		f, err := flat.Load(cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		idx = f
	}

	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	ids, err := index.LoadIDMap(cfg.Index.IDMapPath)
	if err != nil {
		closeAll()
		return nil, err
	}

	rt, err := NewRuntime(emb, idx, ids, chunks, cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	rt.closers = closers

	logger.Info().
		Int("chunks", len(chunks)).
		Int("index_size", idx.Len()).
		Str("embedder", emb.Name()).
		Str("index", indexType(cfg.Index)).
		Msg("Runtime loaded")
	return rt, nil
}

// NewRuntime wires a runtime from already loaded parts. The embedder must be
// prepared. The index and embedder dimensions must agree once both are known.
func NewRuntime(emb embedding.Embedder, idx index.NearestNeighborIndex, ids index.IDMap, chunks []domain.Chunk, cfg *config.AppConfig, logger arbor.ILogger) (*Runtime, error) {
	if idx.Len() > 0 && emb.Dimension() > 0 && emb.Dimension() != idx.Dimension() {
		return nil, fmt.Errorf("%w: embedder %s has %d, index has %d; rebuild the index",
			domain.ErrDimensionMismatch, emb.Name(), emb.Dimension(), idx.Dimension())
	}
	engine, err := search.New(emb, idx, ids, chunks)
	if err != nil {
		return nil, err
	}
	reranker := rerank.NewHybrid(engine, cfg.Retrieval.Alpha, cfg.Retrieval.Oversample)
	answers := answer.NewService(engine, reranker, policyFrom(cfg.Retrieval), logger)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Embedder: emb,
		Index:    idx,
		Engine:   engine,
		Reranker: reranker,
		Answers:  answers,
		chunks:   len(chunks),
	}, nil
}

// Ask answers one question.
func (r *Runtime) Ask(ctx context.Context, req domain.AskRequest) (*domain.AnswerResponse, error) {
	return r.Answers.Ask(ctx, req)
}

// Stats reports the loaded corpus and index sizes.
func (r *Runtime) Stats() Stats {
	return Stats{Chunks: r.chunks, IndexSize: r.Index.Len(), Embedder: r.Embedder.Name()}
}

// Close releases remote index connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func policyFrom(cfg config.RetrievalConfig) answer.Policy {
	return answer.Policy{
		BaselineThreshold: cfg.BaselineThreshold,
		HybridThreshold:   cfg.HybridThreshold,
		MaxAnswerChars:    cfg.MaxAnswerChars,
		DefaultK:          cfg.DefaultK,
		DefaultMode:       cfg.DefaultMode,
	}
}

func chunkTexts(chunks []domain.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

func indexType(cfg config.IndexConfig) string {
	if cfg.Type == "" {
		return "flat"
	}
	return cfg.Type
}
