package service

import (
	"context"
	"fmt"
	"time"

	"safetyqa/internal/config"
	"safetyqa/internal/embedding"
	"safetyqa/internal/embedding/openai"
	"safetyqa/internal/embedding/tfidf"
	"safetyqa/internal/index/qdrant"
)

// NewEmbedder builds the embedder selected in cfg.
func NewEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func openQdrant(ctx context.Context, cfg config.IndexConfig) (*qdrant.Index, error) {
	if cfg.Qdrant == nil {
		return nil, fmt.Errorf("qdrant config missing")
	}
	return qdrant.Open(ctx, qdrant.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		UseTLS:     cfg.Qdrant.UseTLS,
	})
}

func embedBatchSize(cfg config.EmbedderConfig) int {
	if cfg.OpenAI != nil && cfg.OpenAI.BatchSize > 0 {
		return cfg.OpenAI.BatchSize
	}
	return 256
}
