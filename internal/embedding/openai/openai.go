package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"safetyqa/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing embedding.Embedder.
// The vector dimension is learned from the first successful response.
type Client struct {
	api       sdk.Client
	model     string
	timeout   time.Duration
	batchSize int

	mu        sync.RWMutex
	dimension int
}

var _ embedding.Embedder = (*Client)(nil)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	api := sdk.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(5),
	)
	return &Client{
		api:       api,
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding.
func (c *Client) Prepare([]string) error { return nil }

// Dimension returns the dimension seen so far, or 0 before the first call.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns a normalized embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs. The result
// order matches the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		Model: sdk.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
	}

	vecs := make([][]float64, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(batch) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("no embedding returned")
		}
		if err := c.observeDimension(len(d.Embedding)); err != nil {
			return nil, err
		}
		vec := make([]float64, len(d.Embedding))
		copy(vec, d.Embedding)
		vecs[d.Index] = embedding.Normalize(vec)
	}
	return vecs, nil
}

func (c *Client) observeDimension(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = n
		return nil
	}
	if c.dimension != n {
		return fmt.Errorf("openai embeddings: dimension changed from %d to %d", c.dimension, n)
	}
	return nil
}
