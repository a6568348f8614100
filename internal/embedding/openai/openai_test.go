package openai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers every input with the vector [len(input), 0, 0, 1].
func fakeEmbeddingsServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(body.Input))
		for i, in := range body.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(in)), 0, 0, 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("SAFETYQA_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "SAFETYQA_TEST_KEY"})
	assert.Error(t, err)
}

func TestEmbedBatch_BatchesAndNormalizes(t *testing.T) {
	var calls int32
	srv := fakeEmbeddingsServer(t, &calls)
	defer srv.Close()

	t.Setenv("SAFETYQA_TEST_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKeyEnv: "SAFETYQA_TEST_KEY", BatchSize: 2})
	require.NoError(t, err)
	assert.Zero(t, c.Dimension())

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 4, c.Dimension())

	for i, v := range vecs {
		norm := 0.0
		for _, x := range v {
			norm += x * x
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
		want := float64(i+1) / math.Sqrt(float64((i+1)*(i+1)+1))
		assert.InDelta(t, want, v[0], 1e-9)
	}
}
