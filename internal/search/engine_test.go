package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyqa/internal/domain"
	"safetyqa/internal/embedding"
	"safetyqa/internal/embedding/embeddingtest"
	"safetyqa/internal/index"
	"safetyqa/internal/index/flat"
)

var fixtureChunks = []domain.Chunk{
	{ID: 11, Text: "Machine guarding requirements.", SourceTitle: "Guarding"},
	{ID: 12, Text: "Lockout tagout procedures.", SourceTitle: "LOTO"},
	{ID: 13, Text: "Eye protection.", SourceTitle: "PPE"},
}

func newEngine(t *testing.T, emb *embeddingtest.Stub, vectors [][]float64, ids index.IDMap, chunks []domain.Chunk) *Engine {
	t.Helper()
	idx := flat.New(emb.Dim)
	normalized := make([][]float64, len(vectors))
	for i, v := range vectors {
		normalized[i] = embedding.Normalize(append([]float64(nil), v...))
	}
	require.NoError(t, idx.Add(context.Background(), normalized))
	e, err := New(emb, idx, ids, chunks)
	require.NoError(t, err)
	return e
}

func TestSearch_OrderedAndBounded(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2, Vectors: map[string][]float64{"guards": {3, 1}}}
	e := newEngine(t, emb, [][]float64{{1, 0}, {0, 1}, {1, 1}}, index.IDMap{11, 12, 13}, fixtureChunks)

	got, err := e.Search(context.Background(), "guards", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(11), got[0].ChunkID)
	assert.Equal(t, "Machine guarding requirements.", got[0].ChunkText)
	assert.Equal(t, "Guarding", got[0].SourceTitle)
	assert.Equal(t, int64(13), got[1].ChunkID)
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.LessOrEqual(t, got[0].Score, 1.0+1e-12, "query vector is normalized before search")
}

func TestSearch_KBeyondCorpusReturnsAll(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2, Default: []float64{0, 1}}
	e := newEngine(t, emb, [][]float64{{1, 0}, {0, 1}, {1, 1}}, index.IDMap{11, 12, 13}, fixtureChunks)

	got, err := e.Search(context.Background(), "anything", 50)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(12), got[0].ChunkID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestSearch_TiesFollowIndexPosition(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2, Default: []float64{1, 0}}
	e := newEngine(t, emb, [][]float64{{1, 1}, {1, 1}, {1, 1}}, index.IDMap{13, 11, 12}, fixtureChunks)

	got, err := e.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{13, 11, 12}, []int64{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
}

func TestSearch_EmptyCorpus(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 0}
	e, err := New(emb, flat.New(0), index.IDMap{}, nil)
	require.NoError(t, err)

	got, err := e.Search(context.Background(), "machine guarding", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, e.Size())
}

func TestSearch_NonPositiveK(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2, Default: []float64{1, 0}}
	e := newEngine(t, emb, [][]float64{{1, 0}}, index.IDMap{11}, fixtureChunks)

	got, err := e.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_EmbedderError(t *testing.T) {
	boom := errors.New("model unavailable")
	emb := &embeddingtest.Stub{Dim: 2, Err: boom}
	idx := flat.New(2)
	require.NoError(t, idx.Add(context.Background(), [][]float64{{1, 0}}))
	e, err := New(emb, idx, index.IDMap{11}, fixtureChunks)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "q", 1)
	assert.ErrorIs(t, err, boom)
}

func TestNew_RejectsInconsistentInputs(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2}
	idx := flat.New(2)
	require.NoError(t, idx.Add(context.Background(), [][]float64{{1, 0}, {0, 1}}))

	_, err := New(emb, idx, index.IDMap{11}, fixtureChunks)
	assert.Error(t, err, "id map shorter than index")

	_, err = New(emb, idx, index.IDMap{11, 99}, fixtureChunks)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestSearch_Idempotent(t *testing.T) {
	emb := &embeddingtest.Stub{Dim: 2, Default: []float64{0.3, 0.7}}
	e := newEngine(t, emb, [][]float64{{1, 0}, {0, 1}, {1, 1}}, index.IDMap{11, 12, 13}, fixtureChunks)

	a, err := e.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	b, err := e.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
