package answer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"safetyqa/internal/domain"
	"safetyqa/internal/rerank"
)

type mockSearcher struct {
	results []domain.SearchResult
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _ string, k int) ([]domain.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if k < len(m.results) {
		return m.results[:k], nil
	}
	return m.results, nil
}

func newTestService(results ...domain.SearchResult) *Service {
	s := &mockSearcher{results: results}
	return NewService(s, rerank.NewHybrid(s, 0.7, 5), DefaultPolicy(), arbor.NewLogger())
}

func strPtr(s string) *string { return &s }

func TestAsk_EmptyStoreAbstainsInBothModes(t *testing.T) {
	svc := newTestService()
	for _, mode := range []string{"baseline", "hybrid"} {
		t.Run(mode, func(t *testing.T) {
			resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "machine guarding", K: 3, Mode: mode})
			require.NoError(t, err)
			assert.True(t, resp.Abstained)
			assert.Equal(t, domain.ReasonNoResults, resp.Reason)
			assert.Nil(t, resp.Answer)
			assert.Nil(t, resp.Threshold)
			assert.NotNil(t, resp.Contexts)
			assert.Empty(t, resp.Contexts)
			assert.Equal(t, mode, resp.RerankerUsed)
		})
	}
}

func TestAsk_BaselineLowScore(t *testing.T) {
	svc := newTestService(
		domain.SearchResult{ChunkID: 1, ChunkText: "Unrelated.", SourceTitle: "A", Score: 0.149},
		domain.SearchResult{ChunkID: 2, ChunkText: "Also unrelated.", SourceTitle: "B", Score: 0.1},
	)
	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "q", K: 3, Mode: "baseline"})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.Equal(t, domain.ReasonLowScore, resp.Reason)
	require.NotNil(t, resp.Threshold)
	assert.Equal(t, 0.15, *resp.Threshold)
	assert.Nil(t, resp.Answer)
	require.Len(t, resp.Contexts, 2, "near misses are still reported")
	require.NotNil(t, resp.Contexts[0].Score)
	assert.Equal(t, 0.149, *resp.Contexts[0].Score)
	assert.Nil(t, resp.Contexts[0].FinalScore)
}

func TestAsk_BaselineAnswerIsTruncatedTopChunk(t *testing.T) {
	long := strings.Repeat("x", 900)
	svc := newTestService(domain.SearchResult{ChunkID: 1, ChunkText: long, SourceTitle: "A", SourceURL: strPtr("https://example.com/a.pdf"), Score: 0.15})

	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "q", K: 1, Mode: "BASELINE"})
	require.NoError(t, err)
	assert.False(t, resp.Abstained)
	assert.Equal(t, "baseline", resp.RerankerUsed)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, long[:800], *resp.Answer)
	assert.Empty(t, resp.Reason)
	assert.Nil(t, resp.Threshold)
}

func TestAsk_HybridLowFinalScore(t *testing.T) {
	// Every candidate has a non-positive score and no keyword overlap.
	svc := newTestService(domain.SearchResult{ChunkID: 1, ChunkText: "Nothing here.", SourceTitle: "A", Score: -0.1})

	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "machine guarding", K: 3, Mode: "hybrid"})
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
	assert.Equal(t, domain.ReasonLowFinalScore, resp.Reason)
	require.NotNil(t, resp.Threshold)
	assert.Equal(t, 0.25, *resp.Threshold)
	require.Len(t, resp.Contexts, 1)
	assert.Nil(t, resp.Contexts[0].Score)
	require.NotNil(t, resp.Contexts[0].FinalScore)
	assert.Equal(t, 0.0, *resp.Contexts[0].FinalScore)
}

func TestAsk_HybridExtractsBestSentence(t *testing.T) {
	svc := newTestService(domain.SearchResult{ChunkID: 1, ChunkText: "Wear gloves. Use eye protection always.", SourceTitle: "PPE", Score: 0.5})

	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "eye protection", K: 3, Mode: "hybrid"})
	require.NoError(t, err)
	assert.False(t, resp.Abstained)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, "Use eye protection always.", *resp.Answer)
}

func TestAsk_UnknownAndEmptyModeUseHybrid(t *testing.T) {
	svc := newTestService(domain.SearchResult{ChunkID: 1, ChunkText: "Eye protection.", SourceTitle: "PPE", Score: 0.5})
	for _, mode := range []string{"", "sparse", " Hybrid "} {
		resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "eye protection", Mode: mode})
		require.NoError(t, err)
		assert.Equal(t, "hybrid", resp.RerankerUsed, "mode %q", mode)
	}
}

func TestAsk_NonPositiveKUsesDefault(t *testing.T) {
	results := []domain.SearchResult{
		{ChunkID: 1, ChunkText: "a", Score: 0.9},
		{ChunkID: 2, ChunkText: "b", Score: 0.8},
		{ChunkID: 3, ChunkText: "c", Score: 0.7},
		{ChunkID: 4, ChunkText: "d", Score: 0.6},
	}
	svc := newTestService(results...)
	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "q", K: 0, Mode: "baseline"})
	require.NoError(t, err)
	assert.Len(t, resp.Contexts, 3)
}

func TestAsk_EndToEndMachineGuarding(t *testing.T) {
	svc := newTestService(
		domain.SearchResult{ChunkID: 5, ChunkText: "Machine guarding requirements apply to every press. Guards must be fixed.", SourceTitle: "Guarding", Score: 0.71},
		domain.SearchResult{ChunkID: 9, ChunkText: "General introduction to workplace safety.", SourceTitle: "Intro", Score: 0.40},
		domain.SearchResult{ChunkID: 2, ChunkText: "Forklift operation.", SourceTitle: "Forklifts", Score: 0.22},
	)
	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "machine guarding requirements", K: 3, Mode: "hybrid"})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Contexts)
	assert.Equal(t, int64(5), resp.Contexts[0].ChunkID)
	require.NotNil(t, resp.Contexts[0].FinalScore)
	assert.GreaterOrEqual(t, *resp.Contexts[0].FinalScore, 0.25)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, "Machine guarding requirements apply to every press.", *resp.Answer)
}

func TestAsk_Idempotent(t *testing.T) {
	svc := newTestService(
		domain.SearchResult{ChunkID: 1, ChunkText: "Lockout tagout. Isolate energy.", SourceTitle: "LOTO", Score: 0.6},
		domain.SearchResult{ChunkID: 2, ChunkText: "Energy control program.", SourceTitle: "LOTO", Score: 0.6},
	)
	req := domain.AskRequest{Q: "isolate energy", K: 2, Mode: "hybrid"}

	a, err := svc.Ask(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Ask(context.Background(), req)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestAsk_PropagatesRetrievalErrors(t *testing.T) {
	boom := errors.New("index offline")
	s := &mockSearcher{err: boom}
	svc := NewService(s, rerank.NewHybrid(s, 0.7, 5), DefaultPolicy(), arbor.NewLogger())

	for _, mode := range []string{"baseline", "hybrid"} {
		_, err := svc.Ask(context.Background(), domain.AskRequest{Q: "q", Mode: mode})
		assert.ErrorIs(t, err, boom)
	}
}

func TestAnswerResponse_JSONShape(t *testing.T) {
	svc := newTestService(domain.SearchResult{ChunkID: 1, ChunkText: "Eye protection.", SourceTitle: "PPE", Score: 0.05})

	resp, err := svc.Ask(context.Background(), domain.AskRequest{Q: "eye", Mode: "baseline"})
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Nil(t, m["answer"])
	assert.Equal(t, "low_score", m["reason"])
	assert.Equal(t, 0.15, m["threshold"])
	ctx0 := m["contexts"].([]any)[0].(map[string]any)
	assert.Contains(t, ctx0, "score")
	assert.Contains(t, ctx0, "source_url")
	assert.NotContains(t, ctx0, "final_score")
	assert.NotContains(t, ctx0, "vector_score")
}
