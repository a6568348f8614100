package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"safetyqa/internal/config"
	"safetyqa/internal/domain"
	"safetyqa/internal/service"
)

type mockBackend struct {
	got  domain.AskRequest
	resp *domain.AnswerResponse
	err  error
}

func (m *mockBackend) Ask(_ context.Context, req domain.AskRequest) (*domain.AnswerResponse, error) {
	m.got = req
	return m.resp, m.err
}

func (m *mockBackend) Stats() service.Stats {
	return service.Stats{Chunks: 12, IndexSize: 12, Embedder: "tfidf"}
}

func newTestServer(b *mockBackend) http.Handler {
	cfg := config.Default().Server
	return New(b, cfg, arbor.NewLogger()).Handler()
}

func TestAsk_ReturnsAnswerJSON(t *testing.T) {
	answer := "Guards must be fixed."
	score := 0.71
	b := &mockBackend{resp: &domain.AnswerResponse{
		Answer:       &answer,
		Contexts:     []domain.Context{{ChunkID: 5, SourceTitle: "Guarding", Text: "Guards must be fixed.", Score: &score}},
		RerankerUsed: "baseline",
	}}
	h := newTestServer(b)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"q":"machine guarding","k":2,"mode":"baseline"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, domain.AskRequest{Q: "machine guarding", K: 2, Mode: "baseline"}, b.got)

	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "Guards must be fixed.", m["answer"])
	assert.Equal(t, false, m["abstained"])
	assert.Equal(t, "baseline", m["reranker_used"])
	assert.NotContains(t, m, "reason")
	ctx0 := m["contexts"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(5), ctx0["chunk_id"])
	assert.Equal(t, 0.71, ctx0["score"])
}

func TestAsk_DefaultsPassThrough(t *testing.T) {
	b := &mockBackend{resp: &domain.AnswerResponse{Contexts: []domain.Context{}, RerankerUsed: "hybrid", Abstained: true, Reason: domain.ReasonNoResults}}
	h := newTestServer(b)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"q":""}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AskRequest{}, b.got, "zero k and empty mode are resolved by the answer service")
	assert.JSONEq(t, `{"answer":null,"contexts":[],"reranker_used":"hybrid","abstained":true,"reason":"no_results"}`, rec.Body.String())
}

func TestAsk_BadRequests(t *testing.T) {
	h := newTestServer(&mockBackend{})
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"malformed json", http.MethodPost, `{"q":`, http.StatusBadRequest},
		{"missing q", http.MethodPost, `{"k":3}`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, `{"q":"x","k":"three"}`, http.StatusBadRequest},
		{"get not allowed", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/ask", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAsk_CoreErrorIs500(t *testing.T) {
	h := newTestServer(&mockBackend{err: errors.New("index offline")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"q":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "index offline")
}

func TestHealth(t *testing.T) {
	h := newTestServer(&mockBackend{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"chunks":12,"index_size":12,"embedder":"tfidf"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := newTestServer(&mockBackend{})

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
