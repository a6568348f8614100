// Package answer turns retrieved chunks into an extractive answer, or abstains
// when the best score is below the mode's threshold.
package answer

import (
	"context"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"safetyqa/internal/domain"
	"safetyqa/internal/lexical"
)

// Policy holds the abstention thresholds and answer limits.
type Policy struct {
	BaselineThreshold float64
	HybridThreshold   float64
	MaxAnswerChars    int
	DefaultK          int
	DefaultMode       string
}

// DefaultPolicy mirrors the shipped configuration.
func DefaultPolicy() Policy {
	return Policy{
		BaselineThreshold: 0.15,
		HybridThreshold:   0.25,
		MaxAnswerChars:    800,
		DefaultK:          3,
		DefaultMode:       domain.ModeHybrid,
	}
}

// Service answers questions in baseline or hybrid mode. It is stateless apart
// from its read-only collaborators.
type Service struct {
	searcher domain.Searcher
	reranker domain.Reranker
	policy   Policy
	logger   arbor.ILogger
}

var _ domain.Asker = (*Service)(nil)

// NewService wires the baseline searcher and the hybrid reranker behind one policy.
func NewService(searcher domain.Searcher, reranker domain.Reranker, policy Policy, logger arbor.ILogger) *Service {
	if policy.MaxAnswerChars <= 0 {
		policy.MaxAnswerChars = 800
	}
	if policy.DefaultK <= 0 {
		policy.DefaultK = 3
	}
	return &Service{searcher: searcher, reranker: reranker, policy: policy, logger: logger}
}

// ResolveMode maps a requested mode onto baseline or hybrid. The comparison is
// case-insensitive, an empty mode takes the default and anything else is hybrid.
func ResolveMode(mode, fallback string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		m = strings.ToLower(strings.TrimSpace(fallback))
	}
	if m == domain.ModeBaseline {
		return domain.ModeBaseline
	}
	return domain.ModeHybrid
}

// Ask runs the requested mode and applies the abstention policy. Contexts are
// returned even when the service abstains. Errors only come from the retrieval
// collaborators.
func (s *Service) Ask(ctx context.Context, req domain.AskRequest) (*domain.AnswerResponse, error) {
	k := req.K
	if k <= 0 {
		k = s.policy.DefaultK
	}
	mode := ResolveMode(req.Mode, s.policy.DefaultMode)

	var (
		resp *domain.AnswerResponse
		err  error
	)
	if mode == domain.ModeBaseline {
		resp, err = s.askBaseline(ctx, req.Q, k)
	} else {
		resp, err = s.askHybrid(ctx, req.Q, k)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("mode", mode).Int("k", k).Msg("Ask failed")
		return nil, err
	}

	event := s.logger.Debug().
		Str("mode", mode).
		Int("k", k).
		Int("contexts", len(resp.Contexts)).
		Bool("abstained", resp.Abstained)
	if resp.Abstained {
		event.Str("reason", resp.Reason)
	}
	event.Msg("Answered question")
	return resp, nil
}

func (s *Service) askBaseline(ctx context.Context, q string, k int) (*domain.AnswerResponse, error) {
	results, err := s.searcher.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	resp := &domain.AnswerResponse{
		Contexts:     make([]domain.Context, 0, len(results)),
		RerankerUsed: domain.ModeBaseline,
	}
	for _, r := range results {
		resp.Contexts = append(resp.Contexts, domain.Context{
			ChunkID:     r.ChunkID,
			SourceTitle: r.SourceTitle,
			SourceURL:   r.SourceURL,
			Text:        r.ChunkText,
			Score:       ptr(r.Score),
		})
	}
	if len(results) == 0 {
		return abstain(resp, domain.ReasonNoResults, nil), nil
	}

	top := results[0]
	if top.Score < s.policy.BaselineThreshold {
		return abstain(resp, domain.ReasonLowScore, ptr(s.policy.BaselineThreshold)), nil
	}
	resp.Answer = ptr(lexical.Truncate(top.ChunkText, s.policy.MaxAnswerChars))
	return resp, nil
}

func (s *Service) askHybrid(ctx context.Context, q string, k int) (*domain.AnswerResponse, error) {
	results, err := s.reranker.Rerank(ctx, q, k)
	if err != nil {
		return nil, err
	}
	resp := &domain.AnswerResponse{
		Contexts:     make([]domain.Context, 0, len(results)),
		RerankerUsed: domain.ModeHybrid,
	}
	for _, r := range results {
		resp.Contexts = append(resp.Contexts, domain.Context{
			ChunkID:          r.ChunkID,
			SourceTitle:      r.SourceTitle,
			SourceURL:        r.SourceURL,
			Text:             r.ChunkText,
			VectorScore:      ptr(r.VectorScore),
			VectorScoreNorm:  ptr(r.VectorScoreNorm),
			KeywordScoreNorm: ptr(r.KeywordScoreNorm),
			FinalScore:       ptr(r.FinalScore),
		})
	}
	if len(results) == 0 {
		return abstain(resp, domain.ReasonNoResults, nil), nil
	}

	top := results[0]
	if top.FinalScore < s.policy.HybridThreshold {
		return abstain(resp, domain.ReasonLowFinalScore, ptr(s.policy.HybridThreshold)), nil
	}
	resp.Answer = ptr(ExtractSentence(top.ChunkText, q, s.policy.MaxAnswerChars))
	return resp, nil
}

func abstain(resp *domain.AnswerResponse, reason string, threshold *float64) *domain.AnswerResponse {
	resp.Answer = nil
	resp.Abstained = true
	resp.Reason = reason
	resp.Threshold = threshold
	return resp
}

func ptr[T any](v T) *T { return &v }

// FormatScore renders a score the way the CLI and TUI print it.
func FormatScore(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
