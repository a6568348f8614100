package domain

import "context"

// Retrieval modes accepted by Ask.
const (
	ModeBaseline = "baseline"
	ModeHybrid   = "hybrid"
)

// Abstention reasons.
const (
	ReasonNoResults     = "no_results"
	ReasonLowScore      = "low_score"
	ReasonLowFinalScore = "low_final_score"
)

// AskRequest is a single question against the corpus.
type AskRequest struct {
	Q    string `json:"q"`
	K    int    `json:"k"`
	Mode string `json:"mode"`
}

// Context is one retrieved chunk as reported back to the caller.
// Only the score fields of the mode that produced it are set.
type Context struct {
	ChunkID          int64    `json:"chunk_id"`
	SourceTitle      string   `json:"source_title"`
	SourceURL        *string  `json:"source_url"`
	Text             string   `json:"text"`
	Score            *float64 `json:"score,omitempty"`
	VectorScore      *float64 `json:"vector_score,omitempty"`
	VectorScoreNorm  *float64 `json:"vector_score_norm,omitempty"`
	KeywordScoreNorm *float64 `json:"keyword_score_norm,omitempty"`
	FinalScore       *float64 `json:"final_score,omitempty"`
}

// AnswerResponse is the outcome of Ask. Answer is nil when the policy abstained;
// Reason and Threshold are only populated on abstention.
type AnswerResponse struct {
	Answer       *string   `json:"answer"`
	Contexts     []Context `json:"contexts"`
	RerankerUsed string    `json:"reranker_used"`
	Abstained    bool      `json:"abstained"`
	Reason       string    `json:"reason,omitempty"`
	Threshold    *float64  `json:"threshold,omitempty"`
}

// Asker answers questions. The HTTP boundary, the TUI and the evaluator all depend on it.
type Asker interface {
	Ask(ctx context.Context, req AskRequest) (*AnswerResponse, error)
}
