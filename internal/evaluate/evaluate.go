// Package evaluate runs a fixed question set through both retrieval modes and
// reports the answers side by side.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/ternarybob/arbor"

	"safetyqa/internal/domain"
)

// DefaultK is the number of contexts requested per question.
const DefaultK = 3

// Modes are asked in this order for every question.
var Modes = []string{domain.ModeBaseline, domain.ModeHybrid}

// ModeResult is the outcome of one question in one mode.
type ModeResult struct {
	Answer    string
	Abstained bool
	Sources   []string
}

// Row holds one question and its result per mode.
type Row struct {
	Question string
	Results  map[string]ModeResult
}

// MarshalJSON flattens the per-mode results into <mode>_answer,
// <mode>_abstained and <mode>_sources keys.
func (r Row) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{"question":`)
	q, err := json.Marshal(r.Question)
	if err != nil {
		return nil, err
	}
	b.Write(q)
	for _, mode := range Modes {
		res := r.Results[mode]
		sources := res.Sources
		if sources == nil {
			sources = []string{}
		}
		for _, kv := range []struct {
			key string
			val any
		}{
			{mode + "_answer", res.Answer},
			{mode + "_abstained", yesNo(res.Abstained)},
			{mode + "_sources", sources},
		} {
			v, err := json.Marshal(kv.val)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, ",%q:%s", kv.key, v)
		}
	}
	b.WriteString("}")
	return []byte(b.String()), nil
}

// Evaluator asks every question in every mode.
type Evaluator struct {
	asker  domain.Asker
	k      int
	logger arbor.ILogger
}

// New returns an evaluator that requests k contexts per question.
func New(asker domain.Asker, k int, logger arbor.ILogger) *Evaluator {
	if k <= 0 {
		k = DefaultK
	}
	return &Evaluator{asker: asker, k: k, logger: logger}
}

// LoadQuestions reads a JSON array of question strings.
func LoadQuestions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}
	var questions []string
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode questions %s: %w", path, err)
	}
	return questions, nil
}

// Run answers every question. A failed question is recorded as an "Error"
// answer that abstained; only context cancellation stops the run.
func (e *Evaluator) Run(ctx context.Context, questions []string) ([]Row, error) {
	rows := make([]Row, 0, len(questions))
	for _, q := range questions {
		row := Row{Question: q, Results: make(map[string]ModeResult, len(Modes))}
		for _, mode := range Modes {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
			row.Results[mode] = e.ask(ctx, q, mode)
		}
		rows = append(rows, row)
	}
	e.logger.Info().Int("questions", len(rows)).Msg("Evaluation complete")
	return rows, nil
}

func (e *Evaluator) ask(ctx context.Context, q, mode string) ModeResult {
	resp, err := e.asker.Ask(ctx, domain.AskRequest{Q: q, K: e.k, Mode: mode})
	if err != nil {
		e.logger.Warn().Err(err).Str("question", q).Str("mode", mode).Msg("Question failed")
		return ModeResult{Answer: "Error", Abstained: true}
	}
	res := ModeResult{Abstained: resp.Abstained, Sources: make([]string, 0, len(resp.Contexts))}
	if resp.Answer != nil {
		res.Answer = *resp.Answer
	}
	for _, c := range resp.Contexts {
		res.Sources = append(res.Sources, c.SourceTitle)
	}
	return res
}

// Headers lists the markdown table columns.
func Headers() []string {
	h := []string{"Question"}
	for _, m := range Modes {
		h = append(h, m+"_answer", m+"_abstained")
	}
	return h
}

// WriteMarkdown renders rows as a markdown table. Header cells are colored
// unless colored output is disabled for the process.
func WriteMarkdown(w io.Writer, rows []Row) error {
	headerColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	headers := Headers()
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = headerColor(h)
	}
	if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | ")); err != nil {
		return err
	}
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	if _, err := fmt.Fprintf(w, "|%s|\n", strings.Join(sep, "|")); err != nil {
		return err
	}
	for _, r := range rows {
		cells := []string{escapeCell(r.Question)}
		for _, m := range Modes {
			res := r.Results[m]
			cells = append(cells, escapeCell(res.Answer), yesNo(res.Abstained))
		}
		if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | ")); err != nil {
			return err
		}
	}
	return nil
}

// Save writes rows as indented JSON.
func Save(path string, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCell(s string) string { return cellReplacer.Replace(s) }
