package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"safetyqa/internal/answer"
	"safetyqa/internal/domain"
)

// Model is the Bubble Tea model for the terminal client.
type Model struct {
	asker     domain.Asker
	k         int
	mode      string
	input     textinput.Model
	viewport  viewport.Model
	resp      *domain.AnswerResponse
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// answeredMsg carries the result of an asynchronous Ask back into Update.
type answeredMsg struct {
	query string
	resp  *domain.AnswerResponse
	err   error
}

// New creates a model that asks k contexts per question, starting in mode.
func New(asker domain.Asker, summary string, k int, mode string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a safety question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		asker:    asker,
		k:        k,
		mode:     answer.ResolveMode(mode, domain.ModeHybrid),
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Loaded. Tab switches mode.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, max(3, msg.Height-reserved)-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.resp = nil
		} else {
			m.resp = msg.resp
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("%d contexts for %q", len(msg.resp.Contexts), msg.query)
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Asking (%s)...", m.mode)
				return m, m.ask(q)
			}
		case "tab":
			if m.mode == domain.ModeHybrid {
				m.mode = domain.ModeBaseline
			} else {
				m.mode = domain.ModeHybrid
			}
			m.status = "Mode: " + m.mode
			return m, nil
		case "down":
			if n := m.contextCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := m.contextCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Industrial Safety Q&A") +
		"  " + modeStyle.Render("["+m.mode+"]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) ask(q string) tea.Cmd {
	req := domain.AskRequest{Q: q, K: m.k, Mode: m.mode}
	return func() tea.Msg {
		resp, err := m.asker.Ask(context.Background(), req)
		return answeredMsg{query: q, resp: resp, err: err}
	}
}

func (m Model) contextCount() int {
	if m.resp == nil {
		return 0
	}
	return len(m.resp.Contexts)
}

func (m Model) renderCurrent() string {
	if m.resp == nil {
		return "No answer yet."
	}
	var b strings.Builder
	if m.resp.Abstained {
		line := "Abstained: " + m.resp.Reason
		if m.resp.Threshold != nil {
			line += " (threshold " + answer.FormatScore(*m.resp.Threshold) + ")"
		}
		b.WriteString(abstainStyle.Render(line))
	} else if m.resp.Answer != nil {
		b.WriteString(answerStyle.Render("Answer: ") + *m.resp.Answer)
	}
	b.WriteString("\n\n")

	if len(m.resp.Contexts) == 0 {
		b.WriteString("No contexts.")
		return b.String()
	}
	c := m.resp.Contexts[m.cursor]
	fmt.Fprintf(&b, "Context %d/%d  %s  %s\n", m.cursor+1, len(m.resp.Contexts), scoreLine(c), c.SourceTitle)
	if c.SourceURL != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(*c.SourceURL) + "\n")
	}
	b.WriteString("\n" + highlightBestSentence(c.Text, m.lastQuery))
	return b.String()
}

func scoreLine(c domain.Context) string {
	if c.FinalScore != nil {
		return fmt.Sprintf("final=%s vector=%s keyword=%s",
			answer.FormatScore(*c.FinalScore),
			answer.FormatScore(deref(c.VectorScoreNorm)),
			answer.FormatScore(deref(c.KeywordScoreNorm)))
	}
	return "score=" + answer.FormatScore(deref(c.Score))
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	abstainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// highlightBestSentence marks the sentence the answer extractor would pick.
// Nothing is highlighted when no sentence shares a token with the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences, best, score := answer.BestSentence(text, query)
	out := make([]string, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if i == best && score > 0 {
			s = highlightStyle.Render(s)
		}
		out[i] = s
	}
	return strings.Join(out, " ")
}
