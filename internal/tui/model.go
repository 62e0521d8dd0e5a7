// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"trialrag/internal/engine"
	"trialrag/internal/lexicon"
	"trialrag/internal/metrics"
)

// ChatPort is the TUI-facing subset of the answer engine.
type ChatPort interface {
	SubmitTurn(ctx context.Context, sessionID, message string) (engine.Reply, error)
	ResetSession(sessionID string) error
	Metrics() metrics.Snapshot
}

type entry struct {
	question string
	reply    engine.Reply
	err      error
}

type replyMsg struct {
	question string
	reply    engine.Reply
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	port      ChatPort
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	summary   string
	status    string
	waiting   bool
	ready     bool
}

// New creates a chat model bound to one session.
func New(port ChatPort, sessionID, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a drug, dose or adverse event and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		port:      port,
		sessionID: sessionID,
		input:     ti,
		viewport:  vp,
		summary:   summary,
		status:    "Loaded. Ctrl+R resets the session.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.waiting = false
		m.entries = append(m.entries, entry{question: msg.question, reply: msg.reply, err: msg.err})
		m.status = statusLine(msg.reply, msg.err, m.port.Metrics())
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Searching..."
			return m, m.submit(q)
		case "ctrl+r":
			if err := m.port.ResetSession(m.sessionID); err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			// a reset session is never reused
			m.sessionID = uuid.NewString()
			m.entries = nil
			m.status = "Session reset."
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(q string) tea.Cmd {
	port, id := m.port, m.sessionID
	return func() tea.Msg {
		r, err := port.SubmitTurn(context.Background(), id, q)
		return replyMsg{question: q, reply: r, err: err}
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Clinical Trial Assistant")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	transcript := transcriptStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: "))
		b.WriteString(e.question)
		b.WriteString("\n")
		b.WriteString(renderReply(e))
	}
	return b.String()
}

func renderReply(e entry) string {
	if e.err != nil {
		return errorStyle.Render("Error: " + e.err.Error())
	}
	r := e.reply
	switch {
	case r.SafetyRefusal:
		return refusalStyle.Render(r.Message)
	case r.Unknown, r.Clarification, r.Greeting:
		return noticeStyle.Render(r.Message)
	}
	out := highlightTerms(r.Message, e.question)
	if r.Citation != "" {
		out += "\n" + citationStyle.Render("Source: "+r.Citation)
	}
	return out
}

func statusLine(r engine.Reply, err error, snap metrics.Snapshot) string {
	counts := fmt.Sprintf("turns=%d grounded=%d refusals=%d", snap.TotalTurns, snap.Grounded(), snap.SafetyRefusals)
	if err != nil {
		return "Error | " + counts
	}
	return fmt.Sprintf("intent=%s source=%s retrieved=%d | %s", r.Intent, r.Source, r.Retrieved, counts)
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	citationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	refusalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightTerms emphasises answer words that also appear in the question.
func highlightTerms(text, question string) string {
	q := make(map[string]struct{})
	for _, t := range lexicon.Terms(question) {
		q[lexicon.Singular(t)] = struct{}{}
	}
	if len(q) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for li, line := range lines {
		words := strings.Split(line, " ")
		for i, w := range words {
			core := lexicon.Singular(strings.ToLower(strings.Trim(w, ".,;:()!?")))
			if _, ok := q[core]; ok && core != "" {
				words[i] = highlightStyle.Render(w)
			}
		}
		lines[li] = strings.Join(words, " ")
	}
	return strings.Join(lines, "\n")
}
