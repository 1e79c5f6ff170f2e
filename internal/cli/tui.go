package cli

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/render"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	paneStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const outputTitle = "Summary & Drafted Email"

type stateMsg consultation.State

type doneMsg struct{ err error }

// streamModel shows one submission. Every state change re-renders the
// whole buffer.
type streamModel struct {
	patient  string
	renderer render.Renderer
	abort    func()

	state    consultation.State
	rendered string
	done     bool
	err      error
}

func newStreamModel(patient string, r render.Renderer, abort func()) streamModel {
	return streamModel{patient: patient, renderer: r, abort: abort}
}

func (m streamModel) Init() tea.Cmd {
	return nil
}

func (m streamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.abort()
			return m, nil
		case "q":
			if m.done {
				return m, tea.Quit
			}
		}
	case stateMsg:
		m.state = consultation.State(msg)
		if out, err := m.renderer.Render(m.state.Output); err == nil {
			m.rendered = out
		} else {
			m.rendered = m.state.Output
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m streamModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("MediNotes Pro · Consultation Notes"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(statusLine(m.state, m.patient)))
	b.WriteString("\n\n")

	if m.state.HasOutput() {
		body := strings.TrimRight(m.rendered, "\n")
		b.WriteString(paneStyle.Render(titleStyle.Render(outputTitle) + "\n" + body))
		b.WriteString("\n")
	}
	if m.state.Status == model.StatusError && m.state.Err != nil && m.state.Output == "" {
		b.WriteString(errorStyle.Render(m.state.Err.Error()))
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString(hintStyle.Render("esc to stop"))
		b.WriteString("\n")
	}
	return b.String()
}

func statusLine(s consultation.State, patient string) string {
	switch s.Status {
	case model.StatusSubmitting, model.StatusStreaming:
		return s.SubmitLabel() + " for " + patient
	case model.StatusComplete:
		return "Summary complete for " + patient
	case model.StatusError:
		return "Stopped"
	default:
		if s.Err != nil {
			return "Stopped"
		}
		return s.SubmitLabel()
	}
}
