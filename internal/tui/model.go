package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Sender delivers a typed message to the peer.
type Sender func(ctx context.Context, content string) error

// Line is one rendered chat message.
type Line struct {
	Mine bool
	Text string
	At   time.Time
}

// MessageMsg adds a line to the conversation.
type MessageMsg struct {
	Line Line
}

// ClosedMsg signals that the conversation ended normally.
type ClosedMsg struct{}

// ErrorMsg signals that the conversation ended with an error.
type ErrorMsg struct {
	Err error
}

// sendResultMsg reports the outcome of a Sender call.
type sendResultMsg struct {
	content string
	err     error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	peerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

// Model is the Bubble Tea model for a chat conversation.
type Model struct {
	title  string
	lines  []Line
	input  textinput.Model
	send   Sender
	ctx    context.Context
	status string
	done   bool
	err    error
	height int
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithSender sets the function called when the user presses enter.
func WithSender(s Sender) ModelOption {
	return func(m *Model) { m.send = s }
}

// WithContext sets the context passed to the Sender.
func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) { m.ctx = ctx }
}

// NewModel creates a chat Model with the given title.
func NewModel(title string, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	m := Model{title: title, input: ti, ctx: context.Background()}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessageMsg:
		m.lines = append(m.lines, msg.Line)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("not sent: %v", msg.err)
			return m, nil
		}
		m.status = ""
		m.lines = append(m.lines, Line{Mine: true, Text: msg.content, At: time.Now()})
		return m, nil

	case ClosedMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		case "enter":
			content := strings.TrimSpace(m.input.Value())
			if content == "" || m.send == nil {
				return m, nil
			}
			m.input.Reset()
			m.status = "sending…"
			return m, m.sendCmd(content)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) sendCmd(content string) tea.Cmd {
	send, ctx := m.send, m.ctx
	return func() tea.Msg {
		return sendResultMsg{content: content, err: send(ctx, content)}
	}
}

// View renders the title, the visible lines, and the input.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n\n")

	lines := m.lines
	if m.height > 0 {
		// Title, blank, input, status, help.
		if room := m.height - 5; room > 0 && len(lines) > room {
			lines = lines[len(lines)-room:]
		}
	}
	for _, l := range lines {
		b.WriteString(renderLine(l) + "\n")
	}

	if m.done && m.err != nil {
		b.WriteString("\n" + errStyle.Render("Error: "+m.err.Error()) + "\n")
		return b.String()
	}

	b.WriteString(m.input.View() + "\n")
	if m.status != "" {
		b.WriteString(hintStyle.Render(m.status) + "\n")
	}
	b.WriteString(hintStyle.Render("enter send • esc quit"))
	return b.String()
}

func renderLine(l Line) string {
	if l.Mine {
		return mineStyle.Render("you: ") + l.Text
	}
	return peerStyle.Render("them: ") + l.Text
}
