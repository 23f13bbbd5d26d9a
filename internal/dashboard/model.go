package dashboard

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// helpBarHeight is the number of lines reserved for the help bar at the bottom.
const helpBarHeight = 1

// borderChrome is the number of lines consumed by top + bottom borders.
const borderChrome = 2

// headerHeight is the number of lines above the viewport inside the right
// pane: header, status, and a blank separator.
const headerHeight = 3

// DefaultModule is shown when no start module is configured.
const DefaultModule = "dashboard"

// Model is the root Bubble Tea model for the dashboard TUI.
// It manages a two-pane layout: module navigation and module content.
type Model struct {
	screens     Screens
	invalidator Invalidator
	ctx         context.Context
	now         func() time.Time
	saveLast    func(id string) error
	logger      *zap.Logger

	start     string
	focus     Focus
	width     int
	height    int
	nav       navState
	content   contentState
	notice    string
	noticeErr bool

	viewport viewport.Model
	help     help.Model
	spinner  spinner.Model
}

// Option configures a Model.
type Option func(*Model)

// WithContext sets the context used for loads and actions.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithStartModule sets the module shown on Init.
func WithStartModule(id string) Option {
	return func(m *Model) {
		if id != "" {
			m.start = id
		}
	}
}

// WithClock sets the time source for freshness labels.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLastModuleSaver sets the function called with each successfully shown module.
func WithLastModuleSaver(fn func(id string) error) Option {
	return func(m *Model) { m.saveLast = fn }
}

// WithLogger sets the logger for background failures the UI does not show.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// NewModel creates a dashboard Model with navigation focus.
func NewModel(nav Navigator, screens Screens, inv Invalidator, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		screens:     screens,
		invalidator: inv,
		ctx:         context.Background(),
		now:         time.Now,
		logger:      zap.NewNop(),
		start:       DefaultModule,
		focus:       PaneLeft,
		nav:         newNavState(nav.Sections()),
		viewport:    viewport.New(0, 0),
		help:        help.New(),
		spinner:     s,
	}
	for _, o := range opts {
		o(&m)
	}
	m.nav = m.nav.Select(m.start)
	m.content = contentState{trigger: -1}.begin(m.start)
	return m
}

// Init loads the start module.
func (m Model) Init() tea.Cmd {
	seq := m.screens.Begin()
	return tea.Batch(m.loadCmd(m.start, seq), m.spinner.Tick)
}

// show begins loading id and returns the command that completes it.
func (m Model) show(id string) (Model, tea.Cmd) {
	seq := m.screens.Begin()
	m.content = m.content.begin(id)
	m.nav = m.nav.Select(id)
	m.viewport.SetContent(m.content.Body(m.spinner.View()))
	return m, tea.Batch(m.loadCmd(id, seq), m.spinner.Tick)
}

// loadCmd returns a tea.Cmd that loads id and wraps the result in a ScreenMsg.
func (m Model) loadCmd(id string, seq uint64) tea.Cmd {
	screens, ctx := m.screens, m.ctx
	return func() tea.Msg {
		s, err := screens.Load(ctx, id, seq)
		return ScreenMsg{ID: id, Seq: seq, Screen: s, Err: err}
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		_, rightWidth := PaneWidths(msg.Width)
		m.viewport.Width = max(0, rightWidth-borderChrome)
		m.viewport.Height = max(1, m.contentHeight()-headerHeight)
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		if !m.content.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshViewport()
		return m, cmd

	case ScreenMsg:
		return m.applyScreen(msg)

	case OutcomeMsg:
		return m.applyOutcome(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// applyScreen shows a load result unless a newer load has started since.
func (m Model) applyScreen(msg ScreenMsg) (tea.Model, tea.Cmd) {
	if !m.screens.IsCurrent(msg.Seq) {
		return m, nil
	}
	m.content = m.content.apply(msg)
	m.viewport.SetContent(m.content.Body(m.spinner.View()))
	m.viewport.GotoTop()
	if msg.Err != nil || m.saveLast == nil {
		return m, nil
	}
	save, id, logger := m.saveLast, msg.ID, m.logger
	return m, func() tea.Msg {
		// Preferences are best effort; a failed save is only logged.
		if err := save(id); err != nil {
			logger.Debug("saving last module failed", zap.String("module", id), zap.Error(err))
		}
		return nil
	}
}

// applyOutcome reacts to a dispatched trigger.
func (m Model) applyOutcome(msg OutcomeMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.notice = msg.Trigger + ": " + msg.Err.Error()
		m.noticeErr = true
		return m, nil
	}
	out := msg.Outcome
	m.notice = out.Notice
	m.noticeErr = false
	if out.Quit {
		return m, tea.Quit
	}
	if out.Navigate != "" {
		return m.show(out.Navigate)
	}
	if slices.Contains(out.Invalidate, m.content.moduleID) {
		return m.show(m.content.moduleID)
	}
	return m, nil
}

// handleKey processes key messages with global and pane-specific routing.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, quitKey):
		return m, tea.Quit
	case key.Matches(msg, tabKey):
		if m.focus == PaneLeft {
			m.focus = PaneRight
		} else {
			m.focus = PaneLeft
		}
		return m, nil
	case key.Matches(msg, helpKey):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, reloadKey):
		if m.content.moduleID == "" {
			return m, nil
		}
		m.invalidator.Invalidate(m.content.moduleID)
		return m.show(m.content.moduleID)
	case key.Matches(msg, reloadAllKey):
		m.invalidator.InvalidateAll()
		if m.content.moduleID == "" {
			return m, nil
		}
		return m.show(m.content.moduleID)
	}

	if m.focus == PaneLeft {
		return m.handleNavKey(msg)
	}
	return m.handleContentKey(msg)
}

func (m Model) handleNavKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := NavKeyMap()
	switch {
	case key.Matches(msg, keys.Up):
		m.nav = m.nav.Up()
	case key.Matches(msg, keys.Down):
		m.nav = m.nav.Down()
	case key.Matches(msg, keys.Enter):
		if id := m.nav.SelectedID(); id != "" {
			return m.show(id)
		}
	}
	return m, nil
}

func (m Model) handleContentKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := ContentKeyMap()
	switch {
	case key.Matches(msg, keys.Prev):
		m.content = m.content.cycle(-1)
		m.refreshViewport()
		return m, nil
	case key.Matches(msg, keys.Next):
		m.content = m.content.cycle(1)
		m.refreshViewport()
		return m, nil
	case key.Matches(msg, keys.Activate):
		t, ok := m.content.selected()
		if !ok {
			return m, nil
		}
		screens, ctx := m.screens, m.ctx
		return m, func() tea.Msg {
			out, err := screens.Dispatch(ctx, t)
			return OutcomeMsg{Trigger: t.Name(), Outcome: out, Err: err}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// refreshViewport re-renders the content body, keeping the scroll offset.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.content.Body(m.spinner.View()))
}

// contentHeight returns the usable height for pane content,
// accounting for border chrome and the help bar.
func (m Model) contentHeight() int {
	h := m.height - borderChrome - helpBarHeight
	if h < 1 {
		return 1
	}
	return h
}

// View renders the two-pane layout with help bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	leftWidth, rightWidth := PaneWidths(m.width)
	contentHeight := m.contentHeight()

	var leftStyle, rightStyle lipgloss.Style
	if m.focus == PaneLeft {
		leftStyle = FocusedBorder()
		rightStyle = UnfocusedBorder()
	} else {
		leftStyle = UnfocusedBorder()
		rightStyle = FocusedBorder()
	}

	leftStyle = leftStyle.
		Width(leftWidth - borderChrome).
		Height(contentHeight)
	rightStyle = rightStyle.
		Width(rightWidth - borderChrome).
		Height(contentHeight)

	leftPane := leftStyle.Render(m.nav.View(m.content.moduleID))
	rightPane := rightStyle.Render(m.viewRight())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	helpView := m.help.View(HelpBindings(m.focus))

	return lipgloss.JoinVertical(lipgloss.Left, panes, helpView)
}

// viewRight renders the header, status line, and content viewport.
func (m Model) viewRight() string {
	status := m.content.Status(m.now())
	if m.notice != "" {
		style := noticeText
		if m.noticeErr {
			style = errorText
		}
		if status != "" {
			status += "  "
		}
		status += style.Render(m.notice)
	}
	return m.content.Header() + "\n" + status + "\n\n" + m.viewport.View()
}
