package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hostgenius/panel/internal/cache"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/render"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves canned fragments and records cache calls.
type fakeSource struct {
	mu             sync.Mutex
	results        map[string]cache.Result
	errs           map[string]error
	gets           []string
	invalidated    []string
	invalidatedAll int
}

func newFakeSource() *fakeSource {
	return &fakeSource{results: map[string]cache.Result{}, errs: map[string]error{}}
}

func (s *fakeSource) Get(_ context.Context, id string) (cache.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, id)
	if err := s.errs[id]; err != nil {
		return cache.Result{}, err
	}
	return s.results[id], nil
}

func (s *fakeSource) Invalidate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, id)
}

func (s *fakeSource) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidatedAll++
}

func (s *fakeSource) set(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, id)
	s.results[id] = cache.Result{Content: content, FetchedAt: testNow}
}

func (s *fakeSource) fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err
}

func (s *fakeSource) getCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.gets {
		if g == id {
			n++
		}
	}
	return n
}

func testRegistry() *module.Registry {
	r := module.NewRegistry()
	r.Register(module.Descriptor{ID: "dashboard", Title: "Control Panel", Breadcrumb: []string{"Home", "Dashboard"}, Kind: module.KindInternal})
	r.Register(module.Descriptor{ID: "vps-services", Title: "VPS Services", Breadcrumb: []string{"Home", "Services", "VPS"}, URL: "/partials/services/vps", Kind: module.KindPartial})
	r.Register(module.Descriptor{ID: "docker-services", Title: "Docker Services", Breadcrumb: []string{"Home", "Services", "Docker"}, URL: "/partials/services/docker", Kind: module.KindPartial})
	r.Register(module.Descriptor{ID: "invoices", Title: "Invoices", Breadcrumb: []string{"Home", "Billing", "Invoices"}, URL: "/partials/billing/invoices", Kind: module.KindPartial})
	return r
}

const vpsFragment = `<h2>VPS Services</h2>
<table><tr><td>web-1</td><td>running</td></tr></table>
<button data-action="stop-service" data-service-id="42">Stop</button>
<a data-content="invoices">Billing</a>`

// fixture bundles a model with the fakes behind it.
type fixture struct {
	src        *fakeSource
	dispatcher *render.Dispatcher

	mu    sync.Mutex
	saved []string
}

func newFixture() *fixture {
	src := newFakeSource()
	src.set("vps-services", vpsFragment)
	src.set("docker-services", `<p>No containers</p>`)
	src.set("invoices", `<h2>Invoices</h2><p>Nothing due</p>`)
	return &fixture{src: src, dispatcher: render.NewDispatcher(testRegistry(), src)}
}

func (f *fixture) model(opts ...Option) Model {
	base := []Option{
		WithClock(func() time.Time { return testNow.Add(2 * time.Minute) }),
		WithLastModuleSaver(func(id string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.saved = append(f.saved, id)
			return nil
		}),
	}
	return NewModel(testRegistry(), f.dispatcher, f.src, append(base, opts...)...)
}

// sized applies a window size to m.
func sized(m Model, w, h int) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return updated.(Model)
}

// started returns a sized model with its start module loaded.
func (f *fixture) started(t *testing.T, opts ...Option) Model {
	t.Helper()
	m := sized(f.model(opts...), 100, 40)
	return settle(t, m, m.Init())
}

// press sends a key and settles the resulting commands.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	updated, cmd := m.Update(msg)
	return settle(t, updated.(Model), cmd)
}

// settle runs cmd and feeds every resulting message back into m until no
// commands remain. Spinner ticks and quit messages are dropped.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for i := 0; cmd != nil && i < 10; i++ {
		var next []tea.Cmd
		for _, msg := range execBatch(t, cmd) {
			switch msg.(type) {
			case nil, tea.QuitMsg, spinner.TickMsg:
				continue
			}
			updated, c := m.Update(msg)
			m = updated.(Model)
			if c != nil {
				next = append(next, c)
			}
		}
		cmd = tea.Batch(next...)
	}
	return m
}
