package render

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hostgenius/panel/internal/cache"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/observability"
)

// Source supplies module content.
type Source interface {
	Get(ctx context.Context, id string) (cache.Result, error)
	Invalidate(id string)
}

// Registry describes modules.
type Registry interface {
	Describe(id string) (module.Descriptor, error)
	Sections() []module.Section
}

// Handler runs one action. The returned Outcome tells the caller what to
// show next.
type Handler func(ctx context.Context, t Trigger) (Outcome, error)

// Outcome is the effect of a dispatched trigger.
type Outcome struct {
	Navigate   string   // Module to show next, if any.
	Notice     string   // Message for the status line.
	Invalidate []string // Modules dropped from the cache before returning.
	Quit       bool
}

// Screen is a module ready for display.
type Screen struct {
	Module    module.Descriptor
	Page      Page
	Degraded  bool
	FromCache bool
	FetchedAt time.Time
	Seq       uint64
}

// Dispatcher resolves modules into screens and routes triggers to
// handlers registered at setup.
type Dispatcher struct {
	registry Registry
	source   Source
	logger   *zap.Logger
	metrics  *observability.Collector

	mu       sync.RWMutex
	handlers map[string]Handler

	seq    atomic.Uint64
	active atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records dispatched actions on m.
func WithMetrics(m *observability.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher over registry and source.
func NewDispatcher(registry Registry, source Source, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		source:   source,
		logger:   zap.NewNop(),
		handlers: make(map[string]Handler),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle registers h for action, replacing any previous handler.
func (d *Dispatcher) Handle(action string, h Handler) {
	if action == "" || h == nil {
		panic("render: Handle requires an action and a handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Actions returns the registered action names, sorted.
func (d *Dispatcher) Actions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Begin starts a new display request and returns the sequence number its
// result must carry to be displayed. Earlier requests stop being current.
func (d *Dispatcher) Begin() uint64 {
	seq := d.seq.Add(1)
	d.active.Store(seq)
	return seq
}

// IsCurrent reports whether seq is still the most recent request.
func (d *Dispatcher) IsCurrent(seq uint64) bool {
	return seq == d.active.Load()
}

// Show begins a new request for id and loads it.
func (d *Dispatcher) Show(ctx context.Context, id string) (Screen, error) {
	return d.Load(ctx, id, d.Begin())
}

// Load resolves id into a Screen tagged with seq. Internal modules are
// built locally; partial modules go through the source.
func (d *Dispatcher) Load(ctx context.Context, id string, seq uint64) (Screen, error) {
	screen := Screen{Seq: seq}

	desc, err := d.registry.Describe(id)
	if err != nil {
		return screen, err
	}
	screen.Module = desc

	if !desc.Fetchable() {
		screen.Page = d.home(desc)
		return screen, nil
	}

	res, err := d.source.Get(ctx, id)
	if err != nil {
		return screen, err
	}
	screen.Degraded = res.Degraded
	screen.FromCache = res.FromCache
	screen.FetchedAt = res.FetchedAt

	page, err := Parse(res.Content)
	if err != nil {
		d.logger.Error("fragment parse failed", zap.String("module", id), zap.Error(err))
		return screen, &RenderError{Module: id, Op: "parse", Err: err}
	}
	screen.Page = page
	return screen, nil
}

// Dispatch runs the trigger. Navigation triggers resolve without a
// handler; action triggers need one registered with Handle.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) (out Outcome, err error) {
	if t.Kind == TriggerNavigate {
		return Outcome{Navigate: t.Target}, nil
	}

	d.mu.RLock()
	h, ok := d.handlers[t.Action]
	d.mu.RUnlock()
	if !ok {
		d.countAction(t.Action, "unknown")
		d.logger.Warn("unknown action", zap.String("action", t.Action))
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, t.Action)
	}

	defer func() {
		if r := recover(); r != nil {
			d.countAction(t.Action, "panic")
			d.logger.Error("action handler panicked", zap.String("action", t.Action), zap.Any("panic", r))
			out, err = Outcome{}, &RenderError{Module: t.Action, Op: "action", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = h(ctx, t)
	if err != nil {
		d.countAction(t.Action, "error")
		d.logger.Warn("action failed", zap.String("action", t.Action), zap.Error(err))
		return out, err
	}
	for _, id := range out.Invalidate {
		d.source.Invalidate(id)
	}
	d.countAction(t.Action, "ok")
	d.logger.Debug("action dispatched", zap.String("action", t.Action))
	return out, nil
}

func (d *Dispatcher) countAction(action, outcome string) {
	if d.metrics != nil {
		d.metrics.Actions.WithLabelValues(action, outcome).Inc()
	}
}

// home builds the page for an internal module: one navigation trigger
// per fetchable module, grouped by section.
func (d *Dispatcher) home(desc module.Descriptor) Page {
	p := Page{Blocks: []Block{{Kind: BlockHeading, Level: 1, Text: desc.Title}}}
	for _, s := range d.registry.Sections() {
		var mods []module.Descriptor
		for _, m := range s.Modules {
			if m.Fetchable() {
				mods = append(mods, m)
			}
		}
		if len(mods) == 0 {
			continue
		}
		p.Blocks = append(p.Blocks, Block{Kind: BlockHeading, Level: 2, Text: s.Name})
		for _, m := range mods {
			p.Blocks = append(p.Blocks, Block{Kind: BlockItem, Text: m.Title})
			p.Triggers = append(p.Triggers, Trigger{
				Kind:   TriggerNavigate,
				Target: m.ID,
				Label:  m.Title,
				Data:   map[string]string{"content": m.ID},
			})
		}
	}
	return p
}
