// Package dashboard implements the two-pane TUI for browsing panel modules
// and activating the actions their content offers. Separate from
// internal/tui which handles the chat display.
package dashboard

import (
	"context"

	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/render"
)

// Focus represents which pane has keyboard focus.
type Focus int

const (
	PaneLeft  Focus = iota // Module navigation has focus.
	PaneRight              // Content viewport has focus.
)

// --- Consumer-side interfaces ---

// Screens loads modules and runs triggers. Satisfied by *render.Dispatcher.
type Screens interface {
	Begin() uint64
	IsCurrent(seq uint64) bool
	Load(ctx context.Context, id string, seq uint64) (render.Screen, error)
	Dispatch(ctx context.Context, t render.Trigger) (render.Outcome, error)
}

// Invalidator drops cached module content. Satisfied by *cache.Cache.
type Invalidator interface {
	Invalidate(id string)
	InvalidateAll()
}

// Navigator lists modules in navigation order. Satisfied by *module.Registry.
type Navigator interface {
	Sections() []module.Section
}

// --- tea.Msg types ---

// ScreenMsg carries the result of loading a module.
type ScreenMsg struct {
	ID     string
	Seq    uint64
	Screen render.Screen
	Err    error
}

// OutcomeMsg carries the result of dispatching a trigger.
type OutcomeMsg struct {
	Trigger string
	Outcome render.Outcome
	Err     error
}
