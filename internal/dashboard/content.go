package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hostgenius/panel/internal/fetch"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/render"
)

// contentState holds what the right pane shows: the loaded screen, the
// selected trigger, and loading/error state.
type contentState struct {
	moduleID string
	screen   render.Screen
	loaded   bool
	loading  bool
	err      error
	trigger  int // Index into screen.Page.Triggers, -1 when none.
}

// begin marks id as loading.
func (cs contentState) begin(id string) contentState {
	cs.moduleID = id
	cs.loading = true
	cs.err = nil
	return cs
}

// apply stores a load result.
func (cs contentState) apply(msg ScreenMsg) contentState {
	cs.moduleID = msg.ID
	cs.loading = false
	if msg.Err != nil {
		cs.err = msg.Err
		cs.loaded = false
		cs.screen = render.Screen{}
		cs.trigger = -1
		return cs
	}
	cs.err = nil
	cs.loaded = true
	cs.screen = msg.Screen
	cs.trigger = -1
	if len(msg.Screen.Page.Triggers) > 0 {
		cs.trigger = 0
	}
	return cs
}

// cycle moves the trigger selection by delta, wrapping around.
func (cs contentState) cycle(delta int) contentState {
	n := len(cs.screen.Page.Triggers)
	if n == 0 {
		cs.trigger = -1
		return cs
	}
	cs.trigger = ((cs.trigger+delta)%n + n) % n
	return cs
}

// selected returns the selected trigger.
func (cs contentState) selected() (render.Trigger, bool) {
	if !cs.loaded || cs.trigger < 0 || cs.trigger >= len(cs.screen.Page.Triggers) {
		return render.Trigger{}, false
	}
	return cs.screen.Page.Triggers[cs.trigger], true
}

// Header renders the module title and breadcrumb.
func (cs contentState) Header() string {
	m := cs.screen.Module
	if m.ID == "" {
		return cs.moduleID
	}
	if len(m.Breadcrumb) == 0 {
		return activeText.Render(m.Title)
	}
	return activeText.Render(m.Title) + "  " + mutedText.Render(strings.Join(m.Breadcrumb, " › "))
}

// Status renders the freshness line for a loaded screen.
func (cs contentState) Status(now time.Time) string {
	if !cs.loaded {
		return ""
	}
	var parts []string
	if cs.screen.Degraded {
		parts = append(parts, DegradedBadge())
	}
	if l := FreshnessLabel(cs.screen.FetchedAt, now, cs.screen.FromCache); l != "" {
		parts = append(parts, mutedText.Render(l))
	}
	return strings.Join(parts, " ")
}

// Body renders the viewport content.
func (cs contentState) Body(spinnerView string) string {
	if cs.loading {
		return fmt.Sprintf("%s Loading %s...", spinnerView, cs.moduleID)
	}
	if cs.err != nil {
		return errorText.Render(describeError(cs.err)) + "\n\nPress r to retry"
	}
	if !cs.loaded {
		return "Select a module"
	}

	var b strings.Builder
	b.WriteString(cs.screen.Page.Text())
	if triggers := cs.screen.Page.Triggers; len(triggers) > 0 {
		b.WriteString("\n\n")
		b.WriteString(mutedText.Render("Actions"))
		for i, t := range triggers {
			b.WriteByte('\n')
			label := t.Label
			if label == "" {
				label = t.Name()
			}
			if i == cs.trigger {
				b.WriteString(CursorMarker + triggerText.Render(label))
			} else {
				b.WriteString("  " + label)
			}
		}
	}
	return b.String()
}

// describeError turns a load error into the text shown in the error panel.
func describeError(err error) string {
	var nf *module.NotFoundError
	var te *fetch.TransportError
	var re *render.RenderError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("Unknown module %q", nf.ID)
	case errors.As(err, &te):
		if te.StatusCode != 0 {
			return fmt.Sprintf("Could not load content: server returned %s", te.Status)
		}
		return "Could not load content: " + err.Error()
	case errors.As(err, &re):
		return "Could not display content: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
