package dashboard

import (
	"strings"

	"github.com/hostgenius/panel/internal/module"
)

// CursorMarker is the prefix shown on the selected module row.
const CursorMarker = "▸ "

// navEntry is one selectable row of the navigation pane.
type navEntry struct {
	section string
	module  module.Descriptor
}

// navState manages the module list and cursor for the left pane.
type navState struct {
	entries []navEntry
	cursor  int
}

// newNavState flattens sections into rows, keeping navigation order.
func newNavState(sections []module.Section) navState {
	var ns navState
	for _, s := range sections {
		for _, m := range s.Modules {
			ns.entries = append(ns.entries, navEntry{section: s.Name, module: m})
		}
	}
	return ns
}

// Up moves the cursor up, wrapping to the bottom.
func (ns navState) Up() navState {
	if len(ns.entries) > 0 {
		ns.cursor--
		if ns.cursor < 0 {
			ns.cursor = len(ns.entries) - 1
		}
	}
	return ns
}

// Down moves the cursor down, wrapping to the top.
func (ns navState) Down() navState {
	if len(ns.entries) > 0 {
		ns.cursor++
		if ns.cursor >= len(ns.entries) {
			ns.cursor = 0
		}
	}
	return ns
}

// Select moves the cursor to id. Unknown ids leave the cursor unchanged.
func (ns navState) Select(id string) navState {
	for i, e := range ns.entries {
		if e.module.ID == id {
			ns.cursor = i
			break
		}
	}
	return ns
}

// SelectedID returns the module ID at the cursor, or "" if the list is empty.
func (ns navState) SelectedID() string {
	if len(ns.entries) == 0 || ns.cursor < 0 || ns.cursor >= len(ns.entries) {
		return ""
	}
	return ns.entries[ns.cursor].module.ID
}

// View renders the module list grouped under section headings.
// active is the module currently shown in the content pane.
func (ns navState) View(active string) string {
	if len(ns.entries) == 0 {
		return "No modules"
	}

	var b strings.Builder
	section := ""
	for i, e := range ns.entries {
		if e.section != section {
			if i > 0 {
				b.WriteByte('\n')
			}
			section = e.section
			b.WriteString(sectionText.Render(section))
			b.WriteByte('\n')
		}
		if i == ns.cursor {
			b.WriteString(CursorMarker)
		} else {
			b.WriteString("  ")
		}
		title := e.module.Title
		if e.module.ID == active {
			title = activeText.Render(title)
		}
		b.WriteString(title)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
