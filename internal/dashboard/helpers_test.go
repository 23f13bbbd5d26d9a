package dashboard

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

func stripANSI(s string) string {
	return ansi.Strip(s)
}

// containsPlainText reports whether the rendered s shows sub once styling
// is removed.
func containsPlainText(s, sub string) bool {
	return strings.Contains(ansi.Strip(s), sub)
}

// execBatch runs cmd and returns the messages it produces, flattening
// nested batches. Spinner ticks are dropped so the spinner never loops.
func execBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, execBatch(t, c)...)
		}
		return out
	case spinner.TickMsg:
		return nil
	default:
		return []tea.Msg{msg}
	}
}
