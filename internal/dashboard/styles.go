package dashboard

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// MinLeftWidth is the minimum character width for the left pane.
const MinLeftWidth = 28

var (
	mutedText   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
	sectionText = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})
	activeText  = lipgloss.NewStyle().Bold(true)
	errorText   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
	noticeText  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})
	triggerText = lipgloss.NewStyle().Reverse(true)
)

// DegradedBadge marks content served from cache after a failed refresh.
func DegradedBadge() string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "208", Dark: "208"}).
		Render("[stale]")
}

// FreshnessLabel describes when content was fetched, e.g. "fetched 2 minutes ago".
// Zero times render as "".
func FreshnessLabel(fetchedAt, now time.Time, fromCache bool) string {
	if fetchedAt.IsZero() {
		return ""
	}
	verb := "fetched"
	if fromCache {
		verb = "cached"
	}
	if now.Sub(fetchedAt) < time.Second {
		return fmt.Sprintf("%s just now", verb)
	}
	return fmt.Sprintf("%s %s", verb, humanize.RelTime(fetchedAt, now, "ago", "from now"))
}

// FocusedBorder returns a lipgloss style with an accent-colored rounded border.
func FocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})
}

// UnfocusedBorder returns a lipgloss style with a dim rounded border.
func UnfocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "240", Dark: "240"})
}

// PaneWidths calculates the left and right pane widths from a total width.
// Left pane gets 1/3 (minimum MinLeftWidth), right pane gets the rest.
func PaneWidths(totalWidth int) (left, right int) {
	if totalWidth <= 0 {
		return 0, 0
	}
	left = totalWidth / 3
	if left < MinLeftWidth {
		left = MinLeftWidth
	}
	right = totalWidth - left
	if right < 0 {
		right = 0
	}
	return left, right
}
