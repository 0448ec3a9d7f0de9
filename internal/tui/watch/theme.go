// Package watch implements the kpmd watch TUI: hook slot state, recent
// dispatches and the raw event stream of a running daemon.
package watch

import "github.com/charmbracelet/lipgloss"

// palette holds the few colours the panes share.
var palette = struct {
	frame, ok, warn, bad, muted, accent, unlit lipgloss.Color
}{
	frame:  "#5F87AF",
	ok:     "#5FD787",
	warn:   "#FFD75F",
	bad:    "#FF5F5F",
	muted:  "#8A8A8A",
	accent: "#D7AF87",
	unlit:  "#3A3A3A",
}

// Theme holds the styles every pane renders with.
type Theme struct {
	OK    lipgloss.Style
	Warn  lipgloss.Style
	Bad   lipgloss.Style
	Muted lipgloss.Style
	// Accent marks values the eye should find first.
	Accent lipgloss.Style
	// Lit and Unlit draw indicator dots.
	Lit   lipgloss.Style
	Unlit lipgloss.Style

	frame   lipgloss.Style
	heading lipgloss.Style
}

func NewDefaultTheme() Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Theme{
		OK:     fg(palette.ok),
		Warn:   fg(palette.warn),
		Bad:    fg(palette.bad),
		Muted:  fg(palette.muted),
		Accent: fg(palette.accent),
		Lit:    fg(palette.ok),
		Unlit:  fg(palette.unlit),

		frame:   lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(palette.frame),
		heading: lipgloss.NewStyle().Bold(true).Foreground(palette.frame),
	}
}

// Panel frames body under a heading, width columns wide including the
// border.
func (t Theme) Panel(heading, body string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left, t.heading.Render(heading), body)
	return t.frame.Width(max(width-4, 10)).Render(content)
}

// ResultStyle colours an errno name. "ok" is green and EPERM, the result of
// an unattached hook, is yellow. Any other errno is red.
func (t Theme) ResultStyle(errno string) lipgloss.Style {
	switch errno {
	case "ok":
		return t.OK
	case "EPERM":
		return t.Warn
	}
	return t.Bad
}
