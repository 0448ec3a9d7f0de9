package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/kpmd/internal/events"
)

const shownEvents = 8

func renderEventStream(log []events.Event, t Theme, width int) string {
	if len(log) == 0 {
		return t.Panel("EVENT STREAM", t.Muted.Render("  Waiting for events..."), width)
	}
	n := min(len(log), shownEvents)
	lines := make([]string, 0, n)
	for _, e := range log[:n] {
		lines = append(lines, eventLine(e, t))
	}
	return t.Panel("EVENT STREAM", lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")), width)
}

// eventSummary holds the fields worth showing from any topic's payload.
type eventSummary struct {
	Command string `json:"command"`
	Errno   string `json:"errno"`
	Caller  string `json:"caller"`
	Name    string `json:"name"`
	Owner   string `json:"owner"`
}

func eventLine(e events.Event, t Theme) string {
	var sum eventSummary
	_ = json.Unmarshal(e.Data, &sum)

	style := t.Muted
	var desc string
	switch e.Type {
	case events.TopicDispatch:
		style = t.ResultStyle(sum.Errno)
		desc = joinNonEmpty(sum.Command, sum.Errno, sum.Caller)
	case events.TopicHookAttached:
		style = t.OK
		desc = joinNonEmpty(sum.Name, sum.Owner)
	case events.TopicHookDetached:
		style = t.Warn
		desc = sum.Name
	}
	if desc == "" {
		desc = truncate(string(e.Data), 60)
	}

	return fmt.Sprintf("%s %s %s",
		t.Muted.Render(e.At.Local().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-14s", e.Type)),
		desc)
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
