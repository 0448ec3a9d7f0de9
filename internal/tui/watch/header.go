package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

// HealthState is the last /healthz answer plus connection state.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	HooksAttached int
	Connected     bool
	LastCheck     time.Time
}

func (h HealthState) label(t Theme) string {
	switch {
	case !h.Connected:
		return t.Bad.Render("offline")
	case h.Status == "" || h.Status == "ok":
		return t.OK.Render("online")
	default:
		return t.Warn.Render(h.Status)
	}
}

// statusBar renders the top pane: daemon state, counters and the newest
// dispatch.
func statusBar(h HealthState, log *dispatchLog, beat heartbeat, activity pulse, t Theme, width int) string {
	clock := t.Muted.Render(time.Now().Format("15:04:05"))
	title := fmt.Sprintf("kpmd %s %s", h.label(t), t.Accent.Render(beat.String()))
	gap := max(width-8-lipgloss.Width(title)-lipgloss.Width(clock), 1)

	failRate := "-"
	if log.stats.Total > 0 {
		failRate = fmt.Sprintf("%.0f%%", 100*float64(log.stats.Failed)/float64(log.stats.Total))
	}
	counters := fmt.Sprintf("uptime %s   slots %d/%d   dispatches %d   failed %s",
		formatDuration(time.Duration(h.UptimeSeconds)*time.Second),
		h.HooksAttached, len(hook.Points()),
		log.stats.Total, failRate)

	var last string
	if len(log.records) == 0 {
		last = t.Muted.Render("no dispatches yet")
	} else {
		last = describeDispatch(log.records[0], t)
	}
	if at := activity.last; !at.IsZero() {
		last += t.Muted.Render(fmt.Sprintf("   event %s ago ", time.Since(at).Round(time.Second))) + activity.render(t)
	}

	body := strings.Join([]string{title + strings.Repeat(" ", gap) + clock, counters, last}, "\n")
	return t.Panel("KPMD WATCH", body, width)
}

func describeDispatch(r kpm.Record, t Theme) string {
	return fmt.Sprintf("last: %s by %s -> %s",
		r.Command, r.Caller, t.ResultStyle(r.Errno).Render(fmt.Sprintf("%d %s", r.Result, r.Errno)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
