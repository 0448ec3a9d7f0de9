package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/kpmd/internal/kpm"
)

const maxDispatches = 100

// DispatchStats are running totals since the watch started.
type DispatchStats struct {
	Total  int
	Failed int
}

// dispatchLog keeps the newest dispatch records first.
type dispatchLog struct {
	records []kpm.Record
	stats   DispatchStats
}

func (l *dispatchLog) add(data []byte) bool {
	var rec kpm.Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.ID == "" {
		return false
	}
	l.records = append([]kpm.Record{rec}, l.records...)
	if len(l.records) > maxDispatches {
		l.records = l.records[:maxDispatches]
	}
	l.stats.Total++
	if rec.Result < 0 {
		l.stats.Failed++
	}
	return true
}

func newDispatchTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Command", Width: 8},
			{Title: "Result", Width: 8},
			{Title: "Errno", Width: 8},
			{Title: "Caller", Width: 18},
			{Title: "Took", Width: 10},
			{Title: "ID", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// dispatchRows renders plain cells; the table measures cell width itself.
func dispatchRows(records []kpm.Record) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		caller := r.Caller
		if len(caller) > 18 {
			caller = caller[:17] + "…"
		}
		errno := r.Errno
		if r.RelayError != "" {
			errno += "!"
		}
		rows = append(rows, table.Row{
			r.StartedAt.Local().Format("15:04:05"),
			r.Command,
			fmt.Sprintf("%d", r.Result),
			errno,
			caller,
			r.Duration.Round(time.Microsecond).String(),
			id,
		})
	}
	return rows
}

func renderDispatches(t table.Model, theme Theme, width int) string {
	return theme.Panel("DISPATCHES", t.View(), width)
}
