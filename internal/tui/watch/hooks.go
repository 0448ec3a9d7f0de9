package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/kpmd/internal/hook"
)

// hookSlots mirrors the daemon's slot table in point order.
type hookSlots []hook.SlotStatus

func newHookSlots() hookSlots {
	slots := make(hookSlots, 0, len(hook.Points()))
	for _, p := range hook.Points() {
		slots = append(slots, hook.SlotStatus{Point: p, Name: p.String(), Symbol: p.Symbol()})
	}
	return slots
}

// apply merges one slot change from a hook.attached / hook.detached event.
func (h hookSlots) apply(data []byte) bool {
	var st hook.SlotStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return false
	}
	for i := range h {
		if h[i].Name == st.Name {
			h[i].Owner = st.Owner
			h[i].Attached = st.Attached
			return true
		}
	}
	return false
}

func (h hookSlots) attached() int {
	n := 0
	for _, s := range h {
		if s.Attached {
			n++
		}
	}
	return n
}

func renderHooks(h hookSlots, theme Theme, width int) string {
	var cells []string
	for _, s := range h {
		mark := theme.Unlit.Render("○")
		owner := theme.Muted.Render("default")
		if s.Attached {
			mark = theme.Lit.Render("●")
			owner = s.Owner
		}
		cells = append(cells, fmt.Sprintf("%s %-8s %s", mark, s.Name, owner))
	}

	// Two columns keep the panel short.
	half := (len(cells) + 1) / 2
	colWidth := (width - 8) / 2
	left := lipgloss.NewStyle().Width(colWidth).Render(strings.Join(cells[:half], "\n"))
	right := lipgloss.NewStyle().Width(colWidth).Render(strings.Join(cells[half:], "\n"))

	return theme.Panel("HOOK SLOTS", lipgloss.JoinHorizontal(lipgloss.Top, " ", left, right), width)
}
