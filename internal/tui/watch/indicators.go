package watch

import (
	"strings"
	"time"
)

// heartbeat advances once per UI tick. If it stops turning, the update
// loop is stuck.
type heartbeat int

var heartbeatFrames = [...]string{"◐", "◓", "◑", "◒"}

func (h *heartbeat) beat() { *h = (*h + 1) % heartbeat(len(heartbeatFrames)) }

func (h heartbeat) String() string { return heartbeatFrames[h] }

const (
	pulseBars = 5
	pulseFade = 2 * time.Second
)

// pulse is a small activity meter: full on each event, one bar lost per
// pulseFade of silence.
type pulse struct {
	level int
	last  time.Time
}

func (p *pulse) hit(at time.Time) {
	p.level = pulseBars
	p.last = at
}

func (p *pulse) fade(now time.Time) {
	if p.level == 0 {
		return
	}
	p.level = max(pulseBars-int(now.Sub(p.last)/pulseFade), 0)
}

func (p pulse) render(t Theme) string {
	var b strings.Builder
	b.WriteString(t.Lit.Render(strings.Repeat("▮", p.level)))
	b.WriteString(t.Unlit.Render(strings.Repeat("▯", pulseBars-p.level)))
	return b.String()
}
