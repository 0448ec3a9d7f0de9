package watch

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelTracksHooksAndDispatches(t *testing.T) {
	m := *New("http://127.0.0.1:0", "key")
	m = step(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	attached := hook.SlotStatus{Name: "load", Symbol: "kpm_load_module_path", Owner: "exec:demo", Attached: true}
	m = step(t, m, eventMsg(events.Event{ID: 1, Type: events.TopicHookAttached, At: time.Now(), Data: mustJSON(t, attached)}))
	assert.Equal(t, 1, m.health.HooksAttached)
	assert.True(t, m.hooks[hook.PointLoad].Attached)
	assert.Equal(t, "exec:demo", m.hooks[hook.PointLoad].Owner)

	ok := kpm.Record{ID: "11111111-aaaa", Caller: "cli", Command: "load", Result: 0, Errno: "ok", StartedAt: time.Now()}
	bad := kpm.Record{ID: "22222222-bbbb", Caller: "api:req-1", Command: "list", Result: -105, Errno: "ENOBUFS", StartedAt: time.Now()}
	m = step(t, m, eventMsg(events.Event{ID: 2, Type: events.TopicDispatch, At: time.Now(), Data: mustJSON(t, ok)}))
	m = step(t, m, eventMsg(events.Event{ID: 3, Type: events.TopicDispatch, At: time.Now(), Data: mustJSON(t, bad)}))

	assert.Equal(t, DispatchStats{Total: 2, Failed: 1}, m.dispatches.stats)
	require.Len(t, m.dispatches.records, 2)
	assert.Equal(t, "list", m.dispatches.records[0].Command, "newest first")
	assert.Len(t, m.table.Rows(), 2)
	assert.Len(t, m.eventLog, 3)

	assert.Equal(t, int64(3), m.lastID)

	detached := hook.SlotStatus{Name: "load", Symbol: "kpm_load_module_path"}
	m = step(t, m, eventMsg(events.Event{ID: 4, Type: events.TopicHookDetached, At: time.Now(), Data: mustJSON(t, detached)}))
	assert.Equal(t, 0, m.health.HooksAttached)

	view := m.View()
	for _, want := range []string{"KPMD WATCH", "HOOK SLOTS", "DISPATCHES", "EVENT STREAM", "ENOBUFS"} {
		assert.Contains(t, view, want)
	}
}

func TestModelIgnoresMalformedEvents(t *testing.T) {
	m := *New("http://127.0.0.1:0", "key")
	m = step(t, m, eventMsg(events.Event{ID: 1, Type: events.TopicDispatch, Data: []byte(`{"nope":true}`)}))
	m = step(t, m, eventMsg(events.Event{ID: 2, Type: events.TopicHookAttached, Data: []byte(`not json`)}))

	assert.Zero(t, m.dispatches.stats.Total)
	assert.Zero(t, m.hooks.attached())
	assert.Len(t, m.eventLog, 2)
}

func TestModelHooksSnapshot(t *testing.T) {
	m := *New("http://127.0.0.1:0", "key")
	m = step(t, m, hooksMsg{
		{Name: "num", Owner: "exec:demo", Attached: true},
		{Name: "version", Owner: "exec:demo", Attached: true},
	})
	assert.Equal(t, 2, m.hooks.attached())
}

func TestModelQuit(t *testing.T) {
	m := *New("http://127.0.0.1:0", "key")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelDisconnect(t *testing.T) {
	m := *New("http://127.0.0.1:0", "key")
	m.health.Connected = true
	m = step(t, m, streamClosedMsg{})
	assert.False(t, m.health.Connected)
	assert.Contains(t, m.lastError, "disconnected")
}

func TestDecodeStream(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: kpm.dispatch",
		`data: {"command":"num"}`,
		"",
		"id: 8",
		"event: hook.detached",
		`data: {"name":"num"}`,
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	decodeStream(strings.NewReader(stream), ch)
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.TopicDispatch, got[0].Type)
	assert.JSONEq(t, `{"command":"num"}`, string(got[0].Data))
	assert.Equal(t, events.TopicHookDetached, got[1].Type)
}

func TestPulseFades(t *testing.T) {
	var p pulse
	start := time.Now()
	p.hit(start)
	p.fade(start.Add(5 * time.Second))
	assert.Equal(t, 3, p.level)
	p.fade(start.Add(time.Minute))
	assert.Equal(t, 0, p.level)
}

func TestHeartbeatWraps(t *testing.T) {
	var h heartbeat
	first := h.String()
	for range heartbeatFrames {
		h.beat()
	}
	assert.Equal(t, first, h.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "3h 1m", formatDuration(3*time.Hour+time.Minute))
}
