package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/kpmd/internal/events"
)

const maxEventLog = 50

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	api *apiClient

	width  int
	height int

	health     HealthState
	hooks      hookSlots
	dispatches dispatchLog
	eventLog   []events.Event

	beat     heartbeat
	activity pulse

	theme Theme
	table table.Model

	hubEvents chan events.Event
	lastID    int64

	lastError string
}

// New creates a watch model for the daemon API at apiURL. apiKey needs the
// kpm:ro scope.
func New(apiURL, apiKey string) *Model {
	return &Model{
		api:       newAPIClient(apiURL, apiKey),
		hooks:     newHookSlots(),
		hubEvents: make(chan events.Event, 100),
		theme:     NewDefaultTheme(),
		table:     newDispatchTable(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.api.follow(0, m.hubEvents),
		nextEvent(m.hubEvents),
		m.api.health,
		m.api.hooks,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		m.table.SetHeight(max(m.height-24, 5))

	case tickMsg:
		m.beat.beat()
		m.activity.fade(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m = m.handleEvent(events.Event(msg))
		return m, nextEvent(m.hubEvents)

	case hooksMsg:
		for _, st := range msg {
			for i := range m.hooks {
				if m.hooks[i].Name == st.Name {
					m.hooks[i].Owner = st.Owner
					m.hooks[i].Attached = st.Attached
				}
			}
		}
		return m, nil

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.HooksAttached = msg.HooksAttached
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return m.api.health() })

	case streamClosedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending nextEvent keeps reading the same channel.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, tea.Batch(m.api.follow(m.lastID, m.hubEvents), m.api.hooks)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return m.api.health() })
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleEvent(e events.Event) Model {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.activity.hit(time.Now())
	m.health.Connected = true
	m.lastError = ""

	switch e.Type {
	case events.TopicDispatch:
		if m.dispatches.add(e.Data) {
			m.table.SetRows(dispatchRows(m.dispatches.records))
		}
	case events.TopicHookAttached, events.TopicHookDetached:
		if m.hooks.apply(e.Data) {
			m.health.HooksAttached = m.hooks.attached()
		}
	}
	return m
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to kpmd..."
	}

	parts := []string{
		statusBar(m.health, &m.dispatches, m.beat, m.activity, m.theme, m.width),
		renderHooks(m.hooks, m.theme, m.width),
		renderDispatches(m.table, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Bad.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll dispatches"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
