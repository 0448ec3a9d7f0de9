package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/hook"
)

type (
	eventMsg  events.Event
	hooksMsg  []hook.SlotStatus
	tickMsg   time.Time
	errMsg    error
	healthMsg struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		HooksAttached int    `json:"hooks_attached"`
	}
	// streamClosedMsg ends one /events connection.
	streamClosedMsg struct{}
	reconnectMsg    struct{}
)

// apiClient talks to the daemon's HTTP API. Polls share a short timeout;
// the event stream uses its own client with none.
type apiClient struct {
	baseURL string
	key     string
	poll    *http.Client
	stream  *http.Client
}

func newAPIClient(baseURL, key string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		key:     key,
		poll:    &http.Client{Timeout: 2 * time.Second},
		stream:  &http.Client{},
	}
}

func (c *apiClient) newRequest(path string, auth bool) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if auth && c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	return req, nil
}

func (c *apiClient) getJSON(path string, auth bool, out any) error {
	req, err := c.newRequest(path, auth)
	if err != nil {
		return err
	}
	resp, err := c.poll.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// health polls /healthz, which needs no token.
func (c *apiClient) health() tea.Msg {
	var h healthMsg
	if err := c.getJSON("/healthz", false, &h); err != nil {
		return errMsg(err)
	}
	return h
}

// hooks seeds the slot panel; hook events keep it current afterwards.
func (c *apiClient) hooks() tea.Msg {
	var body struct {
		Hooks []hook.SlotStatus `json:"hooks"`
	}
	if err := c.getJSON("/v1/hooks", true, &body); err != nil {
		return errMsg(err)
	}
	return hooksMsg(body.Hooks)
}

// follow streams /events into ch until the connection drops. A non-zero
// lastID asks the daemon to replay what it still holds after that event.
func (c *apiClient) follow(lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest("/events", true)
		if err != nil {
			return errMsg(err)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}
		resp, err := c.stream.Do(req)
		if err != nil {
			return streamClosedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("GET /events: %s", resp.Status))
		}
		decodeStream(resp.Body, ch)
		return streamClosedMsg{}
	}
}

// decodeStream parses text/event-stream frames from r. Comment lines and
// frames without data are skipped.
func decodeStream(r io.Reader, ch chan<- events.Event) {
	sc := bufio.NewScanner(r)
	var ev events.Event
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(ev.Data) > 0 {
				if ev.At.IsZero() {
					ev.At = time.Now()
				}
				ch <- ev
			}
			ev = events.Event{}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				ev.ID = id
			}
		case "event":
			ev.Type = value
		case "data":
			ev.Data = []byte(value)
		}
	}
}

func nextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}
