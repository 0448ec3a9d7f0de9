package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Topics published by the daemon.
const (
	TopicDispatch     = "kpm.dispatch"
	TopicHookAttached = "hook.attached"
	TopicHookDetached = "hook.detached"
)

const (
	defaultBacklog   = 256
	subscriberBuffer = 128
)

// Event is one published message. IDs are assigned in publish order and
// never reused.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub fans events out to subscribers and keeps the newest events in a
// bounded backlog for replay.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	backlog []Event
	limit   int
	subs    map[*subscription]struct{}
}

type subscription struct {
	ch     chan Event
	topics map[string]struct{} // nil means every topic
	closed bool
}

func (s *subscription) matches(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// NewHub returns a hub retaining up to backlog events. A non-positive
// backlog uses the default.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{
		backlog: make([]Event, 0, backlog),
		limit:   backlog,
		subs:    make(map[*subscription]struct{}),
	}
}

// Publish stamps data as the next event on topic. A subscriber whose buffer
// is full misses the event; the publisher never waits.
func (h *Hub) Publish(topic string, data any) Event {
	payload := json.RawMessage(`{}`)
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: topic, At: time.Now().UTC(), Data: payload}

	if len(h.backlog) == h.limit {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.limit-1]
	}
	h.backlog = append(h.backlog, ev)

	for s := range h.subs {
		if !s.matches(topic) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe registers interest in topics, or in everything when none are
// given. The returned func unsubscribes and closes the channel; calling it
// again is a no-op.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	s := &subscription{ch: make(chan Event, subscriberBuffer)}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		delete(h.subs, s)
		close(s.ch)
	}
}

// Subscribers reports how many subscriptions are open.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SnapshotSince copies the retained events newer than lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The backlog is ordered by ID, so everything after the first newer
	// event qualifies.
	for i, ev := range h.backlog {
		if ev.ID > lastID {
			return append([]Event(nil), h.backlog[i:]...)
		}
	}
	return []Event{}
}
