package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/kpmd/internal/events"
)

const pingInterval = 15 * time.Second

// sseStream writes events in text/event-stream framing and remembers the
// last ID sent so replayed and live events never repeat.
type sseStream struct {
	w      http.ResponseWriter
	f      http.Flusher
	topics []string
	sent   int64
}

func (s *sseStream) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, t := range s.topics {
		if t == topic {
			return true
		}
	}
	return false
}

// send writes ev unless it is filtered out or already delivered.
func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.sent || !s.wants(ev.Type) {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	// Event data is compact JSON and never spans lines.
	fmt.Fprintf(&b, "data: %s\n\n", ev.Data)
	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return err
	}
	s.sent = ev.ID
	return nil
}

func (s *sseStream) ping() error {
	_, err := fmt.Fprint(s.w, ": keep-alive\n\n")
	return err
}

// handleEvents serves GET /events. ?topic=a,b narrows the stream and a
// Last-Event-ID header replays what the hub still holds after that ID.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := &sseStream{
		w:      w,
		f:      f,
		topics: parseTopics(r.URL.Query().Get("topic")),
		sent:   parseLastEventID(r.Header.Get("Last-Event-ID")),
	}

	// Subscribing first means an event published during replay lands in
	// live; send drops the duplicate.
	live, unsubscribe := s.events.Subscribe(stream.topics...)
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, ev := range s.events.SnapshotSince(stream.sent) {
		if err := stream.send(ev); err != nil {
			return
		}
	}
	f.Flush()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = stream.send(ev)
		case <-ticker.C:
			err = stream.ping()
		}
		if err != nil {
			return
		}
		f.Flush()
	}
}

// parseTopics splits a comma list, dropping blanks. It returns nil for no
// topics.
func parseTopics(v string) []string {
	var topics []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// parseLastEventID treats anything but a non-negative integer as no
// resume point.
func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
