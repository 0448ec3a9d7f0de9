package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/log"
)

const defaultPruneInterval = time.Hour

// Recorder copies dispatch events from a hub into the Store and prunes
// records older than the retention window.
type Recorder struct {
	store         *Store
	hub           *events.Hub
	retention     time.Duration
	pruneInterval time.Duration
	logger        *slog.Logger
}

// NewRecorder returns a Recorder. A zero retention keeps records forever.
func NewRecorder(store *Store, hub *events.Hub, retention time.Duration) *Recorder {
	return &Recorder{
		store:         store,
		hub:           hub,
		retention:     retention,
		pruneInterval: defaultPruneInterval,
		logger:        log.WithComponent("journal"),
	}
}

// Run blocks until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	ch, cancel := r.hub.Subscribe(events.TopicDispatch)
	defer cancel()

	r.prune(ctx)
	ticker := time.NewTicker(r.pruneInterval)
	defer ticker.Stop()

	r.logger.Info("journal recorder started", "retention", r.retention)
	defer r.logger.Info("journal recorder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.prune(ctx)
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev events.Event) {
	var rec kpm.Record
	if err := json.Unmarshal(ev.Data, &rec); err != nil {
		r.logger.Error("decode dispatch event", "event_id", ev.ID, "error", err)
		return
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("append dispatch record", "dispatch_id", rec.ID, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	n, err := r.store.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Error("prune dispatch log", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned dispatch log", "deleted", n)
	}
}
