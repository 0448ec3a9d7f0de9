package hook

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/kpmd/internal/log"
)

// SlotStatus describes one slot of a Registry.
type SlotStatus struct {
	Point    Point  `json:"-"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Owner    string `json:"owner,omitempty"`
	Attached bool   `json:"attached"`
}

// Registry holds the live slot table. Readers take a snapshot with Table and
// use it for a whole call; writers build a new table under mu and publish it
// atomically, so a call never observes a half-attached backend.
type Registry struct {
	mu       sync.Mutex
	table    atomic.Pointer[Table]
	owners   [numPoints]string
	onChange func(SlotStatus)
	logger   *slog.Logger
}

// NewRegistry returns a registry with every slot set to its default stub.
func NewRegistry() *Registry {
	r := &Registry{logger: log.WithComponent("hook")}
	r.table.Store(Defaults())
	return r
}

// Table returns the current slot table. The result must not be modified.
func (r *Registry) Table() *Table {
	return r.table.Load()
}

// OnChange registers fn to be called after each slot change.
func (r *Registry) OnChange(fn func(SlotStatus)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Attach replaces every slot that is non-nil in t and records owner as the
// slot's owner. It returns the points that were replaced.
func (r *Registry) Attach(owner string, t Table) ([]Point, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("attach: owner is empty")
	}

	var points []Point
	for _, p := range Points() {
		if t.set(p) {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("attach %s: table has no slots set", owner)
	}

	r.update(points, owner, &t)
	return points, nil
}

// AttachBackend binds the listed points (all points if none are given) to
// the matching methods of b.
func (r *Registry) AttachBackend(owner string, b Backend, points ...Point) error {
	if b == nil {
		return fmt.Errorf("attach %s: backend is nil", owner)
	}
	if len(points) == 0 {
		points = Points()
	}

	full := backendTable(b)
	var t Table
	for _, p := range points {
		if !p.valid() {
			return fmt.Errorf("attach %s: invalid hook point %d", owner, int(p))
		}
		t.copyPoint(p, full)
	}
	_, err := r.Attach(owner, t)
	return err
}

// Detach restores the default stub for the listed points (all points if none
// are given).
func (r *Registry) Detach(points ...Point) {
	if len(points) == 0 {
		points = Points()
	}
	r.update(points, "", Defaults())
}

// Status reports every slot in point order.
func (r *Registry) Status() []SlotStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SlotStatus, 0, numPoints)
	for _, p := range Points() {
		out = append(out, r.statusLocked(p))
	}
	return out
}

// Attached returns how many slots are bound to a backend.
func (r *Registry) Attached() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.owners {
		if o != "" {
			n++
		}
	}
	return n
}

func (r *Registry) statusLocked(p Point) SlotStatus {
	return SlotStatus{
		Point:    p,
		Name:     p.String(),
		Symbol:   p.Symbol(),
		Owner:    r.owners[p],
		Attached: r.owners[p] != "",
	}
}

// update copies the given points from src into a fresh table and publishes it.
func (r *Registry) update(points []Point, owner string, src *Table) {
	r.mu.Lock()
	next := *r.table.Load()
	changed := make([]SlotStatus, 0, len(points))
	for _, p := range points {
		if !p.valid() {
			continue
		}
		next.copyPoint(p, src)
		r.owners[p] = owner
		changed = append(changed, r.statusLocked(p))
	}
	r.table.Store(&next)
	notify := r.onChange
	r.mu.Unlock()

	for _, st := range changed {
		if st.Attached {
			r.logger.Info("hook attached", "hook", st.Name, "symbol", st.Symbol, "owner", st.Owner)
		} else {
			r.logger.Info("hook detached", "hook", st.Name, "symbol", st.Symbol)
		}
		if notify != nil {
			notify(st)
		}
	}
}
