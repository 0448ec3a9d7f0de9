// Package supercall routes envelope calls to the subsystem that owns their
// control code. KPM is one subsystem; codes nobody owns are answered with
// -ENOSYS.
package supercall

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

// Handler serves the envelope calls of one subsystem.
type Handler interface {
	Ioctl(ctx context.Context, task *usermem.Task, arg usermem.Addr) error
}

// Subsystem binds a code predicate to a Handler.
type Subsystem struct {
	Name    string
	Owns    func(code uint64) bool
	Handler Handler
}

// KPM returns the subsystem entry for a KPM dispatcher.
func KPM(d *kpm.Dispatcher) Subsystem {
	return Subsystem{Name: "kpm", Owns: kpm.IsControlCode, Handler: d}
}

// Mux picks the first registered subsystem whose predicate accepts the
// envelope's control code.
type Mux struct {
	mu         sync.RWMutex
	subsystems []Subsystem
	logger     *slog.Logger
}

// New returns a mux with subs registered in order.
func New(subs ...Subsystem) (*Mux, error) {
	m := &Mux{logger: log.WithComponent("supercall")}
	for _, s := range subs {
		if err := m.Register(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register appends s. Names must be unique.
func (m *Mux) Register(s Subsystem) error {
	if s.Name == "" || s.Owns == nil || s.Handler == nil {
		return fmt.Errorf("register subsystem %q: name, predicate and handler are required", s.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subsystems {
		if existing.Name == s.Name {
			return fmt.Errorf("register subsystem %q: already registered", s.Name)
		}
	}
	m.subsystems = append(m.subsystems, s)
	return nil
}

func (m *Mux) lookup(code uint64) (Subsystem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subsystems {
		if s.Owns(code) {
			return s, true
		}
	}
	return Subsystem{}, false
}

// Ioctl reads the envelope at arg and hands it to the owning subsystem.
func (m *Mux) Ioctl(ctx context.Context, task *usermem.Task, arg usermem.Addr) error {
	var raw [kpm.EnvelopeSize]byte
	if _, err := usermem.CopyInBytes(task, raw[:], arg); err != nil {
		return unix.EFAULT
	}
	var env kpm.Envelope
	if err := env.UnmarshalBinary(raw[:]); err != nil {
		return unix.EINVAL
	}

	if s, ok := m.lookup(env.ControlCode); ok {
		return s.Handler.Ioctl(ctx, task, arg)
	}

	m.logger.Warn("no subsystem owns control code", "control_code", env.ControlCode)
	if err := usermem.CopyOutResult(task, usermem.Addr(env.ResultCode), -int32(unix.ENOSYS)); err != nil {
		return unix.EFAULT
	}
	return nil
}
