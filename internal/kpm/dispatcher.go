package kpm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/kpmd/internal/errno"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

// Record describes one completed dispatch.
type Record struct {
	ID          string        `json:"dispatch_id"`
	Caller      string        `json:"caller"`
	ControlCode uint64        `json:"control_code"`
	Command     string        `json:"command"`
	Result      int32         `json:"result"`
	Errno       string        `json:"errno"`
	RelayError  string        `json:"relay_error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Observer receives a Record after every dispatch. Observers run on the
// dispatching goroutine and must not block.
type Observer interface {
	ObserveDispatch(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) ObserveDispatch(r Record) { f(r) }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// Dispatcher routes control codes to command handlers. It holds no
// per-call state and is safe for concurrent use.
type Dispatcher struct {
	hooks     *hook.Registry
	observers []Observer
	logger    *slog.Logger
}

// New creates a Dispatcher over the given hook registry.
func New(hooks *hook.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		hooks:  hooks,
		logger: log.WithComponent("kpm"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one command for task and writes the result to resultAddr.
// It never fails at the protocol level: unknown codes produce -EINVAL, and a
// result that cannot be written back is logged and dropped. The computed
// result is returned for the caller's own bookkeeping.
func (d *Dispatcher) Dispatch(ctx context.Context, task *usermem.Task, code, arg1, arg2 uint64, resultAddr usermem.Addr) int32 {
	rec := Record{
		ID:          uuid.NewString(),
		ControlCode: code,
		Command:     ControlCode(code).String(),
		StartedAt:   time.Now().UTC(),
	}
	if task != nil {
		rec.Caller = task.Name
	}
	logger := d.logger.With("dispatch_id", rec.ID, "command", rec.Command)

	var res int32
	if cmd, ok := Decode(ControlCode(code), arg1, arg2); ok {
		c := &call{
			ctx:    ctx,
			task:   task,
			hooks:  d.hooks.Table(),
			logger: logger,
		}
		res = c.run(cmd)
	} else {
		logger.Error("unknown control code", "control_code", code)
		res = resultInval
	}

	if err := usermem.CopyOutResult(task, resultAddr, res); err != nil {
		logger.Info("copy result to caller failed", "result_addr", uint64(resultAddr), "error", err)
		rec.RelayError = err.Error()
	}

	rec.Result = res
	rec.Errno = errno.Name(res)
	rec.Duration = time.Since(rec.StartedAt)
	logger.Debug("dispatch complete", "result", res, "errno", rec.Errno, "duration", rec.Duration)

	for _, o := range d.observers {
		o.ObserveDispatch(rec)
	}
	return res
}

// Ioctl is the envelope entry point: it copies an Envelope from the task's
// memory at arg, checks that the control-code and result addresses are inside
// the task's range, and dispatches. Errors here are transport-level; once
// Dispatch runs the outcome is reported through the result address.
func (d *Dispatcher) Ioctl(ctx context.Context, task *usermem.Task, arg usermem.Addr) error {
	var raw [EnvelopeSize]byte
	if _, err := usermem.CopyInBytes(task, raw[:], arg); err != nil {
		d.logger.Error("copy envelope from caller failed", "arg", uint64(arg), "error", err)
		return unix.EFAULT
	}

	var env Envelope
	if err := env.UnmarshalBinary(raw[:]); err != nil {
		return unix.EINVAL
	}

	if !usermem.AccessOK(task, usermem.Addr(env.ControlCode), 4) {
		d.logger.Error("invalid control_code pointer", "control_code", env.ControlCode)
		return unix.EFAULT
	}
	if !usermem.AccessOK(task, usermem.Addr(env.ResultCode), 4) {
		d.logger.Error("invalid result_code pointer", "result_code", env.ResultCode)
		return unix.EFAULT
	}

	d.Dispatch(ctx, task, env.ControlCode, env.Arg1, env.Arg2, usermem.Addr(env.ResultCode))
	return nil
}
