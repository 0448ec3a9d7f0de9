package kpm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mattjoyce/kpmd/internal/errno"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

// MaxCapacity bounds Request.Capacity. The slot carrying it is 32 bits
// wide on the dispatcher side.
const MaxCapacity = 64 << 10

// ErrCapacity reports a Request.Capacity outside [0, MaxCapacity].
var ErrCapacity = errors.New("capacity out of range")

// Invoker is an envelope entry point: a Dispatcher, or a multiplexer in
// front of one.
type Invoker interface {
	Ioctl(ctx context.Context, task *usermem.Task, arg usermem.Addr) error
}

// Request is one command expressed with Go values instead of caller
// addresses. Invoke stages it into a fresh caller address space.
type Request struct {
	Code ControlCode

	// Path is the module image for load.
	Path string
	// Name is the module name for unload, info and control.
	Name string
	// Args is the argument string for load and control. Nil leaves the
	// slot at zero, which load treats as "no args" and control rejects.
	Args *string
	// Capacity sizes the output buffer for list and version. Zero picks
	// the staging size for the command.
	Capacity int
}

// Outcome is what the caller observed after Invoke.
type Outcome struct {
	Result int32  `json:"result"`
	Errno  string `json:"errno"`
	Output []byte `json:"-"`
}

// Invoke builds a caller address space for req, writes an Envelope into it
// and passes it through inv. Output carries the info or version text, or
// the list bytes the result reports.
func Invoke(ctx context.Context, inv Invoker, caller string, limit usermem.Addr, req Request) (Outcome, error) {
	if req.Capacity < 0 || req.Capacity > MaxCapacity {
		return Outcome{}, fmt.Errorf("%w: %d not in [0, %d]", ErrCapacity, req.Capacity, MaxCapacity)
	}

	space := usermem.NewSpace()
	task := usermem.NewTask(caller, space)
	task.Limit = limit

	var arg1, arg2 uint64
	var out usermem.Addr
	outLen := 0

	str := func(s string) (uint64, error) {
		addr, err := space.AllocString(s)
		return uint64(addr), err
	}
	alloc := func(n int) (usermem.Addr, error) {
		return space.Alloc(n, usermem.ReadWrite)
	}

	var err error
	switch req.Code {
	case CodeLoad:
		if arg1, err = str(req.Path); err != nil {
			return Outcome{}, err
		}
		if req.Args != nil {
			if arg2, err = str(*req.Args); err != nil {
				return Outcome{}, err
			}
		}
	case CodeUnload:
		if arg1, err = str(req.Name); err != nil {
			return Outcome{}, err
		}
	case CodeInfo:
		if arg1, err = str(req.Name); err != nil {
			return Outcome{}, err
		}
		outLen = BufferLen
		if out, err = alloc(outLen); err != nil {
			return Outcome{}, err
		}
		arg2 = uint64(out)
	case CodeControl:
		if arg1, err = str(req.Name); err != nil {
			return Outcome{}, err
		}
		if req.Args != nil {
			if arg2, err = str(*req.Args); err != nil {
				return Outcome{}, err
			}
		}
	case CodeList, CodeVersion:
		outLen = req.Capacity
		if outLen == 0 {
			outLen = BufferLen
			if req.Code == CodeList {
				outLen = ListBufferLen
			}
		}
		if out, err = alloc(outLen); err != nil {
			return Outcome{}, err
		}
		arg1, arg2 = uint64(out), uint64(outLen)
	}

	resultAddr, err := alloc(4)
	if err != nil {
		return Outcome{}, err
	}
	// A hook that never runs leaves this visible, so make it distinct from 0.
	if err := space.WriteBytes(resultAddr, []byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		return Outcome{}, err
	}

	env := Envelope{ControlCode: uint64(req.Code), Arg1: arg1, Arg2: arg2, ResultCode: uint64(resultAddr)}
	raw, _ := env.MarshalBinary()
	envAddr, err := alloc(EnvelopeSize)
	if err != nil {
		return Outcome{}, err
	}
	if err := space.WriteBytes(envAddr, raw); err != nil {
		return Outcome{}, err
	}

	if err := inv.Ioctl(ctx, task, envAddr); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", req.Code, err)
	}

	b, err := space.ReadBytes(resultAddr, 4)
	if err != nil {
		return Outcome{}, err
	}
	oc := Outcome{Result: int32(binary.LittleEndian.Uint32(b))}
	oc.Errno = errno.Name(oc.Result)

	if outLen > 0 {
		buf, err := space.ReadBytes(out, outLen)
		if err != nil {
			return Outcome{}, err
		}
		oc.Output = outputOf(req.Code, oc.Result, buf)
	}
	return oc, nil
}

func outputOf(code ControlCode, result int32, buf []byte) []byte {
	switch code {
	case CodeList:
		if result <= 0 || int(result) > len(buf) {
			return nil
		}
		return buf[:result]
	case CodeVersion:
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return buf[:i]
		}
		return buf
	default:
		return bytes.TrimRight(buf, "\x00")
	}
}
