package kpm

import (
	"bytes"
	"context"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/kpmd/internal/errno"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

var (
	resultInval  = -int32(unix.EINVAL)
	resultFault  = -int32(unix.EFAULT)
	resultNoBufs = -int32(unix.ENOBUFS)
)

// handler state for a single dispatch. Staging buffers live in each handler's
// frame and are never shared across calls.
type call struct {
	ctx    context.Context
	task   *usermem.Task
	hooks  *hook.Table
	logger *slog.Logger
}

func (c *call) run(cmd Command) int32 {
	switch cmd := cmd.(type) {
	case LoadCommand:
		return c.load(cmd)
	case UnloadCommand:
		return c.unload(cmd)
	case NumCommand:
		return c.num()
	case InfoCommand:
		return c.info(cmd)
	case ListCommand:
		return c.list(cmd)
	case ControlCommand:
		return c.control(cmd)
	case VersionCommand:
		return c.version(cmd)
	}
	return resultInval
}

func (c *call) load(cmd LoadCommand) int32 {
	if cmd.Path == 0 {
		return resultInval
	}

	var path [PathLen]byte
	pathLen, err := usermem.CopyInString(c.task, path[:], cmd.Path)
	if err != nil {
		return errno.Result(err)
	}

	var args [PathLen]byte
	argsLen := 0
	if cmd.Args != 0 {
		argsLen, err = usermem.CopyInString(c.task, args[:], cmd.Args)
		if err != nil {
			return errno.Result(err)
		}
	}

	res := defaultResult
	c.hooks.Load(c.ctx, string(path[:pathLen]), string(args[:argsLen]), &res)
	return res
}

func (c *call) unload(cmd UnloadCommand) int32 {
	if cmd.Name == 0 {
		return resultInval
	}

	var name [BufferLen]byte
	nameLen, err := usermem.CopyInString(c.task, name[:], cmd.Name)
	if err != nil {
		return errno.Result(err)
	}

	res := defaultResult
	c.hooks.Unload(c.ctx, string(name[:nameLen]), &res)
	return res
}

func (c *call) num() int32 {
	res := defaultResult
	c.hooks.Num(c.ctx, &res)
	return res
}

func (c *call) info(cmd InfoCommand) int32 {
	if cmd.Name == 0 || cmd.Out == 0 {
		return resultInval
	}

	var name [BufferLen]byte
	nameLen, err := usermem.CopyInString(c.task, name[:], cmd.Name)
	if err != nil {
		return errno.Result(err)
	}

	var buf [BufferLen]byte
	var size int32
	c.hooks.Info(c.ctx, string(name[:nameLen]), buf[:], &size)

	switch {
	case size < 0:
		return size
	case int(size) > len(buf):
		c.logger.Warn("info hook reported size beyond its buffer", "size", size, "buffer", len(buf))
		return resultNoBufs
	}
	if !usermem.AccessOK(c.task, cmd.Out, int(size)) {
		return resultFault
	}
	if err := usermem.CopyOutBytes(c.task, cmd.Out, buf[:size]); err != nil {
		c.logger.Info("copy info to caller failed", "error", err)
		return resultFault
	}
	return 0
}

func (c *call) list(cmd ListCommand) int32 {
	if cmd.Out == 0 || cmd.Capacity <= 0 {
		return resultInval
	}
	if !usermem.AccessOK(c.task, cmd.Out, int(cmd.Capacity)) {
		return resultFault
	}

	var buf [ListBufferLen]byte
	res := defaultResult
	c.hooks.List(c.ctx, buf[:], &res)

	// Oversized results are rejected, never truncated.
	if res > cmd.Capacity {
		return resultNoBufs
	}
	if err := usermem.CopyOutPadded(c.task, cmd.Out, buf[:], int(cmd.Capacity)); err != nil {
		c.logger.Info("copy list to caller failed", "error", err)
		return resultFault
	}
	return res
}

func (c *call) control(cmd ControlCommand) int32 {
	if cmd.Name == 0 || cmd.Args == 0 {
		return resultInval
	}

	var name [NameLen]byte
	nameLen, err := usermem.CopyInString(c.task, name[:], cmd.Name)
	if err != nil {
		return errno.Result(err)
	}
	if nameLen == 0 {
		return resultInval
	}

	var args [ArgsLen]byte
	argLen, err := usermem.CopyInString(c.task, args[:], cmd.Args)
	if err != nil {
		return errno.Result(err)
	}

	res := defaultResult
	c.hooks.Control(c.ctx, string(name[:nameLen]), string(args[:argLen]), int64(argLen), &res)
	return res
}

func (c *call) version(cmd VersionCommand) int32 {
	if cmd.Out == 0 || cmd.Capacity == 0 {
		return resultInval
	}

	var buf [BufferLen]byte
	c.hooks.Version(c.ctx, buf[:])

	n := bytes.IndexByte(buf[:], 0)
	if n < 0 {
		n = len(buf)
	}
	// Version output is clamped to the caller's capacity, unlike list.
	if uint64(n) >= uint64(cmd.Capacity) {
		n = int(cmd.Capacity - 1)
	}
	if err := usermem.CopyOutPadded(c.task, cmd.Out, buf[:n], n+1); err != nil {
		c.logger.Info("copy version to caller failed", "error", err)
		return resultFault
	}
	return 0
}
