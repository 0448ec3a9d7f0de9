package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/protocol"
)

const (
	// maxStderrBytes caps the stderr kept from one backend invocation.
	maxStderrBytes = 64 * 1024

	// DefaultTimeout bounds a single hook call.
	DefaultTimeout = 10 * time.Second

	// DefaultGrace is the wait between SIGTERM and SIGKILL.
	DefaultGrace = 5 * time.Second
)

// Options tune an Exec backend.
type Options struct {
	Timeout time.Duration
	Grace   time.Duration
	// Config is passed verbatim in every request.
	Config map[string]any
}

// Exec implements hook.Backend by spawning the backend's entrypoint once per
// hook call, writing a protocol.Request to its stdin and reading a
// protocol.Response from its stdout. It keeps no per-call state, so calls
// from concurrent dispatches run in separate processes.
type Exec struct {
	desc    *Descriptor
	timeout time.Duration
	grace   time.Duration
	config  map[string]any
	logger  *slog.Logger
}

var _ hook.Backend = (*Exec)(nil)

// NewExec returns a backend that runs desc's command once per hook call.
func NewExec(desc *Descriptor, opts Options) *Exec {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	return &Exec{
		desc:    desc,
		timeout: opts.Timeout,
		grace:   opts.Grace,
		config:  opts.Config,
		logger:  log.WithComponent("backend").With("backend", desc.Name),
	}
}

// Name returns the backend name from its descriptor.
func (e *Exec) Name() string { return e.desc.Name }

// Points returns the hook points the backend declared.
func (e *Exec) Points() []hook.Point {
	return append([]hook.Point(nil), e.desc.Hooks...)
}

// Attach binds points of e into reg, or every declared point when none are
// given. It returns the points it bound.
func (e *Exec) Attach(reg *hook.Registry, points ...hook.Point) ([]hook.Point, error) {
	if len(points) == 0 {
		points = e.Points()
	}
	if err := reg.AttachBackend(e.desc.Name, e, points...); err != nil {
		return nil, err
	}
	return points, nil
}

func (e *Exec) Load(ctx context.Context, path, args string, result *int32) {
	req := &protocol.Request{Hook: hook.PointLoad.String(), Path: path, Args: args}
	digest, err := imageDigest(path)
	if err != nil {
		e.logger.Debug("module image not hashed", "path", path, "error", err)
	}
	req.ImageDigest = digest

	resp, code := e.invoke(ctx, req)
	if resp != nil {
		code = resp.ResultOr(0)
	}
	store(result, code)
}

func (e *Exec) Unload(ctx context.Context, name string, result *int32) {
	e.status(ctx, &protocol.Request{Hook: hook.PointUnload.String(), Name: name}, result)
}

func (e *Exec) Num(ctx context.Context, result *int32) {
	e.status(ctx, &protocol.Request{Hook: hook.PointNum.String()}, result)
}

func (e *Exec) Control(ctx context.Context, name, args string, argLen int64, result *int32) {
	e.status(ctx, &protocol.Request{Hook: hook.PointControl.String(), Name: name, Args: args, ArgLen: argLen}, result)
}

// Info copies the backend's output into buf and reports the full output
// length, which may exceed len(buf).
func (e *Exec) Info(ctx context.Context, name string, buf []byte, size *int32) {
	resp, code := e.invoke(ctx, &protocol.Request{Hook: hook.PointInfo.String(), Name: name, Capacity: len(buf)})
	if resp == nil {
		store(size, code)
		return
	}
	if r := resp.ResultOr(0); r < 0 {
		store(size, r)
		return
	}
	copy(buf, resp.Output)
	store(size, int32(len(resp.Output)))
}

// List copies the backend's output into buf. The result defaults to the
// output length.
func (e *Exec) List(ctx context.Context, buf []byte, result *int32) {
	resp, code := e.invoke(ctx, &protocol.Request{Hook: hook.PointList.String(), Capacity: len(buf)})
	if resp == nil {
		store(result, code)
		return
	}
	copy(buf, resp.Output)
	store(result, resp.ResultOr(int32(len(resp.Output))))
}

func (e *Exec) Version(ctx context.Context, buf []byte) {
	resp, _ := e.invoke(ctx, &protocol.Request{Hook: hook.PointVersion.String(), Capacity: len(buf)})
	if resp != nil {
		copy(buf, resp.Output)
	}
}

func (e *Exec) status(ctx context.Context, req *protocol.Request, result *int32) {
	resp, code := e.invoke(ctx, req)
	if resp != nil {
		code = resp.ResultOr(0)
	}
	store(result, code)
}

// invoke runs one request. It returns the response on status=ok; otherwise
// a nil response and the negative result code to report.
func (e *Exec) invoke(ctx context.Context, req *protocol.Request) (*protocol.Response, int32) {
	req.Protocol = protocol.Version
	req.CallID = uuid.NewString()
	req.Config = e.config
	req.DeadlineAt = time.Now().Add(e.timeout).UTC()

	logger := e.logger.With("call_id", req.CallID, "hook", req.Hook)
	resp, stderr, err := e.spawn(ctx, req, logger)
	if stderr != "" {
		logger.Debug("backend stderr", "stderr", stderr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("backend call timed out", "timeout", e.timeout)
		return nil, -int32(unix.ETIMEDOUT)
	case errors.Is(err, context.Canceled):
		return nil, -int32(unix.ECANCELED)
	case err != nil:
		logger.Error("backend call failed", "error", err, "stderr", stderr)
		return nil, -int32(unix.EIO)
	}

	for _, entry := range resp.Logs {
		logger.Log(ctx, relayLevel(entry.Level), entry.Message, "source", "backend")
	}

	if resp.Status == protocol.StatusError {
		logger.Warn("backend returned error", "error", resp.Error)
		if r := resp.ResultOr(0); r < 0 {
			return nil, r
		}
		return nil, -int32(unix.EIO)
	}
	return resp, 0
}

// spawn starts the entrypoint, writes req, and waits for a response. On
// timeout or cancellation it sends SIGTERM, then SIGKILL after the grace
// period.
func (e *Exec) spawn(ctx context.Context, req *protocol.Request, logger *slog.Logger) (*protocol.Response, string, error) {
	timeoutTimer := time.NewTimer(e.timeout)
	defer timeoutTimer.Stop()

	// Termination is managed here, not by CommandContext.
	cmd := exec.Command(e.desc.Entrypoint)
	cmd.Dir = e.desc.Path

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout bytes.Buffer
	stderr := &cappedBuffer{max: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning backend", "entrypoint", e.desc.Entrypoint, "timeout", e.timeout)
	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := protocol.WriteRequest(stdin, req); err != nil {
			writeErr <- fmt.Errorf("encode request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var cause error
	select {
	case <-timeoutTimer.C:
		cause = context.DeadlineExceeded
	case <-ctx.Done():
		cause = ctx.Err()
	case err := <-waitErr:
		if werr := <-writeErr; werr != nil {
			return nil, stderr.String(), werr
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, stderr.String(), fmt.Errorf("wait for process: %w", err)
			}
			logger.Warn("backend exited with non-zero status", "exit_code", exitErr.ExitCode())
		}

		resp, err := protocol.ParseResponse(stdout.Bytes())
		if err != nil {
			logger.Error("failed to decode backend response", "error", err, "stdout", stdout.String())
			return nil, stderr.String(), fmt.Errorf("decode response: %w", err)
		}
		return resp, stderr.String(), nil
	}

	logger.Warn("terminating backend, sending SIGTERM", "cause", cause)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}
	grace := time.NewTimer(e.grace)
	defer grace.Stop()
	select {
	case <-waitErr:
		logger.Info("backend exited after SIGTERM")
	case <-grace.C:
		logger.Warn("backend did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
	return nil, stderr.String(), cause
}

// imageDigest returns the hex BLAKE3 digest of the file at path.
func imageDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func relayLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func store(p *int32, v int32) {
	if p != nil {
		*p = v
	}
}

// cappedBuffer keeps the first max bytes written and discards the rest,
// while reporting every write as successful so the child never blocks.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
