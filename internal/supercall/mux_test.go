package supercall

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

type recordingHandler struct{ calls int }

func (h *recordingHandler) Ioctl(context.Context, *usermem.Task, usermem.Addr) error {
	h.calls++
	return nil
}

func envelope(t *testing.T, task *usermem.Task, code uint64) (arg, result usermem.Addr) {
	t.Helper()
	result, err := task.Space.Alloc(4, usermem.ReadWrite)
	require.NoError(t, err)
	raw, err := kpm.Envelope{ControlCode: code, ResultCode: uint64(result)}.MarshalBinary()
	require.NoError(t, err)
	arg, err = task.Space.Alloc(len(raw), usermem.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, task.Space.WriteBytes(arg, raw))
	return arg, result
}

func readResult(t *testing.T, task *usermem.Task, addr usermem.Addr) int32 {
	t.Helper()
	b, err := task.Space.ReadBytes(addr, 4)
	require.NoError(t, err)
	return int32(binary.LittleEndian.Uint32(b))
}

func TestMuxRoutesKPMCodes(t *testing.T) {
	reg := hook.NewRegistry()
	_, err := reg.Attach("test", hook.Table{
		Num: func(_ context.Context, result *int32) { *result = 4 },
	})
	require.NoError(t, err)

	m, err := New(KPM(kpm.New(reg)))
	require.NoError(t, err)
	task := usermem.NewTask("test", usermem.NewSpace())

	arg, res := envelope(t, task, uint64(kpm.CodeNum))
	require.NoError(t, m.Ioctl(context.Background(), task, arg))
	assert.Equal(t, int32(4), readResult(t, task, res))

	owner, ok := m.lookup(uint64(kpm.CodeMax))
	assert.True(t, ok)
	assert.Equal(t, "kpm", owner.Name)
}

func TestMuxUnownedCodeIsENOSYS(t *testing.T) {
	m, err := New(KPM(kpm.New(hook.NewRegistry())))
	require.NoError(t, err)
	task := usermem.NewTask("test", usermem.NewSpace())

	arg, res := envelope(t, task, 7)
	require.NoError(t, m.Ioctl(context.Background(), task, arg))
	assert.Equal(t, -int32(unix.ENOSYS), readResult(t, task, res))

	_, ok := m.lookup(7)
	assert.False(t, ok)
}

func TestMuxFirstMatchWins(t *testing.T) {
	first, second := &recordingHandler{}, &recordingHandler{}
	all := func(uint64) bool { return true }
	m, err := New(
		Subsystem{Name: "first", Owns: all, Handler: first},
		Subsystem{Name: "second", Owns: all, Handler: second},
	)
	require.NoError(t, err)
	task := usermem.NewTask("test", usermem.NewSpace())

	arg, _ := envelope(t, task, 1)
	require.NoError(t, m.Ioctl(context.Background(), task, arg))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestMuxRegisterValidation(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	h := &recordingHandler{}

	assert.Error(t, m.Register(Subsystem{Owns: kpm.IsControlCode, Handler: h}))
	assert.Error(t, m.Register(Subsystem{Name: "x", Handler: h}))
	assert.Error(t, m.Register(Subsystem{Name: "x", Owns: kpm.IsControlCode}))
	require.NoError(t, m.Register(Subsystem{Name: "x", Owns: kpm.IsControlCode, Handler: h}))
	assert.Error(t, m.Register(Subsystem{Name: "x", Owns: kpm.IsControlCode, Handler: h}))
}

func TestMuxBadEnvelopeAddress(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	task := usermem.NewTask("test", usermem.NewSpace())
	assert.ErrorIs(t, m.Ioctl(context.Background(), task, 0x9000_0000), unix.EFAULT)
}
