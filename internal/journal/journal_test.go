package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func record(id, command string, started time.Time) kpm.Record {
	return kpm.Record{
		ID:          id,
		Caller:      "cli",
		ControlCode: 30,
		Command:     command,
		Result:      -1,
		Errno:       "EPERM",
		StartedAt:   started,
		Duration:    1500 * time.Microsecond,
	}
}

func TestAppendAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record("a", "num", base)))
	require.NoError(t, s.Append(ctx, record("b", "list", base.Add(time.Second))))
	withRelay := record("c", "num", base.Add(2*time.Second))
	withRelay.RelayError = "bad address"
	require.NoError(t, s.Append(ctx, withRelay))

	all, err := s.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "bad address", all[0].RelayError)
	assert.Equal(t, base.Add(2*time.Second), all[0].StartedAt)
	assert.Equal(t, 1500*time.Microsecond, all[0].Duration)
	assert.Equal(t, uint64(30), all[0].ControlCode)
	assert.Empty(t, all[1].RelayError)

	nums, err := s.Recent(ctx, Query{Command: "num", Limit: 1})
	require.NoError(t, err)
	require.Len(t, nums, 1)
	assert.Equal(t, "c", nums[0].ID)

	none, err := s.Recent(ctx, Query{Caller: "api"})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, s.Append(ctx, record("a", "num", base)), "duplicate id")
	assert.Error(t, s.Append(ctx, kpm.Record{}), "empty id")
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Append(ctx, record("old", "num", now.Add(-48*time.Hour))))
	require.NoError(t, s.Append(ctx, record("new", "num", now)))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorderPersistsDispatches(t *testing.T) {
	s := openStore(t)
	hub := events.NewHub(16)
	rec := NewRecorder(s, hub, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	d := kpm.New(hook.NewRegistry(), kpm.WithObserver(hub))
	d.Dispatch(context.Background(), nil, uint64(kpm.CodeNum), 0, 0, 0)
	d.Dispatch(context.Background(), nil, 99, 0, 0, 0)
	hub.Publish(events.TopicHookAttached, map[string]string{"name": "num"})

	require.Eventually(t, func() bool {
		n, err := s.Count(context.Background())
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	rows, err := s.Recent(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	commands := []string{rows[0].Command, rows[1].Command}
	assert.ElementsMatch(t, []string{"num", "code(99)"}, commands)
}

func TestRecorderPrunesOnStart(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record("old", "num", time.Now().Add(-2*time.Hour))))

	hub := events.NewHub(4)
	rec := NewRecorder(s, hub, time.Hour)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- rec.Run(runCtx) }()

	require.Eventually(t, func() bool {
		n, err := s.Count(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
