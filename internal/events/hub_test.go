package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

func TestHubRingBufferKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("t", map[string]int{"n": i})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)
	assert.JSONEq(t, `{"n":4}`, string(all[2].Data))

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestHubSubscribeFiltersTopics(t *testing.T) {
	h := NewHub(10)
	dispatches, cancel := h.Subscribe(TopicDispatch)
	defer cancel()
	everything, cancelAll := h.Subscribe()
	defer cancelAll()

	h.Publish(TopicHookAttached, nil)
	h.Publish(TopicDispatch, nil)

	ev := <-dispatches
	assert.Equal(t, TopicDispatch, ev.Type)
	assert.JSONEq(t, `{}`, string(ev.Data))

	assert.Equal(t, TopicHookAttached, (<-everything).Type)
	assert.Equal(t, TopicDispatch, (<-everything).Type)
}

func TestHubCancelClosesOnce(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers())
	assert.NotPanics(t, func() { h.Publish("t", nil) })
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish("t", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestHubBridgesDispatchAndHooks(t *testing.T) {
	h := NewHub(16)
	reg := hook.NewRegistry()
	reg.OnChange(h.HookChanged)
	d := kpm.New(reg, kpm.WithObserver(h))

	_, err := reg.Attach("test", hook.Table{Num: func(_ context.Context, r *int32) { *r = 1 }})
	require.NoError(t, err)
	d.Dispatch(context.Background(), nil, uint64(kpm.CodeNum), 0, 0, 0)
	reg.Detach(hook.PointNum)

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 3)
	assert.Equal(t, TopicHookAttached, evs[0].Type)
	assert.Equal(t, TopicDispatch, evs[1].Type)
	assert.Equal(t, TopicHookDetached, evs[2].Type)

	var rec kpm.Record
	require.NoError(t, json.Unmarshal(evs[1].Data, &rec))
	assert.Equal(t, "num", rec.Command)
	assert.Equal(t, int32(1), rec.Result)
	assert.NotEmpty(t, rec.RelayError, "nil task cannot receive a result")

	var st hook.SlotStatus
	require.NoError(t, json.Unmarshal(evs[0].Data, &st))
	assert.Equal(t, "num", st.Name)
	assert.Equal(t, "test", st.Owner)
}

func TestHubConcurrentPublish(t *testing.T) {
	h := NewHub(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Publish("t", j)
			}
		}()
	}
	wg.Wait()

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 500)
	for i := 1; i < len(evs); i++ {
		assert.Less(t, evs[i-1].ID, evs[i].ID)
	}
}
