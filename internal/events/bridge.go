package events

import (
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

// ObserveDispatch publishes every dispatch record on TopicDispatch, making a
// Hub usable as a kpm.Observer.
func (h *Hub) ObserveDispatch(r kpm.Record) {
	h.Publish(TopicDispatch, r)
}

// HookChanged publishes a slot change. It matches hook.Registry.OnChange.
func (h *Hub) HookChanged(st hook.SlotStatus) {
	topic := TopicHookDetached
	if st.Attached {
		topic = TopicHookAttached
	}
	h.Publish(topic, st)
}
