package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// eventBufferSize bounds the in-process queue per SSE subscriber. A slow or
// disconnected consumer drops events rather than blocking the orchestrator
// task that owns the job.
const eventBufferSize = 32

// Hub fans out progress events for running jobs to any number of attached
// SSE consumers. The orchestrator keeps running to completion even if no
// consumer is attached or a consumer disconnects mid-stream.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe attaches a new consumer to jobID's event stream. The returned
// cancel func must be called when the consumer detaches (client disconnect).
func (h *Hub) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		close(ch)
	}
	return ch, cancel
}

// Publish delivers an event to every consumer currently attached to jobID.
// Delivery is best-effort: a full subscriber channel drops the event rather
// than block the calling orchestrator task.
func (h *Hub) Publish(jobID uuid.UUID, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[jobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// sink adapts a Hub into the ProgressSink the Orchestrator writes to.
type sink struct {
	hub   *Hub
	jobID uuid.UUID
}

func (s sink) Emit(e Event) {
	s.hub.Publish(s.jobID, e)
}
