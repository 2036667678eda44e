// Package streaming fans research progress events out to SSE and WebSocket
// subscribers, with a bounded replay buffer per research call.
package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType names one state transition of the research pipeline.
type EventType string

const (
	EventPlanning     EventType = "PLANNING"
	EventResolving    EventType = "RESOLVING"
	EventSearching    EventType = "SEARCHING"
	EventRefining     EventType = "REFINING"
	EventRetrying     EventType = "RETRYING"
	EventStepDone     EventType = "STEP_DONE"
	EventSynthesizing EventType = "SYNTHESIZING"
	EventCompleted    EventType = "COMPLETED"
	EventFailed       EventType = "FAILED"
)

// Event is one progress notification for a research call.
type Event struct {
	ResearchID string    `json:"research_id"`
	Type       EventType `json:"type"`
	StepIndex  int       `json:"step_index,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
}

// Marshal returns the event as JSON for SSE data lines.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Hub is an in-memory pub/sub of research events keyed by research id.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[chan Event]struct{}
	backlog  map[string]*replayBuffer
	capacity int
}

// NewHub creates a hub whose per-call replay buffer holds capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		subs:     make(map[string]map[chan Event]struct{}),
		backlog:  make(map[string]*replayBuffer),
		capacity: capacity,
	}
}

// Subscribe registers a buffered channel for events of one research call.
// The caller must drain it and call Unsubscribe when done.
func (h *Hub) Subscribe(researchID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[researchID]
	if set == nil {
		set = make(map[chan Event]struct{})
		h.subs[researchID] = set
	}
	set[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(researchID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[researchID]; ok {
		delete(set, ch)
		close(ch)
		if len(set) == 0 {
			delete(h.subs, researchID)
		}
	}
}

// Publish assigns a sequence number, records the event for replay, and
// delivers it to all current subscribers without blocking. Slow
// subscribers lose events rather than stalling the pipeline.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	buf := h.backlog[evt.ResearchID]
	if buf == nil {
		buf = newReplayBuffer(h.capacity)
		h.backlog[evt.ResearchID] = buf
	}
	evt.Seq = buf.append(evt)
	set := h.subs[evt.ResearchID]
	h.mu.Unlock()

	for ch := range set {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// the buffer capacity. Used for Last-Event-ID resumption.
func (h *Hub) ReplaySince(researchID string, since uint64) []Event {
	h.mu.RLock()
	buf := h.backlog[researchID]
	h.mu.RUnlock()
	if buf == nil {
		return nil
	}
	return buf.since(since)
}

// Forget drops the replay buffer of a finished research call.
func (h *Hub) Forget(researchID string) {
	h.mu.Lock()
	delete(h.backlog, researchID)
	h.mu.Unlock()
}

// replayBuffer is a fixed-capacity ring of events with monotonically
// increasing sequence numbers starting at 1.
type replayBuffer struct {
	events []Event
	head   int
	size   int
	seq    uint64
}

func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{events: make([]Event, capacity)}
}

func (b *replayBuffer) append(evt Event) uint64 {
	b.seq++
	evt.Seq = b.seq
	if b.size < len(b.events) {
		b.events[(b.head+b.size)%len(b.events)] = evt
		b.size++
	} else {
		b.events[b.head] = evt
		b.head = (b.head + 1) % len(b.events)
	}
	return b.seq
}

func (b *replayBuffer) since(seq uint64) []Event {
	if b.size == 0 {
		return nil
	}
	out := make([]Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		evt := b.events[(b.head+i)%len(b.events)]
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}
