package task

import (
	"sync"
	"time"

	"github.com/hirecraft/jdqueue/server/observability"
)

// Event types published on a task's stream.
const (
	EventStart    = "start"
	EventStatus   = "status"
	EventProgress = "progress"
	EventQueue    = "queue"
	EventDelta    = "delta"
	EventEnd      = "end"
	EventError    = "error"
	EventHello    = "hello"
	EventPing     = "ping"
)

// Event is one typed message on a task stream. TS is the server clock at
// publish time, seconds since epoch.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	TS   float64        `json:"ts"`
}

// DefaultSubscriberBuffer bounds each subscriber's pending events.
const DefaultSubscriberBuffer = 1000

// Hub fans events out to per-task subscriber sets. Producers never block: a
// subscriber whose buffer is full simply misses that message.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[chan Event]struct{}
	bufSize int
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]map[chan Event]struct{}),
		bufSize: DefaultSubscriberBuffer,
	}
}

// NewHubWithBuffer is used by tests exercising overflow behavior.
func NewHubWithBuffer(n int) *Hub {
	h := NewHub()
	if n > 0 {
		h.bufSize = n
	}
	return h
}

// Subscribe returns a fresh buffered channel receiving the task's events.
func (h *Hub) Subscribe(taskID string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, h.bufSize)
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[taskID] = set
	}
	set[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the channel; safe to call twice.
func (h *Hub) Unsubscribe(taskID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[taskID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, taskID)
		}
	}
}

// Publish delivers the event to every subscriber by non-blocking send.
func (h *Hub) Publish(taskID, eventType string, data map[string]any) {
	ev := Event{
		Type: eventType,
		Data: data,
		TS:   float64(time.Now().UnixNano()) / 1e9,
	}

	h.mu.Lock()
	set := h.subs[taskID]
	targets := make([]chan Event, 0, len(set))
	for ch := range set {
		targets = append(targets, ch)
	}
	h.mu.Unlock()

	observability.EventsPublished.WithLabelValues(eventType).Inc()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			observability.SubscriberDropped.WithLabelValues(eventType).Inc()
		}
	}
}

// SubscriberCount reports how many streams are open for a task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}
