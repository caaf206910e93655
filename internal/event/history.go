package event

import "sync"

// History is a bounded ring of recently published events, kept for replay
// and inspection. It is guarded by its own lock so readers never contend
// with publishers beyond the Add call.
type History struct {
	mu    sync.RWMutex
	ring  []Event
	head  int
	count int
}

// NewHistory creates a ring holding at most capacity events. A capacity
// of zero disables retention entirely.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{ring: make([]Event, capacity)}
}

// Add records an event, evicting the oldest when full.
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ring) == 0 {
		return
	}
	h.ring[h.head] = ev
	h.head = (h.head + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
}

// Len reports how many events are currently retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Query returns up to limit retained events in chronological order,
// optionally filtered by type and source. Empty filter values match all.
func (h *History) Query(typ Type, source string, limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || h.count == 0 {
		return nil
	}

	out := make([]Event, 0, h.count)
	start := (h.head - h.count + len(h.ring)) % len(h.ring)
	for i := 0; i < h.count; i++ {
		ev := h.ring[(start+i)%len(h.ring)]
		if typ != "" && ev.Type != typ {
			continue
		}
		if source != "" && ev.Source != source {
			continue
		}
		out = append(out, ev)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear drops all retained events.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = 0
	h.count = 0
}
