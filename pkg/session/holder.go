package session

import (
	"sync"
	"sync/atomic"
)

// Listener is notified after the current session is replaced.
type Listener func(s *Session, generation uint64)

// Holder owns the current Session. Replace swaps it in a single assignment;
// readers always observe a whole session or none.
type Holder struct {
	current    atomic.Pointer[Session]
	generation atomic.Uint64

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewHolder returns a holder with no session.
func NewHolder() *Holder {
	return &Holder{listeners: map[int]Listener{}}
}

// Current returns the current session, or nil.
func (h *Holder) Current() *Session {
	return h.current.Load()
}

// Generation increases by one on every Replace.
func (h *Holder) Generation() uint64 {
	return h.generation.Load()
}

// Replace makes s current and notifies listeners in registration order.
func (h *Holder) Replace(s *Session) uint64 {
	h.mu.Lock()
	h.current.Store(s)
	gen := h.generation.Add(1)
	listeners := make([]Listener, 0, len(h.order))
	for _, id := range h.order {
		listeners = append(listeners, h.listeners[id])
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l(s, gen)
	}
	return gen
}

// OnReplace registers l and returns a function that removes it.
func (h *Holder) OnReplace(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = l
	h.order = append(h.order, id)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.listeners[id]; !ok {
			return
		}
		delete(h.listeners, id)
		for i, v := range h.order {
			if v == id {
				h.order = append(h.order[:i:i], h.order[i+1:]...)
				break
			}
		}
	}
}
