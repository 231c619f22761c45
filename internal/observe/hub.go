// Package observe is a small typed publish/subscribe hub. Managers publish
// state changes on it; rendering code subscribes.
package observe

import "sync"

// Hub fans events out to subscribers. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Hub[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

// Subscribe registers fn and returns a func that removes it.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every current subscriber. The hub lock is not held
// while handlers run, so a handler may subscribe or unsubscribe.
func (h *Hub[T]) Publish(ev T) {
	h.mu.RLock()
	fns := make([]func(T), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subs[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len reports the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}
