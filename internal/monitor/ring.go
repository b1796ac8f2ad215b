package monitor

import "sync"

// RingBuffer holds the last Cap() items pushed, overwriting the oldest.
//
// Thread Safety: all methods are safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	write int
	size  int
}

// NewRingBuffer returns an empty buffer. Capacities below 1 are raised to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push adds item, evicting the oldest item when full.
func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	r.items[r.write] = item
	r.write = (r.write + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
	r.mu.Unlock()
}

// All returns every item, newest first.
func (r *RingBuffer[T]) All() []T {
	return r.Recent(-1)
}

// Recent returns up to n items, newest first. n < 0 means all.
func (r *RingBuffer[T]) Recent(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n < 0 || n > r.size {
		n = r.size
	}
	out := make([]T, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.write - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

// Filter returns the items matching keep, newest first.
func (r *RingBuffer[T]) Filter(keep func(T) bool) []T {
	all := r.All()
	out := all[:0]
	for _, item := range all {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Latest returns the newest item.
func (r *RingBuffer[T]) Latest() (T, bool) {
	items := r.Recent(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// Oldest returns the oldest retained item.
func (r *RingBuffer[T]) Oldest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	if r.size < len(r.items) {
		return r.items[0], true
	}
	return r.items[r.write], true
}

// Len returns the number of items held.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.items)
}

// Clear drops every item.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	clear(r.items)
	r.write = 0
	r.size = 0
	r.mu.Unlock()
}
