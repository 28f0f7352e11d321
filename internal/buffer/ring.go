// internal/buffer/ring.go
package buffer

// Ring is a fixed-capacity single-producer/single-consumer queue.
// A full ring refuses writes and an empty ring refuses reads; callers
// must check the returned flag. Indices wrap modulo the capacity and
// the ring is never resized after construction.
type Ring[T any] struct {
	items []T
	read  int
	write int
	count int
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
	}
}

// Write appends one item. It returns false without modifying the ring
// when the ring is full.
func (r *Ring[T]) Write(item T) bool {
	if r.count >= len(r.items) {
		return false
	}
	r.items[r.write] = item
	r.write = (r.write + 1) % len(r.items)
	r.count++
	return true
}

// WriteAll appends every item or none: if the free space cannot hold the
// whole slice the ring is left untouched and false is returned.
func (r *Ring[T]) WriteAll(items []T) bool {
	if r.count+len(items) > len(r.items) {
		return false
	}
	for _, item := range items {
		r.items[r.write] = item
		r.write = (r.write + 1) % len(r.items)
	}
	r.count += len(items)
	return true
}

// Read removes and returns the oldest item.
func (r *Ring[T]) Read() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	item := r.items[r.read]
	r.items[r.read] = zero
	r.read = (r.read + 1) % len(r.items)
	r.count--
	return item, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.items[r.read], true
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int { return r.count }

// Free returns the remaining write capacity.
func (r *Ring[T]) Free() int { return len(r.items) - r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Clear discards all buffered items.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.read = 0
	r.write = 0
	r.count = 0
}
