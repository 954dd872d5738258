package common

// Ring is a fixed-capacity sliding window: pushing into a full ring
// evicts the oldest item. Index 0 is always the oldest retained item.
type Ring[T any] struct {
	items []T
	count int
	pos   int
}

func NewRing[T any](capacity int) Ring[T] {
	return Ring[T]{
		items: make([]T, capacity),
	}
}

func (r *Ring[T]) Push(item T) {
	if r.count == len(r.items) {
		r.items[r.pos] = item
		r.pos = (r.pos + 1) % len(r.items)

		return
	}

	r.items[(r.pos+r.count)%len(r.items)] = item
	r.count++
}

func (r *Ring[T]) At(indx int) T {
	return r.items[(r.pos+indx)%len(r.items)]
}

// Last returns the newest item and false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.count == 0 {
		var def T

		return def, false
	}

	return r.At(r.count - 1), true
}

func (r Ring[T]) Len() int {
	return r.count
}

// Find returns the index of the first item matched by handler, or -1.
func (r *Ring[T]) Find(handler func(t T) bool) int {
	for i := 0; i < r.count; i++ {
		if handler(r.At(i)) {
			return i
		}
	}

	return -1
}

// TruncateAfter drops every item with an index greater than indx.
// TruncateAfter(-1) clears the ring.
func (r *Ring[T]) TruncateAfter(indx int) {
	var def T

	newCount := max(0, indx+1)
	for i := newCount; i < r.count; i++ {
		r.items[(r.pos+i)%len(r.items)] = def
	}

	if newCount < r.count {
		r.count = newCount
	}
}

func (r *Ring[T]) ToList() []T {
	lst := make([]T, r.count)

	for i := 0; i < r.count; i++ {
		lst[i] = r.At(i)
	}

	return lst
}
