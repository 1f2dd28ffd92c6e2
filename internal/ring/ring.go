// Package ring provides a fixed-capacity FIFO buffer that overwrites its
// oldest element once full. Locking is left to the caller: the acquisition
// core guards all of its buffers with a single session mutex.
package ring

// Buffer holds up to Cap() elements in insertion order. Push is O(1) and
// evicts the oldest element when the buffer is full, so a producer never
// blocks on a slow consumer.
type Buffer[T any] struct {
	data []T
	head int // index of the oldest element
	size int
}

// New creates a buffer that retains the most recent capacity elements.
// capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if b.size < len(b.data) {
		b.data[(b.head+b.size)%len(b.data)] = v
		b.size++
		return
	}
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
}

// Len returns the current number of elements.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Clear discards all elements.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.size = 0
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	return b.Tail(b.size)
}

// Tail returns a copy of the most recent n elements, oldest first. If n
// exceeds Len, the whole contents are returned.
func (b *Buffer[T]) Tail(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.data[(start+i)%len(b.data)]
	}
	return out
}

// DrainTo moves the entire contents into dst in original order and clears
// the buffer. Returns the number of elements moved.
func (b *Buffer[T]) DrainTo(dst *Buffer[T]) int {
	n := b.size
	for i := 0; i < n; i++ {
		dst.Push(b.data[(b.head+i)%len(b.data)])
	}
	b.Clear()
	return n
}
