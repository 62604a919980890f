// Package buffer holds a small fixed-size history of recent values.
package buffer

import "sync"

const DefaultSize = 10

// Buffer keeps the last N values added to it, oldest first.
// All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	size  int
}

// New returns a buffer holding at most size values. A non-positive size uses DefaultSize.
func New[T any](size int) *Buffer[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer[T]{
		items: make([]T, 0, size),
		size:  size,
	}
}

// Add appends value, evicting the oldest entry once the buffer is full.
func (b *Buffer[T]) Add(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.size {
		copy(b.items, b.items[1:])
		b.items = b.items[:b.size-1]
	}
	b.items = append(b.items, value)
}

// Latest returns the most recently added value.
func (b *Buffer[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.at(len(b.items) - 1)
}

// Previous returns the value added before the latest one.
func (b *Buffer[T]) Previous() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.at(len(b.items) - 2)
}

// ConsecutiveCount walks back from the newest value and counts how many
// values in a row satisfy match.
func (b *Buffer[T]) ConsecutiveCount(match func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for i := len(b.items) - 1; i >= 0; i-- {
		if !match(b.items[i]) {
			break
		}
		count++
	}
	return count
}

// Values returns a copy of the buffered values, oldest first.
func (b *Buffer[T]) Values() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items)
}

func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = b.items[:0]
}

// at must be called with mu held.
func (b *Buffer[T]) at(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(b.items) {
		return zero, false
	}
	return b.items[i], true
}

// Outcomes is a history of yes/no decisions.
type Outcomes struct {
	*Buffer[bool]
}

func NewOutcomes(size int) *Outcomes {
	return &Outcomes{Buffer: New[bool](size)}
}

// ConsecutiveFalseCount returns how many of the newest outcomes in a row were false.
func (o *Outcomes) ConsecutiveFalseCount() int {
	return o.ConsecutiveCount(func(v bool) bool { return !v })
}
