package util

import "sync"

// Ring keeps the newest entries up to a fixed capacity. Safe for
// concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	slots []T
	total uint64 // entries ever added
}

func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{slots: make([]T, size)}
}

// Add stores v over the oldest entry once the ring is full.
func (r *Ring[T]) Add(v T) {
	r.mu.Lock()
	r.slots[r.total%uint64(len(r.slots))] = v
	r.total++
	r.mu.Unlock()
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Ring[T]) lenLocked() int {
	if r.total < uint64(len(r.slots)) {
		return int(r.total)
	}
	return len(r.slots)
}

// Last copies out the newest n entries, oldest first. n < 0 means all.
func (r *Ring[T]) Last(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	have := r.lenLocked()
	if n < 0 || n > have {
		n = have
	}
	out := make([]T, n)
	size := uint64(len(r.slots))
	start := r.total - uint64(n)
	for i := range out {
		out[i] = r.slots[(start+uint64(i))%size]
	}
	return out
}
