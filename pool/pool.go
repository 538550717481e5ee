// Package pool provides take/return scoped buffers for per-worker scratch
// memory. Buffers live in per-worker arenas during a phase and are returned
// en masse at flush, so the hot path never hits the shared allocator.
package pool

import "sync"

// Buffers hands out []T scratch slices with take/return semantics.
// Returned slices are reused; contents are not cleared on Take.
type Buffers[T any] struct {
	pool sync.Pool
}

// NewBuffers creates a pool whose fresh buffers have the given capacity.
func NewBuffers[T any](capacity int) *Buffers[T] {
	return &Buffers[T]{
		pool: sync.Pool{
			New: func() interface{} {
				buffer := make([]T, 0, capacity)
				return &buffer
			},
		},
	}
}

// Take borrows an empty buffer.
func (b *Buffers[T]) Take() *[]T {
	buffer := b.pool.Get().(*[]T)
	*buffer = (*buffer)[:0]
	return buffer
}

// Return gives a buffer back for reuse.
func (b *Buffers[T]) Return(buffer *[]T) {
	b.pool.Put(buffer)
}

// WorkerArena owns the scratch buffers of one worker for the duration of a
// step phase. ReturnAll hands everything back at the phase boundary.
type WorkerArena[T any] struct {
	source   *Buffers[T]
	borrowed []*[]T
}

// NewWorkerArena wraps a shared buffer pool for one worker.
func NewWorkerArena[T any](source *Buffers[T]) *WorkerArena[T] {
	return &WorkerArena[T]{source: source}
}

// Take borrows a buffer scoped to this arena.
func (a *WorkerArena[T]) Take() *[]T {
	buffer := a.source.Take()
	a.borrowed = append(a.borrowed, buffer)
	return buffer
}

// ReturnAll returns every borrowed buffer.
func (a *WorkerArena[T]) ReturnAll() {
	for _, buffer := range a.borrowed {
		a.source.Return(buffer)
	}
	a.borrowed = a.borrowed[:0]
}
