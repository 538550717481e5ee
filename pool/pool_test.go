package pool

import "testing"

func TestBuffersTakeReturn(t *testing.T) {
	buffers := NewBuffers[int](8)

	first := buffers.Take()
	*first = append(*first, 1, 2, 3)
	buffers.Return(first)

	second := buffers.Take()
	if len(*second) != 0 {
		t.Errorf("expected an empty buffer from Take, got %v", *second)
	}
}

func TestWorkerArenaReturnsEnMasse(t *testing.T) {
	buffers := NewBuffers[int](4)
	arena := NewWorkerArena(buffers)

	for i := 0; i < 3; i++ {
		buffer := arena.Take()
		*buffer = append(*buffer, i)
	}
	arena.ReturnAll()

	if len(arena.borrowed) != 0 {
		t.Errorf("expected no borrowed buffers after ReturnAll, got %d", len(arena.borrowed))
	}

	// Buffers are reusable afterward.
	buffer := arena.Take()
	if len(*buffer) != 0 {
		t.Errorf("expected an empty buffer, got %v", *buffer)
	}
	arena.ReturnAll()
}
