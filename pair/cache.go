package pair

import "sort"

// ConstraintHandle references a constraint owned by the solver. None marks
// a pair recorded without a constraint.
type ConstraintHandle int32

// NoConstraint marks an entry without an associated constraint.
const NoConstraint ConstraintHandle = -1

// Entry is the persisted state of one pair: the constraint it maps to and
// the per-pair scratch bytes its generator wants back next frame.
type Entry struct {
	Constraint ConstraintHandle
	Scratch    []byte
	fresh      bool
}

// Delta is one worker-local pending mutation, applied at flush.
type Delta struct {
	ID         ID
	Constraint ConstraintHandle
	Scratch    []byte
}

// Cache maps canonical pair ids to entries. During the parallel narrow phase
// the mapping is read-only; workers record Deltas on their own lists and a
// single-threaded Flush merges them and prunes pairs not visited this frame.
type Cache struct {
	entries map[ID]*Entry
	deltas  [][]Delta
}

// NewCache creates a cache sized for workerCount parallel writers.
func NewCache(workerCount int) *Cache {
	cache := &Cache{entries: make(map[ID]*Entry)}
	cache.Resize(workerCount)
	return cache
}

// Resize adjusts the number of worker delta lists.
func (c *Cache) Resize(workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	c.deltas = make([][]Delta, workerCount)
}

// Lookup returns the previous frame's entry for a pair. The returned entry
// must be treated as read-only during the parallel phase.
func (c *Cache) Lookup(id ID) (*Entry, bool) {
	entry, ok := c.entries[id]
	return entry, ok
}

// Record enqueues an add-or-update for a pair on a worker-local list.
// Safe to call concurrently from distinct workers. The entry becomes fresh
// this frame regardless of whether its payload changed.
func (c *Cache) Record(workerIndex int, id ID, constraint ConstraintHandle, scratch []byte) {
	c.deltas[workerIndex] = append(c.deltas[workerIndex], Delta{
		ID:         id,
		Constraint: constraint,
		Scratch:    scratch,
	})
}

// Flush applies all worker deltas and removes stale entries, returning the
// constraint handles of removed pairs so the caller can destroy them.
// Single-threaded: runs at the frame's synchronization point.
func (c *Cache) Flush() (removed []ConstraintHandle, removedIDs []ID) {
	for workerIndex := range c.deltas {
		for _, delta := range c.deltas[workerIndex] {
			entry, ok := c.entries[delta.ID]
			if !ok {
				entry = &Entry{}
				c.entries[delta.ID] = entry
			}
			entry.Constraint = delta.Constraint
			entry.Scratch = delta.Scratch
			entry.fresh = true
		}
		c.deltas[workerIndex] = c.deltas[workerIndex][:0]
	}

	for id, entry := range c.entries {
		if !entry.fresh {
			removedIDs = append(removedIDs, id)
			continue
		}
		entry.fresh = false
	}
	// Sorted output keeps downstream removal order replay-deterministic.
	sort.Slice(removedIDs, func(i, j int) bool { return removedIDs[i] < removedIDs[j] })
	for _, id := range removedIDs {
		if constraintHandle := c.entries[id].Constraint; constraintHandle != NoConstraint {
			removed = append(removed, constraintHandle)
		}
		delete(c.entries, id)
	}
	return removed, removedIDs
}

// DropIf removes entries whose id matches the predicate immediately,
// returning their constraint handles. Scene mutation only; never called
// during the parallel phase.
func (c *Cache) DropIf(match func(ID) bool) []ConstraintHandle {
	var removed []ConstraintHandle
	for id, entry := range c.entries {
		if !match(id) {
			continue
		}
		if entry.Constraint != NoConstraint {
			removed = append(removed, entry.Constraint)
		}
		delete(c.entries, id)
	}
	return removed
}

// Len returns the number of persisted pairs.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Fresh reports whether a pair was visited since the last flush. Intended
// for tests and diagnostics.
func (c *Cache) Fresh(id ID) bool {
	for _, deltas := range c.deltas {
		for _, delta := range deltas {
			if delta.ID == id {
				return true
			}
		}
	}
	return false
}
