package constraint

import "github.com/akmonengine/talon/actor"

// Batch is one coloring class: a group of constraints in which no dynamic
// body appears twice, so its bundles solve in parallel without synchronizing.
// Constraints are stored per type.
type Batch struct {
	typeBatches []TypeBatch
	typeIndex   [typeCount]int
	referenced  map[actor.Handle]struct{}
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	batch := &Batch{referenced: make(map[actor.Handle]struct{})}
	for i := range batch.typeIndex {
		batch.typeIndex[i] = -1
	}
	return batch
}

// TypeBatches returns the per-type storage in registration order.
func (b *Batch) TypeBatches() []TypeBatch {
	return b.typeBatches
}

// CanHold reports whether none of the given dynamic bodies is already
// referenced by this batch.
func (b *Batch) CanHold(bodies []actor.Handle) bool {
	for _, handle := range bodies {
		if _, exists := b.referenced[handle]; exists {
			return false
		}
	}
	return true
}

// Reference marks bodies as used by this batch.
func (b *Batch) Reference(bodies []actor.Handle) {
	for _, handle := range bodies {
		b.referenced[handle] = struct{}{}
	}
}

// Unreference releases bodies when a constraint leaves the batch.
func (b *Batch) Unreference(bodies []actor.Handle) {
	for _, handle := range bodies {
		delete(b.referenced, handle)
	}
}

// References reports whether the batch currently references a body.
func (b *Batch) References(handle actor.Handle) bool {
	_, exists := b.referenced[handle]
	return exists
}

// contactBatch returns the batch's contact storage, creating it on demand.
func (b *Batch) contactBatch() *ContactBatch {
	if index := b.typeIndex[ContactTypeID]; index >= 0 {
		return b.typeBatches[index].(*ContactBatch)
	}
	batch := &ContactBatch{}
	b.typeIndex[ContactTypeID] = len(b.typeBatches)
	b.typeBatches = append(b.typeBatches, batch)
	return batch
}

// volumeBatch returns the batch's volume storage, creating it on demand.
func (b *Batch) volumeBatch() *VolumeBatch {
	if index := b.typeIndex[VolumeTypeID]; index >= 0 {
		return b.typeBatches[index].(*VolumeBatch)
	}
	batch := &VolumeBatch{}
	b.typeIndex[VolumeTypeID] = len(b.typeBatches)
	b.typeBatches = append(b.typeBatches, batch)
	return batch
}

// typeBatch resolves per-type storage by id.
func (b *Batch) typeBatch(id TypeID) TypeBatch {
	index := b.typeIndex[id]
	if index < 0 {
		return nil
	}
	return b.typeBatches[index]
}

// ConstraintCount sums constraints over all type batches.
func (b *Batch) ConstraintCount() int {
	total := 0
	for _, typeBatch := range b.typeBatches {
		total += typeBatch.ConstraintCount()
	}
	return total
}
