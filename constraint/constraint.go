// Package constraint implements the batched iterative velocity solver: per
// constraint-type prestep / warm-start / solve kernels over lane-wide
// bundles, graph-colored batches whose bodies never repeat, a Jacobi
// fallback batch for high-degree bodies, and the scheduler that runs them.
package constraint

import "github.com/akmonengine/talon/actor"

// Handle is a stable constraint identifier, valid until removal.
type Handle int32

// InvalidHandle marks an empty handle slot.
const InvalidHandle Handle = -1

// TypeID identifies a constraint type. Dispatch is by id through per-type
// batches; there are no virtual calls in the solve hot path beyond the
// batch boundary.
type TypeID uint8

const (
	ContactTypeID TypeID = iota
	VolumeTypeID

	typeCount
)

// TypeBatch is the per-type constraint storage of one batch: contiguous
// lane-wide bundles plus the three kernels. Slots address constraints as
// bundleIndex*Width + laneIndex.
type TypeBatch interface {
	TypeID() TypeID
	ConstraintCount() int
	BundleCount() int

	// HandleAt returns the constraint handle stored in a slot.
	HandleAt(slot int) Handle
	// BodyHandles returns the bodies referenced by a slot.
	BodyHandles(slot int) []actor.Handle

	// Prestep precomputes Jacobians, effective masses, softness, and bias
	// from current poses and inertias for the bundle range.
	Prestep(bodies *actor.Bodies, dt float64, bundleStart, bundleEnd int)
	// WarmStart applies the previous frame's accumulated impulses once.
	WarmStart(bodies *actor.Bodies, access VelocityAccess, bundleStart, bundleEnd int)
	// SolveIteration projects velocities for the bundle range.
	SolveIteration(access VelocityAccess, bundleStart, bundleEnd int)

	// RemoveSlot swap-removes a constraint. If another constraint moved
	// into the vacated slot, its handle is returned so the owner can fix
	// its location; InvalidHandle otherwise.
	RemoveSlot(slot int) Handle
}

// Location addresses a live constraint: (set, batch, type, slot).
// Accumulated-impulse lanes are addressable through it.
type Location struct {
	Set   int32
	Batch int32 // FallbackBatchIndex for the fallback batch
	Type  TypeID
	Slot  int32
}

// FallbackBatchIndex is the batch index recorded for constraints living in
// the fallback batch.
const FallbackBatchIndex int32 = -2
