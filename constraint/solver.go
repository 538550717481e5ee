package constraint

import "github.com/akmonengine/talon/actor"

// ParallelFor fans items out over the worker pool and joins before
// returning. The solver is handed one by the owning world so batches can be
// distributed without the solver knowing about the dispatcher.
type ParallelFor func(items int, fn func(workerIndex, item int))

// SerialFor is the degenerate dispatcher used when no workers are available.
func SerialFor(items int, fn func(workerIndex, item int)) {
	for i := 0; i < items; i++ {
		fn(0, i)
	}
}

// ConstraintSet groups the batches of one body set. Set 0 is active; sets of
// sleeping islands keep their constraints dormant until woken.
type ConstraintSet struct {
	Batches  []*Batch
	Fallback *Batch
}

// Solver owns constraint storage and runs the iterative velocity solve.
type Solver struct {
	Sets []ConstraintSet

	// FallbackBatchThreshold caps the colored batch count; constraints
	// whose bodies collide with every colored batch overflow into the
	// fallback batch and solve with Jacobi averaging.
	FallbackBatchThreshold int

	bodies          *actor.Bodies
	locations       []Location
	freeHandles     []Handle
	bodyConstraints map[actor.Handle][]Handle
}

// NewSolver creates a solver over the given body storage.
func NewSolver(bodies *actor.Bodies, fallbackThreshold int) *Solver {
	return &Solver{
		Sets:                   []ConstraintSet{{}},
		FallbackBatchThreshold: fallbackThreshold,
		bodies:                 bodies,
		bodyConstraints:        make(map[actor.Handle][]Handle),
	}
}

func (s *Solver) allocateHandle() Handle {
	if n := len(s.freeHandles); n > 0 {
		handle := s.freeHandles[n-1]
		s.freeHandles = s.freeHandles[:n-1]
		return handle
	}
	s.locations = append(s.locations, Location{})
	return Handle(len(s.locations) - 1)
}

// dynamicBodies filters the handles that participate in coloring: only
// dynamic bodies receive impulses, so statics and kinematics never conflict.
func (s *Solver) dynamicBodies(bodies []actor.Handle) []actor.Handle {
	dynamic := bodies[:0:0]
	for _, handle := range bodies {
		if s.bodies.Lookup(handle).Mobility == actor.MobilityDynamic {
			dynamic = append(dynamic, handle)
		}
	}
	return dynamic
}

// targetBatch finds the first colored batch that can hold the bodies, grows
// the batch list up to the fallback threshold, and overflows into the
// fallback batch beyond it.
func (s *Solver) targetBatch(dynamic []actor.Handle) (*Batch, int32) {
	active := &s.Sets[0]
	for index, batch := range active.Batches {
		if batch.CanHold(dynamic) {
			return batch, int32(index)
		}
	}
	if len(active.Batches) < s.FallbackBatchThreshold {
		batch := NewBatch()
		active.Batches = append(active.Batches, batch)
		return batch, int32(len(active.Batches) - 1)
	}
	if active.Fallback == nil {
		active.Fallback = NewBatch()
	}
	return active.Fallback, FallbackBatchIndex
}

// AddContact inserts a contact constraint; accumulated impulses start at
// zero.
func (s *Solver) AddContact(description *ContactDescription) Handle {
	handle := s.allocateHandle()
	dynamic := s.dynamicBodies([]actor.Handle{description.BodyA, description.BodyB})
	batch, batchIndex := s.targetBatch(dynamic)
	batch.Reference(dynamic)

	slot := batch.contactBatch().Add(handle, description)
	s.locations[handle] = Location{Set: 0, Batch: batchIndex, Type: ContactTypeID, Slot: int32(slot)}
	s.addToBodyLists(handle, description.BodyA, description.BodyB)
	return handle
}

// UpdateContact rewrites an existing contact constraint's geometry while
// preserving its accumulated impulses. The body pair of a persisted pair
// never changes, so the batch assignment stays valid.
func (s *Solver) UpdateContact(handle Handle, description *ContactDescription) {
	location := s.locations[handle]
	s.batchAt(location).contactBatch().Update(int(location.Slot), description)
}

// AddVolume inserts a volume constraint over four bodies.
func (s *Solver) AddVolume(description *VolumeDescription) Handle {
	handle := s.allocateHandle()
	all := []actor.Handle{description.BodyA, description.BodyB, description.BodyC, description.BodyD}
	dynamic := s.dynamicBodies(all)
	batch, batchIndex := s.targetBatch(dynamic)
	batch.Reference(dynamic)

	slot := batch.volumeBatch().Add(handle, description)
	s.locations[handle] = Location{Set: 0, Batch: batchIndex, Type: VolumeTypeID, Slot: int32(slot)}
	s.addToBodyLists(handle, all...)
	return handle
}

func (s *Solver) addToBodyLists(handle Handle, bodies ...actor.Handle) {
	for _, body := range bodies {
		s.bodyConstraints[body] = append(s.bodyConstraints[body], handle)
	}
}

// LocationOf returns a constraint's current location.
func (s *Solver) LocationOf(handle Handle) Location {
	return s.locations[handle]
}

// ContactImpulses reads the accumulated impulses of a contact constraint.
func (s *Solver) ContactImpulses(handle Handle) ContactImpulses {
	location := s.locations[handle]
	return s.batchAt(location).contactBatch().Impulses(int(location.Slot))
}

// SetContactImpulses overwrites the accumulated impulses of a contact
// constraint (feature-id redistribution on contact-count changes).
func (s *Solver) SetContactImpulses(handle Handle, impulses *ContactImpulses) {
	location := s.locations[handle]
	s.batchAt(location).contactBatch().SetImpulses(int(location.Slot), impulses)
}

// VolumeImpulse reads the accumulated impulse of a volume constraint.
func (s *Solver) VolumeImpulse(handle Handle) float64 {
	location := s.locations[handle]
	return s.batchAt(location).volumeBatch().AccumulatedImpulse(int(location.Slot))
}

// ConstraintsOfBody lists the live constraints referencing a body.
func (s *Solver) ConstraintsOfBody(body actor.Handle) []Handle {
	return s.bodyConstraints[body]
}

func (s *Solver) batchAt(location Location) *Batch {
	set := &s.Sets[location.Set]
	if location.Batch == FallbackBatchIndex {
		return set.Fallback
	}
	return set.Batches[location.Batch]
}

// The removal flush decomposes constraint destruction into jobs that touch
// disjoint resources; each method below is one job kind.

// BodyHandlesOf resolves the bodies referenced by a live constraint. The
// removal flush captures this before enqueueing jobs so no job has to read
// type-batch lanes that another job may be compacting.
func (s *Solver) BodyHandlesOf(handle Handle) []actor.Handle {
	location := s.locations[handle]
	return s.batchAt(location).typeBatch(location.Type).BodyHandles(int(location.Slot))
}

// RemoveFromBodyLists detaches a constraint from its bodies' constraint
// lists. Single writer of the body-list category.
func (s *Solver) RemoveFromBodyLists(handle Handle, bodies []actor.Handle) {
	for _, body := range bodies {
		list := s.bodyConstraints[body]
		for i, candidate := range list {
			if candidate == handle {
				list[i] = list[len(list)-1]
				s.bodyConstraints[body] = list[:len(list)-1]
				break
			}
		}
		if len(s.bodyConstraints[body]) == 0 {
			delete(s.bodyConstraints, body)
		}
	}
}

// RemoveFromBatchReferenced releases the constraint's dynamic bodies from
// its batch's referenced-handles set. Single writer of the batch-reference
// category.
func (s *Solver) RemoveFromBatchReferenced(handle Handle, bodies []actor.Handle) {
	s.UnreferenceLocation(s.locations[handle], bodies)
}

// UnreferenceLocation is the precaptured-location form used by the removal
// flush, so this job never reads location entries another job may repair.
func (s *Solver) UnreferenceLocation(location Location, bodies []actor.Handle) {
	s.batchAt(location).Unreference(s.dynamicBodies(bodies))
}

// RemoveFromTypeBatch swap-removes the constraint's lane and repairs the
// location of whichever constraint backfilled it. Jobs of this kind are
// independent when they target distinct type batches.
func (s *Solver) RemoveFromTypeBatch(handle Handle) {
	location := s.locations[handle]
	typeBatch := s.batchAt(location).typeBatch(location.Type)
	if moved := typeBatch.RemoveSlot(int(location.Slot)); moved != InvalidHandle {
		s.locations[moved].Slot = location.Slot
	}
}

// ReturnHandle recycles the handle. Single writer of the handle pool.
func (s *Solver) ReturnHandle(handle Handle) {
	s.locations[handle] = Location{Set: -1, Batch: -1, Slot: -1}
	s.freeHandles = append(s.freeHandles, handle)
}

// Remove destroys a constraint synchronously: the four removal jobs in
// dependency order. The narrow phase's removal flush runs the same jobs
// batched and in parallel instead.
func (s *Solver) Remove(handle Handle) {
	bodies := s.BodyHandlesOf(handle)
	s.RemoveFromBodyLists(handle, bodies)
	s.RemoveFromBatchReferenced(handle, bodies)
	s.RemoveFromTypeBatch(handle)
	s.ReturnHandle(handle)
}

// Solve runs the full step: prestep everything, warm start, then the
// requested velocity iterations. Within an iteration, sets run active
// first, batches within a set serially in index order, and bundles within a
// batch in parallel; the fallback batch runs last with its averaging
// reduction.
func (s *Solver) Solve(dt float64, iterations int, parallelFor ParallelFor) {
	if parallelFor == nil {
		parallelFor = SerialFor
	}
	direct := DirectAccess{Bodies: s.bodies}

	// Prestep reads poses and writes only bundle-local data: fully
	// parallel over bundles of every batch.
	s.forEachTypeBatch(func(typeBatch TypeBatch) {
		parallelFor(typeBatch.BundleCount(), func(workerIndex, bundle int) {
			typeBatch.Prestep(s.bodies, dt, bundle, bundle+1)
		})
	})

	// Warm start obeys the same write-isolation rules as solving.
	s.forEachBatchSerial(
		func(typeBatch TypeBatch) {
			parallelFor(typeBatch.BundleCount(), func(workerIndex, bundle int) {
				typeBatch.WarmStart(s.bodies, direct, bundle, bundle+1)
			})
		},
		func(fallback *Batch, jacobi *JacobiAccess) {
			for _, typeBatch := range fallback.TypeBatches() {
				typeBatch.WarmStart(s.bodies, jacobi, 0, typeBatch.BundleCount())
			}
		},
	)

	for iteration := 0; iteration < iterations; iteration++ {
		s.forEachBatchSerial(
			func(typeBatch TypeBatch) {
				parallelFor(typeBatch.BundleCount(), func(workerIndex, bundle int) {
					typeBatch.SolveIteration(direct, bundle, bundle+1)
				})
			},
			func(fallback *Batch, jacobi *JacobiAccess) {
				for _, typeBatch := range fallback.TypeBatches() {
					typeBatch.SolveIteration(jacobi, 0, typeBatch.BundleCount())
				}
			},
		)
	}
}

// forEachTypeBatch visits every type batch in every set, fallback included.
func (s *Solver) forEachTypeBatch(visit func(TypeBatch)) {
	for setIndex := range s.Sets {
		set := &s.Sets[setIndex]
		for _, batch := range set.Batches {
			for _, typeBatch := range batch.TypeBatches() {
				visit(typeBatch)
			}
		}
		if set.Fallback != nil {
			for _, typeBatch := range set.Fallback.TypeBatches() {
				visit(typeBatch)
			}
		}
	}
}

// forEachBatchSerial runs one pass over all sets (active first): colored
// batches in index order through colored, then the fallback batch through
// jacobi followed by its averaging reduction.
func (s *Solver) forEachBatchSerial(colored func(TypeBatch), jacobiPass func(*Batch, *JacobiAccess)) {
	for setIndex := range s.Sets {
		set := &s.Sets[setIndex]
		for _, batch := range set.Batches {
			for _, typeBatch := range batch.TypeBatches() {
				colored(typeBatch)
			}
		}
		if set.Fallback != nil && set.Fallback.ConstraintCount() > 0 {
			jacobi := NewJacobiAccess(s.bodies)
			jacobiPass(set.Fallback, jacobi)
			jacobi.ApplyAveraged()
		}
	}
}
