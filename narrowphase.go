package talon

import (
	"encoding/binary"
	"math"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/constraint"
	"github.com/akmonengine/talon/depth"
	"github.com/akmonengine/talon/lane"
	"github.com/akmonengine/talon/manifold"
	"github.com/akmonengine/talon/pair"
	"github.com/akmonengine/talon/pool"
	"github.com/go-gl/mathgl/mgl64"
)

// pairTypeKey identifies a shape-type pair; the batcher keeps one bundle
// per key so drained bundles feed a single generator.
type pairTypeKey uint16

func makePairTypeKey(a, b actor.ShapeType) pairTypeKey {
	return pairTypeKey(a)<<8 | pairTypeKey(b)
}

// pendingPair is one convex pair waiting in a bundle. Compound sub-pairs
// carry their child indices so feature ids stay distinct per child, and the
// top-level body poses so contact offsets re-anchor on the bodies.
type pendingPair struct {
	id        pair.ID
	data      manifold.Pair
	childA    int32
	childB    int32
	rootPoseA actor.Transform
	rootPoseB actor.Transform
}

// bundle is a fixed-capacity group of Width same-type pairs.
type bundle struct {
	pairs [lane.Width]pendingPair
	count int
}

// mergedResult accumulates the manifolds of one top-level pair across its
// (possibly spawned) sub-pairs. Kept in insertion order for determinism.
// Contact offsets are re-anchored on the top-level body positions.
type mergedResult struct {
	id        pair.ID
	manifold  manifold.Manifold
	rootPoseA actor.Transform
}

// pendingConstraint is a deferred constraint insertion, applied during the
// single-threaded flush.
type pendingConstraint struct {
	id          pair.ID
	description constraint.ContactDescription
	scratch     []byte
}

// collisionBatcher is one worker's accumulator. Drains happen in two
// phases: while the broad phase feeds pairs only full bundles drain; the
// flush then drains every non-empty bundle with an inactive-lane mask.
type collisionBatcher struct {
	narrowPhase *NarrowPhase
	workerIndex int

	bundles map[pairTypeKey]*bundle
	// bundleOrder preserves first-seen pair-type order so the phase-2 flush
	// drains deterministically; map iteration would not.
	bundleOrder []pairTypeKey

	results     []mergedResult
	resultIndex map[pair.ID]int

	pendingAdds  []pendingConstraint
	wakeRequests []actor.Handle

	arena           *pool.WorkerArena[manifold.Pair]
	manifoldScratch [lane.Width]manifold.Manifold
}

func newCollisionBatcher(narrowPhase *NarrowPhase, workerIndex int) *collisionBatcher {
	return &collisionBatcher{
		narrowPhase: narrowPhase,
		workerIndex: workerIndex,
		bundles:     make(map[pairTypeKey]*bundle),
		resultIndex: make(map[pair.ID]int),
		arena:       pool.NewWorkerArena(narrowPhase.pairBuffers),
	}
}

func (cb *collisionBatcher) reset() {
	cb.arena.ReturnAll()
	for _, b := range cb.bundles {
		b.count = 0
	}
	cb.results = cb.results[:0]
	clear(cb.resultIndex)
	cb.pendingAdds = cb.pendingAdds[:0]
	cb.wakeRequests = cb.wakeRequests[:0]
}

// add appends a pair; a bundle that fills drains immediately (phase 1).
func (cb *collisionBatcher) add(pending pendingPair) {
	key := makePairTypeKey(pending.data.ShapeA.ShapeType(), pending.data.ShapeB.ShapeType())
	b, ok := cb.bundles[key]
	if !ok {
		b = &bundle{}
		cb.bundles[key] = b
		cb.bundleOrder = append(cb.bundleOrder, key)
	}
	b.pairs[b.count] = pending
	b.count++
	if b.count == lane.Width {
		cb.drain(b)
	}
}

// flush drains every non-empty bundle (phase 2: no new top-level pairs).
func (cb *collisionBatcher) flush() {
	for _, key := range cb.bundleOrder {
		if b := cb.bundles[key]; b.count > 0 {
			cb.drain(b)
		}
	}
}

func (cb *collisionBatcher) drain(b *bundle) {
	buffer := cb.arena.Take()
	for i := 0; i < b.count; i++ {
		*buffer = append(*buffer, b.pairs[i].data)
	}
	exhausted := manifold.Generate(*buffer, b.count, cb.narrowPhase.refinerConfig, cb.manifoldScratch[:])
	if exhausted > 0 && cb.narrowPhase.diagnostics != nil {
		cb.narrowPhase.diagnostics.RefinerExhausted(exhausted)
	}
	for i := 0; i < b.count; i++ {
		cb.merge(&b.pairs[i], &cb.manifoldScratch[i])
	}
	b.count = 0
}

// merge folds one sub-pair manifold into its top-level pair's result,
// salting feature ids with the child indices and keeping the four deepest
// contacts when children contribute more.
func (cb *collisionBatcher) merge(pending *pendingPair, generated *manifold.Manifold) {
	index, ok := cb.resultIndex[pending.id]
	if !ok {
		index = len(cb.results)
		cb.results = append(cb.results, mergedResult{id: pending.id, rootPoseA: pending.rootPoseA})
		cb.resultIndex[pending.id] = index
	}
	result := &cb.results[index]
	previousDeepest := deepest(&result.manifold)

	for i := 0; i < generated.Count; i++ {
		contact := generated.Points[i]
		contact.Feature |= uint32(pending.childA)<<16 | uint32(pending.childB)<<24
		// Sub-pair offsets are relative to the (possibly child) poses used
		// for generation; re-anchor on the top-level body positions.
		worldPoint := pending.data.PoseA.Position.Add(contact.OffsetA)
		contact.OffsetA = worldPoint.Sub(pending.rootPoseA.Position)
		contact.OffsetB = worldPoint.Sub(pending.rootPoseB.Position)

		if result.manifold.Count < len(result.manifold.Points) {
			result.manifold.Points[result.manifold.Count] = contact
			result.manifold.Count++
		} else {
			// Replace the shallowest contact if this one is deeper.
			shallowest := 0
			for j := 1; j < result.manifold.Count; j++ {
				if result.manifold.Points[j].Depth < result.manifold.Points[shallowest].Depth {
					shallowest = j
				}
			}
			if contact.Depth > result.manifold.Points[shallowest].Depth {
				result.manifold.Points[shallowest] = contact
			}
		}
	}
	// The deepest child owns the shared normal.
	if generated.Count > 0 {
		if result.manifold.Normal == (mgl64.Vec3{}) || deepest(generated) > previousDeepest {
			result.manifold.Normal = generated.Normal
		}
	}
}

func deepest(m *manifold.Manifold) float64 {
	best := math.Inf(-1)
	for i := 0; i < m.Count; i++ {
		best = math.Max(best, m.Points[i].Depth)
	}
	return best
}

// NarrowPhase reconciles broad-phase overlaps into contact constraints
// through per-worker batchers and the pair cache.
type NarrowPhase struct {
	bodies *actor.Bodies
	shapes *actor.Shapes
	solver *constraint.Solver
	cache  *pair.Cache

	refinerConfig depth.Config
	diagnostics   Diagnostics

	// pairBuffers backs the per-worker drain arenas; buffers return en
	// masse at the start of every frame.
	pairBuffers *pool.Buffers[manifold.Pair]
	batchers    []*collisionBatcher
}

// NewNarrowPhase wires the narrow phase over shared storage.
func NewNarrowPhase(bodies *actor.Bodies, shapes *actor.Shapes, solver *constraint.Solver, cache *pair.Cache, config Config, diagnostics Diagnostics) *NarrowPhase {
	narrowPhase := &NarrowPhase{
		bodies:        bodies,
		shapes:        shapes,
		solver:        solver,
		cache:         cache,
		refinerConfig: config.refinerConfig(),
		diagnostics:   diagnostics,
		pairBuffers:   pool.NewBuffers[manifold.Pair](lane.Width),
	}
	narrowPhase.resizeWorkers(config.Workers)
	return narrowPhase
}

func (np *NarrowPhase) resizeWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	np.batchers = make([]*collisionBatcher, workers)
	for i := range np.batchers {
		np.batchers[i] = newCollisionBatcher(np, i)
	}
	np.cache.Resize(workers)
}

// BeginFrame resets the per-worker state.
func (np *NarrowPhase) BeginFrame() {
	for _, batcher := range np.batchers {
		batcher.reset()
	}
}

// HandleOverlap accepts one broad-phase overlap on a worker. Preconditions:
// the references differ and at least one is non-static.
func (np *NarrowPhase) HandleOverlap(workerIndex int, a, b pair.Reference) error {
	if err := pair.Validate(a, b); err != nil {
		return err
	}
	first, second := pair.Canonicalize(a, b)
	id := pair.MakeID(first, second)
	batcher := np.batchers[workerIndex]

	bodyA := np.bodies.Lookup(first.Handle())
	bodyB := np.bodies.Lookup(second.Handle())

	// Sleeping members wake next frame and the pair is processed then. A
	// sleeping body resting against a static neighbor must not wake, or the
	// island would never stay asleep.
	firstAsleep := np.bodies.Location(first.Handle()).Set != 0
	secondAsleep := np.bodies.Location(second.Handle()).Set != 0
	if firstAsleep || secondAsleep {
		if firstAsleep && !secondAsleep && second.Mobility() != actor.MobilityStatic {
			batcher.wakeRequests = append(batcher.wakeRequests, first.Handle())
		}
		if secondAsleep && !firstAsleep && first.Mobility() != actor.MobilityStatic {
			batcher.wakeRequests = append(batcher.wakeRequests, second.Handle())
		}
		return nil
	}

	margin := math.Max(bodyA.Collidable.SpeculativeMargin, bodyB.Collidable.SpeculativeMargin)
	if combined := bodyA.Collidable.Continuity.Combine(bodyB.Collidable.Continuity); combined != actor.ContinuityDiscrete {
		// Substepping and inner-sphere modes are unsupported; resolve as
		// discrete and surface the downgrade.
		if np.diagnostics != nil {
			np.diagnostics.ContinuityDowngraded(combined)
		}
	}

	guess, hasGuess := np.guessFor(id)

	np.expandPair(batcher, id, bodyA, bodyB, margin, guess, hasGuess)
	return nil
}

// guessFor decodes the previous frame's refined normal from pair scratch.
func (np *NarrowPhase) guessFor(id pair.ID) (mgl64.Vec3, bool) {
	entry, ok := np.cache.Lookup(id)
	if !ok || len(entry.Scratch) != 24 {
		return mgl64.Vec3{}, false
	}
	return mgl64.Vec3{
		math.Float64frombits(binary.LittleEndian.Uint64(entry.Scratch[0:])),
		math.Float64frombits(binary.LittleEndian.Uint64(entry.Scratch[8:])),
		math.Float64frombits(binary.LittleEndian.Uint64(entry.Scratch[16:])),
	}, true
}

func encodeGuess(normal mgl64.Vec3) []byte {
	scratch := make([]byte, 24)
	binary.LittleEndian.PutUint64(scratch[0:], math.Float64bits(normal.X()))
	binary.LittleEndian.PutUint64(scratch[8:], math.Float64bits(normal.Y()))
	binary.LittleEndian.PutUint64(scratch[16:], math.Float64bits(normal.Z()))
	return scratch
}

// expandPair feeds the batcher: convex pairs directly, compounds expanded
// child-by-child (and child-by-child-of-child for compound-compound).
func (np *NarrowPhase) expandPair(batcher *collisionBatcher, id pair.ID, bodyA, bodyB *actor.Body, margin float64, guess mgl64.Vec3, hasGuess bool) {
	shapeA := bodyA.Collidable.Shape
	shapeB := bodyB.Collidable.Shape

	switch {
	case shapeA.Type == actor.ShapeCompound:
		compound, ok := np.shapes.Compound(shapeA)
		if !ok {
			return
		}
		otherBounds := np.shapes.Bounds(shapeB, bodyB.Pose).Expand(margin)
		manifold.ExpandCompound(np.shapes, compound, bodyA.Pose, otherBounds, func(child manifold.ChildPair) {
			np.expandChildPair(batcher, id, child, bodyA.Pose, bodyB, shapeB, margin)
		})

	case shapeB.Type == actor.ShapeCompound:
		compound, ok := np.shapes.Compound(shapeB)
		if !ok {
			return
		}
		otherBounds := np.shapes.Bounds(shapeA, bodyA.Pose).Expand(margin)
		manifold.ExpandCompound(np.shapes, compound, bodyB.Pose, otherBounds, func(child manifold.ChildPair) {
			convexA, okA := np.shapes.Convex(shapeA)
			convexChild, okChild := np.shapes.Convex(child.Shape)
			if !okA || !okChild {
				return
			}
			batcher.add(pendingPair{
				id: id,
				data: manifold.Pair{
					ShapeA:            convexA,
					ShapeB:            convexChild,
					PoseA:             bodyA.Pose,
					PoseB:             child.Pose,
					SpeculativeMargin: margin,
				},
				childB:    child.Child,
				rootPoseA: bodyA.Pose,
				rootPoseB: bodyB.Pose,
			})
		})

	default:
		convexA, okA := np.shapes.Convex(shapeA)
		convexB, okB := np.shapes.Convex(shapeB)
		if !okA || !okB {
			return
		}
		batcher.add(pendingPair{
			id: id,
			data: manifold.Pair{
				ShapeA:            convexA,
				ShapeB:            convexB,
				PoseA:             bodyA.Pose,
				PoseB:             bodyB.Pose,
				SpeculativeMargin: margin,
				GuessNormal:       guess,
				HasGuess:          hasGuess,
			},
			rootPoseA: bodyA.Pose,
			rootPoseB: bodyB.Pose,
		})
	}
}

// expandChildPair handles a child of compound A against B, which may itself
// be a compound.
func (np *NarrowPhase) expandChildPair(batcher *collisionBatcher, id pair.ID, childA manifold.ChildPair, rootPoseA actor.Transform, bodyB *actor.Body, shapeB actor.ShapeIndex, margin float64) {
	convexChildA, ok := np.shapes.Convex(childA.Shape)
	if !ok {
		return
	}
	if shapeB.Type == actor.ShapeCompound {
		compound, ok := np.shapes.Compound(shapeB)
		if !ok {
			return
		}
		childBounds := convexChildA.ComputeBounds(childA.Pose).Expand(margin)
		manifold.ExpandCompound(np.shapes, compound, bodyB.Pose, childBounds, func(childB manifold.ChildPair) {
			convexChildB, ok := np.shapes.Convex(childB.Shape)
			if !ok {
				return
			}
			batcher.add(pendingPair{
				id: id,
				data: manifold.Pair{
					ShapeA:            convexChildA,
					ShapeB:            convexChildB,
					PoseA:             childA.Pose,
					PoseB:             childB.Pose,
					SpeculativeMargin: margin,
				},
				childA:    childA.Child,
				childB:    childB.Child,
				rootPoseA: rootPoseA,
				rootPoseB: bodyB.Pose,
			})
		})
		return
	}
	convexB, ok := np.shapes.Convex(shapeB)
	if !ok {
		return
	}
	batcher.add(pendingPair{
		id: id,
		data: manifold.Pair{
			ShapeA:            convexChildA,
			ShapeB:            convexB,
			PoseA:             childA.Pose,
			PoseB:             bodyB.Pose,
			SpeculativeMargin: margin,
		},
		childA:    childA.Child,
		rootPoseA: rootPoseA,
		rootPoseB: bodyB.Pose,
	})
}

// FlushWorker drains the worker's remaining bundles and reconciles its
// merged manifolds against the previous frame's pair cache. Existing
// constraints are updated in place (their lanes belong to this pair alone);
// new constraints defer to the single-threaded flush.
func (np *NarrowPhase) FlushWorker(workerIndex int) {
	batcher := np.batchers[workerIndex]
	batcher.flush()

	for index := range batcher.results {
		result := &batcher.results[index]
		if result.manifold.Count == 0 {
			// Nothing to persist: the entry goes stale and the flush
			// removes it, returning any constraint for destruction.
			continue
		}

		description := np.buildDescription(result)
		scratch := encodeGuess(result.rootPoseA.InverseRotation.Rotate(result.manifold.Normal))

		entry, existed := np.cache.Lookup(result.id)
		if existed && entry.Constraint != pair.NoConstraint {
			handle := constraint.Handle(entry.Constraint)
			old := np.solver.ContactImpulses(handle)
			np.solver.UpdateContact(handle, &description)
			if old.Count != description.Count {
				redistributed := redistributeImpulses(&old, &description)
				np.solver.SetContactImpulses(handle, &redistributed)
			}
			np.cache.Record(workerIndex, result.id, entry.Constraint, scratch)
			continue
		}

		batcher.pendingAdds = append(batcher.pendingAdds, pendingConstraint{
			id:          result.id,
			description: description,
			scratch:     scratch,
		})
	}
}

// buildDescription resolves bodies and materials into a contact constraint
// description. The canonical first body is A; the normal points from A to B.
func (np *NarrowPhase) buildDescription(result *mergedResult) constraint.ContactDescription {
	first := result.id.First()
	second := result.id.Second()
	bodyA := np.bodies.Lookup(first.Handle())
	bodyB := np.bodies.Lookup(second.Handle())

	description := constraint.ContactDescription{
		BodyA:       first.Handle(),
		BodyB:       second.Handle(),
		Normal:      result.manifold.Normal,
		Count:       result.manifold.Count,
		Friction:    constraint.CombineFriction(bodyA.Material, bodyB.Material),
		Restitution: constraint.CombineRestitution(bodyA.Material, bodyB.Material),
		Springs:     constraint.DefaultContactSprings,
	}
	for i := 0; i < result.manifold.Count; i++ {
		contact := result.manifold.Points[i]
		worldPoint := result.rootPoseA.Position.Add(contact.OffsetA)
		description.Points[i] = constraint.ContactPoint{
			OffsetA: worldPoint.Sub(bodyA.Pose.Position),
			OffsetB: worldPoint.Sub(bodyB.Pose.Position),
			Depth:   contact.Depth,
			Feature: contact.Feature,
		}
	}
	return description
}

// redistributeImpulses carries accumulated normal impulses across a
// contact-count change: matched feature ids transfer exactly; unmatched
// impulses pile onto the nearest surviving contact. Best-effort.
func redistributeImpulses(old *constraint.ContactImpulses, description *constraint.ContactDescription) constraint.ContactImpulses {
	var out constraint.ContactImpulses
	out.Count = description.Count
	out.Tangent = old.Tangent
	for i := 0; i < description.Count; i++ {
		out.Features[i] = description.Points[i].Feature
	}

	var matched [constraint.MaxContactsPerManifold]bool
	for i := 0; i < description.Count; i++ {
		for j := 0; j < old.Count; j++ {
			if !matched[j] && old.Features[j] == description.Points[i].Feature {
				out.Normal[i] += old.Normal[j]
				matched[j] = true
				break
			}
		}
	}

	for j := 0; j < old.Count; j++ {
		if matched[j] || old.Normal[j] == 0 {
			continue
		}
		nearest := 0
		nearestDistance := math.Inf(1)
		for i := 0; i < description.Count; i++ {
			distance := description.Points[i].OffsetA.Sub(old.OffsetA[j]).LenSqr()
			if distance < nearestDistance {
				nearestDistance = distance
				nearest = i
			}
		}
		out.Normal[nearest] += old.Normal[j]
	}
	return out
}

// Flush is the single-threaded postpass at the frame's synchronization
// point: wake requests apply, deferred constraint insertions land, the pair
// cache merges worker deltas and prunes stale pairs, and collision events
// fire from the fresh/stale transitions. Returns the constraint handles of
// removed pairs for the removal flush.
func (np *NarrowPhase) Flush(events *Events, wake func(actor.Handle)) []constraint.Handle {
	woken := make(map[actor.Handle]bool)
	for _, batcher := range np.batchers {
		for _, handle := range batcher.wakeRequests {
			if !woken[handle] {
				woken[handle] = true
				wake(handle)
			}
		}
	}

	for _, batcher := range np.batchers {
		for i := range batcher.pendingAdds {
			add := &batcher.pendingAdds[i]
			handle := np.solver.AddContact(&add.description)
			np.cache.Record(0, add.id, pair.ConstraintHandle(handle), add.scratch)
		}
	}

	for _, batcher := range np.batchers {
		for i := range batcher.results {
			if batcher.results[i].manifold.Count > 0 {
				events.recordVisited(batcher.results[i].id)
			}
		}
	}

	removedHandles, removedIDs := np.cache.Flush()
	for _, id := range removedIDs {
		events.recordRemoved(id)
	}

	out := make([]constraint.Handle, 0, len(removedHandles))
	for _, handle := range removedHandles {
		out = append(out, constraint.Handle(handle))
	}
	return out
}
