package constraint

import (
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/go-gl/mathgl/mgl64"
)

func contactBetween(bodyA, bodyB actor.Handle) *ContactDescription {
	return &ContactDescription{
		BodyA:  bodyA,
		BodyB:  bodyB,
		Normal: mgl64.Vec3{1, 0, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{1, 0, 0},
			OffsetB: mgl64.Vec3{-1, 0, 0},
			Depth:   0.01,
		}},
		Springs: DefaultContactSprings,
	}
}

func TestColoring(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	var handles [4]actor.Handle
	for i := range handles {
		handles[i] = addSphereBody(bodies, shapes, mgl64.Vec3{float64(i * 3), 0, 0}, mgl64.Vec3{}, actor.MobilityDynamic)
	}
	a, b, c, d := handles[0], handles[1], handles[2], handles[3]

	solver := NewSolver(bodies, 8)
	solver.AddContact(contactBetween(a, b))
	solver.AddContact(contactBetween(c, d))
	solver.AddContact(contactBetween(a, c))
	solver.AddContact(contactBetween(b, d))

	active := &solver.Sets[0]
	if len(active.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(active.Batches))
	}
	for batchIndex, batch := range active.Batches {
		if count := batch.ConstraintCount(); count != 2 {
			t.Errorf("batch %d: expected 2 constraints, got %d", batchIndex, count)
		}
	}

	t.Run("no batch references a body twice", func(t *testing.T) {
		for batchIndex, batch := range active.Batches {
			seen := map[actor.Handle]int{}
			for _, typeBatch := range batch.TypeBatches() {
				for slot := 0; slot < typeBatch.ConstraintCount(); slot++ {
					for _, body := range typeBatch.BodyHandles(slot) {
						seen[body]++
						if seen[body] > 1 {
							t.Errorf("batch %d references body %v twice", batchIndex, body)
						}
					}
				}
			}
		}
	})
}

func TestFallbackBatchOverflow(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	hub := addSphereBody(bodies, shapes, mgl64.Vec3{}, mgl64.Vec3{}, actor.MobilityDynamic)

	solver := NewSolver(bodies, 2)
	var handles []Handle
	for i := 0; i < 5; i++ {
		other := addSphereBody(bodies, shapes, mgl64.Vec3{2, 0, 0}, mgl64.Vec3{}, actor.MobilityDynamic)
		handles = append(handles, solver.AddContact(contactBetween(hub, other)))
	}

	// The hub appears in every constraint: two land in colored batches,
	// the rest overflow into the fallback batch.
	active := &solver.Sets[0]
	if len(active.Batches) != 2 {
		t.Fatalf("expected the colored batch count capped at 2, got %d", len(active.Batches))
	}
	if active.Fallback == nil || active.Fallback.ConstraintCount() != 3 {
		t.Fatalf("expected 3 constraints in the fallback batch")
	}

	fallbackCount := 0
	for _, handle := range handles {
		if solver.LocationOf(handle).Batch == FallbackBatchIndex {
			fallbackCount++
		}
	}
	if fallbackCount != 3 {
		t.Errorf("expected 3 fallback locations, got %d", fallbackCount)
	}

	// The fallback batch must still solve without panicking and leave the
	// shared body with a finite velocity.
	solver.Solve(testTimestep, 4, nil)
	velocity := bodies.Lookup(hub).Velocity
	if velocity.Len() > 100 {
		t.Errorf("fallback solve destabilized the shared body: %v", velocity)
	}
}

func TestRemoveConstraint(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	a := addSphereBody(bodies, shapes, mgl64.Vec3{}, mgl64.Vec3{}, actor.MobilityDynamic)
	b := addSphereBody(bodies, shapes, mgl64.Vec3{2, 0, 0}, mgl64.Vec3{}, actor.MobilityDynamic)
	c := addSphereBody(bodies, shapes, mgl64.Vec3{4, 0, 0}, mgl64.Vec3{}, actor.MobilityDynamic)

	solver := NewSolver(bodies, 8)
	first := solver.AddContact(contactBetween(a, b))
	second := solver.AddContact(contactBetween(c, a))

	solver.Remove(first)

	t.Run("remaining constraint survives slot compaction", func(t *testing.T) {
		location := solver.LocationOf(second)
		typeBatch := solver.Sets[0].Batches[location.Batch].typeBatch(ContactTypeID)
		if typeBatch.HandleAt(int(location.Slot)) != second {
			t.Error("moved constraint's location was not repaired")
		}
	})

	t.Run("bodies of the removed constraint are free again", func(t *testing.T) {
		if solver.Sets[0].Batches[0].References(b) {
			t.Error("body b should no longer be referenced by batch 0")
		}
	})

	t.Run("body constraint lists updated", func(t *testing.T) {
		if list := solver.ConstraintsOfBody(b); len(list) != 0 {
			t.Errorf("body b still lists constraints: %v", list)
		}
		if list := solver.ConstraintsOfBody(a); len(list) != 1 || list[0] != second {
			t.Errorf("body a should list only the second constraint: %v", list)
		}
	})

	t.Run("handle is recycled", func(t *testing.T) {
		third := solver.AddContact(contactBetween(a, b))
		if third != first {
			t.Errorf("expected recycled handle %v, got %v", first, third)
		}
	})
}

func TestUpdateContactPreservesImpulses(t *testing.T) {
	bodies, solver, handle, _, _ := headOnContact(t)
	_ = bodies

	solver.Solve(testTimestep, 8, nil)
	accumulated := solver.ContactImpulses(handle)
	if accumulated.Normal[0] <= 0 {
		t.Fatalf("expected accumulated impulse, got %v", accumulated.Normal[0])
	}

	// Next frame: same contact, slightly different depth.
	location := solver.LocationOf(handle)
	typeBatch := solver.Sets[0].Batches[location.Batch].typeBatch(ContactTypeID)
	description := &ContactDescription{
		BodyA:  typeBatch.BodyHandles(int(location.Slot))[0],
		BodyB:  typeBatch.BodyHandles(int(location.Slot))[1],
		Normal: mgl64.Vec3{1, 0, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{0.95, 0, 0},
			OffsetB: mgl64.Vec3{-0.95, 0, 0},
			Depth:   0.08,
		}},
		Springs: DefaultContactSprings,
	}
	solver.UpdateContact(handle, description)

	after := solver.ContactImpulses(handle)
	if after.Normal[0] != accumulated.Normal[0] {
		t.Errorf("update must preserve accumulated impulses: %v -> %v",
			accumulated.Normal[0], after.Normal[0])
	}
}
