package constraint

import (
	"math"
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const testTimestep = 1.0 / 60.0

func newTestWorld(t *testing.T) (*actor.Bodies, *actor.Shapes) {
	t.Helper()
	return actor.NewBodies(), actor.NewShapes()
}

func addSphereBody(bodies *actor.Bodies, shapes *actor.Shapes, position, velocity mgl64.Vec3, mobility actor.Mobility) actor.Handle {
	index := shapes.AddSphere(actor.Sphere{Radius: 1})
	return bodies.Add(actor.Description{
		Pose:       actor.NewTransformAt(position, mgl64.QuatIdent()),
		Velocity:   velocity,
		Mobility:   mobility,
		Density:    1,
		Material:   actor.Material{StaticFriction: 0.5, DynamicFriction: 0.4},
		Collidable: actor.Collidable{Shape: index},
	}, shapes)
}

// headOnContact builds two unit spheres closing on each other with a single
// contact at their midpoint.
func headOnContact(t *testing.T) (*actor.Bodies, *Solver, Handle, actor.Handle, actor.Handle) {
	t.Helper()
	bodies, shapes := newTestWorld(t)
	bodyA := addSphereBody(bodies, shapes, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, actor.MobilityDynamic)
	bodyB := addSphereBody(bodies, shapes, mgl64.Vec3{1.9, 0, 0}, mgl64.Vec3{-1, 0, 0}, actor.MobilityDynamic)

	// Presolve velocities as the integrator would leave them.
	bodies.Lookup(bodyA).PresolveVelocity = mgl64.Vec3{1, 0, 0}
	bodies.Lookup(bodyB).PresolveVelocity = mgl64.Vec3{-1, 0, 0}

	solver := NewSolver(bodies, 8)
	description := &ContactDescription{
		BodyA:  bodyA,
		BodyB:  bodyB,
		Normal: mgl64.Vec3{1, 0, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{0.95, 0, 0},
			OffsetB: mgl64.Vec3{-0.95, 0, 0},
			Depth:   0.1,
			Feature: 0,
		}},
		Friction: 0.4,
		Springs:  DefaultContactSprings,
	}
	handle := solver.AddContact(description)
	return bodies, solver, handle, bodyA, bodyB
}

func TestContactSolveSeparatesApproachingBodies(t *testing.T) {
	bodies, solver, handle, bodyA, bodyB := headOnContact(t)

	solver.Solve(testTimestep, 8, nil)

	velocityA := bodies.Lookup(bodyA).Velocity
	velocityB := bodies.Lookup(bodyB).Velocity
	approach := velocityB.Sub(velocityA).X()
	if approach < -1e-6 {
		t.Errorf("bodies still approaching after solve: relative x velocity %v", approach)
	}

	impulses := solver.ContactImpulses(handle)
	if impulses.Normal[0] <= 0 {
		t.Errorf("expected positive accumulated normal impulse, got %v", impulses.Normal[0])
	}
}

func TestContactImpulseClampNonNegative(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	// Separating bodies: the solver must not glue them together.
	bodyA := addSphereBody(bodies, shapes, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{-5, 0, 0}, actor.MobilityDynamic)
	bodyB := addSphereBody(bodies, shapes, mgl64.Vec3{1.9, 0, 0}, mgl64.Vec3{5, 0, 0}, actor.MobilityDynamic)

	solver := NewSolver(bodies, 8)
	handle := solver.AddContact(&ContactDescription{
		BodyA:  bodyA,
		BodyB:  bodyB,
		Normal: mgl64.Vec3{1, 0, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{0.95, 0, 0},
			OffsetB: mgl64.Vec3{-0.95, 0, 0},
			Depth:   0.1,
		}},
		Springs: DefaultContactSprings,
	})

	solver.Solve(testTimestep, 8, nil)

	impulses := solver.ContactImpulses(handle)
	if impulses.Normal[0] < 0 {
		t.Errorf("accumulated normal impulse went negative: %v", impulses.Normal[0])
	}
	// Separating fast: the only allowed effect is the mild position bias.
	if bodies.Lookup(bodyB).Velocity.X() < 5-1e-9 {
		t.Errorf("separating body was slowed: %v", bodies.Lookup(bodyB).Velocity)
	}
}

func TestWarmStartIdempotentOnZeroImpulse(t *testing.T) {
	bodies, solver, _, bodyA, bodyB := headOnContact(t)

	before := [2]mgl64.Vec3{bodies.Lookup(bodyA).Velocity, bodies.Lookup(bodyB).Velocity}

	// Prestep plus zero solve iterations: only warm start may touch
	// velocities, and a zero-impulse constraint must be a no-op.
	solver.Solve(testTimestep, 0, nil)

	after := [2]mgl64.Vec3{bodies.Lookup(bodyA).Velocity, bodies.Lookup(bodyB).Velocity}
	for i := range before {
		if !before[i].ApproxEqual(after[i]) {
			t.Errorf("body %d: velocity changed by zero-impulse warm start: %v -> %v",
				i, before[i], after[i])
		}
	}
}

func TestWarmStartReappliesAccumulatedImpulse(t *testing.T) {
	bodies, solver, handle, _, bodyB := headOnContact(t)

	solver.Solve(testTimestep, 8, nil)
	accumulated := solver.ContactImpulses(handle)
	if accumulated.Normal[0] <= 0 {
		t.Fatalf("expected accumulated impulse, got %v", accumulated.Normal[0])
	}

	// Reset velocities to the approaching state; warm start alone should
	// now push the bodies apart using last frame's impulse.
	bodies.Lookup(bodyB).Velocity = mgl64.Vec3{-1, 0, 0}
	before := bodies.Lookup(bodyB).Velocity

	solver.Solve(testTimestep, 0, nil)

	if bodies.Lookup(bodyB).Velocity.X() <= before.X() {
		t.Errorf("warm start did not apply the accumulated impulse: %v", bodies.Lookup(bodyB).Velocity)
	}
}

func TestStaticBodyUnmoved(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	ground := addSphereBody(bodies, shapes, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{}, actor.MobilityStatic)
	falling := addSphereBody(bodies, shapes, mgl64.Vec3{0, 1.9, 0}, mgl64.Vec3{0, -3, 0}, actor.MobilityDynamic)
	bodies.Lookup(falling).PresolveVelocity = mgl64.Vec3{0, -3, 0}

	solver := NewSolver(bodies, 8)
	solver.AddContact(&ContactDescription{
		BodyA:  falling,
		BodyB:  ground,
		Normal: mgl64.Vec3{0, -1, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{0, -0.95, 0},
			OffsetB: mgl64.Vec3{0, 0.95, 0},
			Depth:   0.1,
		}},
		Springs: DefaultContactSprings,
	})

	solver.Solve(testTimestep, 8, nil)

	if !bodies.Lookup(ground).Velocity.ApproxEqual(mgl64.Vec3{}) {
		t.Errorf("static body gained velocity: %v", bodies.Lookup(ground).Velocity)
	}
	if bodies.Lookup(falling).Velocity.Y() < -3 {
		t.Errorf("falling body accelerated into the contact: %v", bodies.Lookup(falling).Velocity)
	}
}

func TestFrictionClampedToDisc(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	ground := addSphereBody(bodies, shapes, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{}, actor.MobilityStatic)
	// Sliding fast sideways while pressed in.
	slider := addSphereBody(bodies, shapes, mgl64.Vec3{0, 1.9, 0}, mgl64.Vec3{10, -0.1, 0}, actor.MobilityDynamic)
	bodies.Lookup(slider).PresolveVelocity = mgl64.Vec3{10, -0.1, 0}

	solver := NewSolver(bodies, 8)
	handle := solver.AddContact(&ContactDescription{
		BodyA:  slider,
		BodyB:  ground,
		Normal: mgl64.Vec3{0, -1, 0},
		Count:  1,
		Points: [MaxContactsPerManifold]ContactPoint{{
			OffsetA: mgl64.Vec3{0, -0.95, 0},
			OffsetB: mgl64.Vec3{0, 0.95, 0},
			Depth:   0.05,
		}},
		Friction: 0.5,
		Springs:  DefaultContactSprings,
	})

	solver.Solve(testTimestep, 8, nil)

	impulses := solver.ContactImpulses(handle)
	tangentMagnitude := math.Hypot(impulses.Tangent[0], impulses.Tangent[1])
	normalTotal := impulses.Normal[0]
	if tangentMagnitude > 0.5*normalTotal+1e-9 {
		t.Errorf("friction impulse %v exceeds Coulomb disc %v", tangentMagnitude, 0.5*normalTotal)
	}
}
